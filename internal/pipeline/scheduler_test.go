package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"bookdigest/internal/model"
)

func testUpload(total int) *model.Upload {
	return &model.Upload{
		ID:             1,
		Filename:       "bookmarks.html",
		Status:         model.UploadPending,
		TotalBookmarks: total,
	}
}

func uploadBookmarks(urls ...string) []model.Bookmark {
	bookmarks := make([]model.Bookmark, len(urls))
	for i, u := range urls {
		bookmarks[i] = model.Bookmark{
			ID:       int64(i + 1),
			UploadID: 1,
			Title:    u,
			URL:      u,
			Status:   model.BookmarkPending,
		}
	}
	return bookmarks
}

func newTestScheduler(store *fakeBookmarkStore, uploads *fakeUploadStore, extractor *fakeExtractor, digest *fakeDigestClient, jobs *fakeJobStore, workers int) *Scheduler {
	logs := &fakeLogStore{}
	audit := NewAuditRecorder(logs)
	processor := newTestProcessor(store, extractor, &fakeNuggetClient{}, logs, 3)
	aggregator := NewAggregator(jobs, store, digest, audit)
	return NewScheduler(uploads, processor, aggregator, audit, workers)
}

func TestRunPartialRecencyScenario(t *testing.T) {
	now := time.Now().UTC()
	bookmarks := uploadBookmarks("https://a.example", "https://b.example", "https://c.example")
	store := newFakeBookmarkStore(bookmarks...)
	extractor := newFakeExtractor()
	extractor.script("https://a.example", extractAttempt{res: recentResult(now, "post a")})
	extractor.script("https://b.example", extractAttempt{res: recentResult(now, "post b")})
	extractor.script("https://c.example", extractAttempt{res: staleResult(now, "old c")})

	uploads := &fakeUploadStore{}
	digest := &fakeDigestClient{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, digest, jobs, 2)

	upload := testUpload(3)
	err := s.Run(context.Background(), upload, bookmarks)

	assert.Equal(t, nil, err)
	assert.Equal(t, model.UploadCompleted, uploads.lastStatus())
	assert.Equal(t, 3, uploads.processed)
	assert.Equal(t, 3, upload.ProcessedBookmarks)

	// only the two bookmarks with recent content enter the digest
	assert.Equal(t, 1, jobs.jobCount())
	job := jobs.jobs[1]
	assert.Equal(t, model.SummaryJobCompleted, job.Status)
	assert.Equal(t, 2, job.BookmarksIncluded)
	assert.Equal(t, "the digest", job.FinalSummary)
	assert.Equal(t, 2, len(digest.inputs))
	assert.Equal(t, "https://a.example", digest.inputs[0].URL)
	assert.Equal(t, "https://b.example", digest.inputs[1].URL)
}

func TestRunAllBookmarksFailed(t *testing.T) {
	bookmarks := uploadBookmarks("https://a.example", "https://b.example")
	store := newFakeBookmarkStore(bookmarks...)
	extractor := newFakeExtractor()
	extractor.script("https://a.example", extractAttempt{err: permanentErr("404")})
	extractor.script("https://b.example", extractAttempt{err: permanentErr("410")})

	uploads := &fakeUploadStore{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, &fakeDigestClient{}, jobs, 2)

	err := s.Run(context.Background(), testUpload(2), bookmarks)

	assert.Equal(t, nil, err)
	assert.Equal(t, model.UploadFailed, uploads.lastStatus())
	assert.Equal(t, "all bookmarks failed", uploads.errMsg)
	// no summary job is ever created for a failed upload
	assert.Equal(t, 0, jobs.jobCount())
}

func TestRunPartialFailureStillCompletes(t *testing.T) {
	now := time.Now().UTC()
	bookmarks := uploadBookmarks("https://ok.example", "https://broken.example")
	store := newFakeBookmarkStore(bookmarks...)
	extractor := newFakeExtractor()
	extractor.script("https://ok.example", extractAttempt{res: recentResult(now, "post")})
	extractor.script("https://broken.example", extractAttempt{err: permanentErr("boom")})

	uploads := &fakeUploadStore{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, &fakeDigestClient{}, jobs, 2)

	err := s.Run(context.Background(), testUpload(2), bookmarks)

	assert.Equal(t, nil, err)
	assert.Equal(t, model.UploadCompleted, uploads.lastStatus())
	assert.Equal(t, 1, jobs.jobCount())
	assert.Equal(t, 1, jobs.jobs[1].BookmarksIncluded)
}

func TestRunEmptyUploadFailsWithoutDispatch(t *testing.T) {
	store := newFakeBookmarkStore()
	uploads := &fakeUploadStore{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, newFakeExtractor(), &fakeDigestClient{}, jobs, 2)

	err := s.Run(context.Background(), testUpload(0), nil)

	assert.Equal(t, nil, err)
	assert.Equal(t, model.UploadFailed, uploads.lastStatus())
	assert.Equal(t, 0, uploads.processed)
	assert.Equal(t, 0, jobs.jobCount())
}

func TestRunProcessedNeverExceedsTotal(t *testing.T) {
	now := time.Now().UTC()
	urls := []string{
		"https://1.example", "https://2.example", "https://3.example",
		"https://4.example", "https://5.example", "https://6.example",
	}
	bookmarks := uploadBookmarks(urls...)
	store := newFakeBookmarkStore(bookmarks...)
	extractor := newFakeExtractor()
	for _, u := range urls {
		extractor.script(u, extractAttempt{res: recentResult(now, "post "+u)})
	}

	uploads := &fakeUploadStore{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, &fakeDigestClient{}, jobs, 4)

	upload := testUpload(len(urls))
	err := s.Run(context.Background(), upload, bookmarks)

	assert.Equal(t, nil, err)
	assert.Equal(t, len(urls), uploads.processed)
	if uploads.processed > upload.TotalBookmarks {
		t.Errorf("processed %d exceeds total %d", uploads.processed, upload.TotalBookmarks)
	}
	assert.Equal(t, model.UploadCompleted, uploads.lastStatus())
}

func TestRunRejectsNonPendingUpload(t *testing.T) {
	store := newFakeBookmarkStore()
	uploads := &fakeUploadStore{}
	s := newTestScheduler(store, uploads, newFakeExtractor(), &fakeDigestClient{}, newFakeJobStore(), 1)

	upload := testUpload(1)
	upload.Status = model.UploadCompleted
	err := s.Run(context.Background(), upload, uploadBookmarks("https://a.example"))

	assert.Equal(t, true, IsConsistency(err))
}

func TestRunResumesProcessingUpload(t *testing.T) {
	now := time.Now().UTC()
	bookmarks := uploadBookmarks("https://done.example", "https://stuck.example", "https://fresh.example")
	// a previous run completed the first bookmark and was interrupted
	// mid-extraction on the second
	bookmarks[0].Status = model.BookmarkCompleted
	bookmarks[1].Status = model.BookmarkExtracting

	store := newFakeBookmarkStore(bookmarks...)
	store.nuggets[1] = "nugget for https://done.example"
	extractor := newFakeExtractor()
	extractor.script("https://stuck.example", extractAttempt{res: recentResult(now, "post b")})
	extractor.script("https://fresh.example", extractAttempt{res: recentResult(now, "post c")})

	uploads := &fakeUploadStore{}
	digest := &fakeDigestClient{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, digest, jobs, 2)

	upload := testUpload(3)
	upload.Status = model.UploadProcessing
	err := s.Run(context.Background(), upload, bookmarks)

	assert.Equal(t, nil, err)
	assert.Equal(t, model.UploadCompleted, uploads.lastStatus())
	// one reconciled from the earlier run plus the two dispatched now
	assert.Equal(t, 3, uploads.processed)
	assert.Equal(t, 3, upload.ProcessedBookmarks)

	// terminal bookmarks are not re-dispatched
	assert.Equal(t, 0, extractor.calls["https://done.example"])
	assert.Equal(t, 1, extractor.calls["https://stuck.example"])

	assert.Equal(t, 1, jobs.jobCount())
	assert.Equal(t, 3, jobs.jobs[1].BookmarksIncluded)
	assert.Equal(t, "https://done.example", digest.inputs[0].URL)
}

func TestRunCancellationSkipsAggregation(t *testing.T) {
	now := time.Now().UTC()
	urls := []string{"https://1.example", "https://2.example", "https://3.example", "https://4.example"}
	bookmarks := uploadBookmarks(urls...)
	store := newFakeBookmarkStore(bookmarks...)
	extractor := newFakeExtractor()
	for _, u := range urls {
		extractor.script(u, extractAttempt{res: recentResult(now, "post")})
	}

	uploads := &fakeUploadStore{}
	jobs := newFakeJobStore()
	s := newTestScheduler(store, uploads, extractor, &fakeDigestClient{}, jobs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, testUpload(len(urls)), bookmarks)

	assert.Equal(t, context.Canceled, err)
	// no new dispatch after cancellation, and no summary job
	assert.Equal(t, 0, jobs.jobCount())
	assert.NotEqual(t, model.UploadCompleted, uploads.lastStatus())
}
