package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bookdigest/internal/model"
)

type UploadStore interface {
	MarkProcessing(id int64, t time.Time) error
	MarkCompleted(id int64, t time.Time) error
	MarkFailed(id int64, errMsg string, t time.Time) error
	IncrementProcessed(id int64) error
}

// Scheduler fans one upload's bookmarks out to a bounded pool of
// processor executions and watches for quiescence. It is the only
// writer of the upload's aggregate counters: workers report outcomes
// on a channel and a single drain loop updates the row.
type Scheduler struct {
	uploads    UploadStore
	processor  *Processor
	aggregator *Aggregator
	audit      *AuditRecorder
	workers    int

	now func() time.Time
}

func NewScheduler(uploads UploadStore, processor *Processor, aggregator *Aggregator, audit *AuditRecorder, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		uploads:    uploads,
		processor:  processor,
		aggregator: aggregator,
		audit:      audit,
		workers:    workers,
		now:        time.Now,
	}
}

// Run processes the upload to a terminal status and, on completion,
// triggers aggregation exactly once. Cancelling the context stops new
// dispatch; in-flight bookmarks finish but the upload is not aggregated.
// A processing upload is resumed: bookmarks already terminal keep their
// results and only the rest are dispatched.
func (s *Scheduler) Run(ctx context.Context, upload *model.Upload, bookmarks []model.Bookmark) error {
	runStart := s.now()

	resuming := upload.Status == model.UploadProcessing
	if upload.Status != model.UploadPending && !resuming {
		return &ConsistencyError{Op: "upload dispatch", Reason: fmt.Sprintf("upload %d is %s, want pending or processing", upload.ID, upload.Status)}
	}

	if len(bookmarks) == 0 {
		failedAt := s.now().UTC()
		if err := s.uploads.MarkFailed(upload.ID, "no bookmarks found in upload", failedAt); err != nil {
			return fmt.Errorf("mark upload failed: %w", err)
		}
		upload.Status = model.UploadFailed
		s.audit.Record(&upload.ID, nil, "upload_processing", "failed", 0, nil, "no bookmarks found in upload")
		return nil
	}

	var completedCount, failedCount int
	var queue []model.Bookmark
	for _, b := range bookmarks {
		switch b.Status {
		case model.BookmarkCompleted:
			completedCount++
		case model.BookmarkFailed:
			failedCount++
		default:
			queue = append(queue, b)
		}
	}

	if resuming {
		// catch the counter up with results that landed before the
		// previous run was interrupted
		for upload.ProcessedBookmarks < completedCount+failedCount {
			if err := s.uploads.IncrementProcessed(upload.ID); err != nil {
				slog.Error("failed to reconcile processed count", "upload_id", upload.ID, "error", err)
				break
			}
			upload.ProcessedBookmarks++
		}
		s.audit.Record(&upload.ID, nil, "upload_processing", "resumed", 0, map[string]any{
			"total_bookmarks": len(bookmarks),
			"remaining":       len(queue),
			"workers":         s.workers,
		}, "")
	} else {
		startedAt := s.now().UTC()
		if err := s.uploads.MarkProcessing(upload.ID, startedAt); err != nil {
			return fmt.Errorf("mark upload processing: %w", err)
		}
		upload.Status = model.UploadProcessing
		upload.ProcessingStartedAt = &startedAt
		s.audit.Record(&upload.ID, nil, "upload_processing", "started", 0, map[string]any{
			"total_bookmarks": len(bookmarks),
			"workers":         s.workers,
		}, "")
	}

	jobs := make(chan model.Bookmark)
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				results <- s.processor.Process(b)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, b := range queue {
			select {
			case <-ctx.Done():
				return
			case jobs <- b:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		if err := s.uploads.IncrementProcessed(upload.ID); err != nil {
			slog.Error("failed to increment processed count", "upload_id", upload.ID, "error", err)
		} else {
			upload.ProcessedBookmarks++
		}

		switch out.Status {
		case model.BookmarkCompleted:
			completedCount++
		case model.BookmarkFailed:
			failedCount++
		default:
			// A non-terminal outcome means a consistency violation inside
			// the processor; surface it loudly and count it as failed.
			slog.Error("bookmark finished in non-terminal status", "bookmark_id", out.BookmarkID, "status", out.Status, "error", out.Err)
			failedCount++
		}
	}

	if ctx.Err() != nil {
		slog.Warn("upload cancelled before quiescence", "upload_id", upload.ID, "processed", upload.ProcessedBookmarks, "total", upload.TotalBookmarks)
		return ctx.Err()
	}

	completedAt := s.now().UTC()
	if completedCount == 0 {
		if err := s.uploads.MarkFailed(upload.ID, "all bookmarks failed", completedAt); err != nil {
			return fmt.Errorf("mark upload failed: %w", err)
		}
		upload.Status = model.UploadFailed
		s.audit.Record(&upload.ID, nil, "upload_processing", "failed", s.now().Sub(runStart), map[string]any{
			"failed": failedCount,
		}, "all bookmarks failed")
		return nil
	}

	// Partial failure still completes the upload; per-bookmark failures
	// are expected and visible on the bookmark rows.
	if err := s.uploads.MarkCompleted(upload.ID, completedAt); err != nil {
		return fmt.Errorf("mark upload completed: %w", err)
	}
	upload.Status = model.UploadCompleted
	upload.ProcessingCompletedAt = &completedAt
	s.audit.Record(&upload.ID, nil, "upload_processing", "completed", s.now().Sub(runStart), map[string]any{
		"completed": completedCount,
		"failed":    failedCount,
	}, "")

	if _, err := s.aggregator.Aggregate(upload); err != nil {
		// The upload stays completed: bookmark-level results are valid
		// regardless of the digest outcome.
		slog.Error("summary aggregation failed", "upload_id", upload.ID, "error", err)
	}
	return nil
}
