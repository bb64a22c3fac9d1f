package pipeline

import (
	"sync"
	"time"

	"bookdigest/internal/model"
	"bookdigest/pkg/extract"
	"bookdigest/pkg/llm"
)

type classifiedErr struct {
	msg       string
	retryable bool
}

func (e *classifiedErr) Error() string   { return e.msg }
func (e *classifiedErr) Retryable() bool { return e.retryable }

func transientErr(msg string) error { return &classifiedErr{msg: msg, retryable: true} }
func permanentErr(msg string) error { return &classifiedErr{msg: msg, retryable: false} }

type fakeBookmarkStore struct {
	mu        sync.Mutex
	bookmarks map[int64]*model.Bookmark
	statuses  map[int64][]model.BookmarkStatus
	failures  map[int64]string
	retries   map[int64]int
	contents  map[int64]*model.ExtractedContent
	nuggets   map[int64]string
	order     []int64

	contentErrs []error
}

func newFakeBookmarkStore(bookmarks ...model.Bookmark) *fakeBookmarkStore {
	s := &fakeBookmarkStore{
		bookmarks: map[int64]*model.Bookmark{},
		statuses:  map[int64][]model.BookmarkStatus{},
		failures:  map[int64]string{},
		retries:   map[int64]int{},
		contents:  map[int64]*model.ExtractedContent{},
		nuggets:   map[int64]string{},
	}
	for i := range bookmarks {
		b := bookmarks[i]
		s.bookmarks[b.ID] = &b
		s.order = append(s.order, b.ID)
	}
	return s
}

func (s *fakeBookmarkStore) UpdateStatus(id int64, status model.BookmarkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], status)
	s.bookmarks[id].Status = status
	return nil
}

func (s *fakeBookmarkStore) MarkStarted(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[id].ProcessingStartedAt = &t
	return nil
}

func (s *fakeBookmarkStore) MarkCompleted(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], model.BookmarkCompleted)
	s.bookmarks[id].Status = model.BookmarkCompleted
	s.bookmarks[id].ProcessingCompletedAt = &t
	return nil
}

func (s *fakeBookmarkStore) MarkFailed(id int64, errMsg string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], model.BookmarkFailed)
	s.bookmarks[id].Status = model.BookmarkFailed
	s.bookmarks[id].ErrorMessage = errMsg
	s.failures[id] = errMsg
	return nil
}

func (s *fakeBookmarkStore) IncrementRetry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[id]++
	s.bookmarks[id].RetryCount = s.retries[id]
	return nil
}

func (s *fakeBookmarkStore) SaveContent(c *model.ExtractedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contentErrs) > 0 {
		err := s.contentErrs[0]
		s.contentErrs = s.contentErrs[1:]
		if err != nil {
			return err
		}
	}
	// upsert: retry passes rewrite the single row, 1:1 with the bookmark
	s.contents[c.BookmarkID] = c
	return nil
}

func (s *fakeBookmarkStore) SaveNugget(bookmarkID int64, summary string, generatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nuggets[bookmarkID] = summary
	if c, ok := s.contents[bookmarkID]; ok {
		c.ContentSummary = summary
		c.SummaryGeneratedAt = &generatedAt
	}
	return nil
}

func (s *fakeBookmarkStore) CountNonTerminal(uploadID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.bookmarks {
		if b.UploadID == uploadID && !b.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *fakeBookmarkStore) GetNuggets(uploadID int64) ([]model.Nugget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nuggets []model.Nugget
	for _, id := range s.order {
		b := s.bookmarks[id]
		if b.UploadID != uploadID {
			continue
		}
		summary, ok := s.nuggets[id]
		if !ok || summary == "" {
			continue
		}
		nuggets = append(nuggets, model.Nugget{
			BookmarkID: id,
			Title:      b.Title,
			URL:        b.URL,
			Summary:    summary,
		})
	}
	return nuggets, nil
}

type fakeUploadStore struct {
	mu        sync.Mutex
	statuses  []model.UploadStatus
	processed int
	errMsg    string
}

func (s *fakeUploadStore) MarkProcessing(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, model.UploadProcessing)
	return nil
}

func (s *fakeUploadStore) MarkCompleted(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, model.UploadCompleted)
	return nil
}

func (s *fakeUploadStore) MarkFailed(id int64, errMsg string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, model.UploadFailed)
	s.errMsg = errMsg
	return nil
}

func (s *fakeUploadStore) IncrementProcessed(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return nil
}

func (s *fakeUploadStore) lastStatus() model.UploadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return model.UploadPending
	}
	return s.statuses[len(s.statuses)-1]
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []model.ProcessingLog
	err     error
}

func (s *fakeLogStore) SaveLog(entry *model.ProcessingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

type extractAttempt struct {
	res *extract.Result
	err error
}

type fakeExtractor struct {
	mu       sync.Mutex
	attempts map[string][]extractAttempt
	calls    map[string]int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		attempts: map[string][]extractAttempt{},
		calls:    map[string]int{},
	}
}

func (f *fakeExtractor) script(url string, attempts ...extractAttempt) {
	f.attempts[url] = attempts
}

func (f *fakeExtractor) Extract(url string) (*extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[url]
	f.calls[url] = n + 1
	script := f.attempts[url]
	if len(script) == 0 {
		return nil, permanentErr("no script for " + url)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	a := script[n]
	return a.res, a.err
}

func recentResult(at time.Time, text string) *extract.Result {
	return &extract.Result{
		FinalURL: "https://example.com/final",
		RawText:  text,
		Sections: []extract.DatedSection{
			{Date: at.Add(-time.Hour), Text: text},
		},
		Method:   "readability",
		LoadTime: 120 * time.Millisecond,
	}
}

func staleResult(at time.Time, text string) *extract.Result {
	return &extract.Result{
		FinalURL: "https://example.com/final",
		RawText:  text,
		Sections: []extract.DatedSection{
			{Date: at.Add(-48 * time.Hour), Text: text},
		},
		Method:   "readability",
		LoadTime: 120 * time.Millisecond,
	}
}

type fakeNuggetClient struct {
	mu     sync.Mutex
	inputs []llm.NuggetInput
	errs   []error
	calls  int
}

func (f *fakeNuggetClient) Nugget(input llm.NuggetInput) (*llm.NuggetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, input)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &llm.NuggetResult{Summary: "nugget for " + input.URL, ModelUsed: "test-model"}, nil
}

type fakeDigestClient struct {
	mu     sync.Mutex
	inputs []llm.DigestInput
	err    error
	calls  int
}

func (f *fakeDigestClient) Digest(inputs []llm.DigestInput) (*llm.DigestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = inputs
	if f.err != nil {
		return nil, f.err
	}
	return &llm.DigestResult{Digest: "the digest", ModelUsed: "test-model", TokenCount: 321}, nil
}

type fakeJobStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*model.SummaryJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{nextID: 1, jobs: map[int64]*model.SummaryJob{}}
}

func (s *fakeJobStore) CreateJob(uploadID int64) (*model.SummaryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &model.SummaryJob{
		ID:       s.nextID,
		UploadID: uploadID,
		Status:   model.SummaryJobPending,
	}
	s.nextID++
	s.jobs[job.ID] = job
	return &model.SummaryJob{ID: job.ID, UploadID: uploadID, Status: model.SummaryJobPending}, nil
}

func (s *fakeJobStore) MarkJobProcessing(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = model.SummaryJobProcessing
	s.jobs[id].StartedAt = &t
	return nil
}

func (s *fakeJobStore) CompleteJob(job *model.SummaryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.jobs[job.ID]
	*stored = *job
	stored.Status = model.SummaryJobCompleted
	return nil
}

func (s *fakeJobStore) FailJob(id int64, errMsg string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = model.SummaryJobFailed
	s.jobs[id].ErrorMessage = errMsg
	s.jobs[id].CompletedAt = &t
	return nil
}

func (s *fakeJobStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func newTestProcessor(store *fakeBookmarkStore, extractor *fakeExtractor, nuggets *fakeNuggetClient, logs *fakeLogStore, maxRetries int) *Processor {
	p := NewProcessor(store, extractor, nuggets, NewAuditRecorder(logs), maxRetries)
	p.sleep = func(time.Duration) {}
	return p
}
