package pipeline

import (
	"fmt"
	"time"

	"bookdigest/internal/model"
	"bookdigest/pkg/extract"
	"bookdigest/pkg/llm"
)

type BookmarkStore interface {
	UpdateStatus(id int64, status model.BookmarkStatus) error
	MarkStarted(id int64, t time.Time) error
	MarkCompleted(id int64, t time.Time) error
	MarkFailed(id int64, errMsg string, t time.Time) error
	IncrementRetry(id int64) error
	SaveContent(c *model.ExtractedContent) error
	SaveNugget(bookmarkID int64, summary string, generatedAt time.Time) error
}

type Extractor interface {
	Extract(url string) (*extract.Result, error)
}

// Processor drives a single bookmark through
// extracting -> filtering -> summarizing. It owns that bookmark's row
// exclusively; the upload's aggregate counters are the scheduler's.
type Processor struct {
	bookmarks   BookmarkStore
	extractor   Extractor
	nuggets     llm.NuggetClient
	audit       *AuditRecorder
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

type Outcome struct {
	BookmarkID       int64
	Status           model.BookmarkStatus
	HasRecentContent bool
	Err              error
}

func NewProcessor(bookmarks BookmarkStore, extractor Extractor, nuggets llm.NuggetClient, audit *AuditRecorder, maxRetries int) *Processor {
	return &Processor{
		bookmarks:   bookmarks,
		extractor:   extractor,
		nuggets:     nuggets,
		audit:       audit,
		maxRetries:  maxRetries,
		backoffBase: 2 * time.Second,
		backoffCap:  30 * time.Second,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Process runs the bookmark to a terminal status. Transient collaborator
// errors hand the bookmark back to pending and retry with backoff; the
// retry budget is shared across all stages. Permanent errors fail
// immediately without consuming a retry slot.
func (p *Processor) Process(b model.Bookmark) Outcome {
	started := p.now().UTC()
	if err := p.bookmarks.MarkStarted(b.ID, started); err != nil {
		return p.fail(&b, fmt.Errorf("mark started: %w", err))
	}
	b.ProcessingStartedAt = &started

	// a bookmark interrupted mid-stage by a worker restart re-enters
	// pending before the run begins
	if b.Status != model.BookmarkPending {
		if terr := p.transition(&b, model.BookmarkPending); terr != nil {
			return Outcome{BookmarkID: b.ID, Status: b.Status, Err: terr}
		}
	}

	for {
		hasRecent, err := p.runOnce(&b)
		if err == nil {
			return Outcome{BookmarkID: b.ID, Status: model.BookmarkCompleted, HasRecentContent: hasRecent}
		}

		if IsConsistency(err) {
			return Outcome{BookmarkID: b.ID, Status: b.Status, Err: err}
		}

		if !IsRetryable(err) {
			return p.fail(&b, err)
		}

		b.RetryCount++
		if storeErr := p.bookmarks.IncrementRetry(b.ID); storeErr != nil {
			return p.fail(&b, fmt.Errorf("increment retry: %w (after %v)", storeErr, err))
		}

		if b.RetryCount >= p.maxRetries {
			return p.fail(&b, err)
		}

		if terr := p.transition(&b, model.BookmarkPending); terr != nil {
			return Outcome{BookmarkID: b.ID, Status: b.Status, Err: terr}
		}
		p.sleep(p.backoff(b.RetryCount))
	}
}

func (p *Processor) runOnce(b *model.Bookmark) (bool, error) {
	if err := p.transition(b, model.BookmarkExtracting); err != nil {
		return false, err
	}

	extractStart := p.now()
	res, err := p.extractor.Extract(b.URL)
	if err != nil {
		p.record(b, "extraction", "failed", p.now().Sub(extractStart), nil, err.Error())
		return false, err
	}
	p.record(b, "extraction", "completed", p.now().Sub(extractStart), map[string]any{
		"method":    res.Method,
		"final_url": res.FinalURL,
	}, "")

	if err := p.transition(b, model.BookmarkFiltering); err != nil {
		return false, err
	}

	filterStart := p.now()
	extractedAt := p.now().UTC()
	rec := FilterRecent(res.Sections, extractedAt)

	content := &model.ExtractedContent{
		BookmarkID:       b.ID,
		ExtractionTime:   extractedAt,
		PageTitle:        clip(res.PageTitle, model.MaxTitleLen),
		PageURL:          clip(res.FinalURL, model.MaxURLLen),
		RawContent:       res.RawText,
		FilteredContent:  rec.FilteredContent,
		ContentDate:      rec.ContentDate,
		HasRecentContent: rec.HasRecentContent,
		ExtractionMethod: res.Method,
		PageLoadTime:     res.LoadTime.Seconds(),
		ContentMetadata: map[string]any{
			"method":      res.Method,
			"final_url":   res.FinalURL,
			"dates_found": len(res.Sections),
		},
	}
	if err := p.bookmarks.SaveContent(content); err != nil {
		p.record(b, "recency_filter", "failed", p.now().Sub(filterStart), nil, err.Error())
		return false, fmt.Errorf("save content: %w", err)
	}
	p.record(b, "recency_filter", "completed", p.now().Sub(filterStart), map[string]any{
		"has_recent_content": rec.HasRecentContent,
		"dates_found":        len(res.Sections),
	}, "")

	// Nothing recent is a valid terminal outcome, not a failure.
	if !rec.HasRecentContent {
		if !b.Status.CanTransition(model.BookmarkCompleted) {
			return false, &ConsistencyError{Op: "bookmark transition", Reason: fmt.Sprintf("%s -> completed", b.Status)}
		}
		completed := p.now().UTC()
		if err := p.bookmarks.MarkCompleted(b.ID, completed); err != nil {
			return false, fmt.Errorf("mark completed: %w", err)
		}
		b.Status = model.BookmarkCompleted
		b.ProcessingCompletedAt = &completed
		p.record(b, "summarization", "skipped", 0, map[string]any{"reason": "no recent content"}, "")
		return false, nil
	}

	if err := p.transition(b, model.BookmarkSummarizing); err != nil {
		return false, err
	}

	sumStart := p.now()
	nugget, err := p.nuggets.Nugget(llm.NuggetInput{
		Title:   b.Title,
		URL:     b.URL,
		Content: rec.FilteredContent,
	})
	if err != nil {
		p.record(b, "summarization", "failed", p.now().Sub(sumStart), nil, err.Error())
		return false, err
	}

	generatedAt := p.now().UTC()
	if err := p.bookmarks.SaveNugget(b.ID, clip(nugget.Summary, model.MaxSummaryLen), generatedAt); err != nil {
		return false, fmt.Errorf("save nugget: %w", err)
	}
	p.record(b, "summarization", "completed", p.now().Sub(sumStart), map[string]any{
		"model_used": nugget.ModelUsed,
	}, "")

	if !b.Status.CanTransition(model.BookmarkCompleted) {
		return false, &ConsistencyError{Op: "bookmark transition", Reason: fmt.Sprintf("%s -> completed", b.Status)}
	}
	completed := p.now().UTC()
	if err := p.bookmarks.MarkCompleted(b.ID, completed); err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	b.Status = model.BookmarkCompleted
	b.ProcessingCompletedAt = &completed
	return true, nil
}

func (p *Processor) transition(b *model.Bookmark, to model.BookmarkStatus) error {
	if !b.Status.CanTransition(to) {
		return &ConsistencyError{Op: "bookmark transition", Reason: fmt.Sprintf("%s -> %s", b.Status, to)}
	}
	if err := p.bookmarks.UpdateStatus(b.ID, to); err != nil {
		return fmt.Errorf("update status to %s: %w", to, err)
	}
	b.Status = to
	return nil
}

func (p *Processor) fail(b *model.Bookmark, cause error) Outcome {
	msg := clip(cause.Error(), model.MaxErrorMessageLen)
	failedAt := p.now().UTC()
	if err := p.bookmarks.MarkFailed(b.ID, msg, failedAt); err != nil {
		return Outcome{BookmarkID: b.ID, Status: b.Status, Err: fmt.Errorf("mark failed: %w (cause: %v)", err, cause)}
	}
	b.Status = model.BookmarkFailed
	b.ErrorMessage = msg
	p.record(b, "bookmark_processing", "failed", 0, map[string]any{"retry_count": b.RetryCount}, msg)
	return Outcome{BookmarkID: b.ID, Status: model.BookmarkFailed, Err: cause}
}

func (p *Processor) backoff(retryCount int) time.Duration {
	d := p.backoffBase << retryCount
	if d > p.backoffCap || d <= 0 {
		return p.backoffCap
	}
	return d
}

func (p *Processor) record(b *model.Bookmark, operation, status string, duration time.Duration, details map[string]any, errDetail string) {
	p.audit.Record(&b.UploadID, &b.ID, operation, status, duration, details, errDetail)
}
