package pipeline

import (
	"fmt"
	"time"

	"bookdigest/internal/model"
	"bookdigest/pkg/llm"
)

type SummaryJobStore interface {
	CreateJob(uploadID int64) (*model.SummaryJob, error)
	MarkJobProcessing(id int64, t time.Time) error
	CompleteJob(job *model.SummaryJob) error
	FailJob(id int64, errMsg string, t time.Time) error
}

type NuggetSource interface {
	CountNonTerminal(uploadID int64) (int, error)
	GetNuggets(uploadID int64) ([]model.Nugget, error)
}

// NoRecentActivityDigest is stored when no bookmark produced a nugget.
// An empty selection is a valid result, not an error.
const NoRecentActivityDigest = "No recent activity was found on any of the bookmarked pages in the last 24 hours."

// Aggregator compiles an upload's nuggets into one final digest. It runs
// once, strictly after the upload's bookmark fan-out has quiesced.
type Aggregator struct {
	jobs      SummaryJobStore
	bookmarks NuggetSource
	digest    llm.DigestClient
	audit     *AuditRecorder

	now func() time.Time
}

func NewAggregator(jobs SummaryJobStore, bookmarks NuggetSource, digest llm.DigestClient, audit *AuditRecorder) *Aggregator {
	return &Aggregator{
		jobs:      jobs,
		bookmarks: bookmarks,
		digest:    digest,
		audit:     audit,
		now:       time.Now,
	}
}

func (a *Aggregator) Aggregate(upload *model.Upload) (*model.SummaryJob, error) {
	pending, err := a.bookmarks.CountNonTerminal(upload.ID)
	if err != nil {
		return nil, fmt.Errorf("count non-terminal bookmarks: %w", err)
	}
	if pending > 0 {
		return nil, &ConsistencyError{
			Op:     "summary aggregation",
			Reason: fmt.Sprintf("upload %d has %d bookmarks still in flight", upload.ID, pending),
		}
	}

	job, err := a.jobs.CreateJob(upload.ID)
	if err != nil {
		return nil, fmt.Errorf("create summary job: %w", err)
	}

	if !job.Status.CanTransition(model.SummaryJobProcessing) {
		return nil, &ConsistencyError{
			Op:     "summary job transition",
			Reason: fmt.Sprintf("%s -> processing", job.Status),
		}
	}
	startedAt := a.now().UTC()
	if err := a.jobs.MarkJobProcessing(job.ID, startedAt); err != nil {
		return nil, fmt.Errorf("mark summary job processing: %w", err)
	}
	job.Status = model.SummaryJobProcessing
	job.StartedAt = &startedAt

	start := a.now()
	nuggets, err := a.bookmarks.GetNuggets(upload.ID)
	if err != nil {
		return job, a.fail(job, fmt.Errorf("select nuggets: %w", err))
	}

	if len(nuggets) == 0 {
		job.FinalSummary = NoRecentActivityDigest
		job.BookmarksIncluded = 0
		job.SummaryMetadata = map[string]any{"reason": "no recent activity"}
		completedAt := a.now().UTC()
		job.CompletedAt = &completedAt
		job.Status = model.SummaryJobCompleted
		if err := a.jobs.CompleteJob(job); err != nil {
			return job, fmt.Errorf("complete summary job: %w", err)
		}
		a.audit.Record(&upload.ID, nil, "final_summarization", "completed", a.now().Sub(start), map[string]any{
			"bookmarks_included": 0,
		}, "")
		return job, nil
	}

	inputs := make([]llm.DigestInput, len(nuggets))
	for i, n := range nuggets {
		inputs[i] = llm.DigestInput{
			Title:   n.Title,
			URL:     n.URL,
			Summary: n.Summary,
		}
	}

	result, err := a.digest.Digest(inputs)
	if err != nil {
		a.audit.Record(&upload.ID, nil, "final_summarization", "failed", a.now().Sub(start), nil, err.Error())
		return job, a.fail(job, err)
	}

	job.FinalSummary = result.Digest
	job.BookmarksIncluded = len(nuggets)
	job.LLMModelUsed = clip(result.ModelUsed, model.MaxModelUsedLen)
	job.TokenCount = result.TokenCount
	job.SummaryMetadata = map[string]any{"nuggets": len(nuggets)}
	completedAt := a.now().UTC()
	job.CompletedAt = &completedAt
	job.Status = model.SummaryJobCompleted
	if err := a.jobs.CompleteJob(job); err != nil {
		return job, fmt.Errorf("complete summary job: %w", err)
	}

	a.audit.Record(&upload.ID, nil, "final_summarization", "completed", a.now().Sub(start), map[string]any{
		"bookmarks_included": job.BookmarksIncluded,
		"model_used":         job.LLMModelUsed,
		"token_count":        job.TokenCount,
	}, "")
	return job, nil
}

// fail records the terminal failure on the job and returns the cause.
// Summary failures do not retry and never regress the upload's status.
func (a *Aggregator) fail(job *model.SummaryJob, cause error) error {
	msg := clip(cause.Error(), model.MaxErrorMessageLen)
	failedAt := a.now().UTC()
	if err := a.jobs.FailJob(job.ID, msg, failedAt); err != nil {
		return fmt.Errorf("fail summary job: %w (cause: %v)", err, cause)
	}
	job.Status = model.SummaryJobFailed
	job.ErrorMessage = msg
	return cause
}
