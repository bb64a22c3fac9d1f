package model

import "time"

type SummaryJob struct {
	ID                int64
	UploadID          int64
	Status            SummaryJobStatus
	StartedAt         *time.Time
	CompletedAt       *time.Time
	BookmarksIncluded int
	FinalSummary      string
	ErrorMessage      string
	LLMModelUsed      string
	TokenCount        int
	SummaryMetadata   map[string]any
	CreatedAt         time.Time
}

// Nugget is the per-bookmark summary row selected for aggregation,
// in bookmark creation order.
type Nugget struct {
	BookmarkID int64
	Title      string
	URL        string
	Summary    string
}
