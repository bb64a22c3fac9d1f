package model

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

type BookmarkStatus string

const (
	BookmarkPending     BookmarkStatus = "pending"
	BookmarkExtracting  BookmarkStatus = "extracting"
	BookmarkFiltering   BookmarkStatus = "filtering"
	BookmarkSummarizing BookmarkStatus = "summarizing"
	BookmarkCompleted   BookmarkStatus = "completed"
	BookmarkFailed      BookmarkStatus = "failed"
)

type SummaryJobStatus string

const (
	SummaryJobPending    SummaryJobStatus = "pending"
	SummaryJobProcessing SummaryJobStatus = "processing"
	SummaryJobCompleted  SummaryJobStatus = "completed"
	SummaryJobFailed     SummaryJobStatus = "failed"
)

var uploadTransitions = map[UploadStatus][]UploadStatus{
	UploadPending:    {UploadProcessing, UploadFailed},
	UploadProcessing: {UploadCompleted, UploadFailed},
	UploadCompleted:  {},
	UploadFailed:     {},
}

// failed is reachable from every non-terminal bookmark state; pending is
// re-entered when a transient error hands the bookmark back for re-dispatch.
var bookmarkTransitions = map[BookmarkStatus][]BookmarkStatus{
	BookmarkPending:     {BookmarkExtracting, BookmarkFailed},
	BookmarkExtracting:  {BookmarkFiltering, BookmarkPending, BookmarkFailed},
	BookmarkFiltering:   {BookmarkSummarizing, BookmarkCompleted, BookmarkPending, BookmarkFailed},
	BookmarkSummarizing: {BookmarkCompleted, BookmarkPending, BookmarkFailed},
	BookmarkCompleted:   {},
	BookmarkFailed:      {},
}

var summaryJobTransitions = map[SummaryJobStatus][]SummaryJobStatus{
	SummaryJobPending:    {SummaryJobProcessing, SummaryJobFailed},
	SummaryJobProcessing: {SummaryJobCompleted, SummaryJobFailed},
	SummaryJobCompleted:  {},
	SummaryJobFailed:     {},
}

func (s UploadStatus) CanTransition(to UploadStatus) bool {
	for _, next := range uploadTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

func (s BookmarkStatus) CanTransition(to BookmarkStatus) bool {
	for _, next := range bookmarkTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookmarkStatus) Terminal() bool {
	return s == BookmarkCompleted || s == BookmarkFailed
}

func (s SummaryJobStatus) CanTransition(to SummaryJobStatus) bool {
	for _, next := range summaryJobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s SummaryJobStatus) Terminal() bool {
	return s == SummaryJobCompleted || s == SummaryJobFailed
}
