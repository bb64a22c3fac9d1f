package model

import "time"

// Field length caps enforced at the ingestion and API boundary.
const (
	MaxFilenameLen     = 255
	MaxFilePathLen     = 500
	MaxTitleLen        = 500
	MaxURLLen          = 2000
	MaxFolderPathLen   = 1000
	MaxErrorMessageLen = 1000
	MaxSummaryLen      = 2000
	MaxOperationLen    = 100
	MaxLogStatusLen    = 50
	MaxErrorDetailsLen = 2000
	MaxModelUsedLen    = 100
)

type Upload struct {
	ID                    int64
	Filename              string
	FilePath              string
	FileSize              int64
	UploadTime            time.Time
	Status                UploadStatus
	TotalBookmarks        int
	ProcessedBookmarks    int
	ErrorMessage          string
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
}

type Bookmark struct {
	ID                    int64
	UploadID              int64
	Title                 string
	URL                   string
	FolderPath            string
	DateAdded             *time.Time
	Status                BookmarkStatus
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ErrorMessage          string
	RetryCount            int
}

type ExtractedContent struct {
	ID                 int64
	BookmarkID         int64
	ExtractionTime     time.Time
	PageTitle          string
	PageURL            string
	RawContent         string
	FilteredContent    string
	ContentDate        *time.Time
	HasRecentContent   bool
	ContentSummary     string
	SummaryGeneratedAt *time.Time
	ExtractionMethod   string
	PageLoadTime       float64
	ContentMetadata    map[string]any
}
