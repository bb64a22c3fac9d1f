package handler

type UploadCreatedResponse struct {
	UploadID       int64  `json:"upload_id"`
	Filename       string `json:"filename"`
	Status         string `json:"status"`
	TotalBookmarks int    `json:"total_bookmarks"`
}

type UploadResponse struct {
	UploadID              int64   `json:"upload_id"`
	Filename              string  `json:"filename"`
	Status                string  `json:"status"`
	TotalBookmarks        int     `json:"total_bookmarks"`
	ProcessedBookmarks    int     `json:"processed_bookmarks"`
	BookmarksWithSummary  int     `json:"bookmarks_with_summaries"`
	FinalSummary          *string `json:"final_summary"`
	ErrorMessage          *string `json:"error_message"`
	ProcessingTimeSeconds *int    `json:"processing_time_seconds"`
	UploadTime            string  `json:"upload_time"`
	ProcessingCompletedAt *string `json:"processing_completed_at"`
}

type UploadsResponse struct {
	Uploads []UploadResponse `json:"uploads"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type BookmarkResponse struct {
	BookmarkID       int64   `json:"bookmark_id"`
	Title            string  `json:"title"`
	URL              string  `json:"url"`
	FolderPath       string  `json:"folder_path,omitempty"`
	Status           string  `json:"status"`
	RetryCount       int     `json:"retry_count"`
	HasRecentContent bool    `json:"has_recent_content"`
	ContentSummary   *string `json:"content_summary"`
	ErrorMessage     *string `json:"error_message"`
}

type BookmarkListResponse struct {
	Bookmarks []BookmarkResponse `json:"bookmarks"`
	Total     int                `json:"total"`
}

type ContentResponse struct {
	PageTitle          string         `json:"page_title"`
	PageURL            string         `json:"page_url"`
	HasRecentContent   bool           `json:"has_recent_content"`
	ContentDate        *string        `json:"content_date"`
	FilteredContent    *string        `json:"filtered_content"`
	ContentSummary     *string        `json:"content_summary"`
	SummaryGeneratedAt *string        `json:"summary_generated_at"`
	ExtractionMethod   string         `json:"extraction_method"`
	PageLoadTime       float64        `json:"page_load_time"`
	ContentMetadata    map[string]any `json:"content_metadata"`
}

type BookmarkDetailResponse struct {
	BookmarkResponse
	Content *ContentResponse `json:"content"`
}

type SummaryJobResponse struct {
	JobID             int64          `json:"job_id"`
	UploadID          int64          `json:"upload_id"`
	Status            string         `json:"status"`
	BookmarksIncluded int            `json:"bookmarks_included"`
	FinalSummary      *string        `json:"final_summary"`
	LLMModelUsed      *string        `json:"llm_model_used"`
	TokenCount        int            `json:"token_count"`
	SummaryMetadata   map[string]any `json:"summary_metadata"`
	ErrorMessage      *string        `json:"error_message"`
	StartedAt         *string        `json:"started_at"`
	CompletedAt       *string        `json:"completed_at"`
}

type LogResponse struct {
	ID              int64          `json:"id"`
	Timestamp       string         `json:"timestamp"`
	UploadID        *int64         `json:"upload_id"`
	BookmarkID      *int64         `json:"bookmark_id"`
	Operation       string         `json:"operation"`
	Status          string         `json:"status"`
	DurationSeconds float64        `json:"duration_seconds"`
	Details         map[string]any `json:"details"`
	ErrorDetails    *string        `json:"error_details"`
}

type LogsResponse struct {
	Logs []LogResponse `json:"logs"`
}
