package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"bookdigest/internal/model"
)

type BookmarkRepository struct {
	db *sql.DB
}

func NewBookmarkRepository(db *sql.DB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

func (r *BookmarkRepository) CreateBatch(bookmarks []model.Bookmark) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range bookmarks {
		b := &bookmarks[i]
		err := tx.QueryRow(`
			INSERT INTO bookmarks(upload_id, title, url, folder_path, date_added, processing_status)
			VALUES($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, b.UploadID, b.Title, b.URL, nullString(b.FolderPath), b.DateAdded, model.BookmarkPending).Scan(&b.ID)
		if err != nil {
			return err
		}
		b.Status = model.BookmarkPending
	}

	return tx.Commit()
}

func (r *BookmarkRepository) GetByID(id int64) (*model.Bookmark, error) {
	row := r.db.QueryRow(`
		SELECT id, upload_id, title, url, folder_path, date_added, processing_status,
			processing_started_at, processing_completed_at, error_message, retry_count
		FROM bookmarks
		WHERE id = $1
	`, id)

	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BookmarkRepository) GetByUploadID(uploadID int64) ([]model.Bookmark, error) {
	rows, err := r.db.Query(`
		SELECT id, upload_id, title, url, folder_path, date_added, processing_status,
			processing_started_at, processing_completed_at, error_message, retry_count
		FROM bookmarks
		WHERE upload_id = $1
		ORDER BY id ASC
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []model.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookmarks, nil
}

func (r *BookmarkRepository) UpdateStatus(id int64, status model.BookmarkStatus) error {
	_, err := r.db.Exec(`
		UPDATE bookmarks SET processing_status = $1 WHERE id = $2
	`, status, id)
	return err
}

func (r *BookmarkRepository) MarkStarted(id int64, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmarks SET processing_started_at = $1 WHERE id = $2
	`, t, id)
	return err
}

func (r *BookmarkRepository) MarkCompleted(id int64, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmarks
		SET processing_status = $1, processing_completed_at = $2
		WHERE id = $3
	`, model.BookmarkCompleted, t, id)
	return err
}

func (r *BookmarkRepository) MarkFailed(id int64, errMsg string, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmarks
		SET processing_status = $1, error_message = $2, processing_completed_at = $3
		WHERE id = $4
	`, model.BookmarkFailed, errMsg, t, id)
	return err
}

func (r *BookmarkRepository) IncrementRetry(id int64) error {
	_, err := r.db.Exec(`
		UPDATE bookmarks SET retry_count = retry_count + 1 WHERE id = $1
	`, id)
	return err
}

// SaveContent upserts on bookmark_id: retry passes rewrite the single
// content row, keeping the 1:1 relationship with the bookmark.
func (r *BookmarkRepository) SaveContent(c *model.ExtractedContent) error {
	return r.db.QueryRow(`
		INSERT INTO extracted_contents(bookmark_id, extraction_time, page_title, page_url,
			raw_content, filtered_content, content_date, has_recent_content,
			extraction_method, page_load_time, content_metadata)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bookmark_id) DO UPDATE SET
			extraction_time = EXCLUDED.extraction_time,
			page_title = EXCLUDED.page_title,
			page_url = EXCLUDED.page_url,
			raw_content = EXCLUDED.raw_content,
			filtered_content = EXCLUDED.filtered_content,
			content_date = EXCLUDED.content_date,
			has_recent_content = EXCLUDED.has_recent_content,
			extraction_method = EXCLUDED.extraction_method,
			page_load_time = EXCLUDED.page_load_time,
			content_metadata = EXCLUDED.content_metadata
		RETURNING id
	`, c.BookmarkID, c.ExtractionTime, nullString(c.PageTitle), c.PageURL,
		c.RawContent, nullString(c.FilteredContent), c.ContentDate, c.HasRecentContent,
		c.ExtractionMethod, c.PageLoadTime, marshalMeta(c.ContentMetadata)).Scan(&c.ID)
}

func (r *BookmarkRepository) SaveNugget(bookmarkID int64, summary string, generatedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE extracted_contents
		SET content_summary = $1, summary_generated_at = $2
		WHERE bookmark_id = $3
	`, summary, generatedAt, bookmarkID)
	return err
}

func (r *BookmarkRepository) GetContentByBookmarkID(bookmarkID int64) (*model.ExtractedContent, error) {
	var c model.ExtractedContent
	var pageTitle, filtered, summary sql.NullString
	var contentDate, generatedAt sql.NullTime
	var loadTime sql.NullFloat64
	var metaJSON []byte

	err := r.db.QueryRow(`
		SELECT id, bookmark_id, extraction_time, page_title, page_url, raw_content,
			filtered_content, content_date, has_recent_content, content_summary,
			summary_generated_at, extraction_method, page_load_time, content_metadata
		FROM extracted_contents
		WHERE bookmark_id = $1
	`, bookmarkID).Scan(&c.ID, &c.BookmarkID, &c.ExtractionTime, &pageTitle, &c.PageURL,
		&c.RawContent, &filtered, &contentDate, &c.HasRecentContent, &summary,
		&generatedAt, &c.ExtractionMethod, &loadTime, &metaJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	c.PageTitle = pageTitle.String
	c.FilteredContent = filtered.String
	c.ContentSummary = summary.String
	c.PageLoadTime = loadTime.Float64
	c.ContentMetadata = unmarshalMeta(metaJSON)
	if contentDate.Valid {
		c.ContentDate = &contentDate.Time
	}
	if generatedAt.Valid {
		c.SummaryGeneratedAt = &generatedAt.Time
	}

	return &c, nil
}

func (r *BookmarkRepository) CountNonTerminal(uploadID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM bookmarks
		WHERE upload_id = $1 AND processing_status NOT IN ($2, $3)
	`, uploadID, model.BookmarkCompleted, model.BookmarkFailed).Scan(&count)
	return count, err
}

// GetNuggets returns the summaries eligible for the final digest in
// bookmark creation order, which is the original file order.
func (r *BookmarkRepository) GetNuggets(uploadID int64) ([]model.Nugget, error) {
	rows, err := r.db.Query(`
		SELECT b.id, b.title, b.url, c.content_summary
		FROM bookmarks b
		JOIN extracted_contents c ON c.bookmark_id = b.id
		WHERE b.upload_id = $1
			AND c.has_recent_content = TRUE
			AND c.content_summary IS NOT NULL
		ORDER BY b.id ASC
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nuggets []model.Nugget
	for rows.Next() {
		var n model.Nugget
		if err := rows.Scan(&n.BookmarkID, &n.Title, &n.URL, &n.Summary); err != nil {
			return nil, err
		}
		nuggets = append(nuggets, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nuggets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (*model.Bookmark, error) {
	var b model.Bookmark
	var folder, errMsg sql.NullString
	var dateAdded, startedAt, completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.UploadID, &b.Title, &b.URL, &folder, &dateAdded, &b.Status,
		&startedAt, &completedAt, &errMsg, &b.RetryCount)
	if err != nil {
		return nil, err
	}

	b.FolderPath = folder.String
	b.ErrorMessage = errMsg.String
	if dateAdded.Valid {
		b.DateAdded = &dateAdded.Time
	}
	if startedAt.Valid {
		b.ProcessingStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		b.ProcessingCompletedAt = &completedAt.Time
	}

	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalMeta(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func unmarshalMeta(data []byte) map[string]any {
	m := map[string]any{}
	if len(data) > 0 {
		json.Unmarshal(data, &m)
	}
	return m
}
