package repository

import (
	"database/sql"
	"time"

	"bookdigest/internal/model"
)

type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(upload *model.Upload) error {
	return r.db.QueryRow(`
		INSERT INTO bookmark_uploads(filename, file_path, file_size, upload_time, processing_status, total_bookmarks)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, upload.Filename, upload.FilePath, upload.FileSize, upload.UploadTime, upload.Status, upload.TotalBookmarks).Scan(&upload.ID)
}

func (r *UploadRepository) GetByID(id int64) (*model.Upload, error) {
	var u model.Upload
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, filename, file_path, file_size, upload_time, processing_status,
			total_bookmarks, processed_bookmarks, error_message,
			processing_started_at, processing_completed_at
		FROM bookmark_uploads
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Filename, &u.FilePath, &u.FileSize, &u.UploadTime, &u.Status,
		&u.TotalBookmarks, &u.ProcessedBookmarks, &errMsg, &startedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	u.ErrorMessage = errMsg.String
	if startedAt.Valid {
		u.ProcessingStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		u.ProcessingCompletedAt = &completedAt.Time
	}

	return &u, nil
}

func (r *UploadRepository) List(limit, offset int) ([]model.Upload, error) {
	rows, err := r.db.Query(`
		SELECT id, filename, file_path, file_size, upload_time, processing_status,
			total_bookmarks, processed_bookmarks, error_message,
			processing_started_at, processing_completed_at
		FROM bookmark_uploads
		ORDER BY upload_time DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		var u model.Upload
		var errMsg sql.NullString
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(&u.ID, &u.Filename, &u.FilePath, &u.FileSize, &u.UploadTime, &u.Status,
			&u.TotalBookmarks, &u.ProcessedBookmarks, &errMsg, &startedAt, &completedAt)
		if err != nil {
			return nil, err
		}
		u.ErrorMessage = errMsg.String
		if startedAt.Valid {
			u.ProcessingStartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			u.ProcessingCompletedAt = &completedAt.Time
		}
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return uploads, nil
}

func (r *UploadRepository) GetTotal() (int, error) {
	var total int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM bookmark_uploads`).Scan(&total)
	return total, err
}

func (r *UploadRepository) MarkProcessing(id int64, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmark_uploads
		SET processing_status = $1, processing_started_at = $2
		WHERE id = $3
	`, model.UploadProcessing, t, id)
	return err
}

func (r *UploadRepository) MarkCompleted(id int64, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmark_uploads
		SET processing_status = $1, processing_completed_at = $2
		WHERE id = $3
	`, model.UploadCompleted, t, id)
	return err
}

func (r *UploadRepository) MarkFailed(id int64, errMsg string, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE bookmark_uploads
		SET processing_status = $1, error_message = $2, processing_completed_at = $3
		WHERE id = $4
	`, model.UploadFailed, errMsg, t, id)
	return err
}

// IncrementProcessed is an atomic in-database increment; the scheduler's
// drain loop is its only caller, one call per terminal bookmark.
func (r *UploadRepository) IncrementProcessed(id int64) error {
	_, err := r.db.Exec(`
		UPDATE bookmark_uploads
		SET processed_bookmarks = processed_bookmarks + 1
		WHERE id = $1
	`, id)
	return err
}
