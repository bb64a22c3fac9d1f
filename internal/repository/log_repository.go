package repository

import (
	"database/sql"
	"encoding/json"

	"bookdigest/internal/model"
)

type LogRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) SaveLog(entry *model.ProcessingLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		details = []byte("{}")
	}

	_, err = r.db.Exec(`
		INSERT INTO processing_logs(timestamp, upload_id, bookmark_id, operation, status,
			duration_seconds, details, error_details)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.Timestamp, entry.UploadID, entry.BookmarkID, entry.Operation, entry.Status,
		entry.DurationSeconds, details, nullString(entry.ErrorDetails))
	return err
}

func (r *LogRepository) GetByUploadID(uploadID int64, limit int) ([]model.ProcessingLog, error) {
	rows, err := r.db.Query(`
		SELECT id, timestamp, upload_id, bookmark_id, operation, status,
			duration_seconds, details, error_details
		FROM processing_logs
		WHERE upload_id = $1
		ORDER BY id ASC
		LIMIT $2
	`, uploadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogs(rows)
}

func (r *LogRepository) GetByBookmarkID(bookmarkID int64, limit int) ([]model.ProcessingLog, error) {
	rows, err := r.db.Query(`
		SELECT id, timestamp, upload_id, bookmark_id, operation, status,
			duration_seconds, details, error_details
		FROM processing_logs
		WHERE bookmark_id = $1
		ORDER BY id ASC
		LIMIT $2
	`, bookmarkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]model.ProcessingLog, error) {
	var logs []model.ProcessingLog
	for rows.Next() {
		var l model.ProcessingLog
		var uploadID, bookmarkID sql.NullInt64
		var detailsJSON []byte
		var errDetails sql.NullString

		err := rows.Scan(&l.ID, &l.Timestamp, &uploadID, &bookmarkID, &l.Operation,
			&l.Status, &l.DurationSeconds, &detailsJSON, &errDetails)
		if err != nil {
			return nil, err
		}

		if uploadID.Valid {
			l.UploadID = &uploadID.Int64
		}
		if bookmarkID.Valid {
			l.BookmarkID = &bookmarkID.Int64
		}
		l.ErrorDetails = errDetails.String
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &l.Details); err != nil {
				l.Details = map[string]any{}
			}
		}

		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}
