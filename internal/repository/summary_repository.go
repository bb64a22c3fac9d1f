package repository

import (
	"database/sql"
	"fmt"
	"time"

	"bookdigest/internal/model"
)

type SummaryRepository struct {
	db *sql.DB
}

func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// CreateJob inserts a new pending job. At most one non-terminal job may
// exist per upload; a second concurrent aggregation attempt is refused.
func (r *SummaryRepository) CreateJob(uploadID int64) (*model.SummaryJob, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM summary_jobs
		WHERE upload_id = $1 AND status IN ($2, $3)
	`, uploadID, model.SummaryJobPending, model.SummaryJobProcessing).Scan(&active)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, fmt.Errorf("upload %d already has an active summary job", uploadID)
	}

	job := &model.SummaryJob{
		UploadID: uploadID,
		Status:   model.SummaryJobPending,
	}
	err = tx.QueryRow(`
		INSERT INTO summary_jobs(upload_id, status)
		VALUES($1, $2)
		RETURNING id, created_at
	`, uploadID, model.SummaryJobPending).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	return job, tx.Commit()
}

func (r *SummaryRepository) MarkJobProcessing(id int64, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE summary_jobs SET status = $1, started_at = $2 WHERE id = $3
	`, model.SummaryJobProcessing, t, id)
	return err
}

func (r *SummaryRepository) CompleteJob(job *model.SummaryJob) error {
	_, err := r.db.Exec(`
		UPDATE summary_jobs
		SET status = $1, bookmarks_included = $2, final_summary = $3,
			llm_model_used = $4, token_count = $5, summary_metadata = $6, completed_at = $7
		WHERE id = $8
	`, model.SummaryJobCompleted, job.BookmarksIncluded, job.FinalSummary,
		nullString(job.LLMModelUsed), job.TokenCount, marshalMeta(job.SummaryMetadata),
		job.CompletedAt, job.ID)
	return err
}

func (r *SummaryRepository) FailJob(id int64, errMsg string, t time.Time) error {
	_, err := r.db.Exec(`
		UPDATE summary_jobs
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4
	`, model.SummaryJobFailed, errMsg, t, id)
	return err
}

func (r *SummaryRepository) GetLatestByUploadID(uploadID int64) (*model.SummaryJob, error) {
	var job model.SummaryJob
	var finalSummary, errMsg, modelUsed sql.NullString
	var startedAt, completedAt sql.NullTime
	var tokenCount sql.NullInt64
	var metaJSON []byte

	err := r.db.QueryRow(`
		SELECT id, upload_id, status, started_at, completed_at, bookmarks_included,
			final_summary, error_message, llm_model_used, token_count, summary_metadata,
			created_at
		FROM summary_jobs
		WHERE upload_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, uploadID).Scan(&job.ID, &job.UploadID, &job.Status, &startedAt, &completedAt,
		&job.BookmarksIncluded, &finalSummary, &errMsg, &modelUsed, &tokenCount,
		&metaJSON, &job.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	job.FinalSummary = finalSummary.String
	job.ErrorMessage = errMsg.String
	job.LLMModelUsed = modelUsed.String
	job.TokenCount = int(tokenCount.Int64)
	job.SummaryMetadata = unmarshalMeta(metaJSON)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}
