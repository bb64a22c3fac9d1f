package pipeline

import (
	"log/slog"
	"time"
	"unicode/utf8"

	"bookdigest/internal/model"
)

type LogStore interface {
	SaveLog(entry *model.ProcessingLog) error
}

// AuditRecorder appends ProcessingLog rows for every stage transition.
// Writes are best effort: a failed write is logged and dropped, never
// propagated, so an unavailable audit sink cannot stall the pipeline.
type AuditRecorder struct {
	logs LogStore
}

func NewAuditRecorder(logs LogStore) *AuditRecorder {
	return &AuditRecorder{logs: logs}
}

func (r *AuditRecorder) Record(uploadID, bookmarkID *int64, operation, status string, duration time.Duration, details map[string]any, errDetail string) {
	if r == nil || r.logs == nil {
		return
	}

	entry := &model.ProcessingLog{
		Timestamp:       time.Now().UTC(),
		UploadID:        uploadID,
		BookmarkID:      bookmarkID,
		Operation:       clip(operation, model.MaxOperationLen),
		Status:          clip(status, model.MaxLogStatusLen),
		DurationSeconds: duration.Seconds(),
		Details:         details,
		ErrorDetails:    clip(errDetail, model.MaxErrorDetailsLen),
	}

	if err := r.logs.SaveLog(entry); err != nil {
		slog.Warn("audit write failed", "operation", operation, "error", err)
	}
}

// clip trims to the cap without splitting a multi-byte rune; postgres
// rejects invalid UTF-8 on insert.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
