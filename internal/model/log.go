package model

import "time"

// ProcessingLog is an append-only audit entry; rows are never updated.
type ProcessingLog struct {
	ID              int64
	Timestamp       time.Time
	UploadID        *int64
	BookmarkID      *int64
	Operation       string
	Status          string
	DurationSeconds float64
	Details         map[string]any
	ErrorDetails    string
}
