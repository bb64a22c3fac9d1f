package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-playground/assert/v2"
)

func TestClipRespectsRuneBoundaries(t *testing.T) {
	// four three-byte runes; a 10-byte cap falls inside the fourth
	s := strings.Repeat("€", 4)

	got := clip(s, 10)

	assert.Equal(t, 9, len(got))
	assert.Equal(t, true, utf8.ValidString(got))
	assert.Equal(t, "€€€", got)
}

func TestClipShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "short", clip("short", 100))
}

func TestRecordClipsOversizedErrorDetail(t *testing.T) {
	logs := &fakeLogStore{}
	r := NewAuditRecorder(logs)

	uploadID := int64(1)
	detail := strings.Repeat("€", 2000)
	r.Record(&uploadID, nil, "extraction", "failed", 0, nil, detail)

	entry := logs.entries[0]
	if len(entry.ErrorDetails) > 2000 {
		t.Errorf("error details %d bytes exceed cap", len(entry.ErrorDetails))
	}
	assert.Equal(t, true, utf8.ValidString(entry.ErrorDetails))
}
