package pipeline

import (
	"strings"
	"time"

	"bookdigest/pkg/extract"
)

// RecencyWindow is the trailing period, ending at extraction time, within
// which page content counts as recent.
const RecencyWindow = 24 * time.Hour

type RecencyResult struct {
	HasRecentContent bool
	FilteredContent  string
	ContentDate      *time.Time
}

// FilterRecent decides whether any discovered date falls inside the
// recency window ending at extractedAt and returns the text attributable
// to those dates. All comparisons happen in UTC; window endpoints are
// inclusive. No dates means not recent.
func FilterRecent(sections []extract.DatedSection, extractedAt time.Time) RecencyResult {
	ref := extractedAt.UTC()
	cutoff := ref.Add(-RecencyWindow)

	var (
		texts  []string
		seen   = map[string]bool{}
		newest time.Time
	)
	for _, s := range sections {
		d := s.Date.UTC()
		if d.Before(cutoff) || d.After(ref) {
			continue
		}
		if d.After(newest) {
			newest = d
		}
		text := strings.TrimSpace(s.Text)
		if text != "" && !seen[text] {
			seen[text] = true
			texts = append(texts, text)
		}
	}

	if newest.IsZero() {
		return RecencyResult{}
	}
	return RecencyResult{
		HasRecentContent: true,
		FilteredContent:  strings.Join(texts, "\n\n"),
		ContentDate:      &newest,
	}
}
