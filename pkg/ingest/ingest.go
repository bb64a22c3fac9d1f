package ingest

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxTitleLen      = 500
	maxURLLen        = 2000
	maxFolderPathLen = 1000
)

// Record is one bookmark pulled from an export file, in file order.
type Record struct {
	Title      string
	URL        string
	FolderPath string
	DateAdded  *time.Time
}

// ValidationError marks an upload whose contents could not be read as a
// bookmark export. It maps to a client error at the API boundary.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid bookmark file: " + e.Reason
}

// Parse reads a Netscape-format bookmark export (the format Safari,
// Chrome and Firefox all write) and returns its bookmarks in file order.
// Folder hierarchy comes from the nested H3/DL structure. Records with
// an unusable URL are skipped; a file with no usable bookmarks at all is
// a ValidationError.
func Parse(r io.Reader) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unparseable HTML: %v", err)}
	}

	var records []Record
	root := doc.Find("dl").First()
	if root.Length() == 0 {
		// some exports skip the outer DL; fall back to a flat anchor scan
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			if rec, ok := anchorRecord(a, nil); ok {
				records = append(records, rec)
			}
		})
	} else {
		walk(root, nil, &records)
	}

	if len(records) == 0 {
		return nil, &ValidationError{Reason: "no bookmarks found"}
	}
	return records, nil
}

func walk(list *goquery.Selection, folders []string, records *[]Record) {
	var pendingFolder string
	list.Children().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "dt":
			if h3 := s.ChildrenFiltered("h3"); h3.Length() > 0 {
				pendingFolder = strings.TrimSpace(h3.First().Text())
			}
			if a := s.ChildrenFiltered("a"); a.Length() > 0 {
				if rec, ok := anchorRecord(a.First(), folders); ok {
					*records = append(*records, rec)
				}
			}
			// html parsers often nest the sublist inside the folder's DT
			s.ChildrenFiltered("dl").Each(func(_ int, sub *goquery.Selection) {
				walk(sub, push(folders, pendingFolder), records)
			})
		case "dl":
			walk(s, push(folders, pendingFolder), records)
			pendingFolder = ""
		case "h3":
			pendingFolder = strings.TrimSpace(s.Text())
		case "a":
			if rec, ok := anchorRecord(s, folders); ok {
				*records = append(*records, rec)
			}
		}
	})
}

func anchorRecord(a *goquery.Selection, folders []string) (Record, bool) {
	href, _ := a.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return Record{}, false
	}
	parsed, err := url.Parse(href)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Record{}, false
	}
	if len(href) > maxURLLen {
		return Record{}, false
	}

	title := strings.TrimSpace(a.Text())
	if title == "" {
		title = href
	}

	rec := Record{
		Title:      truncate(title, maxTitleLen),
		URL:        href,
		FolderPath: truncate(strings.Join(folders, "/"), maxFolderPathLen),
	}

	if raw, ok := a.Attr("add_date"); ok {
		if secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && secs > 0 {
			t := time.Unix(secs, 0).UTC()
			rec.DateAdded = &t
		}
	}

	return rec, true
}

func push(folders []string, name string) []string {
	if name == "" {
		return folders
	}
	out := make([]string, len(folders), len(folders)+1)
	copy(out, folders)
	return append(out, name)
}

// truncate never splits a multi-byte rune at the cap.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
