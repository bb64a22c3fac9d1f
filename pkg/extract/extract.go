package extract

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
)

const (
	maxBodyBytes   = 5 << 20
	maxSectionLen  = 1000
	requestTimeout = 30 * time.Second
)

// DatedSection pairs a date discovered on the page with the text it dates.
type DatedSection struct {
	Date time.Time
	Text string
}

type Result struct {
	FinalURL  string
	PageTitle string
	RawText   string
	Sections  []DatedSection
	Method    string
	LoadTime  time.Duration
}

// Error classifies extraction failures as retryable (network hiccups,
// rate limits, upstream 5xx) or permanent (bad URL, hard rejects).
type Error struct {
	URL       string
	Err       error
	retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.retryable }

func permanent(rawURL string, err error) *Error {
	return &Error{URL: rawURL, Err: err, retryable: false}
}

func transient(rawURL string, err error) *Error {
	return &Error{URL: rawURL, Err: err, retryable: true}
}

type Extractor struct {
	httpClient *http.Client
}

func NewExtractor() *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Extract fetches the URL, pulls the main article text and collects every
// parseable date found on the page together with the text it belongs to.
func (e *Extractor) Extract(rawURL string) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, permanent(rawURL, fmt.Errorf("invalid url: %w", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, permanent(rawURL, fmt.Errorf("unsupported scheme %q", parsed.Scheme))
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, permanent(rawURL, err)
	}
	req.Header.Set("User-Agent", "bookdigest/1.0")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, transient(rawURL, err)
	}
	defer resp.Body.Close()
	loadTime := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status code %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, transient(rawURL, err)
		}
		return nil, permanent(rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		return nil, permanent(rawURL, fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transient(rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	result := &Result{
		FinalURL: finalURL,
		LoadTime: loadTime,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, permanent(rawURL, fmt.Errorf("failed to parse HTML: %w", err))
	}

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(string(body)), resp.Request.URL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		result.PageTitle = strings.TrimSpace(article.Title)
		result.RawText = normalizeText(article.TextContent)
		result.Method = "readability"
	} else {
		result.PageTitle = strings.TrimSpace(doc.Find("title").First().Text())
		result.RawText = normalizeText(doc.Find("body").Text())
		result.Method = "goquery-text"
	}

	result.Sections = DiscoverDates(doc, result.RawText)
	return result, nil
}

// DiscoverDates collects dates from <time> elements and date-bearing meta
// tags. A <time> element dates its enclosing block; a page-level meta date
// dates the article text as a whole.
func DiscoverDates(doc *goquery.Document, articleText string) []DatedSection {
	var sections []DatedSection

	doc.Find("time").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("datetime")
		if !ok || raw == "" {
			raw = s.Text()
		}
		date, err := dateparse.ParseAny(strings.TrimSpace(raw))
		if err != nil {
			return
		}
		text := normalizeText(s.Parent().Text())
		if text == "" {
			text = normalizeText(s.Text())
		}
		sections = append(sections, DatedSection{Date: date.UTC(), Text: truncate(text, maxSectionLen)})
	})

	metaSelectors := []string{
		`meta[property="article:published_time"]`,
		`meta[property="article:modified_time"]`,
		`meta[property="og:updated_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	}
	for _, sel := range metaSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			raw, ok := s.Attr("content")
			if !ok {
				return
			}
			date, err := dateparse.ParseAny(strings.TrimSpace(raw))
			if err != nil {
				return
			}
			sections = append(sections, DatedSection{Date: date.UTC(), Text: articleText})
		})
	}

	return sections
}

func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
