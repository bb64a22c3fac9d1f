package extract

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
	<title>Go 1.26 Released</title>
	<meta property="article:published_time" content="2026-02-10T08:30:00Z">
</head>
<body>
	<article>
		<h1>Go 1.26 Released</h1>
		<p>The latest Go release ships with faster builds and a leaner runtime.
		Upgrading is recommended for all users. The toolchain now caches more
		aggressively and link times drop noticeably on large programs.</p>
		<p><time datetime="2026-02-10T08:30:00Z">February 10, 2026</time>
		by the release team.</p>
	</article>
</body>
</html>`

func TestExtract_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	result, err := NewExtractor().Extract(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RawText == "" {
		t.Error("expected non-empty raw text")
	}
	if !strings.Contains(result.RawText, "faster builds") {
		t.Errorf("raw text missing article body: %q", result.RawText)
	}
	if len(result.Sections) == 0 {
		t.Fatal("expected dated sections from time element and meta tag")
	}

	want := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	for _, s := range result.Sections {
		if !s.Date.Equal(want) {
			t.Errorf("section date = %v, want %v", s.Date, want)
		}
	}
}

func TestExtract_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewExtractor().Extract(srv.URL)
	assertRetryable(t, err, false)
}

func TestExtract_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewExtractor().Extract(srv.URL)
	assertRetryable(t, err, true)
}

func TestExtract_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewExtractor().Extract(srv.URL)
	assertRetryable(t, err, true)
}

func TestExtract_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewExtractor().Extract(srv.URL)
	assertRetryable(t, err, true)
}

func TestExtract_BadSchemeIsPermanent(t *testing.T) {
	_, err := NewExtractor().Extract("ftp://example.com/file")
	assertRetryable(t, err, false)
}

func TestExtract_NonHTMLIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := NewExtractor().Extract(srv.URL)
	assertRetryable(t, err, false)
}

func TestExtract_FallbackWithoutArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Bare page</title></head><body>just a line</body></html>`))
	}))
	defer srv.Close()

	result, err := NewExtractor().Extract(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PageTitle != "Bare page" {
		t.Errorf("page title = %q, want %q", result.PageTitle, "Bare page")
	}
	if result.RawText != "just a line" {
		t.Errorf("raw text = %q", result.RawText)
	}
}

func TestDiscoverDates_TimeElementUsesEnclosingBlock(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div><time datetime="2026-02-10T12:00:00Z">today</time> big launch announced</div>
	</body></html>`)

	sections := DiscoverDates(doc, "article text")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if !strings.Contains(sections[0].Text, "big launch announced") {
		t.Errorf("section text = %q, want enclosing block text", sections[0].Text)
	}
}

func TestDiscoverDates_MetaDatesWholeArticle(t *testing.T) {
	doc := mustDoc(t, `<html><head>
		<meta property="article:published_time" content="2026-02-09T23:00:00+01:00">
	</head><body></body></html>`)

	sections := DiscoverDates(doc, "the whole article")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Text != "the whole article" {
		t.Errorf("section text = %q", sections[0].Text)
	}
	want := time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)
	if !sections[0].Date.Equal(want) {
		t.Errorf("section date = %v, want %v (normalized to UTC)", sections[0].Date, want)
	}
}

func TestDiscoverDates_SkipsUnparseable(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<time datetime="not a date">whenever</time>
		<meta name="date" content="also not a date">
	</body></html>`)

	sections := DiscoverDates(doc, "text")
	if len(sections) != 0 {
		t.Errorf("got %d sections, want 0", len(sections))
	}
}

func TestNormalizeText(t *testing.T) {
	input := "  line one  \n\n\t line two \n"
	got := normalizeText(input)
	if got != "line one line two" {
		t.Errorf("normalizeText = %q", got)
	}
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func assertRetryable(t *testing.T, err error, want bool) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if exErr.Retryable() != want {
		t.Errorf("Retryable() = %v, want %v: %v", exErr.Retryable(), want, err)
	}
}
