package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Engine Internals</title></head>
<body>
<nav><a href="/">home</a><a href="/about">about</a></nav>
<article>
<h1>Engine Internals</h1>
<p>This is the first paragraph of the article body, long enough that the
readability extraction keeps it as primary content rather than
discarding it as boilerplate text around the page.</p>
<p>A second paragraph follows with more sentences to give the scorer
something to hold on to during extraction of the main content area.</p>
</article>
<footer>copyright notice</footer>
</body></html>`

func TestLoadExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	page, err := Load(context.Background(), srv.Client(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if page.Title != "Engine Internals" {
		t.Fatalf("title = %q", page.Title)
	}
	if !strings.Contains(page.HTML, "first paragraph of the article body") {
		t.Fatalf("article content missing: %s", page.HTML)
	}
	if page.FinalURL != srv.URL+"/post" {
		t.Fatalf("final URL = %q", page.FinalURL)
	}
}

func TestLoadNonHTMLPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	page, err := Load(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if page.HTML != "plain body" {
		t.Fatalf("HTML = %q, want raw body", page.HTML)
	}
}

func TestLoadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, err := Load(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("Load() on 410 succeeded")
	}
}

func TestIsHTMLContentType(t *testing.T) {
	cases := []struct {
		ct   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"", true},
		{"application/json", false},
		{"image/png", false},
	}
	for _, tc := range cases {
		if got := isHTMLContentType(tc.ct); got != tc.want {
			t.Errorf("isHTMLContentType(%q) = %v, want %v", tc.ct, got, tc.want)
		}
	}
}
