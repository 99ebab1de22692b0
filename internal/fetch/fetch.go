// Package fetch loads a remote page and extracts its readable article
// content for translation.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

const maxErrBody = 1024

type Page struct {
	HTML     string
	Title    string
	FinalURL string
}

// Page downloads rawURL and, when the response is HTML, reduces it to
// the readable article content. Non-article pages fall back to the raw
// body.
func Load(ctx context.Context, httpClient *http.Client, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "biline/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("download URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrBody {
			snippet = snippet[:maxErrBody] + "..."
		}
		return Page{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	page := Page{HTML: string(body), FinalURL: finalURL}

	if !isHTMLContentType(resp.Header.Get("Content-Type")) {
		return page, nil
	}
	parsedURL, err := url.Parse(finalURL)
	if err != nil {
		return page, nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return page, nil
	}
	page.Title = strings.TrimSpace(article.Title)
	if content := strings.TrimSpace(article.Content); content != "" {
		page.HTML = content
	}
	return page, nil
}

func isHTMLContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml+xml") ||
		contentType == ""
}
