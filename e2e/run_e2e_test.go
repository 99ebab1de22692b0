package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"biline/internal/cli"
)

func sampleArticle(title string) string {
	return `<!DOCTYPE html>
<html><head><title>` + title + `</title></head>
<body>
<article>
<h1>` + title + `</h1>
<p>The first paragraph carries enough prose that the readable-content
extraction keeps it as the main body of the page instead of treating
it as navigation chrome around the article.</p>
<p>The second paragraph adds more sentences so that several separate
translation units flow through the pipeline during the run.</p>
</article>
</body></html>`
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeOpenAI answers chat completions by prefixing the user content.
func fakeOpenAI(t *testing.T, delay time.Duration, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		user := req.Messages[len(req.Messages)-1].Content
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-e2e",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "[FR] " + user},
					"finish_reason": "stop",
				},
			},
		})
	}))
}

func TestE2ETranslatesRemotePage(t *testing.T) {
	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/post" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sampleArticle("Pipeline Notes")))
	}))
	t.Cleanup(contentServer.Close)

	openAIServer := fakeOpenAI(t, 0, http.StatusOK)
	t.Cleanup(openAIServer.Close)

	tmpDir := t.TempDir()
	outHTML := filepath.Join(tmpDir, "out.html")
	outMD := filepath.Join(tmpDir, "out.md")

	var stdout, stderr bytes.Buffer
	err := cli.Run([]string{
		"--provider", "openai",
		"--endpoint", openAIServer.URL + "/v1",
		"--api-key", "test-key",
		"--target", "fr",
		"--poll", "10ms",
		"--out", outHTML,
		"--out-markdown", outMD,
		contentServer.URL + "/post",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v; stderr=%s", err, stderr.String())
	}

	html, err := os.ReadFile(outHTML)
	if err != nil {
		t.Fatalf("read HTML output: %v", err)
	}
	text := string(html)
	if !strings.Contains(text, "[FR] The first paragraph") {
		t.Fatalf("output missing first translation: %s", text)
	}
	if !strings.Contains(text, "[FR] The second paragraph") {
		t.Fatalf("output missing second translation: %s", text)
	}
	if !strings.Contains(text, `data-biline="translation"`) {
		t.Fatalf("output missing translation wrappers: %s", text)
	}
	if !strings.Contains(text, "The first paragraph carries enough prose") {
		t.Fatalf("original text lost: %s", text)
	}

	md, err := os.ReadFile(outMD)
	if err != nil {
		t.Fatalf("read markdown output: %v", err)
	}
	if !strings.Contains(string(md), "[FR] The first paragraph") {
		t.Fatalf("markdown missing translation: %s", md)
	}
}

func TestE2ETranslatesLocalFile(t *testing.T) {
	openAIServer := fakeOpenAI(t, 0, http.StatusOK)
	t.Cleanup(openAIServer.Close)

	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "page.html")
	if err := os.WriteFile(input, []byte(sampleArticle("Local Page")), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	outHTML := filepath.Join(tmpDir, "out.html")

	var stdout, stderr bytes.Buffer
	err := cli.Run([]string{
		"--provider", "openai",
		"--endpoint", openAIServer.URL + "/v1",
		"--api-key", "test-key",
		"--target", "fr",
		"--poll", "10ms",
		"--out", outHTML,
		input,
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v; stderr=%s", err, stderr.String())
	}

	html, err := os.ReadFile(outHTML)
	if err != nil {
		t.Fatalf("read HTML output: %v", err)
	}
	if !strings.Contains(string(html), "[FR] The first paragraph") {
		t.Fatalf("output missing translation: %s", html)
	}
}

func TestE2EBackendDownFailsRun(t *testing.T) {
	var page strings.Builder
	page.WriteString("<!DOCTYPE html><html><body><article>")
	for i := 0; i < 12; i++ {
		page.WriteString("<p>Distinct paragraph body number ")
		page.WriteString(strings.Repeat("word ", i+3))
		page.WriteString("for the failing backend run.</p>")
	}
	page.WriteString("</article></body></html>")

	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page.String()))
	}))
	t.Cleanup(contentServer.Close)

	// Every call fails structurally; the delay keeps the first wave in
	// flight long enough for the circuit to open before the rest start.
	openAIServer := fakeOpenAI(t, 20*time.Millisecond, http.StatusServiceUnavailable)
	t.Cleanup(openAIServer.Close)

	outHTML := filepath.Join(t.TempDir(), "out.html")
	var stdout, stderr bytes.Buffer
	err := cli.Run([]string{
		"--provider", "openai",
		"--endpoint", openAIServer.URL + "/v1",
		"--api-key", "test-key",
		"--target", "fr",
		"--poll", "10ms",
		"--out", outHTML,
		contentServer.URL,
	}, &stdout, &stderr)
	if err == nil {
		t.Fatal("Run() succeeded with an unreachable backend")
	}
	if !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("error = %v, want backend unavailable", err)
	}
}

func TestE2EVersionFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := cli.Run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("Run(--version) error = %v", err)
	}
	if !strings.Contains(stdout.String(), "biline version=") {
		t.Fatalf("version output = %q", stdout.String())
	}
}
