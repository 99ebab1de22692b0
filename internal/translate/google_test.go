package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("client"); got != "gtx" {
			t.Errorf("client param = %q, want gtx", got)
		}
		if got := r.URL.Query().Get("tl"); got != "fr" {
			t.Errorf("tl param = %q, want fr", got)
		}
		if got := r.URL.Query().Get("sl"); got != "auto" {
			t.Errorf("sl param = %q, want auto", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[["Bonjour ","Hello ",null,null],["le monde","world",null,null]],null,"en"]`))
	}))
	defer srv.Close()

	client := NewGoogleClient(srv.Client())
	out, err := client.Translate(context.Background(), []string{"Hello world"}, Config{
		TargetLang: "fr",
		Endpoint:   srv.URL,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 1 || out[0] != "Bonjour le monde" {
		t.Fatalf("out = %v", out)
	}
}

func TestGoogleTranslatesEachTextSeparately(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[[["oui","yes",null,null]],null,"en"]`))
	}))
	defer srv.Close()

	client := NewGoogleClient(srv.Client())
	out, err := client.Translate(context.Background(), []string{"yes", "no"}, Config{
		TargetLang: "fr",
		Endpoint:   srv.URL,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 2 || requests != 2 {
		t.Fatalf("out = %v, requests = %d", out, requests)
	}
}

func TestGoogleHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGoogleClient(srv.Client())
	_, err := client.Translate(context.Background(), []string{"Hello"}, Config{
		TargetLang: "fr",
		Endpoint:   srv.URL,
	})
	if got := Categorize(err); got != CategoryRateLimited {
		t.Fatalf("Categorize = %v, want rate_limited", got)
	}
}

func TestParseGoogleBodyRejectsGarbage(t *testing.T) {
	for _, body := range []string{`not json`, `[]`, `[null]`, `[[["",""]]]`} {
		if _, err := parseGoogleBody([]byte(body)); err == nil {
			t.Errorf("parseGoogleBody(%q) accepted garbage", body)
		}
	}
}
