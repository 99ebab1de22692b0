package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"
	maxErrBody            = 1024
)

// GoogleClient uses the public web endpoint. It needs no credential
// and has no batch mode, so texts are translated one request at a
// time; concurrency is the dispatch layer's job.
type GoogleClient struct {
	httpClient *http.Client
}

func NewGoogleClient(httpClient *http.Client) *GoogleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleClient{httpClient: httpClient}
}

func (g *GoogleClient) Translate(ctx context.Context, texts []string, cfg Config) ([]string, error) {
	out := make([]string, 0, len(texts))
	for _, text := range texts {
		translated, err := g.translateOne(ctx, text, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, translated)
	}
	return out, nil
}

func (g *GoogleClient) translateOne(ctx context.Context, text string, cfg Config) (string, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}

	source := cfg.SourceLang
	if source == "" {
		source = "auto"
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("dt", "t")
	params.Set("sl", source)
	params.Set("tl", cfg.TargetLang)
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build google request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", NewError(Categorize(err), err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read google response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrBody {
			snippet = snippet[:maxErrBody] + "..."
		}
		return "", FromStatus(resp.StatusCode, snippet)
	}

	return parseGoogleBody(body)
}

// parseGoogleBody extracts the translated sentences from the loosely
// typed nested-array response, e.g.
// [[["Bonjour","Hello",...],["Monde","World",...]],null,"en"].
func parseGoogleBody(body []byte) (string, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return "", NewError(CategoryUnknown, "unexpected google response shape: "+err.Error())
	}
	if len(outer) == 0 {
		return "", NewError(CategoryUnknown, "empty google response")
	}

	var sentences [][]json.RawMessage
	if err := json.Unmarshal(outer[0], &sentences); err != nil {
		return "", NewError(CategoryUnknown, "unexpected google sentence shape: "+err.Error())
	}

	var b strings.Builder
	for _, sentence := range sentences {
		if len(sentence) == 0 {
			continue
		}
		var segment string
		if err := json.Unmarshal(sentence[0], &segment); err != nil {
			continue
		}
		b.WriteString(segment)
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", NewError(CategoryUnknown, "google response missing translation")
	}
	return result, nil
}
