package translate

import (
	"net/http"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// ForProvider picks a backend by name. Anything OpenAI-compatible,
// including local model servers with a custom endpoint, routes to the
// OpenAI client.
func ForProvider(provider string, httpClient *http.Client) Client {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGoogle:
		return NewGoogleClient(httpClient)
	default:
		return NewOpenAIClient()
	}
}
