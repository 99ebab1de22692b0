// Package translate defines the translation backend contract and its
// provider implementations. The engine only depends on the Client
// interface and the failure taxonomy; everything provider-specific
// stays behind it.
package translate

import (
	"context"
	"strings"
	"time"
)

// Style is a hint for the tone of the translation.
type Style string

const (
	StyleAccurate Style = "accurate"
	StyleFluent   Style = "fluent"
	StyleCreative Style = "creative"
)

// Config is carried with every request. Provider routing fields are
// opaque to the engine core.
type Config struct {
	SourceLang   string
	TargetLang   string
	Style        Style
	CustomPrompt string
	Glossary     map[string]string

	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client is the external collaborator contract: a batch of texts in,
// the same number of translations out, or a categorized failure. Calls
// must be safe to retry with the same input.
type Client interface {
	Translate(ctx context.Context, texts []string, cfg Config) ([]string, error)
}

// batchSeparator joins a batch into one payload for backends without a
// native array mode. The token survives translation because models are
// instructed to echo it verbatim.
const batchSeparator = "\n@@@@\n"

func joinBatch(texts []string) string {
	return strings.Join(texts, batchSeparator)
}

func splitBatch(joined string, want int) ([]string, bool) {
	parts := strings.Split(joined, strings.TrimSpace(batchSeparator))
	if len(parts) != want {
		return nil, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}
