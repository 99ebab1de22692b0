package translate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIClient speaks any OpenAI-compatible chat-completion API,
// including local model servers that expose the same surface. Batches
// are packed with the separator token because the chat contract has no
// native array mode.
type OpenAIClient struct {
	newClient func(cfg Config) *openai.Client
}

func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{newClient: func(cfg Config) *openai.Client {
		c := openai.DefaultConfig(cfg.APIKey)
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			c.BaseURL = strings.TrimSuffix(endpoint, "/")
		}
		return openai.NewClientWithConfig(c)
	}}
}

func (o *OpenAIClient) Translate(ctx context.Context, texts []string, cfg Config) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, NewError(CategoryAuthInvalid, "missing API key")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(cfg, len(texts))},
			{Role: openai.ChatMessageRoleUser, Content: joinBatch(texts)},
		},
		Temperature: styleTemperature(cfg.Style),
	}

	resp, err := o.newClient(cfg).CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, categorizeOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(CategoryUnknown, "empty completion response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if len(texts) == 1 {
		return []string{content}, nil
	}
	parts, ok := splitBatch(content, len(texts))
	if !ok {
		return nil, NewError(CategoryUnknown,
			fmt.Sprintf("batch separator mismatch: want %d segments", len(texts)))
	}
	return parts, nil
}

func systemPrompt(cfg Config, batchLen int) string {
	var b strings.Builder
	source := cfg.SourceLang
	if source == "" || source == "auto" {
		source = "the source language"
	}
	fmt.Fprintf(&b, "Translate from %s to %s.\n", source, cfg.TargetLang)

	switch cfg.Style {
	case StyleFluent:
		b.WriteString("Prefer natural, fluent phrasing over literal wording.\n")
	case StyleCreative:
		b.WriteString("Translate freely, preserving intent and tone over literal wording.\n")
	default:
		b.WriteString("Translate accurately and literally.\n")
	}

	b.WriteString("Return only the translation with no commentary.\n")
	if batchLen > 1 {
		fmt.Fprintf(&b,
			"The input contains %d segments separated by the token %q. Translate each segment and reproduce the separator token verbatim between them.\n",
			batchLen, strings.TrimSpace(batchSeparator))
	}
	if prompt := strings.TrimSpace(cfg.CustomPrompt); prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	if len(cfg.Glossary) > 0 {
		b.WriteString(glossaryPrompt(cfg.Glossary))
	}
	return strings.TrimSpace(b.String())
}

func glossaryPrompt(glossary map[string]string) string {
	keys := make([]string, 0, len(glossary))
	for k := range glossary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Glossary (enforce exact preferred translations):\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s => %s\n", k, glossary[k])
	}
	return b.String()
}

func styleTemperature(s Style) float32 {
	switch s {
	case StyleFluent:
		return 0.4
	case StyleCreative:
		return 0.8
	default:
		return 0.1
	}
}

func categorizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return NewError(Categorize(err), err.Error())
}
