// Package export renders a translated content tree as bilingual
// markdown, for archiving the result of a session outside the host
// document.
package export

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"biline/internal/tree"
)

// Markdown serializes the tree and converts it to markdown. Wrapper
// elements render inline, so original and translation end up as
// adjacent lines the way they appear in the document.
func Markdown(t *tree.HTMLTree) (string, error) {
	raw, err := t.HTML()
	if err != nil {
		return "", err
	}

	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	md = strings.ReplaceAll(md, "\r\n", "\n")
	return strings.TrimSpace(md) + "\n", nil
}
