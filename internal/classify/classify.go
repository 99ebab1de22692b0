package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"biline/internal/tree"
)

// Mode selects how a translation is rendered back into the tree.
type Mode int

const (
	// ModeReplace rewrites a text-bearing leaf block in place.
	ModeReplace Mode = iota
	// ModeAppend adds a trailing translation element to a container
	// whose text is composed from nested inline descendants.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "replace"
}

// Block is the unit of work flowing through the pipeline. Text is a
// snapshot taken at discovery time and never re-read.
type Block struct {
	Node tree.NodeHandle
	Text string
	Mode Mode
	Rect tree.Rect
}

// Verdict tells the discovery walk what to do with a subtree.
type Verdict int

const (
	// VerdictDescend means the node itself is not a unit, keep walking.
	VerdictDescend Verdict = iota
	// VerdictCandidate means the node is a translatable unit; do not
	// walk into it.
	VerdictCandidate
	// VerdictSkip means prune the whole subtree.
	VerdictSkip
)

// Options tune the text filters.
type Options struct {
	MinLength  int
	MaxLength  int
	TargetLang string
	AutoDetect bool
}

func (o Options) withDefaults() Options {
	if o.MinLength <= 0 {
		o.MinLength = 2
	}
	if o.MaxLength <= 0 {
		o.MaxLength = 5000
	}
	return o
}

// Classifier decides whether a node is a translatable unit and in
// which render mode. Classification is a pure inspection; it never
// mutates the tree.
type Classifier struct {
	tree tree.ContentTree
	opts Options
}

func New(t tree.ContentTree, opts Options) *Classifier {
	return &Classifier{tree: t, opts: opts.withDefaults()}
}

var deniedTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"iframe": {}, "object": {}, "embed": {},
	"img": {}, "svg": {}, "video": {}, "audio": {}, "canvas": {}, "picture": {},
	"input": {}, "textarea": {}, "select": {}, "option": {}, "button": {},
	"code": {}, "pre": {}, "kbd": {}, "samp": {},
	"br": {}, "hr": {}, "head": {}, "meta": {}, "link": {}, "title": {}, "base": {},
}

var inlineTags = map[string]struct{}{
	"a": {}, "span": {}, "b": {}, "i": {}, "em": {}, "strong": {},
	"small": {}, "u": {}, "s": {}, "sub": {}, "sup": {}, "mark": {},
	"abbr": {}, "cite": {}, "q": {}, "time": {}, "label": {}, "font": {},
}

var (
	urlPattern   = regexp.MustCompile(`^(https?://|www\.)\S+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Classify inspects one node. On VerdictCandidate the returned Block
// carries the text snapshot and render mode; the Rect is left zero and
// filled in by the visibility sweep.
func (c *Classifier) Classify(h tree.NodeHandle) (Block, Verdict) {
	tag := c.tree.TagName(h)
	if _, denied := deniedTags[tag]; denied {
		return Block{}, VerdictSkip
	}
	if c.tree.IsWrapper(h) || c.tree.HasTranslationChild(h) {
		return Block{}, VerdictSkip
	}

	text := c.tree.FullText(h)
	if text == "" {
		return Block{}, VerdictDescend
	}

	mode, unit := c.selectMode(h)
	if !unit {
		return Block{}, VerdictDescend
	}

	if !c.translatable(text) {
		// The subtree is one unit but its text is not worth sending.
		return Block{}, VerdictSkip
	}

	return Block{Node: h, Text: text, Mode: mode}, VerdictCandidate
}

// selectMode reports whether the node is a translation unit. A node
// with block-level element children is a container to descend into. A
// leaf block with its own direct text is rewritten in place; one whose
// text lives only in nested inline children gets an appended
// translation, which handles composite widgets like cards.
func (c *Classifier) selectMode(h tree.NodeHandle) (Mode, bool) {
	for _, child := range c.tree.Children(h) {
		tag := c.tree.TagName(child)
		if _, inline := inlineTags[tag]; !inline {
			return 0, false
		}
	}
	if c.tree.DirectText(h) != "" {
		return ModeReplace, true
	}
	return ModeAppend, true
}

func (c *Classifier) translatable(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < c.opts.MinLength || n > c.opts.MaxLength {
		return false
	}
	if !hasLetter(text) {
		return false
	}
	if urlPattern.MatchString(text) || emailPattern.MatchString(text) {
		return false
	}
	if c.opts.AutoDetect && matchesTargetScript(text, c.opts.TargetLang) {
		return false
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// matchesTargetScript applies the script-ratio heuristic: text that is
// already mostly in the target language's script is skipped.
func matchesTargetScript(text, targetLang string) bool {
	lang := strings.ToLower(targetLang)
	switch {
	case strings.HasPrefix(lang, "zh"):
		return scriptRatio(text, isCJK) > 0.5
	case strings.HasPrefix(lang, "ja"):
		return scriptRatio(text, isKana) > 0.3 || scriptRatio(text, isCJK) > 0.7
	case strings.HasPrefix(lang, "ko"):
		return scriptRatio(text, isHangul) > 0.3
	default:
		return false
	}
}

func scriptRatio(text string, match func(rune) bool) float64 {
	var letters, hits int
	for _, r := range text {
		if !unicode.IsLetter(r) && !match(r) {
			continue
		}
		letters++
		if match(r) {
			hits++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hits) / float64(letters)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func isKana(r rune) bool {
	return unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

func isHangul(r rune) bool {
	return unicode.Is(unicode.Hangul, r)
}
