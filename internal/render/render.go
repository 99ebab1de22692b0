// Package render writes translation results back into the content
// tree. Apply is the only place the engine mutates the document for
// translation purposes.
package render

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"biline/internal/classify"
	"biline/internal/dedup"
	"biline/internal/tree"
)

// Outcome of one apply attempt.
type Outcome int

const (
	// OutcomeApplied means the tree was mutated and the node is Done.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means no mutation happened but the node is still
	// settled (empty or identity translation, or already handled).
	OutcomeSkipped
	// OutcomeFailed means the tree rejected the mutation.
	OutcomeFailed
)

type Options struct {
	// TranslationOnly hides the original text in replace mode instead
	// of showing both.
	TranslationOnly bool
}

// Applier applies one translation under a re-validated dedup check,
// making apply a compare-and-swap on node state: whatever the outcome,
// the node ends up marked done with its visual markers cleared.
type Applier struct {
	tree  tree.ContentTree
	cache *dedup.Cache
	opts  Options
	log   *logrus.Entry
}

func New(t tree.ContentTree, cache *dedup.Cache, opts Options, log *logrus.Entry) *Applier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Applier{tree: t, cache: cache, opts: opts, log: log}
}

func (a *Applier) Apply(block classify.Block, translation string) Outcome {
	defer a.tree.ClearMarkers(block.Node)

	// Enqueue-time checks are not enough: another watcher may have
	// translated this node while the call was in flight.
	if a.cache.AlreadyHandled(block.Node) {
		return OutcomeSkipped
	}

	if identical(block.Text, translation) {
		a.cache.MarkDone(block.Node)
		return OutcomeSkipped
	}

	var err error
	switch block.Mode {
	case classify.ModeAppend:
		_, err = a.tree.AppendTranslation(block.Node, translation)
	default:
		_, err = a.tree.ReplaceWithWrapper(block.Node, block.Text, translation, a.opts.TranslationOnly)
	}
	if err != nil {
		a.cache.MarkDone(block.Node)
		if errors.Is(err, tree.ErrAlreadyApplied) {
			return OutcomeSkipped
		}
		a.log.WithFields(logrus.Fields{
			"node": block.Node,
			"mode": block.Mode.String(),
		}).WithError(err).Warn("apply rejected by tree")
		return OutcomeFailed
	}

	a.cache.MarkDone(block.Node)
	return OutcomeApplied
}

// identical reports whether the translation adds nothing over the
// source after whitespace and case normalization.
func identical(source, translation string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	t := norm(translation)
	return t == "" || t == norm(source)
}
