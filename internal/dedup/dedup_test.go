package dedup

import (
	"testing"

	"biline/internal/tree"
)

func buildTree(t *testing.T, body string) *tree.HTMLTree {
	t.Helper()
	doc, err := tree.ParseString("<html><body>"+body+"</body></html>", tree.Viewport{Height: 600})
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func TestMarkDoneAndLookup(t *testing.T) {
	doc := buildTree(t, `<p>Hello</p>`)
	cache := New(doc)

	p := doc.Children(doc.Root())[0]
	if cache.AlreadyHandled(p) {
		t.Fatal("fresh node reported handled")
	}
	cache.MarkDone(p)
	if !cache.AlreadyHandled(p) {
		t.Fatal("done node reported unhandled")
	}
	if !cache.IsDone(p) {
		t.Fatal("IsDone = false after MarkDone")
	}
	if cache.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cache.Len())
	}
}

func TestAncestorDonePropagates(t *testing.T) {
	doc := buildTree(t, `<div><p>Nested text</p></div>`)
	cache := New(doc)

	div := doc.Children(doc.Root())[0]
	p := doc.Children(div)[0]

	// Prime the negative memo, then flip it by marking the ancestor.
	if cache.AlreadyHandled(p) {
		t.Fatal("fresh child reported handled")
	}
	cache.MarkDone(div)
	if !cache.AlreadyHandled(p) {
		t.Fatal("child of done ancestor reported unhandled")
	}
}

func TestWrapperCountsAsHandled(t *testing.T) {
	doc := buildTree(t, `<p>Hello</p>`)
	cache := New(doc)

	p := doc.Children(doc.Root())[0]
	if _, err := doc.ReplaceWithWrapper(p, "Hello", "Bonjour", false); err != nil {
		t.Fatalf("ReplaceWithWrapper() error = %v", err)
	}
	if !cache.AlreadyHandled(p) {
		t.Fatal("wrapped node reported unhandled")
	}
}

func TestInvalidateAndReset(t *testing.T) {
	doc := buildTree(t, `<p>Hello</p>`)
	cache := New(doc)

	p := doc.Children(doc.Root())[0]
	cache.MarkDone(p)
	cache.Invalidate(p)
	// Invalidate drops the memo but not the done set.
	if !cache.AlreadyHandled(p) {
		t.Fatal("done node reported unhandled after Invalidate")
	}

	cache.Reset()
	if cache.AlreadyHandled(p) {
		t.Fatal("node still handled after Reset")
	}
	if cache.Len() != 0 {
		t.Fatalf("Len = %d after Reset, want 0", cache.Len())
	}
}
