package tree

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
)

const (
	attrRole     = "data-biline"
	attrHidden   = "data-biline-hidden"
	roleWrapper  = "wrapper"
	roleSource   = "source"
	roleBilingue = "translation"

	lineHeight   = 20.0
	charsPerLine = 80
)

// ErrAlreadyApplied is returned when a translation element already
// exists at the target node.
var ErrAlreadyApplied = errors.New("translation already applied")

// HTMLTree is the ContentTree adapter over an x/net/html document. It
// synthesizes vertical geometry with a deterministic linear layout
// model: text flows at a fixed line height and wrap width, elements
// stack in document order. That is enough for priority ordering, which
// is all the engine uses geometry for.
type HTMLTree struct {
	mu    sync.Mutex
	doc   *html.Node
	nodes []*html.Node
	index map[*html.Node]NodeHandle

	rects       map[NodeHandle]Rect
	layoutDirty bool

	vp Viewport

	nextSub    int
	mutSubs    map[int]chan<- Mutation
	scrollSubs map[int]chan<- Viewport
}

// Parse builds an HTMLTree from serialized HTML and an initial
// viewport.
func Parse(r io.Reader, vp Viewport) (*HTMLTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	t := &HTMLTree{
		doc:         doc,
		index:       make(map[*html.Node]NodeHandle),
		rects:       make(map[NodeHandle]Rect),
		layoutDirty: true,
		vp:          vp,
		mutSubs:     make(map[int]chan<- Mutation),
		scrollSubs:  make(map[int]chan<- Viewport),
	}
	return t, nil
}

func ParseString(s string, vp Viewport) (*HTMLTree, error) {
	return Parse(strings.NewReader(s), vp)
}

func (t *HTMLTree) handle(n *html.Node) NodeHandle {
	if n == nil {
		return InvalidHandle
	}
	if h, ok := t.index[n]; ok {
		return h
	}
	t.nodes = append(t.nodes, n)
	h := NodeHandle(len(t.nodes))
	t.index[n] = h
	return h
}

func (t *HTMLTree) node(h NodeHandle) *html.Node {
	if h <= 0 || int(h) > len(t.nodes) {
		return nil
	}
	return t.nodes[h-1]
}

func (t *HTMLTree) Root() NodeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if body := findFirst(t.doc, "body"); body != nil {
		return t.handle(body)
	}
	return t.handle(t.doc)
}

func (t *HTMLTree) Parent(h NodeHandle) NodeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil || n.Parent == nil {
		return InvalidHandle
	}
	return t.handle(n.Parent)
}

func (t *HTMLTree) Children(h NodeHandle) []NodeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return nil
	}
	var out []NodeHandle
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, t.handle(c))
		}
	}
	return out
}

func (t *HTMLTree) TagName(h NodeHandle) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return ""
	}
	return dom.NodeName(n)
}

func (t *HTMLTree) Attr(h NodeHandle, name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return ""
	}
	return dom.GetAttributeOr(n, name, "")
}

func (t *HTMLTree) Attached(h NodeHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	for ; n != nil; n = n.Parent {
		if n == t.doc {
			return true
		}
	}
	return false
}

func (t *HTMLTree) DirectText(h NodeHandle) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func (t *HTMLTree) FullText(h NodeHandle) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectText(n, &b)
	return strings.TrimSpace(collapseSpace(b.String()))
}

func collectText(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			collectText(c, b)
			b.WriteString(" ")
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Measure rebuilds the layout lazily after a mutation. All rects for a
// sweep come from one rebuilt cache, so a batch of Measure calls is a
// single read phase.
func (t *HTMLTree) Measure(h NodeHandle) Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.layoutDirty {
		t.relayout()
	}
	return t.rects[h]
}

func (t *HTMLTree) relayout() {
	t.rects = make(map[NodeHandle]Rect)
	t.place(t.doc, 0)
	t.layoutDirty = false
}

func (t *HTMLTree) place(n *html.Node, y float64) float64 {
	var height float64
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			height += textHeight(c.Data)
		case html.ElementNode:
			height += t.place(c, y+height)
		}
	}
	if n.Type == html.ElementNode {
		t.rects[t.handle(n)] = Rect{Top: y, Bottom: y + height}
	}
	return height
}

func textHeight(s string) float64 {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0
	}
	runes := utf8.RuneCountInString(trimmed)
	lines := (runes + charsPerLine - 1) / charsPerLine
	return float64(lines) * lineHeight
}

func (t *HTMLTree) Height() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.layoutDirty {
		t.relayout()
	}
	var max float64
	for _, r := range t.rects {
		if r.Bottom > max {
			max = r.Bottom
		}
	}
	return max
}

func (t *HTMLTree) Viewport() Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vp
}

func (t *HTMLTree) Scroll(top float64) {
	t.mu.Lock()
	if top < 0 {
		top = 0
	}
	t.vp.Top = top
	vp := t.vp
	subs := make([]chan<- Viewport, 0, len(t.scrollSubs))
	for _, ch := range t.scrollSubs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- vp:
		default:
		}
	}
}

func (t *HTMLTree) IsWrapper(h NodeHandle) bool {
	role := t.Attr(h, attrRole)
	return role == roleWrapper || role == roleSource || role == roleBilingue
}

func (t *HTMLTree) HasTranslationChild(h NodeHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		role := dom.GetAttributeOr(c, attrRole, "")
		if role == roleWrapper || role == roleBilingue {
			return true
		}
	}
	return false
}

func (t *HTMLTree) ReplaceWithWrapper(h NodeHandle, original, translation string, translationOnly bool) (NodeHandle, error) {
	t.mu.Lock()
	n := t.node(h)
	if n == nil || n.Type != html.ElementNode {
		t.mu.Unlock()
		return InvalidHandle, fmt.Errorf("replace wrapper: invalid node %d", h)
	}
	if t.hasTranslationChildLocked(n) {
		t.mu.Unlock()
		return InvalidHandle, ErrAlreadyApplied
	}

	source := elem("span", attrRole, roleSource)
	if translationOnly {
		setAttr(source, attrHidden, "true")
	}
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		source.AppendChild(c)
	}

	trans := elem("span", attrRole, roleBilingue)
	trans.AppendChild(&html.Node{Type: html.TextNode, Data: translation})

	wrapper := elem("span", attrRole, roleWrapper)
	wrapper.AppendChild(source)
	wrapper.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
	wrapper.AppendChild(trans)
	n.AppendChild(wrapper)

	wh := t.handle(wrapper)
	t.layoutDirty = true
	t.mu.Unlock()

	t.notifyMutation(Mutation{Added: []NodeHandle{wh}})
	return wh, nil
}

func (t *HTMLTree) AppendTranslation(h NodeHandle, translation string) (NodeHandle, error) {
	t.mu.Lock()
	n := t.node(h)
	if n == nil || n.Type != html.ElementNode {
		t.mu.Unlock()
		return InvalidHandle, fmt.Errorf("append translation: invalid node %d", h)
	}
	if t.hasTranslationChildLocked(n) {
		t.mu.Unlock()
		return InvalidHandle, ErrAlreadyApplied
	}

	trans := elem("span", attrRole, roleBilingue)
	trans.AppendChild(&html.Node{Type: html.TextNode, Data: translation})
	n.AppendChild(trans)

	th := t.handle(trans)
	t.layoutDirty = true
	t.mu.Unlock()

	t.notifyMutation(Mutation{Added: []NodeHandle{th}})
	return th, nil
}

func (t *HTMLTree) hasTranslationChildLocked(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		role := dom.GetAttributeOr(c, attrRole, "")
		if role == roleWrapper || role == roleBilingue {
			return true
		}
	}
	return false
}

// RemoveWrappers restores the tree to its pre-translation form and
// returns the number of wrappers removed.
func (t *HTMLTree) RemoveWrappers() int {
	t.mu.Lock()
	removed := 0
	var wrappers, loners []*html.Node
	walkNodes(t.doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch dom.GetAttributeOr(n, attrRole, "") {
		case roleWrapper:
			wrappers = append(wrappers, n)
		case roleBilingue:
			if n.Parent == nil || dom.GetAttributeOr(n.Parent, attrRole, "") != roleWrapper {
				loners = append(loners, n)
			}
		}
	})
	for _, w := range wrappers {
		parent := w.Parent
		if parent == nil {
			continue
		}
		if source := childWithRole(w, roleSource); source != nil {
			for source.FirstChild != nil {
				c := source.FirstChild
				source.RemoveChild(c)
				parent.InsertBefore(c, w)
			}
		}
		parent.RemoveChild(w)
		removed++
	}
	for _, l := range loners {
		if l.Parent != nil {
			l.Parent.RemoveChild(l)
			removed++
		}
	}
	walkNodes(t.doc, func(n *html.Node) {
		if n.Type == html.ElementNode {
			clearMarkerClasses(n)
		}
	})
	t.layoutDirty = true
	t.mu.Unlock()
	return removed
}

func (t *HTMLTree) WrapperCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	walkNodes(t.doc, func(n *html.Node) {
		if n.Type == html.ElementNode {
			role := dom.GetAttributeOr(n, attrRole, "")
			if role == roleWrapper || role == roleBilingue {
				count++
			}
		}
	})
	return count
}

func (t *HTMLTree) SetMarker(h NodeHandle, m Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil || n.Type != html.ElementNode {
		return
	}
	classes := strings.Fields(dom.GetAttributeOr(n, "class", ""))
	for _, c := range classes {
		if c == string(m) {
			return
		}
	}
	classes = append(classes, string(m))
	setAttr(n, "class", strings.Join(classes, " "))
}

func (t *HTMLTree) ClearMarkers(h NodeHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(h)
	if n == nil || n.Type != html.ElementNode {
		return
	}
	clearMarkerClasses(n)
}

func clearMarkerClasses(n *html.Node) {
	raw := dom.GetAttributeOr(n, "class", "")
	if raw == "" {
		return
	}
	var kept []string
	for _, c := range strings.Fields(raw) {
		switch Marker(c) {
		case MarkerPending, MarkerTranslating, MarkerPendingDark:
		default:
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

// AppendElement adds a child element with text content, as a host
// mutation would. Used by tests and by hosts that grow the document.
func (t *HTMLTree) AppendElement(parent NodeHandle, tag, text string) NodeHandle {
	t.mu.Lock()
	p := t.node(parent)
	if p == nil || p.Type != html.ElementNode {
		t.mu.Unlock()
		return InvalidHandle
	}
	n := &html.Node{Type: html.ElementNode, Data: tag}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	p.AppendChild(n)
	h := t.handle(n)
	t.layoutDirty = true
	t.mu.Unlock()

	t.notifyMutation(Mutation{Added: []NodeHandle{h}})
	return h
}

func (t *HTMLTree) SubscribeMutations(ch chan<- Mutation) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.mutSubs[id] = ch
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.mutSubs, id)
	}
}

func (t *HTMLTree) SubscribeScroll(ch chan<- Viewport) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.scrollSubs[id] = ch
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.scrollSubs, id)
	}
}

func (t *HTMLTree) notifyMutation(m Mutation) {
	t.mu.Lock()
	subs := make([]chan<- Mutation, 0, len(t.mutSubs))
	for _, ch := range t.mutSubs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// HTML serializes the current document.
func (t *HTMLTree) HTML() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, t.doc); err != nil {
		return "", fmt.Errorf("render HTML: %w", err)
	}
	return b.String(), nil
}

func elem(tag, attrName, attrValue string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	setAttr(n, attrName, attrValue)
	return n
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func childWithRole(n *html.Node, role string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && dom.GetAttributeOr(c, attrRole, "") == role {
			return c
		}
	}
	return nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func walkNodes(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, fn)
	}
}
