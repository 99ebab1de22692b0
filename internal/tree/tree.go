package tree

// NodeHandle is a stable integer identity for a node in the content
// tree. Handles are assigned by the adapter, never reused within one
// document, and are only compared or used as map keys.
type NodeHandle int

// InvalidHandle is returned when a lookup fails.
const InvalidHandle NodeHandle = 0

// Rect is the vertical extent of a node in document coordinates.
type Rect struct {
	Top    float64
	Bottom float64
}

func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// Viewport is the currently visible slice of the document.
type Viewport struct {
	Top    float64
	Height float64
}

func (v Viewport) Bottom() float64 {
	return v.Top + v.Height
}

// Marker is one of the closed set of visual state classes the engine
// may place on a node while a translation is pending or running.
type Marker string

const (
	MarkerPending     Marker = "biline-pending"
	MarkerTranslating Marker = "biline-translating"
	MarkerPendingDark Marker = "biline-pending-dark"
)

// Mutation describes a batch of nodes added to the tree.
type Mutation struct {
	Added []NodeHandle
}

// ContentTree is the binding to the host document. The engine only
// talks to the document through this interface; the HTML adapter in
// this package is one implementation, a UI toolkit tree could be
// another.
type ContentTree interface {
	Root() NodeHandle
	Parent(h NodeHandle) NodeHandle
	Children(h NodeHandle) []NodeHandle
	TagName(h NodeHandle) string
	Attr(h NodeHandle, name string) string
	Attached(h NodeHandle) bool

	// DirectText is the node's own text, excluding descendants.
	// FullText is the composed text of the node and all descendants.
	DirectText(h NodeHandle) string
	FullText(h NodeHandle) string

	// Measure returns the node's vertical extent. Calls within one
	// discovery sweep hit a cache built in a single read phase.
	Measure(h NodeHandle) Rect
	Viewport() Viewport
	Scroll(top float64)

	// IsWrapper reports whether the node is a translation wrapper
	// produced by ReplaceWithWrapper or AppendTranslation.
	IsWrapper(h NodeHandle) bool
	HasTranslationChild(h NodeHandle) bool

	ReplaceWithWrapper(h NodeHandle, original, translation string, translationOnly bool) (NodeHandle, error)
	AppendTranslation(h NodeHandle, translation string) (NodeHandle, error)
	RemoveWrappers() int
	WrapperCount() int

	SetMarker(h NodeHandle, m Marker)
	ClearMarkers(h NodeHandle)

	// SubscribeMutations and SubscribeScroll register event channels
	// and return an unsubscribe func. Sends never block; a slow
	// receiver loses events, which the adaptive rescanner covers.
	SubscribeMutations(ch chan<- Mutation) func()
	SubscribeScroll(ch chan<- Viewport) func()
}
