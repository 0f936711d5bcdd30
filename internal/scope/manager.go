package scope

import (
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/logging"
)

// DefaultRootLabel is the label of the root scope.
const DefaultRootLabel = "(Top Level)"

// Option configures a Manager during creation.
type Option func(*Manager)

// WithRootLabel sets the root label. An empty label keeps the root out of
// ActiveScopes results.
func WithRootLabel(label string) Option {
	return func(m *Manager) {
		m.rootLabel = label
	}
}

// WithLogger sets the logger used to report ignored events.
func WithLogger(log commonlog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// Manager translates boundary events from a tokenizer into scope tree
// mutations and answers position and name queries.
//
// Events must be delivered in document order. A Manager is not safe for
// concurrent use, and event handlers must not re-enter it.
type Manager struct {
	tree      *Tree
	root      NodeID
	rootLabel string
	parsePos  Position
	log       commonlog.Logger
}

// NewManager creates a manager with an empty, open root scope.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tree:      NewTree(),
		rootLabel: DefaultRootLabel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.GetLogger("scope")
	}
	m.root = m.tree.NewRoot(m.rootLabel)
	return m
}

// Root returns the root scope.
func (m *Manager) Root() Scope {
	return m.tree.Scope(m.root)
}

// ParsePosition returns the position up to which events have been applied.
func (m *Manager) ParsePosition() Position {
	return m.parsePos
}

// SetParsePosition records how far the tokenizer has scanned.
func (m *Manager) SetParsePosition(pos Position) {
	m.parsePos = pos
}

// add attaches a freshly built node under the root.
func (m *Manager) add(id NodeID) {
	if !m.tree.AddNode(m.root, id) {
		m.log.Debugf("ignoring duplicate scope open")
	}
}

// closeKind closes the innermost open scope of kind and logs unmatched closes.
func (m *Manager) closeKind(pos Position, kind Kind) bool {
	if _, ok := m.tree.CloseScope(m.root, pos, kind); ok {
		return true
	}
	m.log.Debugf("ignoring unmatched %s close at %s", kind, pos)
	return false
}

// innermost returns the innermost node, labeled or not, containing pos.
func (m *Manager) innermost(pos Position) NodeID {
	path := m.tree.containmentPath(m.root, pos)
	return path[len(path)-1]
}

// OnSectionStart opens a section at pos. An open non-markdown section that
// is the innermost scope at pos is closed first: sections at the same level
// end each other. A section already open at pos is left alone.
func (m *Manager) OnSectionStart(label string, pos Position, attrs SectionAttrs) {
	inner := m.innermost(pos)
	if a, ok := m.tree.nodes[inner].attrs.(SectionAttrs); ok && !a.Markdown && m.tree.nodes[inner].start != pos {
		m.tree.closeNode(inner, pos)
	}
	id, _ := m.tree.NewNode(label, pos, pos, attrs)
	m.add(id)
}

// OnSectionEnd closes the innermost open section.
func (m *Manager) OnSectionEnd(pos Position) bool {
	return m.closeKind(pos, KindSection)
}

// OnMarkdownHead opens a markdown heading of the given depth spanning
// startPos to endPos. Open headings of equal or greater depth are closed
// first.
func (m *Manager) OnMarkdownHead(label string, startPos, endPos Position, depth int) error {
	if depth < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	id, err := m.tree.NewNode(label, startPos, endPos, SectionAttrs{Depth: depth, Markdown: true})
	if err != nil {
		return err
	}
	m.closeMarkdownHeaderScopes(m.innermost(startPos), startPos, depth)
	m.add(id)
	return nil
}

// closeMarkdownHeaderScopes walks up from node closing markdown headings
// with depth >= depth. It stops after closing a heading of exactly depth.
func (m *Manager) closeMarkdownHeaderScopes(node NodeID, pos Position, depth int) {
	for node != NoNode && node != m.root {
		if a, ok := m.tree.nodes[node].attrs.(SectionAttrs); ok && a.Markdown && a.Depth >= depth {
			m.tree.closeNode(node, pos)
			if a.Depth == depth {
				return
			}
		}
		node = m.tree.Parent(node)
	}
}

// OnChunkStart opens an executable chunk whose header starts at headerPos
// and whose body starts at bodyPos. Chunks never nest: a still open chunk
// is closed at headerPos.
func (m *Manager) OnChunkStart(chunkLabel, label string, headerPos, bodyPos Position) error {
	id, err := m.tree.NewNode(label, headerPos, bodyPos, ChunkAttrs{Label: chunkLabel})
	if err != nil {
		return err
	}
	m.tree.CloseScope(m.root, headerPos, KindChunk)
	m.add(id)
	return nil
}

// OnChunkEnd closes the open chunk.
func (m *Manager) OnChunkEnd(pos Position) bool {
	return m.closeKind(pos, KindChunk)
}

// OnFunctionScopeStart opens a function whose header starts at headerPos
// and whose body starts at bodyPos.
func (m *Manager) OnFunctionScopeStart(label string, headerPos, bodyPos Position, name string, args []string) error {
	if args == nil {
		args = []string{}
	}
	id, err := m.tree.NewNode(label, headerPos, bodyPos, BraceAttrs{Function: true, Name: name, Args: args})
	if err != nil {
		return err
	}
	m.add(id)
	return nil
}

// OnNamedScopeStart opens a labeled brace scope at pos.
func (m *Manager) OnNamedScopeStart(label string, pos Position) {
	id, _ := m.tree.NewNode(label, pos, pos, BraceAttrs{})
	m.add(id)
}

// OnScopeStart opens an anonymous brace scope at pos.
func (m *Manager) OnScopeStart(pos Position) {
	id, _ := m.tree.NewNode("", pos, pos, BraceAttrs{})
	m.add(id)
}

// OnScopeEnd closes the innermost open brace scope. Returns false if no
// brace scope was open.
func (m *Manager) OnScopeEnd(pos Position) bool {
	return m.closeKind(pos, KindBrace)
}

// InvalidateFrom discards scopes that an edit at pos may have changed and
// returns the position from which the tokenizer must resume. Reparsing
// always restarts at the beginning of the line above pos. Edits beyond the
// parse position need no rollback.
func (m *Manager) InvalidateFrom(pos Position) Position {
	pos = pos.PreviousLineStart()
	if pos.Before(m.parsePos) {
		m.parsePos = m.tree.InvalidateFrom(m.root, pos)
		m.log.Debugf("invalidated from %s, resuming at %s", pos, m.parsePos)
	}
	return m.parsePos
}

func (m *Manager) snapshots(ids []NodeID) []Scope {
	if ids == nil {
		return nil
	}
	scopes := make([]Scope, len(ids))
	for i, id := range ids {
		scopes[i] = m.tree.Scope(id)
	}
	return scopes
}

// ActiveScopes returns the labeled scopes containing pos, outermost first.
// Returns nil if no labeled scope contains pos.
func (m *Manager) ActiveScopes(pos Position) []Scope {
	return m.snapshots(m.tree.FindNode(m.root, pos))
}

// ScopeList returns the top-level scopes in document order.
func (m *Manager) ScopeList() []Scope {
	return m.snapshots(m.tree.nodes[m.root].children)
}

// OpenScopes returns the chain of scopes that are still open, outermost
// first, starting with the root.
func (m *Manager) OpenScopes() []Scope {
	path := append([]NodeID{m.root}, m.tree.rightmostOpenPath(m.root)...)
	return m.snapshots(path)
}

// FindFunctionDefinitionFromUsage resolves a call of name at pos using
// lexical scoping: the innermost enclosing definition wins.
func (m *Manager) FindFunctionDefinitionFromUsage(pos Position, name string) (Function, bool) {
	id, ok := m.tree.FindFunctionDefinitionFromUsage(m.root, pos, name)
	if !ok {
		return Function{}, false
	}
	return functionOf(m.tree.Scope(id)), true
}

// FunctionsInScope returns the functions visible from pos.
func (m *Manager) FunctionsInScope(pos Position) []Function {
	ids := m.tree.FunctionsInScope(m.root, pos)
	fns := make([]Function, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, functionOf(m.tree.Scope(id)))
	}
	return fns
}

// CurrentFunction returns the innermost function containing pos.
func (m *Manager) CurrentFunction(pos Position) (Function, bool) {
	stack := m.tree.functionStack(m.root, pos)
	if len(stack) == 0 {
		return Function{}, false
	}
	return functionOf(m.tree.Scope(stack[len(stack)-1])), true
}

// ChunkCount returns the number of chunks in the tree.
func (m *Manager) ChunkCount() int {
	count := 0
	m.tree.Walk(m.root, func(id NodeID, _ int) bool {
		if m.tree.Kind(id) == KindChunk {
			count++
		}
		return true
	})
	return count
}

// ScopeCount returns the number of scopes in the tree, excluding the root.
func (m *Manager) ScopeCount() int {
	return m.tree.Len() - 1
}

// Children returns snapshots of the children of the scope id, in document
// order.
func (m *Manager) Children(id NodeID) []Scope {
	return m.snapshots(m.tree.Children(id))
}

// TopLevelScopeCount returns the number of direct children of the root.
func (m *Manager) TopLevelScopeCount() int {
	return len(m.tree.nodes[m.root].children)
}

// AllFunctionScopes returns every function in document order.
func (m *Manager) AllFunctionScopes() []Function {
	var fns []Function
	m.tree.Walk(m.root, func(id NodeID, _ int) bool {
		if m.tree.IsFunction(id) {
			fns = append(fns, functionOf(m.tree.Scope(id)))
		}
		return true
	})
	return fns
}

// Outline returns the labeled scopes as a nested outline. Anonymous scopes
// are skipped and their labeled descendants lifted to the nearest labeled
// ancestor.
func (m *Manager) Outline() []OutlineEntry {
	var build func(id NodeID) []OutlineEntry
	build = func(id NodeID) []OutlineEntry {
		var entries []OutlineEntry
		for _, c := range m.tree.nodes[id].children {
			n := &m.tree.nodes[c]
			if n.label == "" {
				entries = append(entries, build(c)...)
				continue
			}
			e := OutlineEntry{
				Label:    n.label,
				Kind:     kindName(n.attrs),
				Start:    n.preamble,
				Children: build(c),
			}
			if n.state == StateClosed {
				end := n.end
				e.End = &end
			}
			entries = append(entries, e)
		}
		return entries
	}
	return build(m.root)
}

func kindName(a Attributes) string {
	switch a := a.(type) {
	case BraceAttrs:
		if a.Function {
			return "function"
		}
	case SectionAttrs:
		if a.Markdown {
			return "heading"
		}
	}
	return a.Kind().String()
}

// Dump writes an indented description of every scope to w.
func (m *Manager) Dump(w io.Writer) error {
	var err error
	m.tree.Walk(m.root, func(id NodeID, depth int) bool {
		if err != nil {
			return false
		}
		s := m.tree.Scope(id)
		label := s.Label
		if label == "" {
			label = "<anonymous>"
		}
		end := "open"
		if s.Closed {
			end = s.End.String()
		}
		_, err = fmt.Fprintf(w, "%s%s %q %s-%s body %s\n",
			strings.Repeat("  ", depth), kindName(s.Attrs), label, s.Preamble, end, s.Start)
		return true
	})
	return err
}

// String returns the Dump output.
func (m *Manager) String() string {
	var b strings.Builder
	_ = m.Dump(&b)
	return b.String()
}

// Functions returns just the names of fns.
func Functions(fns []Function) []string {
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}
	return names
}
