package scope

import (
	"fmt"
	"slices"
)

// NodeID addresses a node in a Tree's arena.
// IDs of nodes pruned by InvalidateFrom are recycled.
type NodeID int32

// NoNode is the parent of the root and the result of failed lookups.
const NoNode NodeID = -1

type node struct {
	label    string
	preamble Position
	start    Position
	end      Position
	state    State
	attrs    Attributes
	parent   NodeID
	children []NodeID
	live     bool
}

// Tree is an arena of scope nodes. The arena owns every node; nodes refer to
// each other only through NodeIDs.
//
// Children of a node are kept sorted by preamble and do not overlap. Only
// the rightmost path of the tree can hold open nodes under normal event
// ordering; a closed node never has open descendants.
//
// Tree is not safe for concurrent use.
type Tree struct {
	nodes []node
	free  []NodeID
}

// NewTree creates an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// NewRoot allocates a root node. The root is always open.
func (t *Tree) NewRoot(label string) NodeID {
	return t.alloc(node{
		label:  label,
		attrs:  RootAttrs{},
		parent: NoNode,
	})
}

// NewNode allocates a fresh, open, childless node that is not yet attached
// to any parent. A nil attrs means an anonymous brace.
// Returns ErrPreambleAfterStart if preamble is after start.
func (t *Tree) NewNode(label string, preamble, start Position, attrs Attributes) (NodeID, error) {
	if preamble.After(start) {
		return NoNode, fmt.Errorf("%w: preamble %s, start %s", ErrPreambleAfterStart, preamble, start)
	}
	if attrs == nil {
		attrs = BraceAttrs{}
	}
	if attrs.Kind() == KindRoot {
		return NoNode, fmt.Errorf("scope: root attributes on a child node")
	}
	return t.alloc(node{
		label:    label,
		preamble: preamble,
		start:    start,
		attrs:    attrs.clone(),
		parent:   NoNode,
	}), nil
}

func (t *Tree) alloc(n node) NodeID {
	n.live = true
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// release returns id and its whole subtree to the free list.
func (t *Tree) release(id NodeID) {
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, t.nodes[cur].children...)
		t.nodes[cur] = node{parent: NoNode}
		t.free = append(t.free, cur)
	}
}

// Len returns the number of live nodes, including roots.
func (t *Tree) Len() int {
	return len(t.nodes) - len(t.free)
}

// Valid reports whether id refers to a live node.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && t.nodes[id].live
}

// Parent returns the parent of id, or NoNode for a root or detached node.
func (t *Tree) Parent(id NodeID) NodeID {
	return t.nodes[id].parent
}

// Children returns a copy of id's children in preamble order.
func (t *Tree) Children(id NodeID) []NodeID {
	return slices.Clone(t.nodes[id].children)
}

// State returns whether id is open or closed.
func (t *Tree) State(id NodeID) State {
	return t.nodes[id].state
}

// Kind returns the kind of id.
func (t *Tree) Kind(id NodeID) Kind {
	return t.nodes[id].attrs.Kind()
}

// Scope returns a read-only snapshot of id.
func (t *Tree) Scope(id NodeID) Scope {
	n := &t.nodes[id]
	return Scope{
		ID:       id,
		Label:    n.label,
		Kind:     n.attrs.Kind(),
		Preamble: n.preamble,
		Start:    n.start,
		End:      n.end,
		Closed:   n.state == StateClosed,
		Attrs:    n.attrs.clone(),
	}
}

// transition moves id between the open and closed states. Closing records
// at as the end position; reopening clears it. Roots never close.
// Returns false if id was already in the requested state.
func (t *Tree) transition(id NodeID, to State, at Position) bool {
	n := &t.nodes[id]
	if n.state == to {
		return false
	}
	switch to {
	case StateClosed:
		if n.attrs.Kind() == KindRoot {
			return false
		}
		n.state = StateClosed
		n.end = at
	default:
		n.state = StateOpen
		n.end = Position{}
	}
	return true
}

// equal reports whether a and b are structurally equal: same kind and start.
func (t *Tree) equal(a, b NodeID) bool {
	na, nb := &t.nodes[a], &t.nodes[b]
	return na.attrs.Kind() == nb.attrs.Kind() && na.start == nb.start
}

// comparePosition returns -1 if pos is before id's preamble, 1 if id is
// closed and pos is at or after its end, and 0 otherwise.
func (t *Tree) comparePosition(id NodeID, pos Position) int {
	n := &t.nodes[id]
	if pos.Before(n.preamble) {
		return -1
	}
	if n.state == StateClosed && !pos.Before(n.end) {
		return 1
	}
	return 0
}

// search finds the child of parent whose interval contains pos. It returns
// the child index, or -(insertion index + 1) when no child contains pos.
func (t *Tree) search(parent NodeID, pos Position) int {
	children := t.nodes[parent].children
	lo, hi := 0, len(children)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch t.comparePosition(children[mid], pos) {
		case 0:
			return mid
		case -1:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return -(lo + 1)
}

// AddNode inserts the fresh node id into the subtree rooted at parent.
//
// The node descends into whichever existing child contains its preamble.
// Children found after the insertion point are adopted by the new node;
// this handles a function header that is recognized only after closures in
// its argument list were already recorded as siblings. Every node on the
// descent path is reopened.
//
// Inserting a node structurally equal to one already on the descent path is
// a no-op: the fresh node is released and AddNode returns false.
//
// AddNode panics if id is closed, has children or is already attached.
func (t *Tree) AddNode(parent, id NodeID) bool {
	n := &t.nodes[id]
	if n.state != StateOpen {
		panic("scope: AddNode called with a closed node")
	}
	if len(n.children) > 0 {
		panic("scope: AddNode called with a node that has children")
	}
	if n.parent != NoNode {
		panic("scope: AddNode called with an attached node")
	}
	preamble := n.preamble

	var path []NodeID
	cur := parent
	for {
		if t.equal(cur, id) {
			t.release(id)
			return false
		}
		path = append(path, cur)
		idx := t.search(cur, preamble)
		if idx >= 0 {
			cur = t.nodes[cur].children[idx]
			continue
		}
		t.insertAt(cur, -(idx + 1), id)
		break
	}

	for _, p := range path {
		t.transition(p, StateOpen, Position{})
	}
	return true
}

// insertAt places id among parent's children at index, adopting every
// later sibling whose preamble is not before id's preamble.
func (t *Tree) insertAt(parent NodeID, index int, id NodeID) {
	preamble := t.nodes[id].preamble
	children := t.nodes[parent].children

	var adopted []NodeID
	kept := index
	for i := index; i < len(children); i++ {
		c := children[i]
		if t.nodes[c].preamble.Before(preamble) {
			children[kept] = c
			kept++
			continue
		}
		adopted = append(adopted, c)
	}
	for _, c := range adopted {
		t.nodes[c].parent = id
	}
	t.nodes[id].children = adopted
	t.nodes[id].parent = parent

	children = children[:kept]
	t.nodes[parent].children = slices.Insert(children, index, id)
}

// rightmostOpenPath returns the chain of open last-children below from.
func (t *Tree) rightmostOpenPath(from NodeID) []NodeID {
	var path []NodeID
	cur := from
	for {
		children := t.nodes[cur].children
		if len(children) == 0 {
			return path
		}
		last := children[len(children)-1]
		if t.nodes[last].state == StateClosed {
			return path
		}
		path = append(path, last)
		cur = last
	}
}

// CloseScope closes the innermost open node of the given kind on the
// rightmost open path below from, at pos. Any open descendants of that node
// are closed at the same position. from itself is never closed.
// Returns the closed node and true, or NoNode and false if nothing matched.
func (t *Tree) CloseScope(from NodeID, pos Position, kind Kind) (NodeID, bool) {
	path := t.rightmostOpenPath(from)
	for i := len(path) - 1; i >= 0; i-- {
		if t.nodes[path[i]].attrs.Kind() != kind {
			continue
		}
		t.closeNode(path[i], pos)
		return path[i], true
	}
	return NoNode, false
}

// closeNode closes id and cascades the close to its open descendants.
func (t *Tree) closeNode(id NodeID, pos Position) bool {
	if !t.transition(id, StateClosed, pos) {
		return false
	}
	t.forceDescendantsClosed(id, pos)
	return true
}

// forceDescendantsClosed closes every open descendant of id at pos.
func (t *Tree) forceDescendantsClosed(id NodeID, pos Position) {
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range t.nodes[cur].children {
			if t.nodes[c].state == StateOpen {
				t.transition(c, StateClosed, pos)
				stack = append(stack, c)
			}
		}
	}
}

// containmentPath returns from followed by every descendant whose interval
// contains pos, outermost first.
func (t *Tree) containmentPath(from NodeID, pos Position) []NodeID {
	path := []NodeID{from}
	cur := from
	for {
		idx := t.search(cur, pos)
		if idx < 0 {
			return path
		}
		cur = t.nodes[cur].children[idx]
		path = append(path, cur)
	}
}

// FindNode returns the labeled nodes containing pos, outermost first.
// from is included only if it has a label. Returns nil if no labeled node
// contains pos.
func (t *Tree) FindNode(from NodeID, pos Position) []NodeID {
	var labeled []NodeID
	for _, id := range t.containmentPath(from, pos) {
		if t.nodes[id].label != "" {
			labeled = append(labeled, id)
		}
	}
	return labeled
}

// IsFunction reports whether id is a function definition.
func (t *Tree) IsFunction(id NodeID) bool {
	a, ok := t.nodes[id].attrs.(BraceAttrs)
	return ok && a.Function
}

func (t *Tree) functionName(id NodeID) string {
	if a, ok := t.nodes[id].attrs.(BraceAttrs); ok && a.Name != "" {
		return a.Name
	}
	return t.nodes[id].label
}

// functionStack returns the function nodes containing pos, outermost first.
func (t *Tree) functionStack(from NodeID, pos Position) []NodeID {
	var stack []NodeID
	for _, id := range t.containmentPath(from, pos) {
		if t.IsFunction(id) {
			stack = append(stack, id)
		}
	}
	return stack
}

// lexicalScopes returns from and the function nodes containing pos,
// innermost first.
func (t *Tree) lexicalScopes(from NodeID, pos Position) []NodeID {
	stack := t.functionStack(from, pos)
	scopes := make([]NodeID, 0, len(stack)+1)
	for i := len(stack) - 1; i >= 0; i-- {
		scopes = append(scopes, stack[i])
	}
	return append(scopes, from)
}

// definedIn returns the functions defined directly in scope s, in document
// order. Sections, chunks and plain brace blocks do not introduce an R
// environment, so their function children belong to s as well.
func (t *Tree) definedIn(s NodeID) []NodeID {
	var fns []NodeID
	stack := slices.Clone(t.nodes[s].children)
	slices.Reverse(stack)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t.IsFunction(c) {
			fns = append(fns, c)
			continue
		}
		children := t.nodes[c].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return fns
}

// FindFunctionDefinitionFromUsage resolves name as used at pos. The
// functions defined in each enclosing function are searched, innermost
// function first, then those defined in from.
func (t *Tree) FindFunctionDefinitionFromUsage(from NodeID, pos Position, name string) (NodeID, bool) {
	for _, s := range t.lexicalScopes(from, pos) {
		for _, c := range t.definedIn(s) {
			if t.functionName(c) == name {
				return c, true
			}
		}
	}
	return NoNode, false
}

// FunctionsInScope returns the functions visible from pos: those defined in
// each enclosing function, innermost first, then those defined in from.
// A name shadowed by an inner definition is reported once.
func (t *Tree) FunctionsInScope(from NodeID, pos Position) []NodeID {
	seen := make(map[string]bool)
	var result []NodeID
	for _, s := range t.lexicalScopes(from, pos) {
		for _, c := range t.definedIn(s) {
			name := t.functionName(c)
			if seen[name] {
				continue
			}
			seen[name] = true
			result = append(result, c)
		}
	}
	return result
}

// InvalidateFrom prunes everything below from that can no longer be trusted
// after an edit at pos and returns the position where scanning must resume.
//
// A child whose header (preamble through start) contains pos is dropped and
// scanning resumes at its preamble: the edited row may hold the boundary
// that opened it. A child whose body strictly after start contains pos is
// kept, reopened and pruned in turn. All later siblings are dropped and
// every node on the way down is reopened.
func (t *Tree) InvalidateFrom(from NodeID, pos Position) Position {
	cur := from
	for {
		t.transition(cur, StateOpen, Position{})
		idx := t.search(cur, pos)
		if idx < 0 {
			t.truncate(cur, -(idx + 1))
			return pos
		}
		child := t.nodes[cur].children[idx]
		if !t.nodes[child].start.Before(pos) {
			resume := t.nodes[child].preamble
			t.truncate(cur, idx)
			return resume
		}
		t.truncate(cur, idx+1)
		cur = child
	}
}

// truncate drops the children of id from index on.
func (t *Tree) truncate(id NodeID, index int) {
	children := t.nodes[id].children
	if index >= len(children) {
		return
	}
	for _, c := range children[index:] {
		t.release(c)
	}
	t.nodes[id].children = children[:index]
}

// Walk visits from and its descendants in document order. Returning false
// from fn skips the visited node's children.
func (t *Tree) Walk(from NodeID, fn func(id NodeID, depth int) bool) {
	type frame struct {
		id    NodeID
		depth int
	}
	stack := []frame{{from, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.id, f.depth) {
			continue
		}
		children := t.nodes[f.id].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], f.depth + 1})
		}
	}
}
