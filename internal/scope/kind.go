package scope

import (
	"slices"
)

// Kind identifies what sort of region a scope node covers.
type Kind uint8

const (
	// KindRoot is the permanently open document node.
	KindRoot Kind = iota
	// KindBrace is a brace block; functions are brace nodes with BraceAttrs.Function set.
	KindBrace
	// KindChunk is an embedded executable code block.
	KindChunk
	// KindSection is a comment section marker or a markdown heading.
	KindSection
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindBrace:
		return "brace"
	case KindChunk:
		return "chunk"
	case KindSection:
		return "section"
	default:
		return "unknown"
	}
}

// Attributes carries the kind-specific data of a scope node.
// The concrete type determines the node's Kind.
type Attributes interface {
	Kind() Kind
	clone() Attributes
}

// RootAttrs are the attributes of the root node.
type RootAttrs struct{}

// Kind implements Attributes.
func (RootAttrs) Kind() Kind { return KindRoot }

func (a RootAttrs) clone() Attributes { return a }

// BraceAttrs are the attributes of a brace node. A brace node with Function
// set is a function definition.
type BraceAttrs struct {
	Function bool
	Name     string
	Args     []string
}

// Kind implements Attributes.
func (BraceAttrs) Kind() Kind { return KindBrace }

func (a BraceAttrs) clone() Attributes {
	a.Args = slices.Clone(a.Args)
	return a
}

// ChunkAttrs are the attributes of an executable chunk.
type ChunkAttrs struct {
	Label string
}

// Kind implements Attributes.
func (ChunkAttrs) Kind() Kind { return KindChunk }

func (a ChunkAttrs) clone() Attributes { return a }

// SectionAttrs are the attributes of a section. Markdown headings carry
// their heading depth.
type SectionAttrs struct {
	Depth    int
	Markdown bool
}

// Kind implements Attributes.
func (SectionAttrs) Kind() Kind { return KindSection }

func (a SectionAttrs) clone() Attributes { return a }

// State is the open/closed state of a scope node.
type State uint8

const (
	// StateOpen means the node has no end yet.
	StateOpen State = iota
	// StateClosed means the node has an end position.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}
