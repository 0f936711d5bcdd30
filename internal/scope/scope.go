package scope

import "slices"

// Scope is a read-only snapshot of a node in the scope tree.
// Snapshots do not change when the tree is later mutated.
type Scope struct {
	ID       NodeID
	Label    string
	Kind     Kind
	Preamble Position
	Start    Position
	End      Position // valid only when Closed
	Closed   bool
	Attrs    Attributes
}

// IsFunction reports whether the scope is a function definition.
func (s Scope) IsFunction() bool {
	a, ok := s.Attrs.(BraceAttrs)
	return ok && a.Function
}

// IsMarkdownHeader reports whether the scope is a markdown heading section.
func (s Scope) IsMarkdownHeader() bool {
	a, ok := s.Attrs.(SectionAttrs)
	return ok && a.Markdown
}

// Contains reports whether pos lies inside the scope's interval.
func (s Scope) Contains(pos Position) bool {
	if pos.Before(s.Preamble) {
		return false
	}
	return !s.Closed || pos.Before(s.End)
}

// Function describes a function scope for navigation and completion.
type Function struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Args     []string `json:"args" yaml:"args"`
	Preamble Position `json:"preamble" yaml:"preamble"`
	Start    Position `json:"start" yaml:"start"`
}

// functionOf converts a function scope snapshot into a Function.
func functionOf(s Scope) Function {
	a, _ := s.Attrs.(BraceAttrs)
	name := a.Name
	if name == "" {
		name = s.Label
	}
	return Function{
		Name:     name,
		Label:    s.Label,
		Args:     slices.Clone(a.Args),
		Preamble: s.Preamble,
		Start:    s.Start,
	}
}

// OutlineEntry is one labeled scope in a document outline.
type OutlineEntry struct {
	Label    string         `json:"label" yaml:"label"`
	Kind     string         `json:"kind" yaml:"kind"`
	Start    Position       `json:"start" yaml:"start"`
	End      *Position      `json:"end,omitempty" yaml:"end,omitempty"`
	Children []OutlineEntry `json:"children,omitempty" yaml:"children,omitempty"`
}
