package document

import (
	"fmt"
	"strings"

	"github.com/dshills/scopetree/internal/scope"
)

// RevisionID identifies a document state. It increases by one per edit.
type RevisionID uint64

// ChangeType categorizes the type of a change.
type ChangeType uint8

const (
	// ChangeInsert indicates text was inserted (OldText is empty).
	ChangeInsert ChangeType = iota

	// ChangeDelete indicates text was deleted (NewText is empty).
	ChangeDelete

	// ChangeReplace indicates text was replaced (both OldText and NewText present).
	ChangeReplace
)

// String returns a human-readable representation of the change type.
func (ct ChangeType) String() string {
	switch ct {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Range is a half-open span of text between two positions.
type Range struct {
	Start scope.Position `json:"start" yaml:"start"`
	End   scope.Position `json:"end" yaml:"end"`
}

// IsEmpty returns true if the range covers no text.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// String returns a human-readable representation of the range.
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// Change represents a single edit to the document.
type Change struct {
	// Type indicates whether this is an insert, delete, or replace.
	Type ChangeType

	// Range is the affected range in the OLD text (before the change).
	// For inserts, Start == End.
	Range Range

	// NewRange is the affected range in the NEW text (after the change).
	// For deletes, Start == End.
	NewRange Range

	// OldText is the text that was removed (empty for inserts).
	OldText string

	// NewText is the text that was added (empty for deletes).
	NewText string

	// Revision is the revision after this change was applied.
	Revision RevisionID
}

// newChange builds the change replacing r, which held oldText, with newText.
func newChange(r Range, oldText, newText string, rev RevisionID) Change {
	typ := ChangeReplace
	switch {
	case oldText == "":
		typ = ChangeInsert
	case newText == "":
		typ = ChangeDelete
	}
	return Change{
		Type:     typ,
		Range:    r,
		NewRange: Range{Start: r.Start, End: endOf(r.Start, newText)},
		OldText:  oldText,
		NewText:  newText,
		Revision: rev,
	}
}

// endOf returns the position just past text when it is inserted at start.
func endOf(start scope.Position, text string) scope.Position {
	newlines := strings.Count(text, "\n")
	if newlines == 0 {
		return scope.Pos(start.Row, start.Column+len(text))
	}
	return scope.Pos(start.Row+newlines, len(text)-strings.LastIndexByte(text, '\n')-1)
}

func abbreviate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// String returns a human-readable representation of the change.
func (c Change) String() string {
	switch c.Type {
	case ChangeInsert:
		return fmt.Sprintf("Insert %q at %s", abbreviate(c.NewText, 20), c.Range.Start)
	case ChangeDelete:
		return fmt.Sprintf("Delete %q at %v", abbreviate(c.OldText, 20), c.Range)
	case ChangeReplace:
		return fmt.Sprintf("Replace %q with %q at %v", abbreviate(c.OldText, 10), abbreviate(c.NewText, 10), c.Range)
	default:
		return "Unknown change"
	}
}

// Invert returns a change that undoes this change.
func (c Change) Invert() Change {
	inverted := Change{
		Type:     ChangeReplace,
		Range:    c.NewRange,
		NewRange: c.Range,
		OldText:  c.NewText,
		NewText:  c.OldText,
		Revision: c.Revision,
	}
	switch c.Type {
	case ChangeInsert:
		inverted.Type = ChangeDelete
	case ChangeDelete:
		inverted.Type = ChangeInsert
	}
	return inverted
}

// history is a bounded ring of recent changes.
type history struct {
	changes []Change
	head    int // index of oldest entry
	count   int
}

func newHistory(maxChanges int) *history {
	if maxChanges <= 0 {
		maxChanges = DefaultMaxChanges
	}
	return &history{changes: make([]Change, maxChanges)}
}

func (h *history) add(c Change) {
	idx := (h.head + h.count) % len(h.changes)
	if h.count < len(h.changes) {
		h.count++
	} else {
		h.head = (h.head + 1) % len(h.changes)
	}
	h.changes[idx] = c
}

// since returns the retained changes after rev in chronological order.
func (h *history) since(rev RevisionID) []Change {
	var result []Change
	for i := 0; i < h.count; i++ {
		c := h.changes[(h.head+i)%len(h.changes)]
		if c.Revision > rev {
			result = append(result, c)
		}
	}
	return result
}
