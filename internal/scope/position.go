package scope

import "fmt"

// Position is a row and column location in a document.
// Both Row and Column are 0-indexed.
type Position struct {
	Row    int `json:"row" yaml:"row"`
	Column int `json:"column" yaml:"column"`
}

// Pos is shorthand for Position{Row: row, Column: column}.
func Pos(row, column int) Position {
	return Position{Row: row, Column: column}
}

// String returns a human-readable representation of the position.
func (p Position) String() string {
	return fmt.Sprintf("(%d:%d)", p.Row, p.Column)
}

// Compare returns -1 if p < other, 0 if p == other, 1 if p > other.
func (p Position) Compare(other Position) int {
	if p.Row < other.Row {
		return -1
	}
	if p.Row > other.Row {
		return 1
	}
	if p.Column < other.Column {
		return -1
	}
	if p.Column > other.Column {
		return 1
	}
	return 0
}

// Before returns true if p comes before other.
func (p Position) Before(other Position) bool {
	return p.Compare(other) < 0
}

// After returns true if p comes after other.
func (p Position) After(other Position) bool {
	return p.Compare(other) > 0
}

// IsZero returns true if this is the document start (0:0).
func (p Position) IsZero() bool {
	return p.Row == 0 && p.Column == 0
}

// LineStart returns the position of the first column on p's row.
func (p Position) LineStart() Position {
	return Position{Row: p.Row}
}

// PreviousLineStart returns column 0 of the row above p, clamped to row 0.
func (p Position) PreviousLineStart() Position {
	return Position{Row: max(p.Row-1, 0)}
}

// MinPosition returns the earlier of a and b.
func MinPosition(a, b Position) Position {
	if b.Before(a) {
		return b
	}
	return a
}
