package document

import "errors"

// Errors returned by document operations.
var (
	// ErrPositionOutOfRange indicates a position outside the document.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrRangeInvalid indicates a range whose end is before its start.
	ErrRangeInvalid = errors.New("invalid range")
)
