package scanner

import "errors"

// Errors returned by the scanner.
var (
	// ErrUnknownMode indicates a mode name that is neither "r" nor "markdown".
	ErrUnknownMode = errors.New("unknown scan mode")

	// ErrEvent indicates the sink rejected an event.
	ErrEvent = errors.New("scope event rejected")
)
