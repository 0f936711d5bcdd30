package scope

import "errors"

// Errors returned by scope tree operations.
var (
	// ErrPreambleAfterStart indicates a node whose preamble lies after its body start.
	// This means the tokenizer emitted boundaries out of order.
	ErrPreambleAfterStart = errors.New("scope preamble is after its start")

	// ErrInvalidDepth indicates a markdown heading depth below 1.
	ErrInvalidDepth = errors.New("invalid heading depth")
)
