// Package scope maintains an incremental tree of lexical regions over a
// line and column addressed document.
//
// A tokenizer reports boundary events (brace blocks, function headers,
// executable chunks, comment sections and markdown headings) to a Manager
// in document order. The Manager records them in an arena backed Tree whose
// nodes are either open or closed. After an edit, InvalidateFrom prunes the
// part of the tree that the edit may have changed and returns the position
// from which the tokenizer must resume; replaying events from there yields
// the same tree as a full parse.
//
// Queries return value snapshots:
//
//	m := scope.NewManager()
//	m.OnFunctionScopeStart("f", scope.Pos(0, 0), scope.Pos(0, 12), "f", []string{"x"})
//	m.OnScopeEnd(scope.Pos(3, 0))
//	fn, ok := m.FindFunctionDefinitionFromUsage(scope.Pos(5, 0), "f")
//
// The package does not read text. Deciding what constitutes a boundary is
// the tokenizer's job; see package scanner.
package scope
