// Package document pairs a line buffer with an incrementally maintained
// scope tree.
//
// Every edit is recorded as a Change in a bounded history and rolls the
// tree back from the edit position. Queries build the tree lazily up to the
// queried row plus a lookahead window, reusing everything above the last
// edit.
package document
