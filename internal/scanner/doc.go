// Package scanner turns R and R Markdown text into scope boundary events.
//
// The scanner is line oriented. In ModeR every line is R code; in
// ModeMarkdown prose lines may open headings or executable chunks, and only
// the bodies of R chunks are scanned as code. Strings end at the end of
// their line, and columns are byte offsets.
//
// Scan resumes at the sink's parse position. Boundaries before it are
// assumed to be recorded already and are not reported again, so the usual
// incremental loop is:
//
//	m.InvalidateFrom(editPos)
//	err := s.Scan(doc, m, lastRow)
package scanner
