package scanner

import (
	"fmt"
	"slices"

	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/logging"
	"github.com/dshills/scopetree/internal/scope"
)

// Source provides random access to the lines of a document.
type Source interface {
	LineCount() int
	Line(row int) string
}

// Sink receives scope boundary events. *scope.Manager implements Sink.
type Sink interface {
	OnSectionStart(label string, pos scope.Position, attrs scope.SectionAttrs)
	OnMarkdownHead(label string, startPos, endPos scope.Position, depth int) error
	OnChunkStart(chunkLabel, label string, headerPos, bodyPos scope.Position) error
	OnChunkEnd(pos scope.Position) bool
	OnFunctionScopeStart(label string, headerPos, bodyPos scope.Position, name string, args []string) error
	OnNamedScopeStart(label string, pos scope.Position)
	OnScopeStart(pos scope.Position)
	OnScopeEnd(pos scope.Position) bool
	ParsePosition() scope.Position
	SetParsePosition(pos scope.Position)
}

var _ Sink = (*scope.Manager)(nil)

// namedCallers are calls whose brace argument is reported as a named scope,
// labeled with the call's description string.
var namedCallers = map[string]bool{
	"test_that": true,
	"describe":  true,
	"it":        true,
}

// Scanner tokenizes R and R Markdown documents line by line and reports
// scope boundaries to a Sink.
//
// Scanning is resumable: Scan starts at the sink's parse position and skips
// every boundary before it, so a sink that was rolled back with
// InvalidateFrom receives exactly the events it lost.
type Scanner struct {
	mode         Mode
	lookbackRows int
	log          commonlog.Logger
}

// New creates a scanner. The default mode is ModeR.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		lookbackRows: DefaultLookbackRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.GetLogger("scanner")
	}
	return s
}

// Mode returns the document grammar.
func (s *Scanner) Mode() Mode {
	return s.mode
}

// Scan reports the boundaries on rows from the sink's parse position
// through maxRow and advances the parse position past each scanned row.
func (s *Scanner) Scan(src Source, sink Sink, maxRow int) error {
	maxRow = min(maxRow, src.LineCount()-1)
	resume := sink.ParsePosition()
	if resume.Row > maxRow {
		return nil
	}
	s.log.Debugf("scanning rows %d-%d from %s", resume.Row, maxRow, resume)

	r := &run{
		scanner: s,
		src:     src,
		sink:    sink,
		resume:  resume,
		tokens:  make(map[int][]token),
	}
	st := initialState(s.mode)
	if st.markdown {
		for row := 0; row < resume.Row; row++ {
			st = st.advance(row, src.Line(row))
		}
	}
	for row := resume.Row; row <= maxRow; row++ {
		line := src.Line(row)
		if err := r.scanLine(row, line, st); err != nil {
			return err
		}
		st = st.advance(row, line)
		sink.SetParsePosition(scope.Pos(row+1, 0))
	}
	return nil
}

// run holds the state of one Scan call.
type run struct {
	scanner *Scanner
	src     Source
	sink    Sink
	resume  scope.Position
	tokens  map[int][]token
}

// lexed returns the tokens of row, lexing it on first use.
func (r *run) lexed(row int) []token {
	toks, ok := r.tokens[row]
	if !ok {
		toks = lexLine(r.src.Line(row))
		r.tokens[row] = toks
	}
	return toks
}

// due reports whether a boundary at pos has not been delivered yet.
func (r *run) due(pos scope.Position) bool {
	return !pos.Before(r.resume)
}

func eventError(pos scope.Position, err error) error {
	return fmt.Errorf("%w at %s: %w", ErrEvent, pos, err)
}

func (r *run) scanLine(row int, line string, st lineState) error {
	lineStart := scope.Pos(row, 0)
	switch st.region {
	case regionFrontMatter:
		return nil
	case regionFence:
		if st.chunk && isClosingFence(line) && r.due(lineStart) {
			r.sink.OnChunkEnd(scope.Pos(row+1, 0))
		}
		return nil
	case regionText:
		return r.scanText(row, line, st.chunks+1)
	}

	if st.markdown && isClosingFence(line) {
		if r.due(lineStart) {
			r.sink.OnChunkEnd(scope.Pos(row+1, 0))
		}
		return nil
	}
	return r.scanCode(row, line, st.codeStart)
}

// scanText handles a prose line. ordinal numbers the next chunk.
func (r *run) scanText(row int, line string, ordinal int) error {
	pos := scope.Pos(row, 0)
	if !r.due(pos) || row == 0 && isFrontMatterFence(line) {
		return nil
	}
	if h, ok := parseChunkHeader(line); ok {
		if err := r.sink.OnChunkStart(h.label, h.displayLabel(ordinal), pos, scope.Pos(row+1, 0)); err != nil {
			return eventError(pos, err)
		}
		return nil
	}
	if isFenceLine(line) {
		return nil
	}
	if label, depth, ok := parseHeading(line); ok && label != "" {
		if err := r.sink.OnMarkdownHead(label, pos, scope.Pos(row, len(line)), depth); err != nil {
			return eventError(pos, err)
		}
	}
	return nil
}

func (r *run) scanCode(row int, line string, codeStart int) error {
	if label, depth, ok := parseSection(line); ok {
		if pos := scope.Pos(row, 0); r.due(pos) {
			r.sink.OnSectionStart(label, pos, scope.SectionAttrs{Depth: depth})
		}
		return nil
	}

	toks := r.lexed(row)
	for i, t := range toks {
		if t.typ != tokenPunct {
			continue
		}
		pos := scope.Pos(row, t.col)
		if !r.due(pos) {
			continue
		}
		switch t.value {
		case "{":
			if err := r.openBrace(row, i, codeStart); err != nil {
				return err
			}
		case "}":
			end := scope.Pos(row, t.col+1)
			if i == len(toks)-1 {
				end = scope.Pos(row+1, 0)
			}
			r.sink.OnScopeEnd(end)
		}
	}
	return nil
}

func (r *run) openBrace(row, idx, codeStart int) error {
	pos := scope.Pos(row, r.lexed(row)[idx].col)
	minRow := max(codeStart, row-r.scanner.lookbackRows)

	if fn, ok := r.functionHeader(r.cursor(row, idx, minRow)); ok {
		if err := r.sink.OnFunctionScopeStart(fn.name, fn.preamble, pos, fn.name, fn.args); err != nil {
			return eventError(pos, err)
		}
		return nil
	}
	if label, at, ok := r.namedCall(r.cursor(row, idx, row)); ok {
		r.sink.OnNamedScopeStart(label, at)
		return nil
	}
	if idx == 0 {
		pos.Column = 0
	}
	r.sink.OnScopeStart(pos)
	return nil
}

// cursor walks tokens backwards across rows, stopping above minRow.
type cursor struct {
	r      *run
	row    int
	idx    int
	minRow int
}

func (r *run) cursor(row, idx, minRow int) *cursor {
	return &cursor{r: r, row: row, idx: idx, minRow: minRow}
}

// prev moves to the previous token.
func (c *cursor) prev() (token, bool) {
	c.idx--
	for c.idx < 0 {
		c.row--
		if c.row < c.minRow {
			return token{}, false
		}
		c.idx = len(c.r.lexed(c.row)) - 1
	}
	return c.r.lexed(c.row)[c.idx], true
}

// position returns the current token's position, snapped to column 0 when
// the token is the first on its row.
func (c *cursor) position() scope.Position {
	if c.idx == 0 {
		return scope.Pos(c.row, 0)
	}
	return scope.Pos(c.row, c.r.lexed(c.row)[c.idx].col)
}

type funcHeader struct {
	name     string
	args     []string
	preamble scope.Position
}

// functionHeader matches `name <- function(args)` immediately before the
// brace at the cursor.
func (r *run) functionHeader(c *cursor) (funcHeader, bool) {
	t, ok := c.prev()
	if !ok || !t.is(")") {
		return funcHeader{}, false
	}
	var params []token
	depth := 0
	for {
		t, ok = c.prev()
		if !ok {
			return funcHeader{}, false
		}
		if t.is(")") {
			depth++
		} else if t.is("(") {
			if depth == 0 {
				break
			}
			depth--
		}
		params = append(params, t)
	}
	if t, ok = c.prev(); !ok || !(t.is("function") || t.is("\\")) {
		return funcHeader{}, false
	}
	if t, ok = c.prev(); !ok || !(t.is("<-") || t.is("<<-") || t.is("=")) {
		return funcHeader{}, false
	}
	if t, ok = c.prev(); !ok || t.typ != tokenIdent && t.typ != tokenString {
		return funcHeader{}, false
	}
	slices.Reverse(params)
	return funcHeader{
		name:     t.value,
		args:     argumentNames(params),
		preamble: c.position(),
	}, true
}

// argumentNames returns the name of each top-level formal argument.
func argumentNames(params []token) []string {
	args := []string{}
	depth := 0
	expectName := true
	for _, t := range params {
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
		case depth == 0 && t.is(","):
			expectName = true
		case depth == 0 && expectName && t.typ == tokenIdent:
			args = append(args, t.value)
			expectName = false
		default:
			if depth == 0 {
				expectName = false
			}
		}
	}
	return args
}

// namedCall matches `test_that("description", {` before the brace at the
// cursor and returns the description and the position of the call. The
// call must be on the brace's row so that an edit to the brace always
// invalidates the scope.
func (r *run) namedCall(c *cursor) (string, scope.Position, bool) {
	t, ok := c.prev()
	if !ok || !t.is(",") {
		return "", scope.Position{}, false
	}
	desc, ok := c.prev()
	if !ok || desc.typ != tokenString {
		return "", scope.Position{}, false
	}
	if t, ok = c.prev(); !ok || !t.is("(") {
		return "", scope.Position{}, false
	}
	if t, ok = c.prev(); !ok || t.typ != tokenIdent || !namedCallers[t.value] {
		return "", scope.Position{}, false
	}
	return desc.value, c.position(), true
}
