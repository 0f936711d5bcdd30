package document

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/logging"
	"github.com/dshills/scopetree/internal/scanner"
	"github.com/dshills/scopetree/internal/scope"
)

// lineSource adapts a line slice to scanner.Source.
type lineSource []string

func (l lineSource) LineCount() int      { return len(l) }
func (l lineSource) Line(row int) string { return l[row] }

// Document is a line buffer with an incrementally maintained scope tree.
//
// Edits roll the tree back from the edited position; queries rescan only as
// far as they need. All methods are safe for concurrent use.
type Document struct {
	mu sync.Mutex

	id         uuid.UUID
	path       string
	lines      []string
	revision   RevisionID
	history    *history
	maxChanges int

	manager   *scope.Manager
	rootLabel *string
	scanner   *scanner.Scanner
	lookahead int

	log commonlog.Logger
}

// New creates a document holding text.
func New(text string, opts ...Option) *Document {
	d := &Document{
		id:         uuid.New(),
		lines:      splitLines(text),
		lookahead:  DefaultLookahead,
		maxChanges: DefaultMaxChanges,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.GetLogger("document")
	}
	if d.scanner == nil {
		d.scanner = scanner.New(scanner.WithMode(scanner.ModeForPath(d.path)))
	}
	var managerOpts []scope.Option
	if d.rootLabel != nil {
		managerOpts = append(managerOpts, scope.WithRootLabel(*d.rootLabel))
	}
	d.manager = scope.NewManager(managerOpts...)
	d.history = newHistory(d.maxChanges)
	return d
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// ID returns the document's unique identifier.
func (d *Document) ID() uuid.UUID {
	return d.id
}

// Path returns the file path the document was opened with, if any.
func (d *Document) Path() string {
	return d.path
}

// Revision returns the current revision.
func (d *Document) Revision() RevisionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// Text returns the full document text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.lines, "\n")
}

// LineCount returns the number of lines. An empty document has one line.
func (d *Document) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

// Line returns the text of row without its line terminator.
func (d *Document) Line(row int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 0 || row >= len(d.lines) {
		return "", fmt.Errorf("%w: row %d", ErrPositionOutOfRange, row)
	}
	return d.lines[row], nil
}

// ParsePosition returns how far the scope tree has been built.
func (d *Document) ParsePosition() scope.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manager.ParsePosition()
}

func (d *Document) checkPosition(pos scope.Position) error {
	if pos.Row < 0 || pos.Row >= len(d.lines) || pos.Column < 0 || pos.Column > len(d.lines[pos.Row]) {
		return fmt.Errorf("%w: %s", ErrPositionOutOfRange, pos)
	}
	return nil
}

// textIn returns the text covered by r. r must be valid.
func (d *Document) textIn(r Range) string {
	if r.Start.Row == r.End.Row {
		return d.lines[r.Start.Row][r.Start.Column:r.End.Column]
	}
	var b strings.Builder
	b.WriteString(d.lines[r.Start.Row][r.Start.Column:])
	for row := r.Start.Row + 1; row < r.End.Row; row++ {
		b.WriteByte('\n')
		b.WriteString(d.lines[row])
	}
	b.WriteByte('\n')
	b.WriteString(d.lines[r.End.Row][:r.End.Column])
	return b.String()
}

// Insert inserts text at pos.
func (d *Document) Insert(pos scope.Position, text string) (Change, error) {
	return d.Replace(pos, pos, text)
}

// Delete removes the text between start and end.
func (d *Document) Delete(start, end scope.Position) (Change, error) {
	return d.Replace(start, end, "")
}

// Replace replaces the text between start and end with text and rolls the
// scope tree back from start.
func (d *Document) Replace(start, end scope.Position, text string) (Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPosition(start); err != nil {
		return Change{}, err
	}
	if err := d.checkPosition(end); err != nil {
		return Change{}, err
	}
	if end.Before(start) {
		return Change{}, fmt.Errorf("%w: %s before %s", ErrRangeInvalid, end, start)
	}

	r := Range{Start: start, End: end}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	old := d.textIn(r)

	joined := d.lines[start.Row][:start.Column] + text + d.lines[end.Row][end.Column:]
	replacement := strings.Split(joined, "\n")
	lines := make([]string, 0, len(d.lines)-(end.Row-start.Row)+len(replacement)-1)
	lines = append(lines, d.lines[:start.Row]...)
	lines = append(lines, replacement...)
	lines = append(lines, d.lines[end.Row+1:]...)
	d.lines = lines

	return d.commit(r, old, text, start), nil
}

// SetText replaces the whole document. The scope tree is rolled back from
// the first line that differs, so rewriting a file with a local change keeps
// everything above it. Returns false if text equals the current content.
func (d *Document) SetText(text string) (Change, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := splitLines(text)
	row := 0
	for row < len(d.lines) && row < len(next) && d.lines[row] == next[row] {
		row++
	}
	if row == len(d.lines) && row == len(next) {
		return Change{}, false
	}

	// Replace from the first differing row to the end. When one text is a
	// prefix of the other, start at the end of the last shared line.
	start := scope.Pos(row, 0)
	if row == len(d.lines) || row == len(next) {
		row--
		start = scope.Pos(row, len(d.lines[row]))
	}
	last := len(d.lines) - 1
	r := Range{Start: start, End: scope.Pos(last, len(d.lines[last]))}
	old := d.textIn(r)
	newText := strings.Join(next[row:], "\n")[start.Column:]
	d.lines = next

	return d.commit(r, old, newText, start), true
}

// commit records an applied edit and invalidates the scope tree.
func (d *Document) commit(r Range, old, text string, at scope.Position) Change {
	d.revision++
	c := newChange(r, old, text, d.revision)
	d.history.add(c)
	resume := d.manager.InvalidateFrom(at)
	d.log.Debugf("%s: revision %d, rescan from %s", c, d.revision, resume)
	return c
}

// Changes returns the retained changes after rev, oldest first.
func (d *Document) Changes(since RevisionID) []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.since(since)
}

// Build scans the document up to row plus the lookahead.
func (d *Document) Build(row int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.build(row)
}

func (d *Document) build(row int) error {
	if err := d.scanner.Scan(lineSource(d.lines), d.manager, row+d.lookahead); err != nil {
		return fmt.Errorf("scan %s: %w", d.name(), err)
	}
	return nil
}

// buildAll scans the whole document.
func (d *Document) buildAll() error {
	return d.build(len(d.lines))
}

func (d *Document) name() string {
	if d.path != "" {
		return d.path
	}
	return d.id.String()
}

// ActiveScopes returns the labeled scopes containing pos, outermost first.
func (d *Document) ActiveScopes(pos scope.Position) ([]scope.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.build(pos.Row); err != nil {
		return nil, err
	}
	return d.manager.ActiveScopes(pos), nil
}

// CurrentFunction returns the innermost function containing pos.
func (d *Document) CurrentFunction(pos scope.Position) (scope.Function, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.build(pos.Row); err != nil {
		return scope.Function{}, false, err
	}
	fn, ok := d.manager.CurrentFunction(pos)
	return fn, ok, nil
}

// FindFunctionDefinitionFromUsage resolves a call of name at pos.
func (d *Document) FindFunctionDefinitionFromUsage(pos scope.Position, name string) (scope.Function, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.build(pos.Row); err != nil {
		return scope.Function{}, false, err
	}
	fn, ok := d.manager.FindFunctionDefinitionFromUsage(pos, name)
	return fn, ok, nil
}

// FunctionsInScope returns the functions visible from pos.
func (d *Document) FunctionsInScope(pos scope.Position) ([]scope.Function, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.build(pos.Row); err != nil {
		return nil, err
	}
	return d.manager.FunctionsInScope(pos), nil
}

// Summary is a whole-document view of the scope tree.
type Summary struct {
	ID         string               `json:"id" yaml:"id"`
	Path       string               `json:"path,omitempty" yaml:"path,omitempty"`
	Revision   RevisionID           `json:"revision" yaml:"revision"`
	Lines      int                  `json:"lines" yaml:"lines"`
	Chunks     int                  `json:"chunks" yaml:"chunks"`
	TopLevel   int                  `json:"top_level" yaml:"top_level"`
	Functions  []scope.Function     `json:"functions" yaml:"functions"`
	Outline    []scope.OutlineEntry `json:"outline" yaml:"outline"`
	ScopeCount int                  `json:"scopes" yaml:"scopes"`
}

// Summarize builds the whole document and returns its summary.
func (d *Document) Summarize() (Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.buildAll(); err != nil {
		return Summary{}, err
	}
	fns := d.manager.AllFunctionScopes()
	if fns == nil {
		fns = []scope.Function{}
	}
	return Summary{
		ID:         d.id.String(),
		Path:       d.path,
		Revision:   d.revision,
		Lines:      len(d.lines),
		Chunks:     d.manager.ChunkCount(),
		TopLevel:   d.manager.TopLevelScopeCount(),
		Functions:  fns,
		Outline:    d.manager.Outline(),
		ScopeCount: d.manager.ScopeCount(),
	}, nil
}

// ScopeList returns the top-level scopes of the fully built document.
func (d *Document) ScopeList() ([]scope.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.buildAll(); err != nil {
		return nil, err
	}
	return d.manager.ScopeList(), nil
}

// Dump builds the whole document and writes the scope tree to w.
func (d *Document) Dump(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.buildAll(); err != nil {
		return err
	}
	return d.manager.Dump(w)
}

// String returns the Dump output.
func (d *Document) String() string {
	var b strings.Builder
	if err := d.Dump(&b); err != nil {
		d.log.Errorf("dump %s: %s", d.name(), err)
	}
	return b.String()
}
