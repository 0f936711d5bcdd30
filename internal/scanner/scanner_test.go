package scanner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scopetree/internal/scope"
)

// lines is an in-memory Source.
type lines []string

func (l lines) LineCount() int      { return len(l) }
func (l lines) Line(row int) string { return l[row] }

func split(text string) lines {
	return lines(strings.Split(text, "\n"))
}

// recorder is a Sink that records events as strings.
type recorder struct {
	events   []string
	parsePos scope.Position
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnSectionStart(label string, pos scope.Position, attrs scope.SectionAttrs) {
	r.add("section %s %s", label, pos)
}

func (r *recorder) OnMarkdownHead(label string, startPos, endPos scope.Position, depth int) error {
	r.add("heading%d %s %s-%s", depth, label, startPos, endPos)
	return nil
}

func (r *recorder) OnChunkStart(chunkLabel, label string, headerPos, bodyPos scope.Position) error {
	r.add("chunk %q %s %s", label, headerPos, bodyPos)
	return nil
}

func (r *recorder) OnChunkEnd(pos scope.Position) bool {
	r.add("chunk-end %s", pos)
	return true
}

func (r *recorder) OnFunctionScopeStart(label string, headerPos, bodyPos scope.Position, name string, args []string) error {
	r.add("function %s(%s) %s %s", name, strings.Join(args, ","), headerPos, bodyPos)
	return nil
}

func (r *recorder) OnNamedScopeStart(label string, pos scope.Position) {
	r.add("named %q %s", label, pos)
}

func (r *recorder) OnScopeStart(pos scope.Position) {
	r.add("open %s", pos)
}

func (r *recorder) OnScopeEnd(pos scope.Position) bool {
	r.add("close %s", pos)
	return true
}

func (r *recorder) ParsePosition() scope.Position     { return r.parsePos }
func (r *recorder) SetParsePosition(pos scope.Position) { r.parsePos = pos }

const rSource = `f <- function(x, y) {
  g <- function() {
    x
  }
  y
}`

const rmdSource = "---\n" +
	"title: \"x\"\n" +
	"# not a heading\n" +
	"---\n" +
	"# Intro\n" +
	"```{r setup}\n" +
	"f <- function() {\n" +
	"}\n" +
	"```\n" +
	"## Details\n" +
	"```python\n" +
	"# comment\n" +
	"```\n" +
	"```{python}\n" +
	"x = {1: 2}\n" +
	"```\n" +
	"```{r}\n" +
	"```"

func TestLexLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"f <- function(x, y = 2) {", []string{"f", "<-", "function", "(", "x", ",", "y", "=", "2", ")", "{"}},
		{`x <- "a { b" # } comment`, []string{"x", "<-", "a { b"}},
		{`s <- 'it\'s' }`, []string{"s", "<-", `it\'s`, "}"}},
		{"a %in% b |> f()", []string{"a", "%in%", "b", "|>", "f", "(", ")"}},
		{"`my fn` <<- \\(x) x", []string{"my fn", "<<-", "\\", "(", "x", ")", "x"}},
		{`"unterminated {`, []string{"unterminated {"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var got []string
			for _, tok := range lexLine(tt.line) {
				got = append(got, tok.value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLexLineStringsAreNotPunctuation(t *testing.T) {
	toks := lexLine(`x <- "{"`)
	require.Len(t, toks, 3)
	assert.Equal(t, tokenString, toks[2].typ)
	assert.False(t, toks[2].is("{"))
	assert.Equal(t, 5, toks[2].col)
}

func TestArgumentNames(t *testing.T) {
	toks := lexLine("a = function() { 1 }, b, ..., c = list(d, e)")
	assert.Equal(t, []string{"a", "b", "...", "c"}, argumentNames(toks))
	assert.Equal(t, []string{}, argumentNames(nil))
}

func TestParseChunkHeader(t *testing.T) {
	tests := []struct {
		line   string
		ok     bool
		engine string
		label  string
	}{
		{"```{r setup}", true, "r", "setup"},
		{"```{r setup, echo=FALSE}", true, "r", "setup"},
		{"```{r, echo=FALSE}", true, "r", ""},
		{"```{r echo=FALSE, label=\"plot\"}", true, "r", "plot"},
		{"```{python}", true, "python", ""},
		{"```python", false, "", ""},
		{"```", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			h, ok := parseChunkHeader(tt.line)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.engine, h.engine)
			assert.Equal(t, tt.label, h.label)
		})
	}
	assert.Equal(t, "Chunk 2", chunkHeader{}.displayLabel(2))
	assert.Equal(t, "Chunk 1: setup", chunkHeader{label: "setup"}.displayLabel(1))
}

func TestParseSection(t *testing.T) {
	label, depth, ok := parseSection("## Load data ----")
	require.True(t, ok)
	assert.Equal(t, "Load data", label)
	assert.Equal(t, 2, depth)

	_, _, ok = parseSection("# ----")
	assert.False(t, ok)
	_, _, ok = parseSection("# just a comment")
	assert.False(t, ok)
	label, _, ok = parseSection("  # Model ====")
	require.True(t, ok)
	assert.Equal(t, "Model", label)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("Markdown")
	require.NoError(t, err)
	assert.Equal(t, ModeMarkdown, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeR, mode)

	_, err = ParseMode("latex")
	require.ErrorIs(t, err, ErrUnknownMode)

	assert.Equal(t, ModeMarkdown, ModeForPath("report.Rmd"))
	assert.Equal(t, ModeMarkdown, ModeForPath("slides.qmd"))
	assert.Equal(t, ModeR, ModeForPath("analysis.R"))
	assert.Equal(t, "markdown", ModeMarkdown.String())
}

func TestScanRFunctions(t *testing.T) {
	m := scope.NewManager()
	require.NoError(t, New().Scan(split(rSource), m, 100))

	fns := m.AllFunctionScopes()
	require.Len(t, fns, 2)
	assert.Equal(t, "f", fns[0].Name)
	assert.Equal(t, []string{"x", "y"}, fns[0].Args)
	assert.Equal(t, scope.Pos(0, 0), fns[0].Preamble)
	assert.Equal(t, scope.Pos(0, 20), fns[0].Start)
	assert.Equal(t, "g", fns[1].Name)
	assert.Equal(t, []string{}, fns[1].Args)
	assert.Equal(t, scope.Pos(1, 0), fns[1].Preamble)
	assert.Equal(t, scope.Pos(1, 18), fns[1].Start)

	fn, ok := m.CurrentFunction(scope.Pos(2, 4))
	require.True(t, ok)
	assert.Equal(t, "g", fn.Name)

	_, ok = m.FindFunctionDefinitionFromUsage(scope.Pos(4, 2), "g")
	assert.True(t, ok)
	_, ok = m.FindFunctionDefinitionFromUsage(scope.Pos(7, 0), "g")
	assert.False(t, ok, "g is local to f")

	assert.Equal(t, scope.Pos(6, 0), m.ParsePosition())
	assert.Equal(t, scope.Pos(6, 0), m.ScopeList()[0].End)
}

func TestScanEvents(t *testing.T) {
	src := split(`test_that("adds", {
  if (x) {
  }
})
# Model ----
h <- function(a,
              b) {
}`)
	rec := &recorder{}
	require.NoError(t, New().Scan(src, rec, 100))
	assert.Equal(t, []string{
		`named "adds" (0:0)`,
		"open (1:9)",
		"close (3:0)",
		"close (3:1)",
		"section Model (4:0)",
		"function h(a,b) (5:0) (6:17)",
		"close (8:0)",
	}, rec.events)
	assert.Equal(t, scope.Pos(8, 0), rec.parsePos)
}

func TestScanLookbackIsBounded(t *testing.T) {
	src := split("h <- function(a,\n  b) {\n}")
	rec := &recorder{}
	require.NoError(t, New(WithLookbackRows(0)).Scan(src, rec, 100))
	assert.Equal(t, []string{"open (1:5)", "close (3:0)"}, rec.events)
}

func TestScanSkipsDeliveredBoundaries(t *testing.T) {
	rec := &recorder{parsePos: scope.Pos(3, 0)}
	require.NoError(t, New().Scan(split(rSource), rec, 100))
	assert.Equal(t, []string{"close (4:0)", "close (6:0)"}, rec.events)
}

func TestScanStopsAtMaxRow(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, New().Scan(split(rSource), rec, 1))
	assert.Equal(t, scope.Pos(2, 0), rec.parsePos)
	assert.Len(t, rec.events, 2)

	require.NoError(t, New().Scan(split(rSource), rec, 1))
	assert.Len(t, rec.events, 2, "nothing left below max row")
}

func TestScanMarkdown(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, New(WithMode(ModeMarkdown)).Scan(split(rmdSource), rec, 100))
	assert.Equal(t, []string{
		"heading1 Intro (4:0)-(4:7)",
		`chunk "Chunk 1: setup" (5:0) (6:0)`,
		"function f() (6:0) (6:16)",
		"close (8:0)",
		"chunk-end (9:0)",
		"heading2 Details (9:0)-(9:10)",
		`chunk "Chunk 2" (13:0) (14:0)`,
		"chunk-end (16:0)",
		`chunk "Chunk 3" (16:0) (17:0)`,
		"chunk-end (18:0)",
	}, rec.events)
}

func TestScanMarkdownOutline(t *testing.T) {
	m := scope.NewManager()
	require.NoError(t, New(WithMode(ModeMarkdown)).Scan(split(rmdSource), m, 100))

	assert.Equal(t, 3, m.ChunkCount())
	outline := m.Outline()
	require.Len(t, outline, 1)
	intro := outline[0]
	assert.Equal(t, "Intro", intro.Label)
	require.Len(t, intro.Children, 2)
	assert.Equal(t, "Chunk 1: setup", intro.Children[0].Label)
	assert.Equal(t, "f", intro.Children[0].Children[0].Label)
	details := intro.Children[1]
	assert.Equal(t, "Details", details.Label)
	require.Len(t, details.Children, 2)
	assert.Equal(t, "Chunk 2", details.Children[0].Label)
	assert.Equal(t, "Chunk 3", details.Children[1].Label)
}

// TestResumeMatchesFullParse rolls a fully built tree back to every row and
// rescans; the result must equal the full parse.
func TestResumeMatchesFullParse(t *testing.T) {
	docs := []struct {
		name string
		mode Mode
		text string
	}{
		{"r", ModeR, rSource},
		{"markdown", ModeMarkdown, rmdSource},
	}
	for _, doc := range docs {
		t.Run(doc.name, func(t *testing.T) {
			src := split(doc.text)
			s := New(WithMode(doc.mode))
			full := scope.NewManager()
			require.NoError(t, s.Scan(src, full, len(src)))
			want := full.String()

			for row := 0; row <= len(src); row++ {
				m := scope.NewManager()
				require.NoError(t, s.Scan(src, m, len(src)))
				m.InvalidateFrom(scope.Pos(row, 0))
				require.NoError(t, s.Scan(src, m, len(src)))
				assert.Equal(t, want, m.String(), "rolled back to row %d", row)
				assert.Equal(t, full.ParsePosition(), m.ParsePosition())
			}
		})
	}
}
