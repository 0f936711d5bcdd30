package document

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scopetree/internal/scanner"
	"github.com/dshills/scopetree/internal/scope"
)

const source = `f <- function(x, y) {
  g <- function() {
    x
  }
  y
}
h <- function(z) {
}`

func TestDocumentQueries(t *testing.T) {
	d := New(source)

	scopes, err := d.ActiveScopes(scope.Pos(2, 4))
	require.NoError(t, err)
	var labels []string
	for _, s := range scopes {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{scope.DefaultRootLabel, "f", "g"}, labels)

	fn, ok, err := d.FindFunctionDefinitionFromUsage(scope.Pos(4, 2), "g")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scope.Pos(1, 0), fn.Preamble)

	fns, err := d.FunctionsInScope(scope.Pos(7, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "h"}, scope.Functions(fns))

	sum, err := d.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Lines)
	assert.Equal(t, 2, sum.TopLevel)
	assert.Equal(t, 3, sum.ScopeCount)
	assert.Equal(t, []string{"f", "g", "h"}, scope.Functions(sum.Functions))
	assert.Equal(t, d.ID().String(), sum.ID)
}

func TestDocumentLazyBuild(t *testing.T) {
	d := New(source, WithLookahead(0))
	_, _, err := d.CurrentFunction(scope.Pos(1, 0))
	require.NoError(t, err)
	assert.Equal(t, scope.Pos(2, 0), d.ParsePosition())

	require.NoError(t, d.Build(100))
	assert.Equal(t, scope.Pos(8, 0), d.ParsePosition())
}

func TestDocumentInsertRollsBack(t *testing.T) {
	d := New(source)
	require.NoError(t, d.Build(100))

	c, err := d.Insert(scope.Pos(5, 0), "  k <- function() {\n  }\n")
	require.NoError(t, err)
	assert.Equal(t, ChangeInsert, c.Type)
	assert.Equal(t, scope.Pos(7, 0), c.NewRange.End)
	assert.Equal(t, RevisionID(1), c.Revision)
	assert.Equal(t, scope.Pos(4, 0), d.ParsePosition())

	fn, ok, err := d.CurrentFunction(scope.Pos(6, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", fn.Name)
	assert.Equal(t, New(d.Text()).String(), d.String())
}

func TestDocumentReplaceAndDelete(t *testing.T) {
	d := New("a <- 1\nb <- 2\nc <- 3")

	c, err := d.Replace(scope.Pos(0, 5), scope.Pos(1, 5), "10\nbb <- ")
	require.NoError(t, err)
	assert.Equal(t, ChangeReplace, c.Type)
	assert.Equal(t, "1\nb <- ", c.OldText)
	assert.Equal(t, "a <- 10\nbb <- 2\nc <- 3", d.Text())
	assert.Equal(t, Range{Start: scope.Pos(0, 5), End: scope.Pos(1, 6)}, c.NewRange)

	c, err = d.Delete(scope.Pos(1, 7), scope.Pos(2, 6))
	require.NoError(t, err)
	assert.Equal(t, ChangeDelete, c.Type)
	assert.Equal(t, "\nc <- 3", c.OldText)
	assert.Equal(t, "a <- 10\nbb <- 2", d.Text())
	assert.Equal(t, 2, d.LineCount())

	inv := c.Invert()
	assert.Equal(t, ChangeInsert, inv.Type)
	assert.Equal(t, c.Range, inv.NewRange)

	changes := d.Changes(0)
	require.Len(t, changes, 2)
	assert.Equal(t, RevisionID(2), d.Revision())
	assert.Len(t, d.Changes(1), 1)
}

func TestDocumentRejectsBadPositions(t *testing.T) {
	d := New("abc\ndef")

	_, err := d.Insert(scope.Pos(2, 0), "x")
	require.ErrorIs(t, err, ErrPositionOutOfRange)
	_, err = d.Insert(scope.Pos(0, 4), "x")
	require.ErrorIs(t, err, ErrPositionOutOfRange)
	_, err = d.Delete(scope.Pos(1, 0), scope.Pos(0, 1))
	require.ErrorIs(t, err, ErrRangeInvalid)
	_, err = d.Line(-1)
	require.ErrorIs(t, err, ErrPositionOutOfRange)

	assert.Equal(t, RevisionID(0), d.Revision())
	assert.Equal(t, "abc\ndef", d.Text())
}

func TestDocumentSetText(t *testing.T) {
	d := New(source)
	require.NoError(t, d.Build(100))

	_, changed := d.SetText(source)
	assert.False(t, changed)

	edited := strings.Replace(source, "h <- function(z) {", "h <- function(z, w) {", 1)
	c, changed := d.SetText(edited)
	require.True(t, changed)
	assert.Equal(t, scope.Pos(6, 0), c.Range.Start)
	assert.Equal(t, scope.Pos(5, 0), d.ParsePosition())

	fns, err := d.FunctionsInScope(scope.Pos(7, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"f", "h"}, scope.Functions(fns))
	assert.Equal(t, []string{"z", "w"}, fns[1].Args)

	c, changed = d.SetText(edited + "\n# Tail ----")
	require.True(t, changed)
	assert.Equal(t, ChangeInsert, c.Type)
	assert.Equal(t, scope.Pos(7, 1), c.Range.Start)

	c, changed = d.SetText("f <- 1")
	require.True(t, changed)
	assert.Equal(t, ChangeReplace, c.Type)
	assert.Equal(t, New("f <- 1").String(), d.String())
}

func TestDocumentHistoryIsBounded(t *testing.T) {
	d := New("", WithMaxChanges(2))
	for i := 0; i < 3; i++ {
		_, err := d.Insert(scope.Pos(0, 0), "x")
		require.NoError(t, err)
	}
	changes := d.Changes(0)
	require.Len(t, changes, 2)
	assert.Equal(t, RevisionID(2), changes[0].Revision)
	assert.Equal(t, RevisionID(3), changes[1].Revision)
}

func TestDocumentMarkdownPath(t *testing.T) {
	d := New("# Title\n```{r}\nf <- function() {\n}\n```", WithPath("notes.Rmd"))
	sum, err := d.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Chunks)
	require.Len(t, sum.Outline, 1)
	assert.Equal(t, "Title", sum.Outline[0].Label)
	assert.Equal(t, "notes.Rmd", sum.Path)
}

func TestDocumentRootLabel(t *testing.T) {
	d := New("{\n}", WithRootLabel(""), WithScanner(scanner.New()))
	scopes, err := d.ActiveScopes(scope.Pos(0, 1))
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

func TestEndOf(t *testing.T) {
	assert.Equal(t, scope.Pos(2, 5), endOf(scope.Pos(2, 3), "ab"))
	assert.Equal(t, scope.Pos(4, 3), endOf(scope.Pos(2, 3), "x\ny\nabc"))
	assert.Equal(t, scope.Pos(3, 0), endOf(scope.Pos(2, 3), "\n"))
}

func TestDocumentEditsKeepTreeConsistent(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		edit  func(d *Document) error
		want  string
		count int
	}{
		{
			name: "edit below section",
			text: "x <- 1\n# Setup ----\na <- 1\nb <- 2\n",
			edit: func(d *Document) error {
				_, err := d.Replace(scope.Pos(2, 0), scope.Pos(2, 6), "a <- 3")
				return err
			},
			count: 1,
		},
		{
			name: "delete brace on first row",
			text: "{\nx\n}\n",
			edit: func(d *Document) error {
				_, err := d.Delete(scope.Pos(0, 0), scope.Pos(0, 1))
				return err
			},
			count: 0,
		},
		{
			name: "rename section on first row",
			text: "# Old ----\nx\n",
			edit: func(d *Document) error {
				_, err := d.Replace(scope.Pos(0, 2), scope.Pos(0, 5), "New")
				return err
			},
			want:  "New",
			count: 1,
		},
		{
			name: "delete brace below named call",
			text: "test_that(\"a\", {\n  x\n})\n",
			edit: func(d *Document) error {
				_, err := d.Delete(scope.Pos(0, 15), scope.Pos(0, 16))
				return err
			},
			count: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.text)
			require.NoError(t, d.Build(100))
			require.NoError(t, tt.edit(d))
			require.NoError(t, d.Build(100))

			assert.Equal(t, New(d.Text()).String(), d.String())
			list, err := d.ScopeList()
			require.NoError(t, err)
			require.Len(t, list, tt.count)
			if tt.want != "" {
				assert.Equal(t, tt.want, list[0].Label)
			}
		})
	}
}

var rSnippets = []string{
	"f <- function(x) {",
	"}",
	"  if (x) {",
	"g = function(a, b) {",
	"# Section ----",
	"## Inner ====",
	`test_that("t", {`,
	"})",
	"x <- 1",
	"{",
	"",
	`  h <- \(y) { y }`,
	`s <- "{"`,
}

var markdownSnippets = append([]string{
	"# Heading",
	"## Subheading",
	"```{r}",
	"```{r setup, echo=FALSE}",
	"```",
	"```python",
	"Some prose.",
}, rSnippets...)

// TestIncrementalMatchesFullParse applies random line edits interleaved with
// partial queries and checks the tree against a fresh parse after each edit.
// Every fourth edit targets the first row.
func TestIncrementalMatchesFullParse(t *testing.T) {
	docs := []struct {
		name     string
		path     string
		text     string
		snippets []string
	}{
		{"r", "", source, rSnippets},
		{"markdown", "notes.Rmd", "# Intro\n```{r}\n" + source + "\n```\n## Next\ntext", markdownSnippets},
	}
	for _, doc := range docs {
		t.Run(doc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			d := New(doc.text, WithPath(doc.path), WithLookahead(2))
			fresh := func() string {
				return New(d.Text(), WithPath(doc.path)).String()
			}

			for step := 0; step < 400; step++ {
				n := d.LineCount()
				row := rng.Intn(n)
				if step%4 == 0 {
					row = 0
				}
				line, err := d.Line(row)
				require.NoError(t, err)
				snippet := doc.snippets[rng.Intn(len(doc.snippets))]

				switch rng.Intn(3) {
				case 0:
					_, err = d.Insert(scope.Pos(row, 0), snippet+"\n")
				case 1:
					if n == 1 {
						continue
					}
					if row < n-1 {
						_, err = d.Delete(scope.Pos(row, 0), scope.Pos(row+1, 0))
					} else {
						prev, _ := d.Line(row - 1)
						_, err = d.Delete(scope.Pos(row-1, len(prev)), scope.Pos(row, len(line)))
					}
				default:
					_, err = d.Replace(scope.Pos(row, 0), scope.Pos(row, len(line)), snippet)
				}
				require.NoError(t, err)

				if rng.Intn(2) == 0 {
					_, err = d.ActiveScopes(scope.Pos(rng.Intn(d.LineCount()), 0))
					require.NoError(t, err)
					continue
				}
				require.Equal(t, fresh(), d.String(), "step %d:\n%s", step, d.Text())
			}
		})
	}
}
