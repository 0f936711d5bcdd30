package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dshills/scopetree/internal/document"
	"github.com/dshills/scopetree/internal/index"
	"github.com/dshills/scopetree/internal/scope"
)

const analysis = `# Load ----
load <- function(path) {
  read <- function(f) {
    f
  }
  read(path)
}
`

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(newApp())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    scope.Position
		wantErr bool
	}{
		{"3:4", scope.Pos(3, 4), false},
		{"7", scope.Pos(7, 0), false},
		{"a:1", scope.Position{}, true},
		{"1:-2", scope.Position{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutlineCmd(t *testing.T) {
	file := writeFile(t, t.TempDir(), "analysis.R", analysis)
	out, err := execute(t, "outline", file)
	require.NoError(t, err)
	assert.Equal(t, "Load [section] (0:0)-open\n  load [function] (1:0)-(7:0)\n    read [function] (2:0)-(5:0)\n", out)
}

func TestFunctionsCmd(t *testing.T) {
	file := writeFile(t, t.TempDir(), "analysis.R", analysis)

	out, err := execute(t, "functions", file)
	require.NoError(t, err)
	assert.Equal(t, "load(path) (1:0)\nread(f) (2:0)\n", out)

	out, err = execute(t, "--format", "json", "functions", file, "7:0")
	require.NoError(t, err)
	var fns []scope.Function
	require.NoError(t, json.Unmarshal([]byte(out), &fns))
	assert.Equal(t, []string{"load"}, scope.Functions(fns))
}

func TestScopesCmd(t *testing.T) {
	file := writeFile(t, t.TempDir(), "analysis.R", analysis)

	out, err := execute(t, "scopes", file, "3:4")
	require.NoError(t, err)
	assert.Equal(t, "(Top Level) [root] (0:0)-open\n  Load [section] (0:0)-open\n    load [brace] (1:0)-(7:0)\n      read [brace] (2:0)-(5:0)\n", out)

	out, err = execute(t, "-f", "yaml", "scopes", file, "6:0")
	require.NoError(t, err)
	var views []scopeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "load", views[2].Label)
	require.NotNil(t, views[2].End)
	assert.Equal(t, scope.Pos(7, 0), *views[2].End)
}

func TestDumpCmd(t *testing.T) {
	file := writeFile(t, t.TempDir(), "a.R", "{\n}")
	out, err := execute(t, "dump", file)
	require.NoError(t, err)
	assert.Equal(t, document.New("{\n}").String(), out)
}

func TestIndexAndFind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "analysis.R", analysis)
	writeFile(t, dir, "notes.txt", "read <- function() {\n}\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "report.Rmd", "```{r}\nread <- function(x, y) {\n}\n```\n")
	db := filepath.Join(t.TempDir(), "index.db")

	_, err := execute(t, "index", "--db", db, dir)
	require.NoError(t, err)

	store, err := index.Open(db)
	require.NoError(t, err)
	files, err := store.Files()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Len(t, files, 2, "only R sources are indexed")

	out, err := execute(t, "find", "--db", db, "read")
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(dir, "analysis.R")+":3:1 read(f)\n"+
			filepath.Join(dir, "sub", "report.Rmd")+":2:1 read(x, y)\n",
		out)

	_, err = execute(t, "find", "--db", db, "missing")
	assert.Error(t, err)
}

func TestRejectsBadFlags(t *testing.T) {
	file := writeFile(t, t.TempDir(), "a.R", "x <- 1")

	_, err := execute(t, "--format", "xml", "outline", file)
	assert.ErrorContains(t, err, "unknown output format")

	_, err = execute(t, "--mode", "latex", "outline", file)
	assert.Error(t, err)

	_, err = execute(t, "scopes", file, "x:y")
	assert.Error(t, err)
}
