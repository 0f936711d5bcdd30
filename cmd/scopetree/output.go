package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/scopetree/internal/index"
	"github.com/dshills/scopetree/internal/scope"
)

// printer writes results in the selected format. Text output is produced by
// the text function passed to print.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case "text", "yaml", "json":
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (must be text, yaml or json)", format)
	}
}

func (p *printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(p.w)
	}
}

func writeOutline(w io.Writer, entries []scope.OutlineEntry, depth int) error {
	for _, e := range entries {
		end := "open"
		if e.End != nil {
			end = e.End.String()
		}
		if _, err := fmt.Fprintf(w, "%s%s [%s] %s-%s\n", strings.Repeat("  ", depth), e.Label, e.Kind, e.Start, end); err != nil {
			return err
		}
		if err := writeOutline(w, e.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func writeFunctions(w io.Writer, fns []scope.Function) error {
	for _, fn := range fns {
		if _, err := fmt.Fprintf(w, "%s(%s) %s\n", fn.Name, strings.Join(fn.Args, ", "), fn.Preamble); err != nil {
			return err
		}
	}
	return nil
}

func writeScopes(w io.Writer, scopes []scope.Scope) error {
	for i, s := range scopes {
		end := "open"
		if s.Closed {
			end = s.End.String()
		}
		if _, err := fmt.Fprintf(w, "%s%s [%s] %s-%s\n", strings.Repeat("  ", i), s.Label, s.Kind, s.Preamble, end); err != nil {
			return err
		}
	}
	return nil
}

func writeDefinitions(w io.Writer, defs []index.Definition) error {
	for _, d := range defs {
		fn := d.Function
		if _, err := fmt.Fprintf(w, "%s:%d:%d %s(%s)\n", d.Path, fn.Preamble.Row+1, fn.Preamble.Column+1, fn.Name, strings.Join(fn.Args, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// scopeView is the serialized form of a scope.
type scopeView struct {
	Label    string          `json:"label" yaml:"label"`
	Kind     string          `json:"kind" yaml:"kind"`
	Preamble scope.Position  `json:"preamble" yaml:"preamble"`
	Start    scope.Position  `json:"start" yaml:"start"`
	End      *scope.Position `json:"end,omitempty" yaml:"end,omitempty"`
}

func scopeViews(scopes []scope.Scope) []scopeView {
	views := make([]scopeView, len(scopes))
	for i, s := range scopes {
		views[i] = scopeView{Label: s.Label, Kind: s.Kind.String(), Preamble: s.Preamble, Start: s.Start}
		if s.Closed {
			end := s.End
			views[i].End = &end
		}
	}
	return views
}
