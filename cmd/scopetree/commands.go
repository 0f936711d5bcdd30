package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/scopetree/internal/document"
	"github.com/dshills/scopetree/internal/index"
	"github.com/dshills/scopetree/internal/scope"
	"github.com/dshills/scopetree/internal/watch"
)

// parsePosition parses a zero-based "ROW:COL" position.
func parsePosition(s string) (scope.Position, error) {
	row, col, ok := strings.Cut(s, ":")
	if !ok {
		col = "0"
	}
	r, err := strconv.Atoi(row)
	if err != nil || r < 0 {
		return scope.Position{}, fmt.Errorf("invalid position %q: want ROW:COL", s)
	}
	c, err := strconv.Atoi(col)
	if err != nil || c < 0 {
		return scope.Position{}, fmt.Errorf("invalid position %q: want ROW:COL", s)
	}
	return scope.Pos(r, c), nil
}

func (a *app) printer(cmd *cobra.Command) *printer {
	// setup has validated the format.
	p, _ := newPrinter(cmd.OutOrStdout(), a.format)
	return p
}

func newOutlineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outline FILE...",
		Short: "Print the labeled scopes of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sums []document.Summary
			for _, path := range args {
				d, err := a.openDocument(path)
				if err != nil {
					return err
				}
				sum, err := d.Summarize()
				if err != nil {
					return err
				}
				sums = append(sums, sum)
			}
			return a.printer(cmd).print(sums, func(w io.Writer) error {
				for _, sum := range sums {
					if len(sums) > 1 {
						if _, err := fmt.Fprintf(w, "%s:\n", sum.Path); err != nil {
							return err
						}
					}
					if err := writeOutline(w, sum.Outline, 0); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newFunctionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "functions FILE [ROW:COL]",
		Short: "List the functions defined in FILE, or those visible at a position",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDocument(args[0])
			if err != nil {
				return err
			}
			var fns []scope.Function
			if len(args) == 2 {
				pos, err := parsePosition(args[1])
				if err != nil {
					return err
				}
				if fns, err = d.FunctionsInScope(pos); err != nil {
					return err
				}
			} else {
				sum, err := d.Summarize()
				if err != nil {
					return err
				}
				fns = sum.Functions
			}
			return a.printer(cmd).print(fns, func(w io.Writer) error {
				return writeFunctions(w, fns)
			})
		},
	}
}

func newScopesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes FILE ROW:COL",
		Short: "Print the scopes enclosing a position, outermost first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			d, err := a.openDocument(args[0])
			if err != nil {
				return err
			}
			scopes, err := d.ActiveScopes(pos)
			if err != nil {
				return err
			}
			return a.printer(cmd).print(scopeViews(scopes), func(w io.Writer) error {
				return writeScopes(w, scopes)
			})
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the whole scope tree of FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDocument(args[0])
			if err != nil {
				return err
			}
			return d.Dump(cmd.OutOrStdout())
		},
	}
}

func (a *app) openIndex(path string) (*index.Store, error) {
	if path == "" {
		path = a.cfg.Index.Path
	}
	return index.Open(path)
}

// sourceFiles expands directories in paths to the R files beneath them.
func sourceFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if path == p || hasSourceExt(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func hasSourceExt(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range watch.DefaultExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func newIndexCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "index PATH...",
		Short: "Store the functions and outline of files in the symbol index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := sourceFiles(args)
			if err != nil {
				return err
			}
			store, err := a.openIndex(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range files {
				d, err := a.openDocument(path)
				if err != nil {
					return err
				}
				sum, err := d.Summarize()
				if err != nil {
					return err
				}
				if err := store.Save(sum); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "indexed %s: %d functions\n", path, len(sum.Functions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Index database (default from configuration)")
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "find NAME",
		Short: "Find indexed definitions of a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openIndex(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			defs, err := store.FindFunction(args[0])
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				return fmt.Errorf("no definition of %s", args[0])
			}
			return a.printer(cmd).print(defs, func(w io.Writer) error {
				return writeDefinitions(w, defs)
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Index database (default from configuration)")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		dbPath  string
		noIndex bool
	)
	cmd := &cobra.Command{
		Use:   "watch PATH...",
		Short: "Follow files and keep their outlines and index entries current",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var store *index.Store
			if !noIndex {
				var err error
				if store, err = a.openIndex(dbPath); err != nil {
					return err
				}
				defer store.Close()
			}
			return a.watch(cmd.Context(), cmd.OutOrStdout(), args, store)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Index database (default from configuration)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Do not update the symbol index")
	return cmd
}

// watch follows paths until ctx is done, reporting every change to out and
// saving summaries to store when it is not nil.
func (a *app) watch(ctx context.Context, out io.Writer, paths []string, store *index.Store) error {
	w, err := watch.NewFSNotifyWatcher(watch.WithBufferSize(a.cfg.Watch.BufferSize))
	if err != nil {
		return err
	}
	defer w.Close()

	tracker := watch.NewTracker(a.newDocument,
		watch.WithQuietPeriod(a.cfg.Watch.Debounce),
		watch.WithMaxWait(a.cfg.Watch.MaxWait),
	)
	files, err := sourceFiles(paths)
	if err != nil {
		return err
	}
	for _, path := range files {
		if _, err := tracker.Add(path); err != nil {
			return err
		}
	}
	for _, path := range paths {
		if err := w.Watch(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	handle := func(u watch.Update) {
		if err := a.report(out, u, store); err != nil {
			fmt.Fprintf(out, "%s: %v\n", u.Path, err)
		}
	}
	for _, path := range files {
		abs, _ := filepath.Abs(path)
		if d, ok := tracker.Document(abs); ok {
			handle(watch.Update{Path: abs, Document: d, Opened: true})
		}
	}

	err = tracker.Run(ctx, w, handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) report(out io.Writer, u watch.Update, store *index.Store) error {
	if u.Removed {
		fmt.Fprintf(out, "%s removed\n", u.Path)
		if store == nil {
			return nil
		}
		if err := store.Remove(u.Path); err != nil && !errors.Is(err, index.ErrFileNotIndexed) {
			return err
		}
		return nil
	}

	sum, err := u.Document.Summarize()
	if err != nil {
		return err
	}
	from := "opened"
	if !u.Opened {
		from = "changed from " + u.Change.Range.Start.String()
	}
	fmt.Fprintf(out, "%s %s: %d functions, %d scopes\n", u.Path, from, len(sum.Functions), sum.ScopeCount)
	if store != nil {
		return store.Save(sum)
	}
	return nil
}
