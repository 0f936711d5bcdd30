package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/scopetree/internal/config"
	"github.com/dshills/scopetree/internal/document"
	"github.com/dshills/scopetree/internal/logging"
	"github.com/dshills/scopetree/internal/scanner"
)

// app holds the flags and configuration shared by all commands.
type app struct {
	cfgPath  string
	logLevel string
	mode     string
	format   string

	cfg *config.Config
}

func newApp() *app {
	return &app{format: "text"}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "scopetree",
		Short:         "Scope outlines and function lookup for R and R Markdown files",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "Path to a TOML or YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.mode, "mode", "", "Force the grammar (r, markdown)")
	flags.StringVarP(&a.format, "format", "f", "text", "Output format (text, yaml, json)")

	root.AddCommand(
		newOutlineCmd(a),
		newFunctionsCmd(a),
		newScopesCmd(a),
		newDumpCmd(a),
		newIndexCmd(a),
		newFindCmd(a),
		newWatchCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and configures
// logging.
func (a *app) setup() error {
	if _, err := newPrinter(nil, a.format); err != nil {
		return err
	}
	cfg, err := config.Load(nil, a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.mode != "" {
		cfg.Scanner.Mode = a.mode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	logging.Configure(cfg.LoggingConfig())
	return nil
}

// newDocument creates a document for text read from path.
func (a *app) newDocument(path, text string) *document.Document {
	return document.New(text,
		document.WithPath(path),
		document.WithScanner(scanner.New(a.cfg.ScannerOptions(path)...)),
		document.WithLookahead(a.cfg.Scanner.Lookahead),
		document.WithRootLabel(a.cfg.Scanner.RootLabel),
	)
}

// openDocument reads path into a document.
func (a *app) openDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.newDocument(path, string(data)), nil
}
