// Package index stores document summaries in SQLite for cross-file lookup.
package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/scopetree/internal/document"
	"github.com/dshills/scopetree/internal/scope"
)

// ErrFileNotIndexed indicates a path with no stored summary.
var ErrFileNotIndexed = errors.New("file not indexed")

// Store persists document summaries in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared between calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		document_id TEXT,
		revision INTEGER,
		line_count INTEGER,
		chunk_count INTEGER,
		top_level INTEGER,
		scope_count INTEGER,
		outline TEXT,
		indexed_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS functions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		label TEXT,
		args TEXT,
		preamble_row INTEGER,
		preamble_col INTEGER,
		start_row INTEGER,
		start_col INTEGER,
		FOREIGN KEY(file_id) REFERENCES files(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS functions_name ON functions(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored summary for sum.Path.
func (s *Store) Save(sum document.Summary) error {
	if sum.Path == "" {
		return errors.New("summary has no path")
	}
	outline, err := json.Marshal(sum.Outline)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := saveSummary(tx, sum, string(outline)); err != nil {
		tx.Rollback()
		return fmt.Errorf("save %s: %w", sum.Path, err)
	}
	return tx.Commit()
}

func saveSummary(tx *sql.Tx, sum document.Summary, outline string) error {
	var fileID int64
	err := tx.QueryRow(`
	INSERT INTO files (
		path, document_id, revision, line_count, chunk_count, top_level,
		scope_count, outline, indexed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		document_id=excluded.document_id,
		revision=excluded.revision,
		line_count=excluded.line_count,
		chunk_count=excluded.chunk_count,
		top_level=excluded.top_level,
		scope_count=excluded.scope_count,
		outline=excluded.outline,
		indexed_at=excluded.indexed_at
	RETURNING id`,
		sum.Path, sum.ID, int64(sum.Revision), sum.Lines, sum.Chunks, sum.TopLevel,
		sum.ScopeCount, outline, time.Now().UTC(),
	).Scan(&fileID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM functions WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO functions (
		file_id, name, label, args, preamble_row, preamble_col, start_row, start_col
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, fn := range sum.Functions {
		args, err := json.Marshal(fn.Args)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(fileID, fn.Name, fn.Label, string(args),
			fn.Preamble.Row, fn.Preamble.Column, fn.Start.Row, fn.Start.Column); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the summary stored for path.
func (s *Store) Remove(path string) error {
	res, err := s.db.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotIndexed, path)
	}
	return nil
}

// Definition is a function found in an indexed file.
type Definition struct {
	Path     string         `json:"path" yaml:"path"`
	Function scope.Function `json:"function" yaml:"function"`
}

// FindFunction returns every indexed definition of name, ordered by path and
// position.
func (s *Store) FindFunction(name string) ([]Definition, error) {
	rows, err := s.db.Query(`
	SELECT f.path, fn.name, fn.label, fn.args, fn.preamble_row, fn.preamble_col,
		fn.start_row, fn.start_col
	FROM functions fn JOIN files f ON f.id = fn.file_id
	WHERE fn.name = ?
	ORDER BY f.path, fn.preamble_row, fn.preamble_col`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var (
			d    Definition
			args string
		)
		fn := &d.Function
		if err := rows.Scan(&d.Path, &fn.Name, &fn.Label, &args,
			&fn.Preamble.Row, &fn.Preamble.Column, &fn.Start.Row, &fn.Start.Column); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(args), &fn.Args); err != nil {
			return nil, fmt.Errorf("decode args of %s in %s: %w", fn.Name, d.Path, err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// File is the stored summary of one file.
type File struct {
	Path       string               `json:"path" yaml:"path"`
	DocumentID string               `json:"document_id" yaml:"document_id"`
	Revision   document.RevisionID  `json:"revision" yaml:"revision"`
	Lines      int                  `json:"lines" yaml:"lines"`
	Chunks     int                  `json:"chunks" yaml:"chunks"`
	TopLevel   int                  `json:"top_level" yaml:"top_level"`
	ScopeCount int                  `json:"scopes" yaml:"scopes"`
	Outline    []scope.OutlineEntry `json:"outline,omitempty" yaml:"outline,omitempty"`
	IndexedAt  time.Time            `json:"indexed_at" yaml:"indexed_at"`
}

const fileColumns = `path, document_id, revision, line_count, chunk_count, top_level,
	scope_count, outline, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (File, error) {
	var (
		f       File
		rev     int64
		outline string
	)
	if err := row.Scan(&f.Path, &f.DocumentID, &rev, &f.Lines, &f.Chunks, &f.TopLevel,
		&f.ScopeCount, &outline, &f.IndexedAt); err != nil {
		return File{}, err
	}
	f.Revision = document.RevisionID(rev)
	if err := json.Unmarshal([]byte(outline), &f.Outline); err != nil {
		return File{}, fmt.Errorf("decode outline of %s: %w", f.Path, err)
	}
	return f, nil
}

// File returns the stored summary for path.
func (s *Store) File(path string) (File, error) {
	f, err := scanFile(s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, fmt.Errorf("%w: %s", ErrFileNotIndexed, path)
	}
	return f, err
}

// Files returns every stored summary ordered by path.
func (s *Store) Files() ([]File, error) {
	rows, err := s.db.Query(`SELECT ` + fileColumns + ` FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
