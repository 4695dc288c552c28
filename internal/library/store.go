// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library keeps every record the pipeline has seen, across
// projects, in a SQLite database with a full-text index over titles,
// authors, venues and abstracts.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litreview/internal/literature"
	"github.com/pdiddy/litreview/pkg/types"
)

// DefaultLimit caps Search results when the query sets none.
const DefaultLimit = 20

// Store manages the library database.
type Store struct {
	db *sql.DB
	// fts is false when the SQLite build lacks FTS5; searches then fall
	// back to LIKE matching.
	fts bool
}

// DefaultPath returns the library database location next to the default
// projects root.
func DefaultPath(projectsRoot string) string {
	return filepath.Join(filepath.Dir(projectsRoot), "library.db")
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			authors TEXT,
			year INTEGER,
			journal TEXT,
			abstract TEXT,
			url TEXT,
			cited INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			record_key TEXT NOT NULL REFERENCES records(key) ON DELETE CASCADE,
			project TEXT NOT NULL,
			keyword TEXT,
			selected INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (record_key, project)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_project ON memberships(project)`,
		`CREATE INDEX IF NOT EXISTS idx_records_year ON records(year)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='records_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE records_fts USING fts5(
		title, authors, journal, abstract, content=records, content_rowid=rowid)`); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return nil
		}
		return fmt.Errorf("creating FTS table: %w", err)
	}
	triggers := []string{
		`CREATE TRIGGER records_ai AFTER INSERT ON records BEGIN
			INSERT INTO records_fts(rowid, title, authors, journal, abstract)
			VALUES (new.rowid, new.title, new.authors, new.journal, new.abstract);
		END`,
		`CREATE TRIGGER records_ad AFTER DELETE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, title, authors, journal, abstract)
			VALUES ('delete', old.rowid, old.title, old.authors, old.journal, old.abstract);
		END`,
		`CREATE TRIGGER records_au AFTER UPDATE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, title, authors, journal, abstract)
			VALUES ('delete', old.rowid, old.title, old.authors, old.journal, old.abstract);
			INSERT INTO records_fts(rowid, title, authors, journal, abstract)
			VALUES (new.rowid, new.title, new.authors, new.journal, new.abstract);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

// UpsertSummary counts the outcome of one Upsert.
type UpsertSummary struct {
	Added   int
	Updated int
	Skipped int
}

// Total returns the number of records processed.
func (s UpsertSummary) Total() int {
	return s.Added + s.Updated + s.Skipped
}

// Upsert stores records under project. Records are identified by
// normalised title; an existing row only gains fields it lacks, using the
// same merge rule as deduplication. Untitled records are skipped.
func (s *Store) Upsert(ctx context.Context, project string, records []types.LiteratureRecord) (UpsertSummary, error) {
	var summary UpsertSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		key := literature.NormalizeTitle(r.Title)
		if key == "" {
			summary.Skipped++
			continue
		}

		existing, err := loadRecord(ctx, tx, key)
		switch {
		case err == sql.ErrNoRows:
			if err := insertRecord(ctx, tx, key, r); err != nil {
				return summary, err
			}
			summary.Added++
		case err != nil:
			return summary, err
		default:
			merged := existing
			literature.Merge(&merged, r)
			if err := updateRecord(ctx, tx, key, merged); err != nil {
				return summary, err
			}
			summary.Updated++
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO memberships (record_key, project, keyword, selected) VALUES (?, ?, ?, ?)
			 ON CONFLICT(record_key, project) DO UPDATE SET
				keyword=COALESCE(NULLIF(excluded.keyword, ''), memberships.keyword),
				selected=MAX(memberships.selected, excluded.selected)`,
			key, project, r.Keyword, boolInt(r.Selected),
		)
		if err != nil {
			return summary, fmt.Errorf("recording membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing: %w", err)
	}
	return summary, nil
}

func loadRecord(ctx context.Context, tx *sql.Tx, key string) (types.LiteratureRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT title, authors, year, journal, abstract, url, cited FROM records WHERE key = ?`, key)
	return scanRecord(row)
}

func insertRecord(ctx context.Context, tx *sql.Tx, key string, r types.LiteratureRecord) error {
	authors, _ := json.Marshal(r.Authors)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO records (key, title, authors, year, journal, abstract, url, cited)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, r.Title, string(authors), int(r.Year), r.Journal, r.Abstract, r.URL, r.Cited,
	)
	if err != nil {
		return fmt.Errorf("inserting %q: %w", r.Title, err)
	}
	return nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, key string, r types.LiteratureRecord) error {
	authors, _ := json.Marshal(r.Authors)
	_, err := tx.ExecContext(ctx,
		`UPDATE records SET authors=?, year=?, journal=?, abstract=?, url=?, cited=? WHERE key=?`,
		string(authors), int(r.Year), r.Journal, r.Abstract, r.URL, r.Cited, key,
	)
	if err != nil {
		return fmt.Errorf("updating %q: %w", r.Title, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (types.LiteratureRecord, error) {
	var (
		r                               types.LiteratureRecord
		authors, journal, abstract, url sql.NullString
		year, cited                     sql.NullInt64
	)
	if err := row.Scan(&r.Title, &authors, &year, &journal, &abstract, &url, &cited); err != nil {
		return r, err
	}
	if authors.Valid && authors.String != "" {
		var list []string
		if json.Unmarshal([]byte(authors.String), &list) == nil {
			r.Authors = list
		}
	}
	r.Year = types.Year(year.Int64)
	r.Journal = journal.String
	r.Abstract = abstract.String
	r.URL = url.String
	r.Cited = int(cited.Int64)
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
