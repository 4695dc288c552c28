// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview/pkg/types"
)

// Query selects library records. All fields are optional.
type Query struct {
	// Text is matched against title, authors, venue and abstract.
	Text string

	// Project restricts results to records seen in that project.
	Project string

	// MinYear drops records published before it.
	MinYear int

	// SelectedOnly keeps records the filter stage picked.
	SelectedOnly bool

	// Limit caps the result count. Zero uses DefaultLimit.
	Limit int
}

// Hit is a library record and the projects it appears in.
type Hit struct {
	types.LiteratureRecord `yaml:",inline"`
	Projects               []string `json:"projects" yaml:"projects"`
}

// Search returns records matching q. Text queries are ranked by
// relevance; otherwise records are ordered by year, newest first.
func (s *Store) Search(ctx context.Context, q Query) ([]Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		qb   strings.Builder
		args []any
	)
	text := strings.TrimSpace(q.Text)
	useFTS := text != "" && s.fts

	if useFTS {
		qb.WriteString(`SELECT r.key, r.title, r.authors, r.year, r.journal, r.abstract, r.url, r.cited
			FROM records_fts
			JOIN records r ON r.rowid = records_fts.rowid
			WHERE records_fts MATCH ?`)
		args = append(args, ftsQuery(text))
	} else {
		qb.WriteString(`SELECT r.key, r.title, r.authors, r.year, r.journal, r.abstract, r.url, r.cited
			FROM records r WHERE 1=1`)
		for _, term := range strings.Fields(text) {
			qb.WriteString(` AND (r.title LIKE ? OR r.abstract LIKE ? OR r.authors LIKE ? OR r.journal LIKE ?)`)
			like := "%" + term + "%"
			args = append(args, like, like, like, like)
		}
	}

	if q.MinYear > 0 {
		qb.WriteString(` AND r.year >= ?`)
		args = append(args, q.MinYear)
	}
	if q.Project != "" || q.SelectedOnly {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM memberships m WHERE m.record_key = r.key`)
		if q.Project != "" {
			qb.WriteString(` AND m.project = ?`)
			args = append(args, q.Project)
		}
		if q.SelectedOnly {
			qb.WriteString(` AND m.selected = 1`)
		}
		qb.WriteString(`)`)
	}

	if useFTS {
		qb.WriteString(` ORDER BY records_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY r.year DESC, r.title`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying library: %w", err)
	}
	defer rows.Close()

	var (
		hits []Hit
		keys []string
	)
	for rows.Next() {
		var key string
		r, err := scanRecord(keyedRow{rows, &key})
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		hits = append(hits, Hit{LiteratureRecord: r})
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, key := range keys {
		projects, keyword, selected, err := s.memberships(ctx, key, q.Project)
		if err != nil {
			return nil, err
		}
		hits[i].Projects = projects
		hits[i].Keyword = keyword
		hits[i].Selected = selected
	}
	return hits, nil
}

// keyedRow scans a leading key column before the record columns.
type keyedRow struct {
	rows *sql.Rows
	key  *string
}

func (k keyedRow) Scan(dest ...any) error {
	return k.rows.Scan(append([]any{k.key}, dest...)...)
}

// memberships lists the projects holding key. Keyword and selection come
// from project when it is set, or from any membership otherwise.
func (s *Store) memberships(ctx context.Context, key, project string) ([]string, string, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project, keyword, selected FROM memberships WHERE record_key = ? ORDER BY project`, key)
	if err != nil {
		return nil, "", false, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var (
		projects []string
		keyword  string
		selected bool
	)
	for rows.Next() {
		var (
			p   string
			kw  sql.NullString
			sel int
		)
		if err := rows.Scan(&p, &kw, &sel); err != nil {
			return nil, "", false, fmt.Errorf("scanning membership: %w", err)
		}
		projects = append(projects, p)
		if project == "" || p == project {
			if keyword == "" {
				keyword = kw.String
			}
			selected = selected || sel == 1
		}
	}
	return projects, keyword, selected, rows.Err()
}

// ftsQuery quotes each term so user input cannot break FTS5 syntax.
// Terms are ANDed.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// Stats summarises the library contents.
type Stats struct {
	Records  int            `json:"records" yaml:"records"`
	Selected int            `json:"selected" yaml:"selected"`
	Projects map[string]int `json:"projects" yaml:"projects"`
	FTS      bool           `json:"fts" yaml:"fts"`
}

// Stats counts records overall, selected records, and records per project.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Projects: map[string]int{}, FTS: s.fts}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&st.Records); err != nil {
		return st, fmt.Errorf("counting records: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT record_key) FROM memberships WHERE selected = 1`,
	).Scan(&st.Selected); err != nil {
		return st, fmt.Errorf("counting selected: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT project, count(*) FROM memberships GROUP BY project`)
	if err != nil {
		return st, fmt.Errorf("counting projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p string
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return st, err
		}
		st.Projects[p] = n
	}
	return st, rows.Err()
}

// exportLimit bounds an export to a size no real library reaches.
const exportLimit = 100000

// Export writes every hit for q to w as YAML or JSON.
func (s *Store) Export(ctx context.Context, q Query, format string, w io.Writer) error {
	q.Limit = exportLimit
	hits, err := s.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	if hits == nil {
		hits = []Hit{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(hits)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
