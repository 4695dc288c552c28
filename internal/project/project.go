// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package project persists projects as JSON files under a root directory:
//
//	<root>/<name>/project.json
//	<root>/<name>/subprojects/<category>/<subproject>.json
//
// Files written by earlier versions, which kept topic, targetCount and
// literature at the top level, are migrated on load.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/litreview/pkg/types"
)

const (
	projectFile    = "project.json"
	subprojectsDir = "subprojects"
)

var (
	// ErrExists is returned when creating a project or subproject whose
	// name is taken.
	ErrExists = errors.New("already exists")

	// ErrNotFound is returned when a project or subproject does not exist.
	ErrNotFound = errors.New("not found")
)

// Store reads and writes projects under Root.
type Store struct {
	Root string
}

// NewStore returns a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// DefaultRoot returns $XDG_DATA_HOME/litreview/projects, falling back to
// ~/.local/share and then the user config directory.
func DefaultRoot() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "litreview", "projects")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "litreview", "projects")
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		return filepath.Join(cfg, "litreview", "projects")
	}
	return filepath.Join(".", "projects")
}

// ValidateName rejects names that cannot be used as a single directory or
// file name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("name %q contains a path separator", name)
	}
	return nil
}

func (s *Store) dir(name string) string {
	return filepath.Join(s.Root, name)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir(name), projectFile)
}

// Create makes a new project. It fails with ErrExists if the name is taken.
func (s *Store) Create(name string, req types.RequirementData) (*types.Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := types.Validate(req); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating projects root: %w", err)
	}
	if err := os.Mkdir(s.dir(name), 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("project %q: %w", name, ErrExists)
		}
		return nil, fmt.Errorf("creating project directory: %w", err)
	}

	now := time.Now().UTC()
	p := &types.Project{
		Name:            name,
		RequirementData: req,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := writeJSON(s.path(name), p); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a project, migrating the legacy flat layout if needed.
func (s *Store) Load(name string) (*types.Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading project: %w", err)
	}
	p, err := decodeProject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing project %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Save writes p atomically and stamps UpdatedAt.
func (s *Store) Save(p *types.Project) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir(p.Name), 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()
	return writeJSON(s.path(p.Name), p)
}

// Summary is one line of a project listing.
type Summary struct {
	Name      string
	Topic     string
	Stage     string
	Records   int
	UpdatedAt time.Time
}

// List returns every project under Root, most recently updated first.
// Directories without a readable project file are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading projects root: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, Summary{
			Name:      p.Name,
			Topic:     p.RequirementData.Topic,
			Stage:     LastStage(p.Nodes),
			Records:   recordCount(p.Nodes),
			UpdatedAt: p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete removes a project and everything under its directory.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("project %q: %w", name, ErrNotFound)
		}
		return err
	}
	return os.RemoveAll(s.dir(name))
}

// LastStage names the furthest stage with stored results, or "new".
func LastStage(n types.Nodes) string {
	switch {
	case n.Node5 != nil:
		return "review"
	case n.Node4 != nil:
		return "filter"
	case n.Node3 != nil:
		return "complete"
	case n.Node2 != nil:
		return "search"
	case n.Node1 != nil:
		return "keywords"
	default:
		return "new"
	}
}

func recordCount(n types.Nodes) int {
	switch {
	case n.Node3 != nil:
		return len(n.Node3.Literature)
	case n.Node2 != nil:
		return len(n.Node2.Literature)
	default:
		return 0
	}
}

// writeJSON writes v to path through a temp file and rename, so readers
// never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
