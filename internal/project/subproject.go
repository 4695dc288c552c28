package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pdiddy/litreview/pkg/types"
)

func validCategory(c types.SubprojectCategory) error {
	switch c {
	case types.CategoryLiteratureSearch, types.CategoryReviewWriting:
		return nil
	default:
		return fmt.Errorf("unknown subproject category %q", c)
	}
}

func (s *Store) subPath(project string, category types.SubprojectCategory, name string) string {
	return filepath.Join(s.dir(project), subprojectsDir, string(category), name+".json")
}

// CreateSubproject adds a subproject to p and saves both. The parent's
// requirement data is used when req has no topic.
func (s *Store) CreateSubproject(p *types.Project, category types.SubprojectCategory, name string, req types.RequirementData) (*types.Subproject, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if req.Topic == "" {
		req = p.RequirementData
	}
	if err := types.Validate(req); err != nil {
		return nil, err
	}

	path := s.subPath(p.Name, category, name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("subproject %s/%q: %w", category, name, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating subproject directory: %w", err)
	}

	now := time.Now().UTC()
	sp := &types.Subproject{
		Name:            name,
		Category:        category,
		RequirementData: req,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := writeJSON(path, sp); err != nil {
		return nil, err
	}

	index := subprojectIndex(p, category)
	if !slices.Contains(*index, name) {
		*index = append(*index, name)
	}
	if err := s.Save(p); err != nil {
		return nil, err
	}
	return sp, nil
}

// LoadSubproject reads one subproject of the named project.
func (s *Store) LoadSubproject(project string, category types.SubprojectCategory, name string) (*types.Subproject, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.subPath(project, category, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("subproject %s/%q: %w", category, name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading subproject: %w", err)
	}
	var sp types.Subproject
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("parsing subproject %q: %w", name, err)
	}
	return &sp, nil
}

// SaveSubproject writes sp atomically under the named project.
func (s *Store) SaveSubproject(project string, sp *types.Subproject) error {
	if err := validCategory(sp.Category); err != nil {
		return err
	}
	if err := ValidateName(sp.Name); err != nil {
		return err
	}
	path := s.subPath(project, sp.Category, sp.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating subproject directory: %w", err)
	}
	sp.UpdatedAt = time.Now().UTC()
	return writeJSON(path, sp)
}

func subprojectIndex(p *types.Project, c types.SubprojectCategory) *[]string {
	if c == types.CategoryReviewWriting {
		return &p.Subprojects.ReviewWriting
	}
	return &p.Subprojects.LiteratureSearch
}
