package project

import (
	"encoding/json"

	"github.com/pdiddy/litreview/pkg/types"
)

// legacyProject is the flat layout written before stage nodes existed.
type legacyProject struct {
	Topic       string                    `json:"topic"`
	TargetCount int                       `json:"targetCount"`
	Outline     string                    `json:"outline"`
	Language    string                    `json:"language"`
	Provider    types.Provider            `json:"provider"`
	APIKeys     map[types.Provider]string `json:"apiKeys"`
	Literature  []types.LiteratureRecord  `json:"literature"`
}

// decodeProject parses a project file in either layout.
func decodeProject(data []byte) (*types.Project, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	var p types.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if _, ok := fields["requirementData"]; ok || !isLegacy(fields) {
		return &p, nil
	}

	var old legacyProject
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}
	migrate(&p, old)
	return &p, nil
}

func isLegacy(fields map[string]json.RawMessage) bool {
	for _, k := range []string{"topic", "targetCount", "literature"} {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

// migrate moves legacy top-level fields into their current homes.
func migrate(p *types.Project, old legacyProject) {
	p.RequirementData = types.RequirementData{
		Topic:       old.Topic,
		TargetCount: old.TargetCount,
		Outline:     old.Outline,
		Language:    old.Language,
	}
	if p.Config.Provider == "" {
		p.Config.Provider = old.Provider
	}
	if len(p.Config.APIKeys) == 0 && len(old.APIKeys) > 0 {
		p.Config.APIKeys = old.APIKeys
	}
	if p.Node2 == nil && len(old.Literature) > 0 {
		p.Node2 = &types.SearchNode{
			Literature:  old.Literature,
			Done:        true,
			CompletedAt: p.UpdatedAt,
		}
	}
}
