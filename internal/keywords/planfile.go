// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package keywords

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview/pkg/types"
)

// PlanFile is the on-disk form of a keyword plan. The user can edit it
// and feed it back to the search stage instead of regenerating.
type PlanFile struct {
	Topic       string            `yaml:"topic"`
	TargetCount int               `yaml:"target_count"`
	Plan        types.KeywordPlan `yaml:"plan"`
	Summary     PlanSummary       `yaml:"summary"`
}

// PlanSummary stores plan statistics and a timestamp.
type PlanSummary struct {
	Keywords  int       `yaml:"keywords"`
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WritePlanFile saves plan to a YAML file at path.
func WritePlanFile(path string, req types.RequirementData, plan types.KeywordPlan) error {
	pf := PlanFile{
		Topic:       req.Topic,
		TargetCount: req.TargetCount,
		Plan:        plan,
		Summary: PlanSummary{
			Keywords:  len(plan),
			Total:     plan.Total(),
			Timestamp: time.Now(),
		},
	}
	data, err := yaml.Marshal(&pf)
	if err != nil {
		return fmt.Errorf("marshaling plan file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPlanFile loads a plan file and re-validates its entries, since the
// file may have been edited by hand.
func ReadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	for i, e := range pf.Plan {
		if err := types.Validate(e); err != nil {
			return nil, fmt.Errorf("plan file entry %d: %w", i+1, err)
		}
	}
	return &pf, nil
}
