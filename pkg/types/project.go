// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider names an LLM API provider.
type Provider string

const (
	ProviderDeepSeek    Provider = "deepseek"
	ProviderGemini      Provider = "gemini"
	ProviderSiliconFlow Provider = "siliconflow"
	ProviderPoe         Provider = "poe"
)

// RequirementData describes what the user wants reviewed.
type RequirementData struct {
	// Topic is the free-text research topic.
	Topic string `json:"topic" yaml:"topic" validate:"required"`

	// TargetCount is the number of works the filter stage selects.
	TargetCount int `json:"targetCount" yaml:"target_count" validate:"gte=1"`

	// Outline is an optional review outline: Markdown headings or one
	// section per line.
	Outline string `json:"outline,omitempty" yaml:"outline,omitempty"`

	// Language is the review language, "zh" or "en".
	Language string `json:"language,omitempty" yaml:"language,omitempty" validate:"omitempty,oneof=zh en"`

	// MinYear restricts searches to works published in or after this year.
	MinYear int `json:"minYear,omitempty" yaml:"min_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
}

// VerificationFlags records which scrape targets the user has passed a
// human-verification challenge on.
type VerificationFlags struct {
	ScholarVerified bool `json:"scholarVerified" yaml:"scholar_verified"`
	MirrorVerified  bool `json:"mirrorVerified" yaml:"mirror_verified"`
	PreferMirror    bool `json:"preferMirror" yaml:"prefer_mirror"`
}

// ProjectConfig is the per-project configuration stored in project.json.
type ProjectConfig struct {
	// Provider selects the LLM provider for this project.
	Provider Provider `json:"provider,omitempty" yaml:"provider,omitempty"`

	// APIKeys maps provider name to API key.
	APIKeys map[Provider]string `json:"apiKeys,omitempty" yaml:"api_keys,omitempty"`

	Verification VerificationFlags `json:"verification" yaml:"verification"`
}

// Stage node payloads. Each pipeline stage writes exactly one node.

// KeywordsNode holds the keyword plan (stage 1).
type KeywordsNode struct {
	Plan        KeywordPlan `json:"plan" yaml:"plan"`
	GeneratedAt time.Time   `json:"generatedAt" yaml:"generated_at"`
}

// SearchNode holds the raw deduplicated search results (stage 2).
type SearchNode struct {
	Literature []LiteratureRecord `json:"literature" yaml:"literature"`
	// Searched lists the keywords already searched, so an interrupted
	// search stage resumes at the next keyword.
	Searched    []string  `json:"searched,omitempty" yaml:"searched,omitempty"`
	Done        bool      `json:"done" yaml:"done"`
	CompletedAt time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// CompletionNode holds the records after LLM completion (stage 3).
type CompletionNode struct {
	Literature  []LiteratureRecord `json:"literature" yaml:"literature"`
	Done        bool               `json:"done" yaml:"done"`
	CompletedAt time.Time          `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// FilterNode holds the selected subset (stage 4).
type FilterNode struct {
	Selected    []LiteratureRecord `json:"selected" yaml:"selected"`
	Mode        string             `json:"mode" yaml:"mode"`
	CompletedAt time.Time          `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// ReviewNode holds the generated review (stage 5).
type ReviewNode struct {
	Content     string    `json:"content" yaml:"content"`
	CompletedAt time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// Nodes groups the per-stage results.
type Nodes struct {
	Node1 *KeywordsNode   `json:"node1,omitempty" yaml:"node1,omitempty"`
	Node2 *SearchNode     `json:"node2,omitempty" yaml:"node2,omitempty"`
	Node3 *CompletionNode `json:"node3,omitempty" yaml:"node3,omitempty"`
	Node4 *FilterNode     `json:"node4,omitempty" yaml:"node4,omitempty"`
	Node5 *ReviewNode     `json:"node5,omitempty" yaml:"node5,omitempty"`
}

// SubprojectCategory names a subproject variant.
type SubprojectCategory string

const (
	CategoryLiteratureSearch SubprojectCategory = "literatureSearch"
	CategoryReviewWriting    SubprojectCategory = "reviewWriting"
)

// Subproject is an independently tracked instance of the literature-search
// or review-writing pipeline inside a project.
type Subproject struct {
	Name            string             `json:"name" yaml:"name"`
	Category        SubprojectCategory `json:"category" yaml:"category"`
	RequirementData RequirementData    `json:"requirementData" yaml:"requirement_data"`
	Nodes           `yaml:",inline"`
	CreatedAt       time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Subprojects indexes subproject names by category. The subproject bodies
// live in their own files.
type Subprojects struct {
	LiteratureSearch []string `json:"literatureSearch,omitempty" yaml:"literature_search,omitempty"`
	ReviewWriting    []string `json:"reviewWriting,omitempty" yaml:"review_writing,omitempty"`
}

// Project is the persisted state of one literature review.
type Project struct {
	Name            string          `json:"name" yaml:"name"`
	RequirementData RequirementData `json:"requirementData" yaml:"requirement_data"`
	Config          ProjectConfig   `json:"config" yaml:"config"`
	Nodes           `yaml:",inline"`
	Subprojects     Subprojects `json:"subprojects" yaml:"subprojects"`
	CreatedAt       time.Time   `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time   `json:"updatedAt" yaml:"updated_at"`
}
