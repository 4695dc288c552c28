// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OutlineSection is one heading of a review outline.
type OutlineSection struct {
	// Level is the Markdown heading depth (1 for "#", 2 for "##").
	Level int `json:"level" yaml:"level"`

	// Title is the section heading.
	Title string `json:"title" yaml:"title"`

	// Notes is any text the user wrote under the heading.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Outline is the parsed structure of RequirementData.Outline.
type Outline struct {
	Sections []OutlineSection `json:"sections" yaml:"sections"`
}

// ReferenceEntry is a selected record in citable form.
type ReferenceEntry struct {
	// CitationKey is the inline citation label (e.g. "Vaswani2017").
	CitationKey string `json:"citation_key" yaml:"citation_key"`

	Title   string   `json:"title" yaml:"title"`
	Authors []string `json:"authors" yaml:"authors"`
	Year    int      `json:"year" yaml:"year"`
	Venue   string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
}
