// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview/pkg/types"
)

// citationPattern matches inline citations: [Key] or [Key1; Key2].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// CitationKey returns the FamilyYear key for r, e.g. "Vaswani2017". Only
// letters and digits of the first author's family name are kept; records
// without authors use "Anon".
func CitationKey(r types.LiteratureRecord) string {
	family := "Anon"
	if len(r.Authors) > 0 {
		if f := keyChars(parseAuthorName(r.Authors[0]).familyOrLiteral()); f != "" {
			family = f
		}
	}
	if r.Year > 0 {
		return family + strconv.Itoa(int(r.Year))
	}
	return family
}

func keyChars(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// References converts selected records to citable entries. Colliding keys
// get letter suffixes in order: Smith2020, Smith2020a, Smith2020b.
func References(records []types.LiteratureRecord) []types.ReferenceEntry {
	refs := make([]types.ReferenceEntry, len(records))
	used := make(map[string]int, len(records))
	for i, r := range records {
		key := CitationKey(r)
		if n := used[key]; n > 0 {
			used[key] = n + 1
			key += string(rune('a' + n - 1))
		} else {
			used[key] = 1
		}
		refs[i] = types.ReferenceEntry{
			CitationKey: key,
			Title:       r.Title,
			Authors:     r.Authors,
			Year:        int(r.Year),
			Venue:       r.Journal,
			URL:         r.URL,
		}
	}
	return refs
}

// ValidateCitations returns, sorted, the citation keys used in text that
// have no entry in refs.
func ValidateCitations(text string, refs []types.ReferenceEntry) []string {
	known := make(map[string]bool, len(refs))
	for _, r := range refs {
		known[r.CitationKey] = true
	}
	seen := make(map[string]bool)
	for _, key := range extractCitationKeys(text) {
		if !known[key] {
			seen[key] = true
		}
	}
	missing := make([]string, 0, len(seen))
	for key := range seen {
		missing = append(missing, key)
	}
	sort.Strings(missing)
	return missing
}

// extractCitationKeys finds all citation keys in text, including each key
// of a multi-citation.
func extractCitationKeys(text string) []string {
	var keys []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, p := range strings.Split(m[1], ";") {
			key := strings.TrimSpace(p)
			if key != "" && isCitationKey(key) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// isCitationKey reports whether s looks like a FamilyYear key rather than
// a bracketed number or other bracket content.
func isCitationKey(s string) bool {
	hasLetter, hasDigit := false, false
	for _, c := range s {
		switch {
		case unicode.IsLetter(c):
			hasLetter = true
		case unicode.IsDigit(c):
			hasDigit = true
		case c == '-', c == '_':
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}

// BibTeX renders refs as BibTeX entries.
func BibTeX(refs []types.ReferenceEntry) string {
	var b strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&b, "@article{%s,\n", r.CitationKey)
		fmt.Fprintf(&b, "  title = {%s},\n", r.Title)
		if len(r.Authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(r.Authors, " and "))
		}
		if r.Year > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", r.Year)
		}
		if r.Venue != "" {
			fmt.Fprintf(&b, "  journal = {%s},\n", r.Venue)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "  url = {%s},\n", r.URL)
		}
		fmt.Fprintf(&b, "}\n\n")
	}
	return b.String()
}

// CSLItem is a bibliographic entry in CSL-YAML form, readable by Pandoc
// and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

func (n CSLName) familyOrLiteral() string {
	if n.Family != "" {
		return n.Family
	}
	return n.Literal
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// WriteCSL writes refs as a CSL-YAML list to w.
func WriteCSL(refs []types.ReferenceEntry, w io.Writer) error {
	items := make([]CSLItem, len(refs))
	for i, r := range refs {
		item := CSLItem{
			ID:             r.CitationKey,
			Type:           "article-journal",
			Title:          r.Title,
			ContainerTitle: r.Venue,
			URL:            r.URL,
		}
		for _, a := range r.Authors {
			item.Author = append(item.Author, parseAuthorName(a))
		}
		if r.Year > 0 {
			item.Issued = &CSLDate{DateParts: [][]int{{r.Year}}}
		}
		items[i] = item
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// parseAuthorName splits a full name on its last space: everything before
// is given, the last token is family. Single-token names, including most
// CJK names, use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}

// FormatReferenceList renders refs as a numbered Markdown list.
func FormatReferenceList(refs []types.ReferenceEntry) string {
	var b strings.Builder
	for i, r := range refs {
		fmt.Fprintf(&b, "%d. [%s] ", i+1, r.CitationKey)
		if len(r.Authors) > 0 {
			fmt.Fprintf(&b, "%s. ", strings.Join(r.Authors, ", "))
		}
		b.WriteString(r.Title)
		if r.Venue != "" {
			fmt.Fprintf(&b, ". *%s*", r.Venue)
		}
		if r.Year > 0 {
			fmt.Fprintf(&b, ", %d", r.Year)
		}
		b.WriteString(".")
		if r.URL != "" {
			fmt.Fprintf(&b, " %s", r.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
