// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package literature holds the predicates the pipeline uses to decide
// identity and completeness of literature records, plus deduplication.
package literature

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/litreview/pkg/types"
)

// Field names reported by MissingFields, in check order.
const (
	FieldAuthors  = "authors"
	FieldYear     = "year"
	FieldJournal  = "journal"
	FieldAbstract = "abstract"
)

// MinAbstractLength is the rune count below which an abstract is treated
// as a snippet rather than a full abstract.
const MinAbstractLength = 150

// NormalizeTitle returns the identity key for a title: lowercased, trimmed,
// with internal whitespace collapsed to single spaces.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Dedup keeps the first record for each normalised title. Later duplicates
// only fill fields the kept record lacks. Records without a title are
// dropped. It returns the kept records and the number removed.
func Dedup(records []types.LiteratureRecord) ([]types.LiteratureRecord, int) {
	seen := make(map[string]int, len(records))
	out := make([]types.LiteratureRecord, 0, len(records))
	removed := 0

	for _, r := range records {
		key := NormalizeTitle(r.Title)
		if key == "" {
			removed++
			continue
		}
		if idx, ok := seen[key]; ok {
			Merge(&out[idx], r)
			removed++
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out, removed
}

// Merge fills empty fields of dst from src. A year outside ValidYear counts
// as empty when src has a valid one. The abstract is replaced when src
// carries a more complete one; the citation count keeps the maximum.
func Merge(dst *types.LiteratureRecord, src types.LiteratureRecord) {
	if len(dst.Authors) == 0 && len(src.Authors) > 0 {
		dst.Authors = src.Authors
	}
	switch {
	case !ValidYear(dst.Year) && ValidYear(src.Year):
		dst.Year = src.Year
	case dst.Year == 0 && src.Year != 0:
		dst.Year = src.Year
	}
	if dst.Journal == "" && src.Journal != "" {
		dst.Journal = src.Journal
	}
	if MoreComplete(src.Abstract, dst.Abstract) {
		dst.Abstract = src.Abstract
	}
	if dst.URL == "" && src.URL != "" {
		dst.URL = src.URL
	}
	if src.Cited > dst.Cited {
		dst.Cited = src.Cited
	}
}

// truncationSuffixes mark an abstract cut off mid-sentence.
var truncationSuffixes = []string{"...", "…", "..", "⋯"}

// terminalPunctuation ends a finished sentence.
const terminalPunctuation = ".!?。！？"

// IsAbstractComplete reports whether s reads as a full abstract: at least
// MinAbstractLength runes, ending in terminal punctuation, and not ending in
// a truncation marker.
func IsAbstractComplete(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < MinAbstractLength {
		return false
	}
	for _, suffix := range truncationSuffixes {
		if strings.HasSuffix(s, suffix) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(terminalPunctuation, last)
}

// MoreComplete reports whether candidate should replace current as a
// record's abstract: a complete abstract beats an incomplete one, and
// between equally complete abstracts the longer wins.
func MoreComplete(candidate, current string) bool {
	candidate = strings.TrimSpace(candidate)
	current = strings.TrimSpace(current)
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	cc, ok := IsAbstractComplete(candidate), IsAbstractComplete(current)
	if cc != ok {
		return cc
	}
	return utf8.RuneCountInString(candidate) > utf8.RuneCountInString(current)
}

// ValidYear reports whether y lies strictly between 1900 and 2100.
func ValidYear(y types.Year) bool {
	return y > 1900 && y < 2100
}

// MissingFields lists the completeness fields r lacks.
func MissingFields(r types.LiteratureRecord) []string {
	var missing []string
	if len(r.Authors) == 0 {
		missing = append(missing, FieldAuthors)
	}
	if !ValidYear(r.Year) {
		missing = append(missing, FieldYear)
	}
	if strings.TrimSpace(r.Journal) == "" {
		missing = append(missing, FieldJournal)
	}
	if !IsAbstractComplete(r.Abstract) {
		missing = append(missing, FieldAbstract)
	}
	return missing
}

// IsComplete reports whether r has authors, a valid year, a journal and a
// complete abstract.
func IsComplete(r types.LiteratureRecord) bool {
	return len(MissingFields(r)) == 0
}

// ValidURL reports whether s is an absolute http(s) URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Contains reports whether set holds a record with the same normalised
// title and URL as r.
func Contains(set []types.LiteratureRecord, r types.LiteratureRecord) bool {
	key := NormalizeTitle(r.Title)
	for _, s := range set {
		if NormalizeTitle(s.Title) == key && s.URL == r.URL {
			return true
		}
	}
	return false
}
