package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/litreview/pkg/types"
)

// Top venues are matched on whole words, so "Computer Science Review" is
// not Science and "Nature-Inspired Computing" is not Nature. A leading
// "The" and any parenthetical are ignored for name matches.
var (
	// venueNames must be the entire journal name.
	venueNames = [][]string{
		{"science"},
		{"cell"},
		{"pnas"},
		{"nejm"},
	}

	// venueFamilies must start the journal name.
	venueFamilies = [][]string{
		{"nature"},
		{"science", "advances"},
		{"science", "translational", "medicine"},
		{"science", "robotics"},
		{"science", "immunology"},
		{"cell", "reports"},
		{"cell", "metabolism"},
		{"cell", "stem", "cell"},
		{"lancet"},
		{"jama"},
		{"new", "england", "journal", "of", "medicine"},
		{"proceedings", "of", "the", "national", "academy", "of", "sciences"},
		{"ieee", "transactions"},
		{"acm", "transactions"},
		{"communications", "of", "the", "acm"},
		{"journal", "of", "the", "acm"},
		{"physical", "review", "letters"},
		{"chemical", "reviews"},
		{"journal", "of", "the", "american", "chemical", "society"},
		{"annual", "review"},
	}

	// venueEvents may appear anywhere, as conference proceedings titles
	// wrap the event name.
	venueEvents = [][]string{
		{"neurips"},
		{"nips"},
		{"neural", "information", "processing", "systems"},
		{"icml"},
		{"iclr"},
		{"cvpr"},
	}
)

// Citation rate bands, in citations per year since publication.
const (
	highlyCitedRate = 50
	wellCitedRate   = 10

	// recentYears exempts new works from the citation bands.
	recentYears = 2
)

// Band names.
const (
	BandHighlyCited = "highly cited"
	BandWellCited   = "well cited"
	BandRecent      = "recent"
	BandLow         = "low citations"
)

// Quality is a heuristic assessment shown to the model alongside each
// record.
type Quality struct {
	TopVenue bool
	Band     string
	PerYear  float64
}

func (q Quality) String() string {
	s := fmt.Sprintf("%s (%.1f/yr)", q.Band, q.PerYear)
	if q.TopVenue {
		s = "top venue; " + s
	}
	return s
}

// QualityAssessment rates r by venue and citation rate as of now. A record
// without a year is rated on its raw citation count.
func QualityAssessment(r types.LiteratureRecord, now time.Time) Quality {
	q := Quality{TopVenue: isTopVenue(r.Journal)}

	age := 1
	if r.Year > 0 {
		if a := now.Year() - int(r.Year) + 1; a > 1 {
			age = a
		}
	}
	q.PerYear = float64(r.Cited) / float64(age)

	switch {
	case q.PerYear >= highlyCitedRate:
		q.Band = BandHighlyCited
	case q.PerYear >= wellCitedRate:
		q.Band = BandWellCited
	case r.Year > 0 && now.Year()-int(r.Year) <= recentYears:
		q.Band = BandRecent
	default:
		q.Band = BandLow
	}
	return q
}

func isTopVenue(journal string) bool {
	all := venueWords(journal)
	if len(all) == 0 {
		return false
	}
	head, _, _ := strings.Cut(journal, "(")
	name := venueWords(head)
	if len(name) > 0 && name[0] == "the" {
		name = name[1:]
	}

	for _, v := range venueNames {
		if slices.Equal(name, v) {
			return true
		}
	}
	for _, v := range venueFamilies {
		if len(name) >= len(v) && slices.Equal(name[:len(v)], v) {
			return true
		}
	}
	for _, v := range venueEvents {
		for i := 0; i+len(v) <= len(all); i++ {
			if slices.Equal(all[i:i+len(v)], v) {
				return true
			}
		}
	}
	return false
}

// venueWords splits a venue into lowercase words. Hyphenated compounds
// stay whole.
func venueWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
