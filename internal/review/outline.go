package review

import (
	"regexp"
	"strings"

	"github.com/pdiddy/litreview/pkg/types"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	itemMarker     = regexp.MustCompile(`^\s*(?:[-*•]|\d+(?:\.\d+)*[.)、]?)\s+`)
)

// ParseOutline reads a review outline. Markdown headings become sections
// and the lines under a heading become its notes. Text without any
// headings is read as one level-2 section per non-empty line.
func ParseOutline(text string) types.Outline {
	var out types.Outline
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	hasHeadings := false
	for _, l := range lines {
		if headingPattern.MatchString(strings.TrimSpace(l)) {
			hasHeadings = true
			break
		}
	}

	if !hasHeadings {
		for _, l := range lines {
			title := strings.TrimSpace(itemMarker.ReplaceAllString(l, ""))
			if title != "" {
				out.Sections = append(out.Sections, types.OutlineSection{Level: 2, Title: title})
			}
		}
		return out
	}

	var notes []string
	flush := func() {
		if n := len(out.Sections); n > 0 {
			out.Sections[n-1].Notes = strings.TrimSpace(strings.Join(notes, "\n"))
		}
		notes = nil
	}
	for _, l := range lines {
		if m := headingPattern.FindStringSubmatch(strings.TrimSpace(l)); m != nil {
			flush()
			out.Sections = append(out.Sections, types.OutlineSection{Level: len(m[1]), Title: m[2]})
			continue
		}
		notes = append(notes, l)
	}
	flush()
	return out
}
