package complete

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/litreview/pkg/types"
)

// ExtractMeta reads the Highwire (citation_*) and Dublin Core meta tags
// most publisher landing pages carry. Fields the page does not declare
// are left empty.
func ExtractMeta(html string) types.LiteratureRecord {
	var r types.LiteratureRecord
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return r
	}

	var authors types.Authors
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}

		switch strings.ToLower(name) {
		case "citation_title", "dc.title":
			if r.Title == "" {
				r.Title = content
			}
		case "citation_author", "dc.creator", "dc.contributor":
			authors = append(authors, content)
		case "citation_authors":
			authors = append(authors, types.ParseAuthors(content)...)
		case "citation_publication_date", "citation_date", "citation_year", "citation_online_date", "dc.date":
			if r.Year == 0 {
				r.Year = types.ParseYear(content)
			}
		case "citation_journal_title", "citation_conference_title", "citation_inbook_title", "dc.source":
			if r.Journal == "" {
				r.Journal = content
			}
		case "citation_abstract", "dc.description":
			if len(content) > len(r.Abstract) {
				r.Abstract = content
			}
		}
	})
	r.Authors = authors
	return r
}
