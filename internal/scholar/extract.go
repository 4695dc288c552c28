// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scholar

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/litreview/pkg/types"
)

// PageKind classifies a loaded results page.
type PageKind int

const (
	// PageLoading has no recognisable content yet.
	PageLoading PageKind = iota
	// PageResults holds at least one result block.
	PageResults
	// PageEmpty is a finished page that matched nothing.
	PageEmpty
	// PageCaptcha is a bot check.
	PageCaptcha
)

func (k PageKind) String() string {
	switch k {
	case PageResults:
		return "results"
	case PageEmpty:
		return "empty"
	case PageCaptcha:
		return "captcha"
	default:
		return "loading"
	}
}

// captchaSelector matches the bot-check widgets Scholar and its mirrors
// serve in place of results.
const captchaSelector = "#gs_captcha_ccl, #captcha-form, .g-recaptcha, #recaptcha"

// captchaPhrases identify a bot check by its wording. Result snippets can
// contain the same words, so they are only consulted on pages without
// result blocks.
var captchaPhrases = []string{
	"unusual traffic",
	"not a robot",
	"请进行人机身份验证",
}

var emptyMarkers = []string{
	"did not match any articles",
	"没有找到",
	"相符的文章",
}

// blockSelectors are tried in order; the first that matches wins.
var blockSelectors = []string{
	"div.gs_r.gs_or.gs_scl",
	"div.gs_ri",
	"div.gs_r",
}

var (
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	citedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Cited by (\d+)`),
		regexp.MustCompile(`被引用次数[：:]\s*(\d+)`),
	}
	// typePrefix matches Scholar's "[PDF]", "[HTML]", "[CITATION][C]" tags.
	typePrefix = regexp.MustCompile(`^(\[[^\]]{1,12}\]\s*)+`)
)

// Parse classifies a results page and extracts its records. base resolves
// relative result links.
func Parse(html, base string) (PageKind, []types.LiteratureRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageLoading, nil, fmt.Errorf("parsing results page: %w", err)
	}

	if doc.Find(captchaSelector).Length() > 0 {
		return PageCaptcha, nil, nil
	}

	records := extractRecords(doc, base)
	if len(records) > 0 {
		return PageResults, records, nil
	}

	lower := strings.ToLower(doc.Find("body").Text())
	for _, m := range captchaPhrases {
		if strings.Contains(lower, m) {
			return PageCaptcha, nil, nil
		}
	}
	for _, m := range emptyMarkers {
		if strings.Contains(lower, m) {
			return PageEmpty, nil, nil
		}
	}
	return PageLoading, nil, nil
}

func extractRecords(doc *goquery.Document, base string) []types.LiteratureRecord {
	var blocks *goquery.Selection
	for _, sel := range blockSelectors {
		if b := doc.Find(sel); b.Length() > 0 {
			blocks = b
			break
		}
	}
	if blocks == nil {
		blocks = doc.Find("h3 a").Closest("h3").Parent()
	}

	baseURL, _ := url.Parse(base)
	var records []types.LiteratureRecord
	blocks.Each(func(_ int, s *goquery.Selection) {
		if r, ok := extractBlock(s, baseURL); ok {
			records = append(records, r)
		}
	})
	return records
}

func extractBlock(s *goquery.Selection, base *url.URL) (types.LiteratureRecord, bool) {
	var r types.LiteratureRecord

	link := s.Find("h3 a").First()
	if link.Length() > 0 {
		r.Title = clean(link.Text())
		if href, ok := link.Attr("href"); ok {
			r.URL = resolve(base, href)
		}
	} else {
		r.Title = clean(s.Find("h3").First().Text())
	}
	r.Title = strings.TrimSpace(typePrefix.ReplaceAllString(r.Title, ""))
	if r.Title == "" {
		return r, false
	}

	venue := clean(s.Find(".gs_a").First().Text())
	r.Authors, r.Journal = splitVenueLine(venue)
	if m := yearPattern.FindString(venue); m != "" {
		y, _ := strconv.Atoi(m)
		r.Year = types.Year(y)
	}

	r.Abstract = clean(s.Find(".gs_rs").First().Text())

	s.Find(".gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := a.Text()
		for _, p := range citedPatterns {
			if m := p.FindStringSubmatch(text); m != nil {
				r.Cited, _ = strconv.Atoi(m[1])
				return false
			}
		}
		return true
	})

	r.CompletionStatus = types.StatusPending
	return r, true
}

// splitVenueLine splits Scholar's "authors - venue, year - host" line.
func splitVenueLine(line string) (types.Authors, string) {
	if line == "" {
		return nil, ""
	}
	parts := strings.Split(line, " - ")
	authors := types.ParseAuthors(strings.TrimRight(parts[0], " …."))
	if len(parts) < 2 {
		return authors, ""
	}

	journal := yearPattern.ReplaceAllString(parts[1], "")
	journal = strings.Trim(journal, " ,…")
	// "authors - host" with no venue segment.
	if len(parts) == 2 && !strings.Contains(journal, " ") && strings.Contains(journal, ".") {
		journal = ""
	}
	return authors, journal
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil || u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
