package scholar

import (
	"fmt"
	"net/url"
	"strconv"
)

// Source names a search site.
type Source string

const (
	SourceScholar Source = "scholar"
	SourceMirror  Source = "mirror"
)

// maxPerPage is the most results one Scholar page returns.
const maxPerPage = 20

// Query is one keyword search.
type Query struct {
	Keyword string
	Limit   int
	MinYear int
	Source  Source
}

func (q Query) key() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d", q.Source, q.Keyword, q.Limit, q.MinYear)
}

// BuildURL returns the search URL for q against base, the site's search
// endpoint. Mirror sites accept the same query parameters as Scholar.
func BuildURL(base string, q Query) (string, error) {
	if base == "" {
		return "", fmt.Errorf("no search URL configured for source %q", q.Source)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing search URL %q: %w", base, err)
	}

	num := q.Limit
	if num <= 0 || num > maxPerPage {
		num = maxPerPage
	}

	v := u.Query()
	v.Set("q", q.Keyword)
	v.Set("hl", "en")
	v.Set("num", strconv.Itoa(num))
	if q.MinYear > 0 {
		v.Set("as_ylo", strconv.Itoa(q.MinYear))
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}
