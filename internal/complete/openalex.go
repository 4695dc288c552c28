// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package complete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/litreview/internal/httputil"
	"github.com/pdiddy/litreview/pkg/types"
)

// ErrNoMatch is returned by a MetadataSource that found no work with the
// requested title.
var ErrNoMatch = errors.New("no matching work")

// MetadataSource looks up a work's bibliographic fields by title.
type MetadataSource interface {
	Lookup(ctx context.Context, title string) (types.LiteratureRecord, error)
}

// openAlexBase is the OpenAlex Works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexBase = "https://api.openalex.org/works"

// openAlexCandidates is how many search hits are checked for a title match.
const openAlexCandidates = 5

// OpenAlex looks works up in the OpenAlex catalogue.
type OpenAlex struct {
	Client    *http.Client
	UserAgent string
	// Email is sent as mailto for the polite pool.
	Email string
	// MaxRetries applies to 429 and 5xx replies.
	MaxRetries int
}

// Lookup searches OpenAlex for title and returns the first hit whose
// title matches after folding case and punctuation.
func (o *OpenAlex) Lookup(ctx context.Context, title string) (types.LiteratureRecord, error) {
	key := matchKey(title)
	if key == "" {
		return types.LiteratureRecord{}, ErrNoMatch
	}

	params := url.Values{
		"search":   {title},
		"per_page": {fmt.Sprintf("%d", openAlexCandidates)},
	}
	if o.Email != "" {
		params.Set("mailto", o.Email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.LiteratureRecord{}, fmt.Errorf("creating request: %w", err)
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, o.MaxRetries)
	if err != nil {
		return types.LiteratureRecord{}, fmt.Errorf("OpenAlex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.LiteratureRecord{}, fmt.Errorf("OpenAlex returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return types.LiteratureRecord{}, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	for _, w := range oar.Results {
		if matchKey(w.Title) == key {
			return w.record(), nil
		}
	}
	return types.LiteratureRecord{}, ErrNoMatch
}

func (w openAlexWork) record() types.LiteratureRecord {
	r := types.LiteratureRecord{
		Title:    w.Title,
		Year:     types.Year(w.PublicationYear),
		Abstract: reconstructAbstract(w.AbstractInvertedIndex),
		Cited:    w.CitedByCount,
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			r.Authors = append(r.Authors, a.Author.DisplayName)
		}
	}
	if w.PrimaryLocation.Source != nil {
		r.Journal = w.PrimaryLocation.Source.DisplayName
	}
	if w.DOI != "" {
		r.URL = w.DOI
	}
	return r
}

// matchKey folds a title to lowercase letters and digits so punctuation
// and spacing differences between sources do not matter.
func matchKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reconstructAbstract rebuilds plain text from OpenAlex's
// abstract_inverted_index, which maps each word to its positions.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range index {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos, word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       struct {
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}
