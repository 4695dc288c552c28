package library

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "lib", "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Upsert(ctx, "gnn", []types.LiteratureRecord{
		{Title: "Graph Attention Networks", Authors: types.Authors{"P Velickovic"}, Year: 2018, Journal: "ICLR", Keyword: "graph attention", Selected: true},
		{Title: "Semi-Supervised Classification with Graph Convolutional Networks", Authors: types.Authors{"T Kipf"}, Year: 2017, Journal: "ICLR", Keyword: "gcn"},
	})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "vision", []types.LiteratureRecord{
		{Title: "Deep Residual Learning for Image Recognition", Authors: types.Authors{"K He"}, Year: 2016, Journal: "CVPR", Abstract: "Residual networks ease training."},
	})
	require.NoError(t, err)
}

func TestUpsertMergesByTitle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sum, err := s.Upsert(ctx, "p1", []types.LiteratureRecord{
		{Title: "Attention Is All You Need", Year: 2017},
		{Title: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertSummary{Added: 1, Skipped: 1}, sum)

	sum, err = s.Upsert(ctx, "p2", []types.LiteratureRecord{
		{Title: "attention is all  you need", Year: 1999, Journal: "NeurIPS", Cited: 90000},
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertSummary{Updated: 1}, sum)
	assert.Equal(t, 1, sum.Total())

	hits, err := s.Search(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, "Attention Is All You Need", h.Title, "first title kept")
	assert.Equal(t, types.Year(2017), h.Year, "existing year not overwritten")
	assert.Equal(t, "NeurIPS", h.Journal, "missing venue filled")
	assert.Equal(t, 90000, h.Cited)
	assert.Equal(t, []string{"p1", "p2"}, h.Projects)
}

func TestSearchText(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	hits, err := s.Search(context.Background(), Query{Text: "graph networks"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, []string{"gnn"}, h.Projects)
	}

	hits, err = s.Search(context.Background(), Query{Text: "residual"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Deep Residual Learning for Image Recognition", hits[0].Title)
}

func TestSearchTextWithFTSSyntax(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	_, err := s.Search(context.Background(), Query{Text: `graph" OR (`})
	assert.NoError(t, err)
}

func TestSearchFilters(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	hits, err := s.Search(ctx, Query{Project: "gnn"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, types.Year(2018), hits[0].Year, "newest first without text")

	hits, err = s.Search(ctx, Query{MinYear: 2017})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search(ctx, Query{SelectedOnly: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].Selected)
	assert.Equal(t, "graph attention", hits[0].Keyword)

	hits, err = s.Search(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStats(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 1, st.Selected)
	assert.Equal(t, map[string]int{"gnn": 2, "vision": 1}, st.Projects)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), "p", []types.LiteratureRecord{{Title: "Kept"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	hits, err := s.Search(context.Background(), Query{Text: "kept"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestExport(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, Query{Project: "vision"}, "json", &buf))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Deep Residual Learning for Image Recognition", got[0]["title"])

	buf.Reset()
	require.NoError(t, s.Export(ctx, Query{Project: "gnn"}, "yaml", &buf))
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Len(t, fromYAML, 2)
	assert.Contains(t, buf.String(), "projects:")

	assert.Error(t, s.Export(ctx, Query{}, "csv", &buf))
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"graph" "networks"`, ftsQuery("graph  networks"))
	assert.Equal(t, `"a""b"`, ftsQuery(`a"b`))
}
