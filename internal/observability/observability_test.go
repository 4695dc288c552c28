package observability

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/pkg/types"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(types.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger = WithSearch(WithRun(WithProject(logger, "p1"), "run-1"), "graph neural", "scholar")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"project":"p1"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"keyword":"graph neural"`)
	assert.Contains(t, out, `"source":"scholar"`)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSearch("scholar", "ok", 3, 1)
	m.RecordVerification("confirmed")
	m.RecordCompletion("completed")
	m.RecordLLM("deepseek", nil, 1)
	m.RecordStage("search", 1)
	assert.NoError(t, m.WriteFile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestMetricsRecordAndWrite(t *testing.T) {
	m := NewMetrics()
	m.RecordSearch("scholar", "ok", 4, 2)
	m.RecordSearch("scholar", "empty", 0, 15)
	m.RecordLLM("gemini", errors.New("boom"), 0.5)
	m.RecordCompletion("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("scholar", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RecordsFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequests.WithLabelValues("gemini", "error")))

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "litreview_search_total")
	assert.Contains(t, string(data), "litreview_complete_records_total")
}
