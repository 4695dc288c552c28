package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"prose around object", `Sure! {"selected":[{"index":1}]} Hope that helps.`, `{"selected":[{"index":1}]}`},
		{"array first", `Result: [{"keyword":"x","count":2}] done`, `[{"keyword":"x","count":2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("no structured data here")
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Relevant bool   `json:"relevant"`
		Reason   string `json:"reason"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"relevant\":true,\"reason\":\"on topic\"}\n```", &v))
	assert.True(t, v.Relevant)
	assert.Equal(t, "on topic", v.Reason)
}
