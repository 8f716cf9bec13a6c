package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "plain object",
			response: `{"queryType": "aggregation"}`,
			want:     `{"queryType": "aggregation"}`,
		},
		{
			name:     "object with surrounding prose",
			response: "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want:     `{"a": 1}`,
		},
		{
			name:     "markdown code block",
			response: "```json\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>reasoning about the query</think>{\"a\": 1}",
			want:     `{"a": 1}`,
		},
		{
			name:     "nested object",
			response: `{"outer": {"inner": [1, 2, 3]}}`,
			want:     `{"outer": {"inner": [1, 2, 3]}}`,
		},
		{
			name:     "braces inside strings",
			response: `{"expr": "select * where notes contains '}'"}`,
			want:     `{"expr": "select * where notes contains '}'"}`,
		},
		{
			name:     "array",
			response: `[{"a": 1}, {"a": 2}]`,
			want:     `[{"a": 1}, {"a": 2}]`,
		},
		{
			name:     "no json",
			response: "I cannot answer that.",
			wantErr:  true,
		},
		{
			name:     "unbalanced",
			response: `{"a": 1`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type translation struct {
		QueryType  string `json:"query_type"`
		Expression string `json:"expression"`
	}

	result, err := ParseJSONResponse[translation](
		"Sure:\n```json\n{\"query_type\": \"aggregation\", \"expression\": \"select avg(revenue)\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "aggregation", result.QueryType)
	assert.Equal(t, "select avg(revenue)", result.Expression)
}

func TestParseJSONResponseTypeMismatch(t *testing.T) {
	type target struct {
		Count int `json:"count"`
	}
	_, err := ParseJSONResponse[target](`{"count": "not a number"}`)
	assert.Error(t, err)
}
