// pkg/parse/output_test.go

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolOutputShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantRows int
	}{
		{
			name:     "bare array",
			input:    `[{"name":"azure"},{"name":"aws"}]`,
			wantKind: KindRows,
			wantRows: 2,
		},
		{
			name:     "object with rows field",
			input:    `{"rows":[{"count":1}],"metadata":{"duration_ms":12}}`,
			wantKind: KindRows,
			wantRows: 1,
		},
		{
			name:     "plain object",
			input:    `{"status":"ok"}`,
			wantKind: KindObject,
		},
		{
			name:     "newline delimited fragments",
			input:    "{\"a\":1}\n{\"a\":2}\n{\"a\":3}",
			wantKind: KindRows,
			wantRows: 3,
		},
		{
			name:     "raw text",
			input:    "Warning: plugin requires configuration",
			wantKind: KindRaw,
		},
		{
			name:     "empty",
			input:    "",
			wantKind: KindRaw,
		},
		{
			name:     "empty array",
			input:    `[]`,
			wantKind: KindRows,
			wantRows: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ToolOutput(tt.input)
			assert.Equal(t, tt.wantKind, p.Kind)
			if tt.wantKind == KindRows {
				assert.Len(t, p.Rows, tt.wantRows)
			}
		})
	}
}

func TestToolOutputPreservesRowOrder(t *testing.T) {
	t.Parallel()

	p := ToolOutput(`[{"n":"first"},{"n":"second"},{"n":"third"}]`)
	require.Equal(t, KindRows, p.Kind)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, "first", p.Rows[0]["n"])
	assert.Equal(t, "third", p.Rows[2]["n"])
}

func TestRowsOf(t *testing.T) {
	t.Parallel()

	assert.Len(t, ToolOutput(`[{"a":1}]`).RowsOf(), 1)
	assert.Len(t, ToolOutput(`{"status":"ok"}`).RowsOf(), 1)
	assert.Nil(t, ToolOutput("just text").RowsOf())
}

func TestToolOutputRejectsMixedNDJSON(t *testing.T) {
	t.Parallel()

	// A JSON line followed by plain text is not NDJSON; keep it raw.
	p := ToolOutput("{\"a\":1}\nnot json at all")
	assert.Equal(t, KindRaw, p.Kind)
}
