package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// DecodeCellSet Tests
// ============================================================================

func TestDecodeCellSet_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Cell
	}{
		{
			name: "object with cells",
			in:   `{"cells":[{"row_index":0,"col_index":1,"row_span":1,"col_span":2,"text":"A"}]}`,
			want: []Cell{{RowIndex: 0, ColIndex: 1, RowSpan: 1, ColSpan: 2, Text: "A"}},
		},
		{
			name: "bare array",
			in:   `[{"row_index":2,"col_index":0,"text":"B"}]`,
			want: []Cell{{RowIndex: 2, ColIndex: 0, RowSpan: 1, ColSpan: 1, Text: "B"}},
		},
		{
			name: "json fence",
			in:   "```json\n{\"cells\":[{\"row_index\":1,\"col_index\":1,\"text\":\"C\"}]}\n```",
			want: []Cell{{RowIndex: 1, ColIndex: 1, RowSpan: 1, ColSpan: 1, Text: "C"}},
		},
		{
			name: "bare fence with prose",
			in:   "Here is the table:\n```\n[{\"row\":0,\"col\":0,\"value\":\"D\"}]\n```\nDone.",
			want: []Cell{{RowSpan: 1, ColSpan: 1, Text: "D"}},
		},
		{
			name: "prose around object",
			in:   "Sure! {\"cells\": [{\"text\": \"E\"}]} Hope this helps.",
			want: []Cell{{RowSpan: 1, ColSpan: 1, Text: "E"}},
		},
		{
			name: "camel case keys",
			in:   `{"cells":[{"rowIndex":3,"colIndex":4,"rowSpan":2,"colSpan":3,"content":"F"}]}`,
			want: []Cell{{RowIndex: 3, ColIndex: 4, RowSpan: 2, ColSpan: 3, Text: "F"}},
		},
		{
			name: "numeric strings and floats",
			in:   `{"cells":[{"row_index":"5","col_index":2.9,"row_span":" 2 ","col_span":"1.0","text":"G"}]}`,
			want: []Cell{{RowIndex: 5, ColIndex: 2, RowSpan: 2, ColSpan: 1, Text: "G"}},
		},
		{
			name: "nulls and junk take defaults",
			in:   `{"cells":[{"row_index":null,"col_index":"x","row_span":null,"col_span":true,"text":null}]}`,
			want: []Cell{{RowSpan: 1, ColSpan: 1}},
		},
		{
			name: "number and bool text",
			in:   `[{"text":42},{"text":false},{"text":{"nested":1}}]`,
			want: []Cell{
				{RowSpan: 1, ColSpan: 1, Text: "42"},
				{RowSpan: 1, ColSpan: 1, Text: "false"},
				{RowSpan: 1, ColSpan: 1},
			},
		},
		{
			name: "non-object items skipped",
			in:   `{"cells":[1,"two",null,{"text":"kept"},[3]]}`,
			want: []Cell{{RowSpan: 1, ColSpan: 1, Text: "kept"}},
		},
		{
			name: "negative values pass through for normalization",
			in:   `[{"row_index":-2,"col_span":-1}]`,
			want: []Cell{{RowIndex: -2, RowSpan: 1, ColSpan: -1}},
		},
		{
			name: "empty list",
			in:   `{"cells":[]}`,
			want: []Cell{},
		},
		{
			name: "null cells",
			in:   `{"cells":null}`,
			want: []Cell{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCellSet(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Cells)
		})
	}
}

func TestDecodeCellSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"prose only", "I could not find a table in this image."},
		{"missing cells key", `{"rows":[]}`},
		{"cells not a list", `{"cells":"none"}`},
		{"cells is object", `{"cells":{"text":"A"}}`},
		{"truncated", `{"cells":[{"text":"A"}`},
		{"unterminated fence", "```json\n{\"cells\": [\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCellSet(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAnalysisFailed), "got %v", err)
		})
	}
}

func TestDecodeCellSet_HugeNumbersClamp(t *testing.T) {
	got, err := DecodeCellSet(`[{"row_index":1e30,"col_index":-1e30,"row_span":99999999999999999999}]`)
	require.NoError(t, err)
	require.Len(t, got.Cells, 1)

	c := got.Cells[0]
	assert.Equal(t, math.MaxInt32, c.RowIndex)
	assert.Equal(t, math.MinInt32, c.ColIndex)
	assert.Equal(t, math.MaxInt32, c.RowSpan)

	// and the grid drops or clips them without panicking
	plan, _ := Reconstruct(got.Cells, 0)
	assert.Empty(t, plan.Entries)
}

func TestDecodeCellSet_FirstKeyWins(t *testing.T) {
	got, err := DecodeCellSet(`[{"row_index":1,"row":7,"text":"t","value":"v"}]`)
	require.NoError(t, err)
	require.Len(t, got.Cells, 1)
	assert.Equal(t, 1, got.Cells[0].RowIndex)
	assert.Equal(t, "t", got.Cells[0].Text)
}
