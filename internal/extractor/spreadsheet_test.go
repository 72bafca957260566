package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestSpreadsheetExtractor_XLSX(t *testing.T) {
	content := buildXLSX(t, [][]any{
		{"name", "price"},
		{"apple", 3},
		{"pear|green", 5},
	})

	text, err := NewSpreadsheetExtractor().Extract(context.Background(), content, "prices.XLSX")
	require.NoError(t, err)

	want := "| name | price |\n" +
		"| --- | --- |\n" +
		"| apple | 3 |\n" +
		`| pear\|green | 5 |`
	assert.Equal(t, want, text)
}

func TestSpreadsheetExtractor_Deterministic(t *testing.T) {
	content := buildXLSX(t, [][]any{{"a", "b"}, {1, 2}})
	e := NewSpreadsheetExtractor()

	first, err := e.Extract(context.Background(), content, "t.xlsx")
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), content, "t.xlsx")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSpreadsheetExtractor_Errors(t *testing.T) {
	e := NewSpreadsheetExtractor()

	_, err := e.Extract(context.Background(), []byte("x"), "notes.txt")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = e.Extract(context.Background(), []byte("not a zip"), "broken.xlsx")
	assert.True(t, errors.Is(err, ErrExtraction))

	_, err = e.Extract(context.Background(), []byte("not biff"), "broken.xls")
	assert.True(t, errors.Is(err, ErrExtraction))

	_, err = e.Extract(context.Background(), buildXLSX(t, nil), "empty.xlsx")
	assert.True(t, errors.Is(err, ErrExtraction))
}

func TestRenderTable(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{
			name: "empty",
			rows: [][]string{{""}, nil},
			want: "",
		},
		{
			name: "pads short rows and names blank headers",
			rows: [][]string{
				{"id", ""},
				{},
				{"1", "x", "extra"},
				{"2"},
			},
			want: "| id | Unnamed: 1 | Unnamed: 2 |\n" +
				"| --- | --- | --- |\n" +
				"| 1 | x | extra |\n" +
				"| 2 |  |  |",
		},
		{
			name: "flattens newlines",
			rows: [][]string{{"h"}, {"line one\nline two"}},
			want: "| h |\n| --- |\n| line one line two |",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderTable(tt.rows))
		})
	}
}
