package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleSheets() []Sheet {
	return []Sheet{
		{
			Name:    "Summary",
			Headers: []string{"Diff type", "Count", "Internal total"},
			Rows: [][]any{
				{"MATCHED", 2, decimal.RequireFromString("30.00")},
				{"MISSING_INTERNAL", 1, ""},
			},
		},
		{
			Name:    "Records/2024-05-01",
			Headers: []string{"Payment no", "Amount"},
			Rows:    [][]any{{"P1", "10.00"}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"XLSX", FormatXLSX, false},
		{" csv ", FormatCSV, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_ContentTypeAndExtension(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Equal(t, "xlsx", FormatXLSX.Extension())
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	data, err := WriteXLSX(sampleSheets()...)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Records_2024-05-01"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Diff type", "Count", "Internal total"}, rows[0])
	assert.Equal(t, []string{"MATCHED", "2", "30"}, rows[1][:3])
	assert.Equal(t, "MISSING_INTERNAL", rows[2][0])

	rows, err = f.GetRows("Records_2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Payment no", "Amount"}, {"P1", "10.00"}}, rows)
}

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV(sampleSheets()[0])
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\ufeff")))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Diff type", "Count", "Internal total"},
		{"MATCHED", "2", "30"},
		{"MISSING_INTERNAL", "1", ""},
	}, records)
}

func TestRender(t *testing.T) {
	data, err := Render(FormatCSV, sampleSheets()...)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Payment no")

	_, err = Render(FormatXLSX)
	assert.Error(t, err)

	_, err = Render(Format("pdf"), sampleSheets()...)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet3", sheetName("  ", 2))
	assert.Equal(t, "a_b_c", sheetName("a:b?c", 0))
	assert.Len(t, []rune(sheetName(strings.Repeat("x", 40), 0)), 31)
}
