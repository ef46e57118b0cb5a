// Package export renders tabular reports as XLSX workbooks or CSV files.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for formats other than xlsx and csv
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ParseFormat accepts "xlsx" or "csv" in any case. An empty string means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of files in format f
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension without the dot
func (f Format) Extension() string {
	return string(f)
}

// Sheet is one table: a header row followed by data rows
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// Render writes sheets in format f. CSV output holds the first sheet only.
func Render(f Format, sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, errors.New("export: no sheets")
	}
	switch f {
	case FormatXLSX:
		return WriteXLSX(sheets...)
	case FormatCSV:
		return WriteCSV(sheets[0])
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// WriteXLSX builds a workbook with one worksheet per sheet and a bold,
// frozen header row
func WriteXLSX(sheets ...Sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sheet := range sheets {
		name := sheetName(sheet.Name, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}

		header := make([]any, len(sheet.Headers))
		for j, h := range sheet.Headers {
			header[j] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return nil, fmt.Errorf("write header of %s: %w", name, err)
		}
		if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
			return nil, fmt.Errorf("style header of %s: %w", name, err)
		}
		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, err
			}
			values := row
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d of %s: %w", r+2, name, err)
			}
		}
		if n := len(sheet.Headers); n > 0 {
			last, err := excelize.ColumnNumberToName(n)
			if err != nil {
				return nil, err
			}
			if err := f.SetColWidth(name, "A", last, 20); err != nil {
				return nil, err
			}
			if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
				return nil, err
			}
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV renders one sheet as RFC 4180 CSV with a UTF-8 byte order mark so
// spreadsheet tools detect the encoding
func WriteCSV(sheet Sheet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(sheet.Headers); err != nil {
		return nil, err
	}
	record := make([]string, 0, len(sheet.Headers))
	for _, row := range sheet.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, cast.ToString(v))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetName trims name to Excel's 31 character limit and strips characters
// worksheets may not contain
func sheetName(name string, index int) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
