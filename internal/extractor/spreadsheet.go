package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// SpreadsheetExtractor renders the first sheet of a workbook as a Markdown
// pipe table. The first row is the header.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor {
	return &SpreadsheetExtractor{}
}

func (e *SpreadsheetExtractor) Kind() Kind { return KindSpreadsheet }

func (e *SpreadsheetExtractor) Extensions() []string { return []string{".xlsx", ".xls"} }

func (e *SpreadsheetExtractor) Extract(_ context.Context, content []byte, filename string) (string, error) {
	if err := checkExtension(filename, e.Extensions()); err != nil {
		return "", err
	}

	var (
		rows [][]string
		err  error
	)
	if Ext(filename) == ".xls" {
		rows, err = readXLS(content)
	} else {
		rows, err = readXLSX(content)
	}
	if err != nil {
		return "", err
	}

	text := renderTable(rows)
	if text == "" {
		return "", extractionError("no rows in first sheet of %s", filename)
	}
	return text, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, extractionError("open xlsx: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, extractionError("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, extractionError("read sheet %q: %v", sheets[0], err)
	}
	return rows, nil
}

func readXLS(content []byte) (rows [][]string, err error) {
	// the BIFF reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, extractionError("parse xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, extractionError("open xls: %v", err)
	}
	if wb.NumSheets() == 0 {
		return nil, extractionError("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, extractionError("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// xlsRow returns nil for rows the sheet does not store.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// renderTable writes rows as a Markdown table. Blank rows are dropped,
// short rows are padded and blank header cells are named "Unnamed: N".
func renderTable(rows [][]string) string {
	var kept [][]string
	width := 0
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		kept = append(kept, row)
		width = max(width, len(row))
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	header := kept[0]
	cells := make([]string, width)
	for i := range cells {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		cells[i] = name
	}
	writeRow(&b, cells)

	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)

	for _, row := range kept[1:] {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		writeRow(&b, cells)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(cellEscaper.Replace(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
