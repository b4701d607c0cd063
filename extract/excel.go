package extract

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/levandor/ferret/detect"
)

// ExcelExtractor reads sheet names, header rows and row counts from .xlsx
// workbooks. Cell contents beyond the header row stay out of the summary.
type ExcelExtractor struct{}

func (e *ExcelExtractor) Name() string { return "excel" }

func (e *ExcelExtractor) CanHandle(category detect.Category, mimeType string) bool {
	return category == detect.CategoryDocument &&
		strings.Contains(mimeType, "vnd.openxmlformats-officedocument.spreadsheetml")
}

func (e *ExcelExtractor) Summarize(path string) (*Summary, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer workbook.Close()

	var (
		sheets    []SheetInfo
		totalRows int64
	)
	for _, sheetName := range workbook.GetSheetList() {
		rows, err := workbook.Rows(sheetName)
		if err != nil {
			return partialExcelSummary(sheets, totalRows), fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}

		var (
			headers  []string
			rowCount int64
		)
		for rows.Next() {
			if rowCount == 0 {
				headers, err = rows.Columns()
				if err != nil {
					rows.Close()
					return partialExcelSummary(sheets, totalRows), fmt.Errorf("failed to read headers of sheet %s: %w", sheetName, err)
				}
			}
			rowCount++
		}
		rows.Close()
		totalRows += rowCount

		sheets = append(sheets, SheetInfo{
			Name:     sheetName,
			Headers:  headers,
			RowCount: rowCount,
		})
	}

	summary := partialExcelSummary(sheets, totalRows)
	return summary, nil
}

// Deep renders every cell of every sheet.
func (e *ExcelExtractor) Deep(path string) (string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer workbook.Close()

	var sb strings.Builder
	for _, sheetName := range workbook.GetSheetList() {
		fmt.Fprintf(&sb, "== sheet %s\n", sheetName)

		rows, err := workbook.Rows(sheetName)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				rows.Close()
				return "", fmt.Errorf("failed to read row in sheet %s: %w", sheetName, err)
			}
			sb.WriteString(strings.Join(cells, " | "))
			sb.WriteByte('\n')
		}
		rows.Close()
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}

func partialExcelSummary(sheets []SheetInfo, totalRows int64) *Summary {
	sheetNames := make([]string, 0, len(sheets))
	for _, s := range sheets {
		sheetNames = append(sheetNames, s.Name)
	}

	preview := fmt.Sprintf("Excel workbook: %d sheets, %d total rows. Sheets: %s",
		len(sheets), totalRows, strings.Join(sheetNames, ", "))

	return &Summary{
		Kind:    "excel",
		Preview: truncatePreview(preview),
		Excel: &ExcelSummary{
			Sheets:    sheets,
			TotalRows: totalRows,
		},
	}
}

// SheetTokens returns sheet names as a single searchable string.
func (s *ExcelSummary) SheetTokens() string {
	names := make([]string, 0, len(s.Sheets))
	for _, sheet := range s.Sheets {
		names = append(names, sheet.Name)
	}
	return strings.Join(names, " ")
}

// ColumnTokens returns header names across all sheets as a single searchable
// string.
func (s *ExcelSummary) ColumnTokens() string {
	var parts []string
	for _, sheet := range s.Sheets {
		parts = append(parts, sheet.Headers...)
	}
	return strings.Join(parts, " ")
}
