package extract

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/levandor/ferret/detect"
)

// CSVExtractor auto-detects the delimiter, infers a schema from a bounded
// sample of rows, and reports the true total row count by streaming the rest
// of the file without retaining it.
type CSVExtractor struct{}

func (e *CSVExtractor) Name() string { return "csv" }

func (e *CSVExtractor) CanHandle(category detect.Category, mimeType string) bool {
	return category == detect.CategoryStructuredData && mimeType == "text/csv"
}

func (e *CSVExtractor) Summarize(path string) (*Summary, error) {
	delimiter, err := detectDelimiter(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return &Summary{
			Kind:    e.Name(),
			Preview: "CSV file (unreadable headers)",
		}, fmt.Errorf("failed to read csv headers: %w", err)
	}

	schema, sampled, err := inferSchema(reader, headers)
	if err != nil {
		return &Summary{
			Kind:    e.Name(),
			Preview: fmt.Sprintf("CSV file: %d columns. Headers: %s", len(headers), strings.Join(headers, ", ")),
			CSV: &CSVSummary{
				Headers:   headers,
				Schema:    schema,
				RowCount:  sampled,
				Delimiter: string(delimiter),
			},
		}, fmt.Errorf("failed to sample csv rows: %w", err)
	}

	// Count remaining rows without keeping them
	rowCount := sampled
	for {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return &Summary{
				Kind:    e.Name(),
				Preview: fmt.Sprintf("CSV file: %d columns, at least %d rows", len(headers), rowCount),
				CSV: &CSVSummary{
					Headers:   headers,
					Schema:    schema,
					RowCount:  rowCount,
					Delimiter: string(delimiter),
				},
			}, fmt.Errorf("failed while counting csv rows: %w", err)
		}
		rowCount++
	}

	preview := fmt.Sprintf("CSV file: %d columns, %d rows. Headers: %s",
		len(headers), rowCount, strings.Join(headers, ", "))

	return &Summary{
		Kind:    e.Name(),
		Preview: truncatePreview(preview),
		CSV: &CSVSummary{
			Headers:   headers,
			Schema:    schema,
			RowCount:  rowCount,
			Delimiter: string(delimiter),
		},
	}, nil
}

// Deep renders every row of the file.
func (e *CSVExtractor) Deep(path string) (string, error) {
	delimiter, err := detectDelimiter(path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read csv record: %w", err)
		}
		sb.WriteString(strings.Join(record, " | "))
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}

// detectDelimiter counts candidate delimiters on the first line and picks the
// most frequent among comma, tab, pipe and semicolon.
func detectDelimiter(path string) (rune, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("failed to read csv first line: %w", err)
		}
		return ',', nil
	}
	line := scanner.Text()

	best := ','
	bestCount := strings.Count(line, ",")
	for _, candidate := range []rune{'\t', '|', ';'} {
		if count := strings.Count(line, string(candidate)); count > bestCount {
			best = candidate
			bestCount = count
		}
	}

	return best, nil
}

func inferSchema(reader *csv.Reader, headers []string) ([]ColumnSchema, int64, error) {
	schema := make([]ColumnSchema, len(headers))
	for i, name := range headers {
		schema[i] = ColumnSchema{Name: name, DataType: "string"}
	}

	hasValues := make([]bool, len(headers))
	sawEmpty := make([]bool, len(headers))
	allNumeric := make([]bool, len(headers))
	allInteger := make([]bool, len(headers))
	for i := range headers {
		allNumeric[i] = true
		allInteger[i] = true
	}

	var sampled int64
	for sampled < schemaSampleRows {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return schema, sampled, err
		}
		sampled++

		for i := range schema {
			// Short records leave trailing columns without a value
			if i >= len(record) || record[i] == "" {
				sawEmpty[i] = true
				continue
			}
			field := record[i]
			hasValues[i] = true
			if _, err := strconv.ParseFloat(field, 64); err != nil {
				allNumeric[i] = false
				allInteger[i] = false
			} else if _, err := strconv.ParseInt(field, 10, 64); err != nil {
				allInteger[i] = false
			}
		}
	}

	for i := range schema {
		schema[i].Nullable = sawEmpty[i] || !hasValues[i]
		switch {
		case allInteger[i] && hasValues[i]:
			schema[i].DataType = "integer"
		case allNumeric[i] && hasValues[i]:
			schema[i].DataType = "number"
		}
	}

	return schema, sampled, nil
}

// ColumnTokens returns the header names as a single searchable string.
func (s *CSVSummary) ColumnTokens() string {
	return strings.Join(s.Headers, " ")
}
