// Package extract produces bounded structural summaries for indexed files and
// unbounded deep dumps on demand. One extractor per file category; summaries
// never grow proportionally to file size.
package extract

import (
	"fmt"

	"github.com/levandor/ferret/detect"
	"github.com/levandor/ferret/logger"
)

const (
	// previewLimit caps the preview stored for every document.
	previewLimit = 500

	// maxDepth bounds recursive structural extraction (JSON/XML).
	maxDepth = 20

	// arraySampleSize is how many array elements JSON path extraction samples.
	arraySampleSize = 3

	// sampleValueLimit caps sample values recorded for JSON paths.
	sampleValueLimit = 100

	// schemaSampleRows is how many rows CSV/Excel schema inference reads.
	schemaSampleRows = 100
)

// Extractor is the common contract for all per-category extractors.
// Summarize is bounded and cheap; Deep may be proportional to file size and is
// only ever invoked on caller demand, never during bulk indexing.
type Extractor interface {
	Name() string
	CanHandle(category detect.Category, mimeType string) bool
	Summarize(path string) (*Summary, error)
	Deep(path string) (string, error)
}

// Summary is the bounded structural summary of one file. Exactly one of the
// per-kind payloads is set, matching Kind. A parse failure yields whatever
// partial structure was recovered plus a non-empty Err.
type Summary struct {
	Kind    string `json:"kind"`
	Preview string `json:"preview"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`

	Sqlite *SqliteSummary `json:"sqlite,omitempty"`
	JSON   *JSONSummary   `json:"json,omitempty"`
	CSV    *CSVSummary    `json:"csv,omitempty"`
	Excel  *ExcelSummary  `json:"excel,omitempty"`
	XML    *XMLSummary    `json:"xml,omitempty"`
	Text   *TextSummary   `json:"text,omitempty"`
}

type SqliteSummary struct {
	Tables    []TableInfo `json:"tables"`
	TotalRows int64       `json:"total_rows"`
	PageSize  int64       `json:"page_size"`
	Version   string      `json:"version"`
}

type TableInfo struct {
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"row_count"`
	Indexes  []string     `json:"indexes"`
}

type ColumnInfo struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type JSONSummary struct {
	Paths       []JSONPath `json:"paths"`
	Depth       int        `json:"depth"`
	ObjectCount int        `json:"object_count"`
	ArrayCount  int        `json:"array_count"`
}

type JSONPath struct {
	Path      string `json:"path"`
	ValueType string `json:"value_type"`
	Sample    string `json:"sample,omitempty"`
}

type CSVSummary struct {
	Headers   []string       `json:"headers"`
	Schema    []ColumnSchema `json:"schema"`
	RowCount  int64          `json:"row_count"`
	Delimiter string         `json:"delimiter"`
}

type ColumnSchema struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type ExcelSummary struct {
	Sheets    []SheetInfo `json:"sheets"`
	TotalRows int64       `json:"total_rows"`
}

type SheetInfo struct {
	Name     string   `json:"name"`
	Headers  []string `json:"headers"`
	RowCount int64    `json:"row_count"`
}

type XMLSummary struct {
	Root         string   `json:"root"`
	Namespaces   []string `json:"namespaces"`
	ElementCount int      `json:"element_count"`
}

type TextSummary struct {
	LineCount int  `json:"line_count"`
	WordCount int  `json:"word_count"`
	CharCount int  `json:"char_count"`
	Truncated bool `json:"truncated"`
}

// Registry holds the closed set of extractors and dispatches by category and
// MIME type. First matching extractor wins.
type Registry struct {
	logger     logger.Logger
	extractors []Extractor
}

func NewRegistry(logger logger.Logger, maxTextBytes int64) *Registry {
	return &Registry{
		logger: logger,
		extractors: []Extractor{
			&SqliteExtractor{},
			&JSONExtractor{},
			&CSVExtractor{},
			&ExcelExtractor{},
			&XMLExtractor{},
			&TextExtractor{MaxBytes: maxTextBytes},
		},
	}
}

func (r *Registry) find(category detect.Category, mimeType string) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(category, mimeType) {
			return e
		}
	}
	return nil
}

// Summarize runs the matching extractor for a file. Files without a matching
// extractor get a minimal summary. A returned error always comes with a
// partial summary so callers can index what was recovered.
func (r *Registry) Summarize(path string, category detect.Category, mimeType string) (*Summary, error) {
	extractor := r.find(category, mimeType)
	if extractor == nil {
		return &Summary{
			Kind:    "generic",
			Preview: fmt.Sprintf("%s file", mimeType),
		}, nil
	}

	summary, err := extractor.Summarize(path)
	if err != nil {
		if summary == nil {
			summary = &Summary{Kind: extractor.Name()}
		}
		summary.Err = err.Error()
		return summary, fmt.Errorf("%s extraction failed for %s: %w", extractor.Name(), path, err)
	}

	return summary, nil
}

// Deep runs the matching extractor's unbounded dump. It is synchronous,
// uncached, and reads from disk every time so results are never stale.
func (r *Registry) Deep(path string, category detect.Category, mimeType string) (string, error) {
	extractor := r.find(category, mimeType)
	if extractor == nil {
		return "", fmt.Errorf("no extractor for category %q mime %q", category, mimeType)
	}

	out, err := extractor.Deep(path)
	if err != nil {
		r.logger.Error("deep extraction failed", "path", path, "extractor", extractor.Name(), "err", err.Error())
		return "", fmt.Errorf("%s deep extraction failed for %s: %w", extractor.Name(), path, err)
	}

	return out, nil
}

func truncatePreview(s string) string {
	if len(s) <= previewLimit {
		return s
	}

	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit-3]) + "..."
}
