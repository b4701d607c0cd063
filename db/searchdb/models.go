package searchdb

import (
	"errors"
	"fmt"
	"time"
)

// Document is one indexed file: fast metadata fields, analyzed full-text
// fields and searchable structured tokens. The path is the document key;
// re-indexing a path overwrites the prior document.
type Document struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	Created     time.Time `json:"created,omitempty"`
	Hash        string    `json:"hash"`
	MIMEType    string    `json:"mime_type"`
	Category    string    `json:"category"`
	MagicHeader string    `json:"magic_header"`
	Extension   string    `json:"extension"`
	IndexedAt   time.Time `json:"indexed_at"`

	Preview string `json:"preview"`
	Content string `json:"content,omitempty"`

	// Structured tokens contributed by extractors
	Tables    string `json:"tables,omitempty"`
	Columns   string `json:"columns,omitempty"`
	JSONPaths string `json:"json_paths,omitempty"`
	Sheets    string `json:"sheets,omitempty"`

	// Error is non-empty when extraction was partial
	Error string `json:"error,omitempty"`
}

// StructuredKind selects which token field a structured query matches.
type StructuredKind string

const (
	StructuredSQLTable   StructuredKind = "sql_table"
	StructuredColumnName StructuredKind = "column_name"
	StructuredJSONPath   StructuredKind = "json_path"
	StructuredSheetName  StructuredKind = "sheet_name"
)

// Query is a tagged union: exactly one variant must be set. Queries are
// immutable and constructed by the caller.
type Query struct {
	FullText   *FullTextQuery   `json:"full_text,omitempty"`
	Metadata   *MetadataQuery   `json:"metadata,omitempty"`
	Structured *StructuredQuery `json:"structured,omitempty"`
	Combined   *CombinedQuery   `json:"combined,omitempty"`
}

type FullTextQuery struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

type MetadataQuery struct {
	Category  string `json:"category,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`
	MinSize   *int64 `json:"min_size,omitempty"`
	MaxSize   *int64 `json:"max_size,omitempty"`
	Extension string `json:"extension,omitempty"`
}

type StructuredQuery struct {
	Kind StructuredKind `json:"kind"`
	Text string         `json:"text"`
}

type CombinedQuery struct {
	Metadata MetadataQuery `json:"metadata"`
	FullText FullTextQuery `json:"full_text"`
}

// ErrMalformedQuery is returned for queries that do not set exactly one
// variant or set an unusable variant payload.
var ErrMalformedQuery = errors.New("malformed query")

type MalformedQueryError struct {
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query: %s", e.Reason)
}

func (e *MalformedQueryError) Is(target error) bool {
	return target == ErrMalformedQuery
}

// Validate checks the one-variant invariant.
func (q *Query) Validate() error {
	variants := 0
	if q.FullText != nil {
		variants++
		if q.FullText.Text == "" {
			return &MalformedQueryError{Reason: "full-text query requires text"}
		}
	}
	if q.Metadata != nil {
		variants++
	}
	if q.Structured != nil {
		variants++
		if q.Structured.Text == "" {
			return &MalformedQueryError{Reason: "structured query requires text"}
		}
		switch q.Structured.Kind {
		case StructuredSQLTable, StructuredColumnName, StructuredJSONPath, StructuredSheetName:
		default:
			return &MalformedQueryError{Reason: fmt.Sprintf("unknown structured kind %q", q.Structured.Kind)}
		}
	}
	if q.Combined != nil {
		variants++
		if q.Combined.FullText.Text == "" {
			return &MalformedQueryError{Reason: "combined query requires full-text text"}
		}
	}

	if variants != 1 {
		return &MalformedQueryError{Reason: fmt.Sprintf("expected exactly one query variant, got %d", variants)}
	}

	return nil
}

// Result is one search hit. Results are ordered by descending score with ties
// broken by lexicographic path.
type Result struct {
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	MIMEType  string  `json:"mime_type"`
	Size      int64   `json:"size"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet,omitempty"`
	Location  string  `json:"location,omitempty"`
	IndexedAt string  `json:"indexed_at,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type Response struct {
	Results    []Result `json:"results"`
	Total      uint64   `json:"total"`
	MaxScore   float64  `json:"max_score"`
	SearchTime string   `json:"search_time"`
}
