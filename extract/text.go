package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/levandor/ferret/detect"
)

// DefaultMaxTextBytes is the content ceiling for text files during bulk
// indexing. Content above it is truncated and flagged; deep extraction still
// returns everything.
const DefaultMaxTextBytes = 10 * 1024 * 1024

// TextExtractor indexes full content only below the size ceiling.
type TextExtractor struct {
	MaxBytes int64
}

func (e *TextExtractor) Name() string { return "text" }

func (e *TextExtractor) CanHandle(category detect.Category, _ string) bool {
	return category == detect.CategoryText
}

func (e *TextExtractor) Summarize(path string) (*Summary, error) {
	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat text file: %w", err)
	}

	truncated := stat.Size() > limit
	content, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := string(content)
	lineCount := strings.Count(text, "\n")
	if len(text) > 0 && !strings.HasSuffix(text, "\n") {
		lineCount++
	}

	return &Summary{
		Kind:    e.Name(),
		Preview: truncatePreview(text),
		Content: text,
		Text: &TextSummary{
			LineCount: lineCount,
			WordCount: len(strings.Fields(text)),
			CharCount: len(text),
			Truncated: truncated,
		},
	}, nil
}

// Deep reads the entire file regardless of the indexing ceiling.
func (e *TextExtractor) Deep(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(content), nil
}
