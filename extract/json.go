package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/levandor/ferret/detect"
)

// JSONExtractor flattens a JSON document into its paths with an explicit depth
// counter so deeply nested input stays bounded. Arrays are sampled, not walked
// in full.
type JSONExtractor struct{}

func (e *JSONExtractor) Name() string { return "json" }

func (e *JSONExtractor) CanHandle(category detect.Category, mimeType string) bool {
	return category == detect.CategoryStructuredData &&
		(mimeType == "application/json" || mimeType == "text/json")
}

func (e *JSONExtractor) Summarize(path string) (*Summary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read json file: %w", err)
	}

	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		// Keep the raw preview even when parsing fails
		return &Summary{
			Kind:    e.Name(),
			Preview: truncatePreview(string(content)),
		}, fmt.Errorf("failed to parse json: %w", err)
	}

	var paths []JSONPath
	collectPaths(value, "$", 0, &paths)

	depth, objects, arrays := analyzeStructure(value, 0)

	return &Summary{
		Kind:    e.Name(),
		Preview: truncatePreview(string(content)),
		Content: string(content),
		JSON: &JSONSummary{
			Paths:       paths,
			Depth:       depth,
			ObjectCount: objects,
			ArrayCount:  arrays,
		},
	}, nil
}

// Deep pretty-prints the whole document.
func (e *JSONExtractor) Deep(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read json file: %w", err)
	}

	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}

	return string(pretty), nil
}

func collectPaths(value any, current string, depth int, paths *[]JSONPath) {
	if depth > maxDepth {
		return
	}

	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := current + "." + key
			*paths = append(*paths, JSONPath{
				Path:      childPath,
				ValueType: valueType(child),
				Sample:    sampleValue(child),
			})
			collectPaths(child, childPath, depth+1, paths)
		}
	case []any:
		for i, child := range v {
			if i >= arraySampleSize {
				break
			}
			childPath := current + "[" + strconv.Itoa(i) + "]"
			*paths = append(*paths, JSONPath{
				Path:      childPath,
				ValueType: valueType(child),
				Sample:    sampleValue(child),
			})
			collectPaths(child, childPath, depth+1, paths)
		}
	}
}

func valueType(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unknown"
	}
}

func sampleValue(value any) string {
	switch v := value.(type) {
	case string:
		if len(v) > sampleValueLimit {
			runes := []rune(v)
			if len(runes) > sampleValueLimit {
				return string(runes[:sampleValueLimit-3]) + "..."
			}
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		return ""
	}
}

func analyzeStructure(value any, depth int) (maxSeen, objects, arrays int) {
	maxSeen = depth
	if depth > maxDepth {
		return maxSeen, 0, 0
	}

	switch v := value.(type) {
	case map[string]any:
		objects = 1
		for _, child := range v {
			d, o, a := analyzeStructure(child, depth+1)
			maxSeen = max(maxSeen, d)
			objects += o
			arrays += a
		}
	case []any:
		arrays = 1
		for _, child := range v {
			d, o, a := analyzeStructure(child, depth+1)
			maxSeen = max(maxSeen, d)
			objects += o
			arrays += a
		}
	}

	return maxSeen, objects, arrays
}

// PathTokens returns the flattened paths as a single searchable string.
func (s *JSONSummary) PathTokens() string {
	parts := make([]string, 0, len(s.Paths))
	for _, p := range s.Paths {
		parts = append(parts, p.Path)
	}
	return strings.Join(parts, " ")
}
