package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/levandor/ferret/detect"
)

// XMLExtractor streams through a document collecting the root element,
// namespaces and element count. Elements nested beyond the depth bound are
// counted but not descended into for attribute scanning.
type XMLExtractor struct{}

func (e *XMLExtractor) Name() string { return "xml" }

func (e *XMLExtractor) CanHandle(category detect.Category, mimeType string) bool {
	return category == detect.CategoryStructuredData &&
		(mimeType == "application/xml" || mimeType == "text/xml")
}

func (e *XMLExtractor) Summarize(path string) (*Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xml file: %w", err)
	}
	defer file.Close()

	decoder := xml.NewDecoder(file)

	var (
		root         string
		elementCount int
		depth        int
	)
	namespaces := map[string]struct{}{}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return e.buildSummary(root, namespaces, elementCount), fmt.Errorf("xml parse error: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			elementCount++
			depth++
			if root == "" {
				root = t.Name.Local
			}
			if depth <= maxDepth {
				for _, attr := range t.Attr {
					if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
						namespaces[attr.Value] = struct{}{}
					}
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	return e.buildSummary(root, namespaces, elementCount), nil
}

// Deep returns the whole document verbatim.
func (e *XMLExtractor) Deep(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read xml file: %w", err)
	}
	return string(content), nil
}

func (e *XMLExtractor) buildSummary(root string, namespaces map[string]struct{}, elementCount int) *Summary {
	namespaceList := make([]string, 0, len(namespaces))
	for ns := range namespaces {
		namespaceList = append(namespaceList, ns)
	}
	sort.Strings(namespaceList)

	preview := fmt.Sprintf("XML document: root <%s>, %d elements", root, elementCount)
	if len(namespaceList) > 0 {
		preview += ". Namespaces: " + strings.Join(namespaceList, ", ")
	}

	return &Summary{
		Kind:    e.Name(),
		Preview: truncatePreview(preview),
		XML: &XMLSummary{
			Root:         root,
			Namespaces:   namespaceList,
			ElementCount: elementCount,
		},
	}
}
