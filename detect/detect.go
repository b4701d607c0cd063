// Package detect classifies files from their leading bytes plus filename.
// Magic-byte signatures take precedence over extensions; extensions are only
// a fallback for files whose content is not self-describing.
package detect

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// HeaderSize is the number of leading bytes callers should hand to Classify.
const HeaderSize = 512

const magicHeaderLen = 16

// Category is the closed set of high-level file categories. It determines
// which extractor runs during indexing.
type Category string

const (
	CategoryDatabase       Category = "database"
	CategoryStructuredData Category = "structureddata"
	CategoryDocument       Category = "document"
	CategoryText           Category = "text"
	CategoryMedia          Category = "media"
	CategoryArchive        Category = "archive"
	CategoryBinary         Category = "binary"
	CategoryUnknown        Category = "unknown"
)

// ParseCategory maps a string to a Category, defaulting to unknown.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(s)) {
	case CategoryDatabase, CategoryStructuredData, CategoryDocument,
		CategoryText, CategoryMedia, CategoryArchive, CategoryBinary:
		return Category(strings.ToLower(s))
	default:
		return CategoryUnknown
	}
}

// Detection is the result of classifying a file.
type Detection struct {
	MIMEType    string   `json:"mime_type"`
	Category    Category `json:"category"`
	MagicHeader string   `json:"magic_header"`
}

// ReadHeader reads up to the first HeaderSize bytes of a file for Classify.
func ReadHeader(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]byte, HeaderSize)
	n, err := file.Read(header)
	if err != nil && err != io.EOF {
		return nil, err
	}

	return header[:n], nil
}

// Classify identifies a file from up to its first 512 bytes and its name.
// It is a pure function: no I/O, deterministic, and it never fails - empty or
// truncated input degrades to the unknown category.
func Classify(header []byte, name string) Detection {
	mimeType, category := identify(header, name)

	n := min(len(header), magicHeaderLen)
	return Detection{
		MIMEType:    mimeType,
		Category:    category,
		MagicHeader: hex.EncodeToString(header[:n]),
	}
}

func identify(b []byte, name string) (string, Category) {
	if len(b) == 0 {
		return byExtension(name)
	}

	if len(b) >= 16 && bytes.Equal(b[:16], []byte("SQLite format 3\x00")) {
		return "application/vnd.sqlite3", CategoryDatabase
	}

	if len(b) >= 8 && bytes.Equal(b[:8], []byte("leveldb/")) {
		return "application/x-leveldb", CategoryDatabase
	}

	// ZIP container: sniff for Office Open XML before falling back to archive
	if len(b) >= 4 && bytes.Equal(b[:4], []byte("PK\x03\x04")) {
		if bytes.Contains(b, []byte("[Content_Types].xml")) {
			if bytes.Contains(b, []byte("xl/")) {
				return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", CategoryDocument
			}
			if bytes.Contains(b, []byte("word/")) {
				return "application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument
			}
		}
		// xlsx/docx keep their content types deeper in the archive than the
		// header we see, so trust the extension for PK files too
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", CategoryDocument
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument
		}
		return "application/zip", CategoryArchive
	}

	if len(b) >= 4 && bytes.Equal(b[:4], []byte("%PDF")) {
		return "application/pdf", CategoryDocument
	}

	if len(b) >= 4 && bytes.Equal(b[:4], []byte("PAR1")) {
		return "application/vnd.apache.parquet", CategoryStructuredData
	}

	if mime, ok := identifyMedia(b); ok {
		return mime, CategoryMedia
	}

	if mime, ok := identifyExecutable(b); ok {
		return mime, CategoryBinary
	}

	if firstPrintable(b) == '{' || firstPrintable(b) == '[' {
		return "application/json", CategoryStructuredData
	}

	trimmed := strings.TrimLeftFunc(string(b[:min(len(b), 100)]), isASCIISpace)
	if strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<") {
		return "application/xml", CategoryStructuredData
	}

	if looksLikeCSV(b) {
		return "text/csv", CategoryStructuredData
	}

	if isText(b) {
		return "text/plain", CategoryText
	}

	return byExtension(name)
}

func identifyMedia(b []byte) (string, bool) {
	if len(b) < 8 {
		return "", false
	}
	switch {
	case bytes.Equal(b[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "image/png", true
	case bytes.Equal(b[:2], []byte("\xFF\xD8")):
		return "image/jpeg", true
	case bytes.Equal(b[:6], []byte("GIF87a")) || bytes.Equal(b[:6], []byte("GIF89a")):
		return "image/gif", true
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return "image/webp", true
	}
	return "", false
}

func identifyExecutable(b []byte) (string, bool) {
	if len(b) >= 4 && bytes.Equal(b[:4], []byte("\x7FELF")) {
		return "application/x-executable", true
	}
	if len(b) >= 4 {
		switch binary.BigEndian.Uint32(b[:4]) {
		case 0xFEEDFACE, 0xFEEDFACF, 0xCAFEBABE:
			return "application/x-mach-binary", true
		}
	}
	if len(b) >= 2 && bytes.Equal(b[:2], []byte("MZ")) {
		return "application/x-dosexec", true
	}
	return "", false
}

// looksLikeCSV checks whether the first few lines share a consistent comma or
// tab count, allowing off-by-one for a possibly truncated last line.
func looksLikeCSV(b []byte) bool {
	if !utf8.Valid(b[:min(len(b), 1024)]) {
		return false
	}

	lines := strings.Split(string(b[:min(len(b), 1024)]), "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	if len(lines) < 2 {
		return false
	}

	firstCommas := strings.Count(lines[0], ",")
	firstTabs := strings.Count(lines[0], "\t")
	if firstCommas < 1 && firstTabs < 1 {
		return false
	}

	for _, line := range lines[1:] {
		commas := strings.Count(line, ",")
		tabs := strings.Count(line, "\t")
		commaMatch := commas > 0 && abs(commas-firstCommas) <= 1
		tabMatch := tabs > 0 && abs(tabs-firstTabs) <= 1
		if !commaMatch && !tabMatch {
			return false
		}
	}

	return true
}

// isText requires valid UTF-8 and a high ratio of printable bytes.
func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}

	printable := 0
	for _, c := range b {
		if (c >= 0x20 && c < 0x7F) || isASCIISpace(rune(c)) || c >= 0x80 {
			printable++
		}
	}

	return float64(printable)/float64(len(b)) > 0.85
}

func byExtension(name string) (string, Category) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".db", ".sqlite", ".sqlite3":
		return "application/vnd.sqlite3", CategoryDatabase
	case ".json":
		return "application/json", CategoryStructuredData
	case ".xml":
		return "application/xml", CategoryStructuredData
	case ".csv", ".tsv":
		return "text/csv", CategoryStructuredData
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", CategoryDocument
	case ".pdf":
		return "application/pdf", CategoryDocument
	case ".txt", ".md", ".log", ".go", ".py", ".js", ".sql", ".yaml", ".yml", ".ini", ".conf":
		return "text/plain", CategoryText
	case ".zip", ".tar", ".gz", ".tgz":
		return "application/zip", CategoryArchive
	default:
		return "application/octet-stream", CategoryUnknown
	}
}

func firstPrintable(b []byte) byte {
	for _, c := range b {
		if !isASCIISpace(rune(c)) {
			return c
		}
	}
	return 0
}

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
