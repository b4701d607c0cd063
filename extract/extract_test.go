package extract

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/levandor/ferret/detect"
	"github.com/levandor/ferret/logger"
)

func newTestLogger() logger.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err, "could not write test file")
	return path
}

func createTestDatabase(t *testing.T, assert *require.Assertions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	assert.NoError(err, "could not create test database")
	defer db.Close()

	statements := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`,
		`CREATE TABLE sessions (id INTEGER PRIMARY KEY, user_id INTEGER, token TEXT)`,
		`CREATE INDEX idx_sessions_user ON sessions(user_id)`,
		`INSERT INTO users (name, email) VALUES ('alice', 'alice@example.com'), ('bob', 'bob@example.com')`,
		`INSERT INTO sessions (user_id, token) VALUES (1, 'tok-1'), (1, 'tok-2'), (2, 'tok-3')`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		assert.NoError(err, "could not execute test statement")
	}

	return path
}

func TestSqliteSummarize(t *testing.T) {
	assert := require.New(t)
	path := createTestDatabase(t, assert)

	extractor := &SqliteExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)
	assert.NotNil(summary.Sqlite)

	tableNames := map[string]int64{}
	for _, table := range summary.Sqlite.Tables {
		tableNames[table.Name] = table.RowCount
	}

	assert.Len(tableNames, 2, "should find both tables")
	assert.Equal(int64(2), tableNames["users"])
	assert.Equal(int64(3), tableNames["sessions"])
	assert.Equal(int64(5), summary.Sqlite.TotalRows)
	assert.Contains(summary.Preview, "users")

	var sessionTable TableInfo
	for _, table := range summary.Sqlite.Tables {
		if table.Name == "sessions" {
			sessionTable = table
		}
	}
	assert.Contains(sessionTable.Indexes, "idx_sessions_user")
}

// The set of table names in the bounded summary must equal the set in the
// deep schema dump.
func TestSqliteSummaryDeepRoundTrip(t *testing.T) {
	assert := require.New(t)
	path := createTestDatabase(t, assert)

	extractor := &SqliteExtractor{}

	summary, err := extractor.Summarize(path)
	assert.NoError(err)

	deep, err := extractor.Deep(path)
	assert.NoError(err)

	for _, table := range summary.Sqlite.Tables {
		assert.Contains(deep, fmt.Sprintf("== table %s", table.Name), "deep dump should cover every summarized table")
	}
	assert.Contains(deep, "alice@example.com", "deep dump should include row data")
}

func TestSqliteSummarizeMalformed(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "broken.db", "SQLite format 3\x00 but then garbage that is not a real database")

	extractor := &SqliteExtractor{}
	_, err := extractor.Summarize(path)
	assert.Error(err, "malformed database should report an error, not panic")
}

func TestJSONSummarize(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "data.json", `{"user":{"name":"alice","tags":["a","b","c","d","e"]},"count":3}`)

	extractor := &JSONExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)
	assert.NotNil(summary.JSON)

	paths := map[string]bool{}
	for _, p := range summary.JSON.Paths {
		paths[p.Path] = true
	}

	assert.True(paths["$.user"])
	assert.True(paths["$.user.name"])
	assert.True(paths["$.count"])
	assert.True(paths["$.user.tags[0]"])
	assert.True(paths["$.user.tags[2]"])
	assert.False(paths["$.user.tags[3]"], "arrays should be sampled, not fully walked")

	assert.Equal(2, summary.JSON.ObjectCount)
	assert.Equal(1, summary.JSON.ArrayCount)
	assert.Equal(3, summary.JSON.Depth)
}

func TestJSONSummarizeDepthBound(t *testing.T) {
	assert := require.New(t)

	// 40 levels of nesting; path collection must stop at the depth bound
	var sb strings.Builder
	for range 40 {
		sb.WriteString(`{"n":`)
	}
	sb.WriteString("1")
	for range 40 {
		sb.WriteString("}")
	}
	path := writeTestFile(t, "deep.json", sb.String())

	extractor := &JSONExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)

	for _, p := range summary.JSON.Paths {
		assert.LessOrEqual(strings.Count(p.Path, ".n"), maxDepth+1, "paths should be depth-bounded")
	}
	assert.LessOrEqual(summary.JSON.Depth, maxDepth+1, "reported depth should be capped at the bound")
}

func TestJSONSummarizeMalformed(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "broken.json", `{"unterminated": `)

	extractor := &JSONExtractor{}
	summary, err := extractor.Summarize(path)
	assert.Error(err)
	assert.NotNil(summary, "malformed json should still yield a partial summary")
	assert.NotEmpty(summary.Preview)
}

// Scenario: a large CSV samples only a bounded prefix for schema inference but
// reports the true total row count.
func TestCSVSummarizeLargeFile(t *testing.T) {
	assert := require.New(t)

	var sb strings.Builder
	sb.WriteString("id,name,score\n")
	for i := range 10000 {
		fmt.Fprintf(&sb, "%d,user%d,%d.5\n", i, i, i)
	}
	path := writeTestFile(t, "big.csv", sb.String())

	extractor := &CSVExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)
	assert.NotNil(summary.CSV)

	assert.Equal(int64(10000), summary.CSV.RowCount, "row count should reflect the whole file")
	assert.Equal([]string{"id", "name", "score"}, summary.CSV.Headers)
	assert.Equal(",", summary.CSV.Delimiter)

	types := map[string]string{}
	for _, col := range summary.CSV.Schema {
		types[col.Name] = col.DataType
	}
	assert.Equal("integer", types["id"])
	assert.Equal("string", types["name"])
	assert.Equal("number", types["score"])
}

func TestCSVSchemaNullability(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "sparse.csv", "id,name,notes\n1,alice,\n2,bob,remember this\n3,carol,\n")

	extractor := &CSVExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)

	nullable := map[string]bool{}
	for _, col := range summary.CSV.Schema {
		nullable[col.Name] = col.Nullable
	}
	assert.False(nullable["id"], "fully populated column should not be nullable")
	assert.False(nullable["name"], "fully populated column should not be nullable")
	assert.True(nullable["notes"], "column with empty fields should be nullable")
}

var delimiterTestCases = []struct {
	name      string
	content   string
	delimiter string
}{
	{name: "comma", content: "a,b,c\n1,2,3\n", delimiter: ","},
	{name: "tab", content: "a\tb\tc\n1\t2\t3\n", delimiter: "\t"},
	{name: "pipe", content: "a|b|c\n1|2|3\n", delimiter: "|"},
	{name: "semicolon", content: "a;b;c\n1;2;3\n", delimiter: ";"},
}

func TestCSVDelimiterDetection(t *testing.T) {
	assert := require.New(t)
	for _, testCase := range delimiterTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			path := writeTestFile(t, "file.csv", testCase.content)

			extractor := &CSVExtractor{}
			summary, err := extractor.Summarize(path)
			assert.NoError(err)
			assert.Equal(testCase.delimiter, summary.CSV.Delimiter)
			assert.Equal([]string{"a", "b", "c"}, summary.CSV.Headers)
			assert.Equal(int64(1), summary.CSV.RowCount)
		})
	}
}

func TestXMLSummarize(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "doc.xml",
		`<?xml version="1.0"?><catalog xmlns:bk="http://example.com/book"><bk:book id="1"><title>One</title></bk:book><bk:book id="2"><title>Two</title></bk:book></catalog>`)

	extractor := &XMLExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)
	assert.NotNil(summary.XML)

	assert.Equal("catalog", summary.XML.Root)
	assert.Equal(5, summary.XML.ElementCount)
	assert.Contains(summary.XML.Namespaces, "http://example.com/book")
}

func TestXMLSummarizeMalformed(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "broken.xml", `<root><unclosed></root>`)

	extractor := &XMLExtractor{}
	summary, err := extractor.Summarize(path)
	assert.Error(err)
	assert.NotNil(summary, "malformed xml should still yield a partial summary")
	assert.Equal("root", summary.XML.Root)
}

func TestTextSummarize(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "notes.txt", "first line\nsecond line with words\nthird\n")

	extractor := &TextExtractor{}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)
	assert.NotNil(summary.Text)

	assert.Equal(3, summary.Text.LineCount)
	assert.Equal(7, summary.Text.WordCount)
	assert.False(summary.Text.Truncated)
	assert.Contains(summary.Content, "second line")
}

func TestTextSummarizeTruncation(t *testing.T) {
	assert := require.New(t)
	path := writeTestFile(t, "big.txt", strings.Repeat("0123456789", 20))

	extractor := &TextExtractor{MaxBytes: 50}
	summary, err := extractor.Summarize(path)
	assert.NoError(err)

	assert.True(summary.Text.Truncated, "content above the ceiling should be flagged")
	assert.Equal(50, summary.Text.CharCount)

	deep, err := extractor.Deep(path)
	assert.NoError(err)
	assert.Len(deep, 200, "deep extraction should ignore the indexing ceiling")
}

func TestRegistryDispatch(t *testing.T) {
	assert := require.New(t)
	registry := NewRegistry(newTestLogger(), 0)

	jsonPath := writeTestFile(t, "a.json", `{"x":1}`)
	summary, err := registry.Summarize(jsonPath, detect.CategoryStructuredData, "application/json")
	assert.NoError(err)
	assert.Equal("json", summary.Kind)

	// Unmatched category still returns a usable minimal summary
	summary, err = registry.Summarize(jsonPath, detect.CategoryMedia, "image/png")
	assert.NoError(err)
	assert.Equal("generic", summary.Kind)
	assert.Contains(summary.Preview, "image/png")

	_, err = registry.Deep(jsonPath, detect.CategoryMedia, "image/png")
	assert.Error(err, "deep extraction without a matching extractor should fail")
}

func TestRegistryPartialSummaryOnError(t *testing.T) {
	assert := require.New(t)
	registry := NewRegistry(newTestLogger(), 0)

	path := writeTestFile(t, "broken.json", `{"oops": `)
	summary, err := registry.Summarize(path, detect.CategoryStructuredData, "application/json")
	assert.Error(err)
	assert.NotNil(summary)
	assert.NotEmpty(summary.Err, "partial summary should carry the error flag")
}
