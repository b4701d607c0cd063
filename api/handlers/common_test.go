// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/levandor/ferret/config"
	"github.com/levandor/ferret/db/kvdb"
	"github.com/levandor/ferret/db/searchdb"
	"github.com/levandor/ferret/extract"
	"github.com/levandor/ferret/logger"
	"github.com/levandor/ferret/services/index"
	"github.com/levandor/ferret/services/search"
	"github.com/levandor/ferret/validation"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

var testFiles = map[string]string{
	"notes.txt":          "meeting notes: rotate the admin password next week",
	"config.json":        `{"server": {"host": "localhost"}, "token": "hunter2"}`,
	"subdir/table.csv":   "id,name,amount\n1,alice,10\n2,bob,20\n",
	"subdir/readme.md":   "# Project\n\nSome project documentation",
	"subdir/catalog.xml": `<?xml version="1.0"?><catalog><item>one</item></catalog>`,
}

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      map[string]string
	expectedStatus   int
	expectedResponse *response
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func setupTestServer(t *testing.T, assert *require.Assertions) (*gin.Engine, string) {

	t.Setenv("STORAGE_PATH", t.TempDir())

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	dataDir := t.TempDir()
	for relPath, content := range testFiles {
		fullPath := filepath.Join(dataDir, relPath)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		assert.NoError(err, "could not create test sub-directory")
		err = os.WriteFile(fullPath, []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}
	createHandlerTestDatabase(assert, filepath.Join(dataDir, "app.db"))

	testLogger := newTestLogger()

	searchDB, err := searchdb.New(testLogger, cfg)
	assert.NoError(err, "could not create search database")
	t.Cleanup(func() { searchDB.Close() })

	kvDB, err := kvdb.New(testLogger, cfg)
	assert.NoError(err, "could not create kv database")
	t.Cleanup(func() { kvDB.Close() })

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := extract.NewRegistry(testLogger, extract.DefaultMaxTextBytes)
	indexService := index.New(ctx, testLogger, searchDB, kvDB, registry, 4, cfg.GetMaxFileSize())
	searchService := search.New(testLogger, searchDB, registry)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupIndex(router, testLogger, indexService, validator)
	SetupSearch(router, testLogger, searchService)
	SetupStatus(router, testLogger, indexService, validator)
	SetupExtract(router, testLogger, searchService, validator)

	return router, dataDir
}

func createHandlerTestDatabase(assert *require.Assertions, path string) {
	db, err := sql.Open("sqlite3", path)
	assert.NoError(err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (name) VALUES ('alice'), ('bob');`)
	assert.NoError(err)
	assert.NoError(db.Close())
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]any, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?"
		for key, value := range queryParams {
			if endpoint[len(endpoint)-1] != '?' {
				endpoint = endpoint + "&"
			}
			endpoint = endpoint + key + "=" + value
		}
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}
