package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/levandor/ferret/config"
	"github.com/levandor/ferret/db/kvdb"
	"github.com/levandor/ferret/db/searchdb"
	"github.com/levandor/ferret/detect"
	"github.com/levandor/ferret/extract"
)

type testService struct {
	service  *Service
	searchDB *searchdb.BleveDB
	store    kvdb.DB
}

func setupTestService(t *testing.T, assert *require.Assertions, maxFileSize int64) *testService {
	t.Helper()
	t.Setenv("STORAGE_PATH", t.TempDir())

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	log := newTestLogger()

	store, err := kvdb.New(log, cfg)
	assert.NoError(err, "could not open key-value store")
	t.Cleanup(func() { store.Close() })

	searchDB, err := searchdb.New(log, cfg)
	assert.NoError(err, "could not create search database")
	t.Cleanup(func() { searchDB.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := extract.NewRegistry(log, extract.DefaultMaxTextBytes)
	service := New(ctx, log, searchDB, store, registry, 4, maxFileSize)

	return &testService{service: service, searchDB: searchDB, store: store}
}

func waitForRun(t *testing.T, assert *require.Assertions, service *Service, requestID string) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		record, err := service.GetStatus(requestID)
		assert.NoError(err)
		if record.Progress == ProgressStatusComplete || record.Progress == ProgressStatusFailed {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("index run did not finish in time")
	return nil
}

func createScenarioTree(t *testing.T, assert *require.Assertions) string {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite3", filepath.Join(dir, "app.db"))
	assert.NoError(err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, password_hash TEXT);
		INSERT INTO users (name, password_hash) VALUES ('alice', 'x'), ('bob', 'y');`)
	assert.NoError(err)
	assert.NoError(db.Close())

	assert.NoError(os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"server": {"host": "localhost", "port": 8080}, "debug": true}`), 0644))
	assert.NoError(os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("meeting notes from tuesday\naction items pending\n"), 0644))

	return dir
}

func TestBuildIndexesMixedTree(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)
	dir := createScenarioTree(t, assert)

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	record := waitForRun(t, assert, ts.service, "req-1")

	assert.Equal(ProgressStatusComplete, record.Progress)
	assert.NotNil(record.Stats)
	assert.Equal(3, record.Stats.TotalFiles)
	assert.Equal(3, record.Stats.IndexedFiles)
	assert.Equal(0, record.Stats.SkippedFiles)
	assert.Empty(record.Stats.Errors)
	assert.EqualValues(1, record.Stats.ByCategory["database"])
	assert.EqualValues(1, record.Stats.ByCategory["structureddata"])
	assert.EqualValues(1, record.Stats.ByCategory["text"])

	// The database's schema must be reachable through a structured query
	response, err := ts.searchDB.Search(&searchdb.Query{
		Structured: &searchdb.StructuredQuery{Kind: searchdb.StructuredSQLTable, Text: "users"},
	})
	assert.NoError(err)
	assert.Len(response.Results, 1)
	assert.Equal(filepath.Join(dir, "app.db"), response.Results[0].Path)

	status, err := ts.service.GetFileStatus(filepath.Join(dir, "notes.txt"))
	assert.NoError(err)
	assert.Equal(StatusIndexed, status.Status)
	assert.True(status.Indexed)
}

func TestBuildIsIdempotent(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)
	dir := createScenarioTree(t, assert)

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	first := waitForRun(t, assert, ts.service, "req-1")
	assert.Equal(3, first.Stats.IndexedFiles)

	assert.NoError(ts.service.Build(dir, nil, "req-2"))
	second := waitForRun(t, assert, ts.service, "req-2")
	assert.Equal(3, second.Stats.TotalFiles)
	assert.Equal(0, second.Stats.IndexedFiles, "an unchanged tree must re-index nothing")

	// Change one file and only that file is re-indexed
	notes := filepath.Join(dir, "notes.txt")
	assert.NoError(os.WriteFile(notes, []byte("rewritten notes with much more detail\n"), 0644))
	future := time.Now().Add(time.Minute)
	assert.NoError(os.Chtimes(notes, future, future))

	assert.NoError(ts.service.Build(dir, nil, "req-3"))
	third := waitForRun(t, assert, ts.service, "req-3")
	assert.Equal(1, third.Stats.IndexedFiles)
}

func TestBuildRecordsPerFileErrors(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)
	dir := createScenarioTree(t, assert)

	assert.NoError(os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello\n"), 0644))
	locked := filepath.Join(dir, "locked.txt")
	assert.NoError(os.WriteFile(locked, []byte("secret\n"), 0644))
	assert.NoError(os.Chmod(locked, 0000))
	t.Cleanup(func() { os.Chmod(locked, 0644) })

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	record := waitForRun(t, assert, ts.service, "req-1")

	assert.Equal(ProgressStatusComplete, record.Progress, "one bad file must not fail the run")
	assert.Equal(5, record.Stats.TotalFiles)
	assert.Equal(4, record.Stats.IndexedFiles)
	assert.Len(record.Stats.Errors, 1)
	assert.Equal(locked, record.Stats.Errors[0].Path)
}

func TestBuildRemovesDeletedFiles(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)
	dir := createScenarioTree(t, assert)

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	waitForRun(t, assert, ts.service, "req-1")

	notes := filepath.Join(dir, "notes.txt")
	_, found, err := ts.searchDB.GetDocument(notes)
	assert.NoError(err)
	assert.True(found)

	assert.NoError(os.Remove(notes))

	assert.NoError(ts.service.Build(dir, nil, "req-2"))
	record := waitForRun(t, assert, ts.service, "req-2")
	assert.Equal(2, record.Stats.TotalFiles)

	_, found, err = ts.searchDB.GetDocument(notes)
	assert.NoError(err)
	assert.False(found, "deleted files must leave the index")

	status, err := ts.service.GetFileStatus(notes)
	assert.NoError(err)
	assert.Equal(StatusNotIndexed, status.Status)
}

func TestBuildSkipsOversizedFiles(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 64)
	dir := t.TempDir()

	assert.NoError(os.WriteFile(filepath.Join(dir, "small.txt"), []byte("fits\n"), 0644))
	assert.NoError(os.WriteFile(filepath.Join(dir, "large.txt"),
		[]byte("this file is comfortably above the sixty four byte ceiling set for the run\n"), 0644))

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	record := waitForRun(t, assert, ts.service, "req-1")

	assert.Equal(2, record.Stats.TotalFiles)
	assert.Equal(1, record.Stats.IndexedFiles)
	assert.Equal(1, record.Stats.SkippedFiles)
}

func TestBuildRejectedWhileRunInProgress(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)

	dir := t.TempDir()
	for i := range 400 {
		path := filepath.Join(dir, fmt.Sprintf("file-%03d.txt", i))
		assert.NoError(os.WriteFile(path, []byte("some file content to hash and extract\n"), 0644))
	}

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	err := ts.service.Build(dir, nil, "req-2")
	assert.ErrorIs(err, ErrIndexingInProgress)

	waitForRun(t, assert, ts.service, "req-1")
}

func TestGetFileStatusOutdated(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)
	dir := createScenarioTree(t, assert)

	assert.NoError(ts.service.Build(dir, nil, "req-1"))
	waitForRun(t, assert, ts.service, "req-1")

	notes := filepath.Join(dir, "notes.txt")
	assert.NoError(os.WriteFile(notes, []byte("changed after indexing\n"), 0644))
	future := time.Now().Add(time.Minute)
	assert.NoError(os.Chtimes(notes, future, future))

	status, err := ts.service.GetFileStatus(notes)
	assert.NoError(err)
	assert.Equal(StatusOutdated, status.Status)
	assert.True(status.Indexed)
}

func TestBuildCancellationKeepsProcessedFiles(t *testing.T) {
	assert := require.New(t)
	t.Setenv("STORAGE_PATH", t.TempDir())

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	log := newTestLogger()

	store, err := kvdb.New(log, cfg)
	assert.NoError(err, "could not open key-value store")
	t.Cleanup(func() { store.Close() })

	searchDB, err := searchdb.New(log, cfg)
	assert.NoError(err, "could not create search database")
	t.Cleanup(func() { searchDB.Close() })

	registry := extract.NewRegistry(log, extract.DefaultMaxTextBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// A single worker keeps the extraction phase long enough to cancel into
	service := New(ctx, log, searchDB, store, registry, 1, 0)

	const totalFiles = 2000
	dir := t.TempDir()
	content := []byte(fmt.Sprintf("file content padding %s\n", string(make([]byte, 8192))))
	for i := range totalFiles {
		path := filepath.Join(dir, fmt.Sprintf("file-%04d.txt", i))
		assert.NoError(os.WriteFile(path, content, 0644))
	}

	assert.NoError(service.Build(dir, nil, "req-1"))

	// Cancel once the extraction phase has started
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		record, err := service.GetStatus("req-1")
		assert.NoError(err)
		if record.Progress >= ProgressStatusStep2 || record.Progress == ProgressStatusFailed {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	first := waitForRun(t, assert, service, "req-1")
	assert.Equal(ProgressStatusFailed, first.Progress, "a cancelled run must not report completion")
	assert.NotNil(first.Stats)
	assert.Equal(totalFiles, first.Stats.TotalFiles)
	assert.Greater(first.Stats.IndexedFiles, 0, "files processed before the cancel should be committed")
	assert.Less(first.Stats.IndexedFiles, totalFiles, "the run should stop before processing everything")

	// Fingerprints for processed files persisted and unprocessed files stay
	// dirty, so a fresh run picks up exactly the remainder
	ctx2, cancel2 := context.WithCancel(context.Background())
	t.Cleanup(cancel2)
	resumed := New(ctx2, log, searchDB, store, registry, 4, 0)

	assert.NoError(resumed.Build(dir, nil, "req-2"))
	second := waitForRun(t, assert, resumed, "req-2")
	assert.Equal(ProgressStatusComplete, second.Progress)
	assert.Equal(totalFiles-first.Stats.IndexedFiles, second.Stats.IndexedFiles)
}

func TestGetFileStatusPathBoundary(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)

	ts.service.mu.Lock()
	ts.service.runningRoot = "/data"
	ts.service.mu.Unlock()

	status, err := ts.service.GetFileStatus("/data/file.txt")
	assert.NoError(err)
	assert.Equal(StatusIndexing, status.Status)

	status, err = ts.service.GetFileStatus("/data")
	assert.NoError(err)
	assert.Equal(StatusIndexing, status.Status)

	// A sibling sharing the name prefix is not part of the run
	status, err = ts.service.GetFileStatus("/database.db")
	assert.NoError(err)
	assert.Equal(StatusNotIndexed, status.Status)
}

func TestBuildDocumentCarriesCreatedTime(t *testing.T) {
	assert := require.New(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	file := FileInfo{
		Path:    "/data/notes.txt",
		Name:    "notes.txt",
		Size:    10,
		ModTime: time.Now(),
		Created: created,
	}

	doc := buildDocument(file, detect.Classify(nil, file.Name), nil, "abc123")
	assert.True(doc.Created.Equal(created), "creation time from file metadata must reach the document")
}

func TestGetStatusUnknownRequest(t *testing.T) {
	assert := require.New(t)
	ts := setupTestService(t, assert, 0)

	_, err := ts.service.GetStatus("no-such-request")
	assert.Error(err)
}
