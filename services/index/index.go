package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/levandor/ferret/db/kvdb"
	"github.com/levandor/ferret/db/searchdb"
	"github.com/levandor/ferret/detect"
	"github.com/levandor/ferret/extract"
	"github.com/levandor/ferret/logger"
)

// Indexer represents the search database operations needed for index runs
type Indexer interface {
	BuildIndex(documents []*searchdb.Document) error
	DeleteDocuments(paths []string) error
	GetDocument(path string) (*searchdb.Result, bool, error)
}

const (
	ProgressStatusStep1    = 10
	ProgressStatusStep2    = 20
	ProgressStatusComplete = 100
	ProgressStatusFailed   = -1

	maxIndexBuildingTime = 2 * time.Hour
)

// ErrIndexingInProgress is returned when a run is requested while another one
// holds the writer.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Service orchestrates scan, change detection, classification, extraction and
// the final commit. It is the single writer: runs are serialized through one
// background loop and a second request while one is in flight is rejected,
// never interleaved.
type Service struct {
	logger      logger.Logger
	indexer     Indexer
	store       kvdb.DB
	registry    *extract.Registry
	workers     int
	maxFileSize int64
	buildIndexC chan indexRequest

	mu          sync.Mutex
	runningRoot string
}

type indexRequest struct {
	rootPath       string
	excludeFolders []string
	requestID      string
}

// fileOutcome is one worker's result for one file.
type fileOutcome struct {
	doc      *searchdb.Document
	state    kvdb.FileState
	category detect.Category
	size     int64
	err      *FileError
	indexed  bool
	skipped  bool
}

func New(ctx context.Context, logger logger.Logger, indexer Indexer, store kvdb.DB, registry *extract.Registry, workers int, maxFileSize int64) *Service {
	indexService := &Service{
		logger:      logger,
		indexer:     indexer,
		store:       store,
		registry:    registry,
		workers:     max(1, workers),
		maxFileSize: maxFileSize,
		buildIndexC: make(chan indexRequest),
	}

	go indexService.run(ctx)
	return indexService
}

// Build submits an index run. The call returns immediately; progress and
// final stats are delivered through GetStatus.
func (s *Service) Build(rootPath string, excludeFolders []string, requestID string) error {

	s.setRequestRecord(requestID, RunRecord{Progress: 0})

	select {
	case s.buildIndexC <- indexRequest{rootPath: rootPath, excludeFolders: excludeFolders, requestID: requestID}:
		return nil
	default:
		s.logger.Warn("request to index while indexing is already in progress")
		if err := s.store.Delete(kvdb.RequestsBucket, requestID); err != nil {
			s.logger.Error("failed to drop rejected request record", "request_id", requestID, "err", err.Error())
		}
		return ErrIndexingInProgress
	}
}

// GetStatus retrieves the run record for an index request.
func (s *Service) GetStatus(requestID string) (*RunRecord, error) {
	value, err := s.store.Get(kvdb.RequestsBucket, requestID)
	if err != nil {
		return nil, fmt.Errorf("request not found: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("invalid run record: %w", err)
	}

	return &record, nil
}

// GetFileStatus reports one path's standing in the index.
func (s *Service) GetFileStatus(path string) (*FileStatus, error) {
	s.mu.Lock()
	runningRoot := s.runningRoot
	s.mu.Unlock()

	if underRoot(path, runningRoot) {
		return &FileStatus{Status: StatusIndexing}, nil
	}

	doc, found, err := s.indexer.GetDocument(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return &FileStatus{Status: StatusNotIndexed}, nil
	}

	if doc.Error != "" {
		return &FileStatus{Indexed: true, IndexedAt: doc.IndexedAt, Status: StatusError}, nil
	}

	status := &FileStatus{Indexed: true, IndexedAt: doc.IndexedAt, Status: StatusIndexed}

	// Outdated when the on-disk fingerprint no longer matches the cache
	raw, err := s.store.Get(kvdb.FilesBucket, path)
	if err != nil {
		return status, nil
	}
	var state kvdb.FileState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return status, nil
	}
	if info, err := os.Stat(path); err == nil {
		if info.Size() != state.Size || !info.ModTime().Equal(state.Modified) {
			status.Status = StatusOutdated
		}
	}

	return status, nil
}

// underRoot reports whether path is root itself or inside it. A plain prefix
// check is not enough: /database.db is not under /data.
func underRoot(path, root string) bool {
	if root == "" {
		return false
	}
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func (s *Service) run(ctx context.Context) {

	for {
		select {
		case req := <-s.buildIndexC:
			runCtx, cancel := context.WithTimeout(ctx, maxIndexBuildingTime)
			s.buildIndex(runCtx, req)
			cancel()
		case <-ctx.Done():
			s.logger.Info("index service stopped", "reason", ctx.Err())
			return
		}
	}
}

func (s *Service) buildIndex(ctx context.Context, req indexRequest) {
	start := time.Now()

	s.mu.Lock()
	s.runningRoot = req.rootPath
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runningRoot = ""
		s.mu.Unlock()
	}()

	detector := NewChangeDetector(s.logger, s.store)
	detector.Load()

	files, err := s.discoverFiles(req.rootPath, req.excludeFolders)
	if err != nil {
		s.failRun(req.requestID, "scan failed", err)
		return
	}

	s.setRequestRecord(req.requestID, RunRecord{Progress: ProgressStatusStep1})

	// Reconcile deletions before indexing new and modified files
	if err := s.removeDeletedFiles(detector); err != nil {
		s.failRun(req.requestID, "failed to remove deleted files", err)
		return
	}

	s.setRequestRecord(req.requestID, RunRecord{Progress: ProgressStatusStep2})

	outcomes := s.extractAll(ctx, files, detector)

	stats := &IndexStats{
		TotalFiles: len(files),
		ByCategory: make(map[string]int64),
	}

	var documents []*searchdb.Document
	var processed []kvdb.FileState
	for _, outcome := range outcomes {
		stats.TotalSize += outcome.size
		if outcome.skipped {
			stats.SkippedFiles++
		}
		if outcome.err != nil {
			stats.Errors = append(stats.Errors, *outcome.err)
		}
		if outcome.doc != nil {
			documents = append(documents, outcome.doc)
			processed = append(processed, outcome.state)
			stats.ByCategory[string(outcome.category)]++
		}
		if outcome.indexed {
			stats.IndexedFiles++
		}
	}
	// Deterministic stats regardless of worker completion order
	sort.Slice(stats.Errors, func(i, j int) bool { return stats.Errors[i].Path < stats.Errors[j].Path })

	// One commit after the parallel phase; a store failure is fatal to the
	// run but the previously committed state stays intact
	if err := s.indexer.BuildIndex(documents); err != nil {
		s.failRun(req.requestID, "failed to write index", err)
		return
	}

	for _, state := range processed {
		detector.Commit(state)
	}
	if err := detector.Save(); err != nil {
		s.failRun(req.requestID, "failed to save change cache", err)
		return
	}

	stats.DurationMS = time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		// Cancelled: buffered work was committed and the cache covers only
		// processed files, but the run itself did not complete
		s.logger.Warn("indexing cancelled", "request_id", req.requestID, "err", ctx.Err())
		s.setRequestRecord(req.requestID, RunRecord{Progress: ProgressStatusFailed, Stats: stats})
		return
	}

	s.logger.Info("indexing complete",
		"request_id", req.requestID,
		"total_files", stats.TotalFiles,
		"indexed_files", stats.IndexedFiles,
		"errors", len(stats.Errors),
		"duration_ms", stats.DurationMS)

	s.setRequestRecord(req.requestID, RunRecord{Progress: ProgressStatusComplete, Stats: stats})
}

// extractAll fans files out over a bounded worker pool. Each worker's failure
// is captured as a per-file error; one corrupt file never blocks the rest of
// the tree. Cancellation is cooperative at per-file granularity.
func (s *Service) extractAll(ctx context.Context, files []FileInfo, detector *ChangeDetector) []fileOutcome {
	outcomeC := make(chan fileOutcome, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for _, file := range files {
		group.Go(func() error {
			select {
			case <-groupCtx.Done():
				return nil
			default:
			}
			outcomeC <- s.processFile(file, detector)
			return nil
		})
	}

	group.Wait()
	close(outcomeC)

	outcomes := make([]fileOutcome, 0, len(files))
	for outcome := range outcomeC {
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// processFile is the per-file unit of work: change gate, classify, extract,
// build the document for the write buffer.
func (s *Service) processFile(file FileInfo, detector *ChangeDetector) fileOutcome {
	outcome := fileOutcome{size: file.Size}

	if s.maxFileSize > 0 && file.Size > s.maxFileSize {
		s.logger.Warn("skipping file above size ceiling", "path", file.Path, "size", file.Size)
		outcome.skipped = true
		return outcome
	}

	dirty, state, err := detector.Check(file)
	if err != nil {
		outcome.err = &FileError{Path: file.Path, Error: err.Error()}
		return outcome
	}
	if !dirty {
		return outcome
	}

	header, err := detect.ReadHeader(file.Path)
	if err != nil {
		outcome.err = &FileError{Path: file.Path, Error: err.Error()}
		return outcome
	}

	detected := detect.Classify(header, file.Name)

	summary, err := s.registry.Summarize(file.Path, detected.Category, detected.MIMEType)
	if err != nil {
		// Partial summaries still get indexed; the failure is recorded
		s.logger.Warn("extraction failed", "path", file.Path, "err", err.Error())
		outcome.err = &FileError{Path: file.Path, Error: err.Error()}
	}

	outcome.doc = buildDocument(file, detected, summary, state.Hash)
	outcome.state = state
	outcome.category = detected.Category
	outcome.indexed = true

	return outcome
}

func (s *Service) removeDeletedFiles(detector *ChangeDetector) error {
	deletedFiles := detector.DeletedPaths()
	if len(deletedFiles) == 0 {
		return nil
	}

	s.logger.Info("removing deleted files from index", "deleted_files", len(deletedFiles))
	if err := s.indexer.DeleteDocuments(deletedFiles); err != nil {
		s.logger.Error("failed to delete documents from search index", "err", err.Error())
		return fmt.Errorf("failed to delete documents from search index: %w", err)
	}

	for _, path := range deletedFiles {
		detector.Forget(path)
	}

	return nil
}

func (s *Service) failRun(requestID, msg string, err error) {
	s.logger.Error("failed to create index", "request_id", requestID, "msg", msg, "err", err.Error())
	s.setRequestRecord(requestID, RunRecord{Progress: ProgressStatusFailed})
}

func (s *Service) setRequestRecord(requestID string, record RunRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("failed to marshal run record", "request_id", requestID, "err", err.Error())
		return
	}
	if err := s.store.Set(kvdb.RequestsBucket, requestID, string(raw)); err != nil {
		s.logger.Error("failed to update request status", "request_id", requestID, "err", err.Error())
	}
}

func buildDocument(file FileInfo, detected detect.Detection, summary *extract.Summary, hash string) *searchdb.Document {
	doc := &searchdb.Document{
		Path:        file.Path,
		Name:        file.Name,
		Size:        file.Size,
		Modified:    file.ModTime.UTC(),
		Created:     file.Created,
		Hash:        hash,
		MIMEType:    detected.MIMEType,
		Category:    string(detected.Category),
		MagicHeader: detected.MagicHeader,
		Extension:   strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Name)), "."),
		IndexedAt:   time.Now().UTC(),
	}

	if summary == nil {
		return doc
	}

	doc.Preview = summary.Preview
	doc.Content = summary.Content
	doc.Error = summary.Err

	switch {
	case summary.Sqlite != nil:
		tableNames := make([]string, 0, len(summary.Sqlite.Tables))
		var columns []string
		for _, table := range summary.Sqlite.Tables {
			tableNames = append(tableNames, table.Name)
			for _, col := range table.Columns {
				columns = append(columns, col.Name)
			}
		}
		doc.Tables = strings.Join(tableNames, " ")
		doc.Columns = strings.Join(columns, " ")

	case summary.JSON != nil:
		doc.JSONPaths = summary.JSON.PathTokens()

	case summary.CSV != nil:
		doc.Columns = summary.CSV.ColumnTokens()

	case summary.Excel != nil:
		doc.Sheets = summary.Excel.SheetTokens()
		doc.Columns = summary.Excel.ColumnTokens()
	}

	return doc
}
