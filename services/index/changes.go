package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/levandor/ferret/db/kvdb"
	"github.com/levandor/ferret/logger"
)

// ChangeDetector decides per path whether re-indexing is needed, using a
// two-tier check: the cheap (size, mtime) comparison first, a content hash
// only for files that plausibly changed. The fingerprint cache is owned by
// the active indexing run and is never shared with the query path.
//
// The (size, mtime) fast path can miss a rewrite that preserves both; the
// tradeoff is accepted here rather than papered over with periodic forced
// hashing.
type ChangeDetector struct {
	logger logger.Logger
	store  kvdb.DB

	mu      sync.Mutex
	cache   map[string]kvdb.FileState
	pending map[string]kvdb.FileState

	hashCount atomic.Int64
}

func NewChangeDetector(logger logger.Logger, store kvdb.DB) *ChangeDetector {
	return &ChangeDetector{
		logger:  logger,
		store:   store,
		cache:   make(map[string]kvdb.FileState),
		pending: make(map[string]kvdb.FileState),
	}
}

// Load reads the whole fingerprint cache. A missing or corrupt cache degrades
// to an empty one, which means every file is treated as changed; it never
// fails the run.
func (d *ChangeDetector) Load() {
	entries, err := d.store.GetAll(kvdb.FilesBucket)
	if err != nil {
		d.logger.Warn("could not load change cache, treating all files as changed", "err", err.Error())
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for path, raw := range entries {
		var state kvdb.FileState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			d.logger.Warn("corrupt change cache entry, file will be re-indexed", "path", path, "err", err.Error())
			continue
		}
		d.cache[path] = state
	}
}

// Check reports whether a file needs re-indexing. When it returns true the
// returned state must be handed to Commit after the file is successfully
// extracted and buffered; unchanged files need no commit.
func (d *ChangeDetector) Check(file FileInfo) (bool, kvdb.FileState, error) {
	d.mu.Lock()
	cached, known := d.cache[file.Path]
	d.mu.Unlock()

	if known && cached.Size == file.Size && cached.Modified.Equal(file.ModTime) {
		// Fast path: no hashing for unchanged (size, mtime)
		return false, cached, nil
	}

	hash, err := d.hashFile(file.Path)
	if err != nil {
		return false, kvdb.FileState{}, fmt.Errorf("failed to hash %s: %w", file.Path, err)
	}

	state := kvdb.FileState{
		Path:     file.Path,
		Size:     file.Size,
		Modified: file.ModTime,
		Hash:     hash,
	}

	if known && cached.Hash == hash {
		// mtime rolled but content did not; refresh the fingerprint so the
		// next pass takes the fast path, skip re-extraction
		d.Commit(state)
		return false, state, nil
	}

	return true, state, nil
}

// Commit records a fingerprint for a processed file. Commits stay in memory
// until Save; a cancelled run persists only the files actually processed.
func (d *ChangeDetector) Commit(state kvdb.FileState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[state.Path] = state
	d.pending[state.Path] = state
}

// Forget drops a deleted path from the cache and the store.
func (d *ChangeDetector) Forget(path string) {
	d.mu.Lock()
	delete(d.cache, path)
	delete(d.pending, path)
	d.mu.Unlock()

	if err := d.store.Delete(kvdb.FilesBucket, path); err != nil {
		d.logger.Error("failed to remove change cache entry", "path", path, "err", err.Error())
	}
}

// Save persists all pending fingerprints in one transaction.
func (d *ChangeDetector) Save() error {
	d.mu.Lock()
	entries := make(map[string]string, len(d.pending))
	for path, state := range d.pending {
		raw, err := json.Marshal(state)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to marshal file state for %s: %w", path, err)
		}
		entries[path] = string(raw)
	}
	d.mu.Unlock()

	if err := d.store.SetMany(kvdb.FilesBucket, entries); err != nil {
		return fmt.Errorf("failed to save change cache: %w", err)
	}

	d.mu.Lock()
	d.pending = make(map[string]kvdb.FileState)
	d.mu.Unlock()

	return nil
}

// DeletedPaths returns cached paths that no longer exist on disk.
func (d *ChangeDetector) DeletedPaths() []string {
	d.mu.Lock()
	paths := make([]string, 0, len(d.cache))
	for path := range d.cache {
		paths = append(paths, path)
	}
	d.mu.Unlock()

	var deleted []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			deleted = append(deleted, path)
		}
	}

	return deleted
}

// State returns the cached fingerprint for a path, if any.
func (d *ChangeDetector) State(path string) (kvdb.FileState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.cache[path]
	return state, ok
}

// HashCount reports how many content hashes this run computed. The fast path
// must keep this at zero for unchanged trees.
func (d *ChangeDetector) HashCount() int64 {
	return d.hashCount.Load()
}

func (d *ChangeDetector) hashFile(path string) (string, error) {
	d.hashCount.Add(1)

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
