package index

import "time"

// FileInfo is one scanned file, as discovered by the directory walk.
// Created is zero when the filesystem records no birth time.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Created time.Time
}

// FileError records a single file's failure without failing the run.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IndexStats is produced once per run and immutable afterwards.
type IndexStats struct {
	TotalFiles   int              `json:"total_files"`
	TotalSize    int64            `json:"total_size"`
	IndexedFiles int              `json:"indexed_files"`
	SkippedFiles int              `json:"skipped_files"`
	DurationMS   int64            `json:"duration_ms"`
	ByCategory   map[string]int64 `json:"by_category"`
	Errors       []FileError      `json:"errors"`
}

// RunRecord is the persisted state of one index request: progress percentage
// plus final stats once the run completes.
type RunRecord struct {
	Progress int         `json:"progress"`
	Stats    *IndexStats `json:"stats,omitempty"`
}

// FileStatus values for the per-path status lookup.
const (
	StatusNotIndexed = "not_indexed"
	StatusIndexing   = "indexing"
	StatusIndexed    = "indexed"
	StatusError      = "error"
	StatusOutdated   = "outdated"
)

// FileStatus describes one path's standing in the index.
type FileStatus struct {
	Indexed   bool   `json:"indexed"`
	IndexedAt string `json:"indexed_at,omitempty"`
	Status    string `json:"status"`
}
