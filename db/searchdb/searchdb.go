package searchdb

// DB is the persistent inverted index over document metadata, full text and
// structured tokens. Writes are batched and become visible to readers only at
// commit boundaries; readers always see the last fully committed state.
type DB interface {
	BuildIndex(documents []*Document) error
	DeleteDocuments(paths []string) error
	Search(query *Query) (*Response, error)
	GetDocument(path string) (*Result, bool, error)
	GetDocCount() (uint64, error)
	Close() error
}
