package kvdb

// DB is the key-value store holding indexer state: per-file fingerprints in
// the files bucket and per-run progress records in the requests bucket.
type DB interface {
	Set(bucket, key, value string) error
	SetMany(bucket string, entries map[string]string) error
	Get(bucket, key string) (string, error)
	Delete(bucket, key string) error
	GetAll(bucket string) (map[string]string, error)
	Close() error
}
