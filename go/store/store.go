// Package store persists the review-filter's per-client book index and EOF
// bookkeeping so a shard can rebuild its full state after a crash. It
// exposes exactly the five operations spec §4.3 names — append, put, get,
// get_keys, delete_keys — over a single embedded RocksDB instance.
package store

import "context"

// Store is the persistence contract the filter core depends on. One key
// space holds append-only lists (the book index, keyed BOOKS_<client_id>);
// a second holds overwrite snapshots (EOFS, REQUEUE_EOF).
//
// Put must be crash-atomic. Append must be durable (fsynced) before it
// returns. Neither needs to be atomic with respect to the other: recovery
// tolerates a truncated trailing record in an appended list.
type Store interface {
	// Append durably adds record to the list stored under key, creating the
	// list if it does not yet exist.
	Append(ctx context.Context, key string, record []byte) error

	// Put atomically overwrites the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Keys returns every key with the given prefix, along with the records
	// of any list stored under it. For BOOKS_<client_id> keys the records
	// slice holds one element per appended (title, author) pair.
	Keys(ctx context.Context, prefix string) ([]KeyRecords, error)

	// DeleteKeys removes key (and any list stored under it) entirely.
	DeleteKeys(ctx context.Context, key string) error

	// Close releases the underlying database handle.
	Close() error
}

// KeyRecords is one key's full state as returned by Keys: the key itself,
// and the ordered list of records appended under it (empty for a bare
// snapshot key that was Put rather than Append-ed to).
type KeyRecords struct {
	Key     string
	Records [][]byte
}
