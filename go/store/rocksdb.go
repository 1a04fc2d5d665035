package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jgraettinger/gorocksdb"
)

// listMerge implements RocksDB's associative merge operator over the list
// key space: each Append becomes a Merge operation rather than a
// read-modify-write Put, so concurrent appenders never race on the blob.
type listMerge struct{}

func (listMerge) Name() string { return "reviewfilter.list.v1" }

func (listMerge) FullMerge(key, existingValue []byte, operands [][]byte) ([]byte, bool) {
	var out = append([]byte(nil), existingValue...)
	for _, op := range operands {
		out = append(out, op...)
	}
	return out, true
}

func (listMerge) PartialMerge(key, left, right []byte) ([]byte, bool) {
	return append(append([]byte(nil), left...), right...), true
}

// RocksDB is the production Store implementation: one RocksDB instance per
// worker, rooted at a per-worker directory (spec §6 storage_directory). It
// must not be shared between workers.
type RocksDB struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

// Open creates or reopens a RocksDB-backed Store at dir.
func Open(dir string) (*RocksDB, error) {
	var opts = gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetMergeOperator(listMerge{})

	db, err := gorocksdb.OpenDb(opts, dir)
	if err != nil {
		return nil, fmt.Errorf("store: opening rocksdb at %q: %w", dir, err)
	}

	var wo = gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(true) // fsync before return: spec §4.3's append/put durability contract.

	return &RocksDB{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: wo,
	}, nil
}

var _ Store = (*RocksDB)(nil)

func (s *RocksDB) Append(_ context.Context, key string, record []byte) error {
	if err := s.db.Merge(s.wo, []byte(key), encodeRecord(record)); err != nil {
		return fmt.Errorf("store: append %q: %w", key, err)
	}
	return nil
}

func (s *RocksDB) Put(_ context.Context, key string, value []byte) error {
	if err := s.db.Put(s.wo, []byte(key), value); err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	return nil
}

func (s *RocksDB) Get(_ context.Context, key string) ([]byte, bool, error) {
	slice, err := s.db.Get(s.ro, []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, false, nil
	}
	return append([]byte(nil), slice.Data()...), true, nil
}

func (s *RocksDB) Keys(_ context.Context, prefix string) ([]KeyRecords, error) {
	var it = s.db.NewIterator(s.ro)
	defer it.Close()

	var out []KeyRecords
	for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
		var key = string(it.Key().Data())
		it.Key().Free()
		if !strings.HasPrefix(key, prefix) {
			it.Value().Free()
			break
		}
		var value = append([]byte(nil), it.Value().Data()...)
		it.Value().Free()
		out = append(out, KeyRecords{Key: key, Records: splitRecords(value)})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating prefix %q: %w", prefix, err)
	}
	return out, nil
}

func (s *RocksDB) DeleteKeys(_ context.Context, key string) error {
	if err := s.db.Delete(s.wo, []byte(key)); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

func (s *RocksDB) Close() error {
	s.ro.Destroy()
	s.wo.Destroy()
	s.db.Close()
	return nil
}
