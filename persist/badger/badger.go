// Package badger adapts github.com/dgraph-io/badger/v4 to the persist.Store
// interface, generalized from the teacher's dynamodb/ddbstore.Store, which
// opened a single *badger.DB and wrapped txn.Update/txn.View directly.
package badger

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/riftdb/rift/persist"
	"github.com/riftdb/rift/rifterr"
)

// Options configures the badger-backed Store.
type Options struct {
	// Path to the database directory. Empty means in-memory.
	Path string
	// InMemory forces in-memory mode even when Path is set, used by tests.
	InMemory bool
	// Logger receives badger's internal log lines. Nil disables logging,
	// matching the teacher's default of suppressing badger's own logger
	// in favor of the structured logger the rest of this module uses.
	Logger badger.Logger
}

// Store wraps a *badger.DB behind the persist.Store interface.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a badger database at opts.Path.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, rifterr.PersistenceUnavailable(err, "open badger db at %q", opts.Path)
	}
	return &Store{db: db}, nil
}

var _ persist.Store = (*Store)(nil)

func (s *Store) NewTransaction(update bool) persist.Txn {
	return &txn{t: s.db.NewTransaction(update)}
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return rifterr.PersistenceUnavailable(err, "close badger db")
	}
	return nil
}

// RunValueLogGC runs badger's value-log garbage collection once, returning
// nil if nothing was reclaimed. Intended to be called periodically by the
// retention/compaction worker.
func (s *Store) RunValueLogGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("run value log gc: %w", err)
	}
	return nil
}

type txn struct {
	t *badger.Txn
}

var _ persist.Txn = (*txn)(nil)

func (x *txn) Get(key []byte) ([]byte, error) {
	item, err := x.t.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, persist.ErrKeyNotFound
	}
	if err != nil {
		return nil, rifterr.PersistenceUnavailable(err, "get key")
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append(out, val...)
		return nil
	})
	if err != nil {
		return nil, rifterr.PersistenceUnavailable(err, "read value")
	}
	return out, nil
}

func (x *txn) Set(key, value []byte) error {
	if err := x.t.Set(key, value); err != nil {
		return rifterr.PersistenceUnavailable(err, "set key")
	}
	return nil
}

func (x *txn) Delete(key []byte) error {
	if err := x.t.Delete(key); err != nil {
		return rifterr.PersistenceUnavailable(err, "delete key")
	}
	return nil
}

func (x *txn) NewIterator(opts persist.IterOptions) persist.Iterator {
	bopts := badger.DefaultIteratorOptions
	bopts.Reverse = opts.Reverse
	bopts.Prefix = opts.Prefix
	if opts.PrefetchSize > 0 {
		bopts.PrefetchSize = opts.PrefetchSize
	}
	bopts.PrefetchValues = opts.PrefetchValue
	return &iterator{it: x.t.NewIterator(bopts), prefix: opts.Prefix, reverse: opts.Reverse}
}

func (x *txn) Commit() error {
	if err := x.t.Commit(); err != nil {
		if err == badger.ErrConflict {
			return rifterr.OCC("badger detected a write-write conflict")
		}
		return rifterr.PersistenceUnavailable(err, "commit transaction")
	}
	return nil
}

func (x *txn) Discard() {
	x.t.Discard()
}

type iterator struct {
	it      *badger.Iterator
	prefix  []byte
	reverse bool
}

var _ persist.Iterator = (*iterator)(nil)

func (i *iterator) Rewind() {
	if i.reverse && len(i.prefix) > 0 {
		i.it.Seek(prefixUpperBound(i.prefix))
		return
	}
	i.it.Rewind()
}

func (i *iterator) Seek(key []byte) { i.it.Seek(key) }
func (i *iterator) Valid() bool     { return i.it.ValidForPrefix(i.prefix) }
func (i *iterator) Next()           { i.it.Next() }
func (i *iterator) Key() []byte     { return i.it.Item().KeyCopy(nil) }

func (i *iterator) Value() ([]byte, error) {
	var out []byte
	err := i.it.Item().Value(func(val []byte) error {
		out = append(out, val...)
		return nil
	})
	if err != nil {
		return nil, rifterr.PersistenceUnavailable(err, "read iterator value")
	}
	return out, nil
}

func (i *iterator) Close() { i.it.Close() }

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, used to seek a reverse iterator to the end of its range.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return append(upper, 0xFF)
}
