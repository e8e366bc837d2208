// Package persist defines the storage-engine boundary every other package
// in this module programs against: an ordered byte-keyed KV store with
// snapshot reads and atomic batch writes. Concrete engines live in
// subpackages (persist/badger is the only one shipped).
package persist

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Txn.Get when the key is absent.
var ErrKeyNotFound = errors.New("persist: key not found")

// Store is a durable, ordered key-value engine. Every document, index
// entry and scheduler job queue row in this module is
// ultimately a row in a Store: there is deliberately no second storage
// engine for any of those concerns (§2, §5 design notes).
type Store interface {
	// NewTransaction starts a read-only (update=false) or read-write
	// (update=true) transaction. Read-write transactions serialize
	// against each other at the engine level; callers needing
	// application-level OCC build it on top, they don't rely on the
	// engine to provide it.
	NewTransaction(update bool) Txn
	Close() error
}

// Txn is a single read or read-write transaction against a Store.
type Txn interface {
	// Get looks up key, returning ErrKeyNotFound if absent.
	Get(key []byte) ([]byte, error)
	// Set upserts key within the transaction. Only valid on an
	// update transaction.
	Set(key, value []byte) error
	// Delete removes key within the transaction. Only valid on an
	// update transaction.
	Delete(key []byte) error
	// NewIterator returns an iterator over keys with the given prefix,
	// in ascending key order unless opts.Reverse is set.
	NewIterator(opts IterOptions) Iterator
	// Commit finalizes a read-write transaction. A no-op for read-only
	// transactions, which need only Discard.
	Commit() error
	// Discard releases the transaction's resources without committing.
	// Safe to call after Commit; discards after a successful commit
	// are no-ops.
	Discard()
}

// IterOptions configures a prefix scan.
type IterOptions struct {
	Prefix        []byte
	Reverse       bool
	PrefetchSize  int
	PrefetchValue bool
}

// Iterator walks a key range opened by Txn.NewIterator.
type Iterator interface {
	Rewind()
	Seek(key []byte)
	Valid() bool
	Next()
	Key() []byte
	Value() ([]byte, error)
	Close()
}

// View runs fn in a read-only transaction, always discarding it afterward.
func View(s Store, fn func(txn Txn) error) error {
	txn := s.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

// Update runs fn in a read-write transaction, committing on success and
// discarding on error or panic.
func Update(s Store, fn func(txn Txn) error) error {
	txn := s.NewTransaction(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// Closer types support cancellable background work that needs to flush
// before Close returns, e.g. the index workers layered above a Store.
type Closer interface {
	Close(ctx context.Context) error
}
