package store

import (
	"bytes"
	"sync"

	"github.com/riftdb/rift/persist"
)

// Handle is a live reference to a snapshot ts; holding one holds back
// retention below that ts, per §3's Lifecycle note on subscribers.
type Handle struct {
	ts       int64
	released bool
	mu       sync.Mutex
	release  func(int64)
}

// Release returns the handle; safe to call more than once.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.release(h.ts)
}

// Retention is the §4.3 retention manager: tracks min_snapshot_ts across
// every live handle and periodically compacts persisted revisions and
// tombstones below it.
type Retention struct {
	mu   sync.Mutex
	refs map[int64]int
	db   persist.Store
}

func NewRetention(db persist.Store) *Retention {
	return &Retention{refs: make(map[int64]int), db: db}
}

// Acquire pins ts alive until the returned handle is released.
func (r *Retention) Acquire(ts int64) *Handle {
	r.mu.Lock()
	r.refs[ts]++
	r.mu.Unlock()
	return &Handle{ts: ts, release: r.release}
}

func (r *Retention) release(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[ts]--
	if r.refs[ts] <= 0 {
		delete(r.refs, ts)
	}
}

// MinSnapshotTS returns the minimum ts across every live handle, or
// latestTS if nothing is pinned (nothing holds retention back).
func (r *Retention) MinSnapshotTS(latestTS int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	min := latestTS
	for ts := range r.refs {
		if ts < min {
			min = ts
		}
	}
	return min
}

// CompactBelow physically removes document and index entry revisions
// superseded by a newer revision whose ts is <= belowTS, and removes
// tombstones whose commit ts <= belowTS (§4.3, §3 Lifecycle). It is safe
// to call concurrently with commits: it only ever deletes revisions with
// ts <= belowTS that are superseded or are themselves tombstones.
func (r *Retention) CompactBelow(belowTS int64) error {
	if err := r.compactPrefix(docPrefixByte, belowTS, docGroupKey); err != nil {
		return err
	}
	return r.compactPrefix(indexPrefixByte, belowTS, indexGroupKey)
}

// docGroupKey strips the trailing 8-byte ts suffix, leaving the
// tablet_id|doc_id grouping key.
func docGroupKey(key []byte) []byte {
	if len(key) < 8 {
		return key
	}
	return key[:len(key)-8]
}

func indexGroupKey(key []byte) []byte {
	if len(key) < 8 {
		return key
	}
	return key[:len(key)-8]
}

func (r *Retention) compactPrefix(prefixByte byte, belowTS int64, groupOf func([]byte) []byte) error {
	return persist.Update(r.db, func(txn persist.Txn) error {
		it := txn.NewIterator(persist.IterOptions{Prefix: []byte{prefixByte}})
		defer it.Close()

		var curGroup []byte
		var survivorKey []byte
		var survivorTomb bool
		var toDelete [][]byte
		flush := func() error {
			if survivorTomb && survivorKey != nil {
				toDelete = append(toDelete, survivorKey)
			}
			for _, k := range toDelete {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			toDelete = toDelete[:0]
			return nil
		}

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Key()
			g := groupOf(k)
			ts := int64(beUint64(k[len(k)-8:]))
			if curGroup == nil || !bytes.Equal(curGroup, g) {
				if err := flush(); err != nil {
					return err
				}
				curGroup = append([]byte(nil), g...)
				survivorKey = nil
				survivorTomb = false
			}
			if ts <= belowTS {
				if survivorKey != nil {
					toDelete = append(toDelete, survivorKey)
				}
				survivorKey = append([]byte(nil), k...)
				val, err := it.Value()
				if err != nil {
					return err
				}
				survivorTomb = (prefixByte == docPrefixByte && len(val) > 0 && val[0] != 0) ||
					(prefixByte == indexPrefixByte && len(val) == 17 && val[16] != 0)
			} else if survivorKey == nil {
				// No revision <= belowTS yet for this group; keep everything.
			}
		}
		return flush()
	})
}
