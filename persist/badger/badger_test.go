package badger

import (
	"testing"

	"github.com/riftdb/rift/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	s := newTestStore(t)

	err := persist.Update(s, func(txn persist.Txn) error {
		return txn.Set([]byte("a"), []byte("1"))
	})
	require.NoError(t, err)

	var got []byte
	err = persist.View(s, func(txn persist.Txn) error {
		var err error
		got, err = txn.Get([]byte("a"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	err = persist.Update(s, func(txn persist.Txn) error {
		return txn.Delete([]byte("a"))
	})
	require.NoError(t, err)

	err = persist.View(s, func(txn persist.Txn) error {
		_, err := txn.Get([]byte("a"))
		return err
	})
	assert.ErrorIs(t, err, persist.ErrKeyNotFound)
}

func TestIteratorOrderAndPrefix(t *testing.T) {
	s := newTestStore(t)

	keys := []string{"x/1", "x/2", "x/3", "y/1"}
	err := persist.Update(s, func(txn persist.Txn) error {
		for _, k := range keys {
			if err := txn.Set([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = persist.View(s, func(txn persist.Txn) error {
		it := txn.NewIterator(persist.IterOptions{Prefix: []byte("x/")})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			seen = append(seen, string(it.Key()))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x/1", "x/2", "x/3"}, seen)
}

func TestIteratorReverse(t *testing.T) {
	s := newTestStore(t)

	keys := []string{"x/1", "x/2", "x/3"}
	err := persist.Update(s, func(txn persist.Txn) error {
		for _, k := range keys {
			if err := txn.Set([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = persist.View(s, func(txn persist.Txn) error {
		it := txn.NewIterator(persist.IterOptions{Prefix: []byte("x/"), Reverse: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			seen = append(seen, string(it.Key()))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x/3", "x/2", "x/1"}, seen)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	sentinel := assert.AnError
	err := persist.Update(s, func(txn persist.Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	err = persist.View(s, func(txn persist.Txn) error {
		_, err := txn.Get([]byte("a"))
		return err
	})
	assert.ErrorIs(t, err, persist.ErrKeyNotFound)
}
