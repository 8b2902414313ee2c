// Package storagetest holds a conformance suite shared by the storage
// backends.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/storage"
)

// Run exercises repo against the storage.Repository contract.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	const ns = "ns1"

	t.Run("PutGet", func(t *testing.T) {
		rec := &storage.Record{Data: []byte(`{"a":1}`), Version: 1}
		require.NoError(t, repo.Put(ns, "issuer", "i1", rec))

		got, err := repo.Get(ns, "issuer", "i1")
		require.NoError(t, err)
		assert.Equal(t, rec.Data, got.Data)
		assert.Equal(t, uint64(1), got.Version)

		// Returned records must not alias stored data.
		got.Data[0] = 'X'
		again, err := repo.Get(ns, "issuer", "i1")
		require.NoError(t, err)
		assert.Equal(t, byte('{'), again.Data[0])
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("missing-ns", "issuer", "i1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.Get(ns, "issuer", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.Put(ns, "issuer", "i2", &storage.Record{Data: []byte("x")}))
		require.NoError(t, repo.Put(ns, "certificate", "c1", &storage.Record{Data: []byte("x")}))

		ids, err := repo.List(ns, "issuer")
		require.NoError(t, err)
		assert.Equal(t, []string{"i1", "i2"}, ids)

		ids, err = repo.List("missing-ns", "issuer")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Put(ns, "tmp", "d1", &storage.Record{Data: []byte("x")}))
		require.NoError(t, repo.Delete(ns, "tmp", "d1"))

		_, err := repo.Get(ns, "tmp", "d1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ns, "tmp", "d1"), storage.ErrNotFound)
	})

	t.Run("PutCAS", func(t *testing.T) {
		v1 := &storage.Record{Data: []byte("v1"), Version: 1}
		v2 := &storage.Record{Data: []byte("v2"), Version: 2}

		require.NoError(t, repo.PutCAS(ns, "cas", "k", 0, v1))
		assert.ErrorIs(t, repo.PutCAS(ns, "cas", "k", 0, v1), storage.ErrCASFailed, "create-only must fail on existing record")
		assert.ErrorIs(t, repo.PutCAS(ns, "cas", "missing", 1, v1), storage.ErrCASFailed)

		require.NoError(t, repo.PutCAS(ns, "cas", "k", 1, v2))
		assert.ErrorIs(t, repo.PutCAS(ns, "cas", "k", 1, v1), storage.ErrCASFailed, "stale version must fail")

		got, err := repo.Get(ns, "cas", "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got.Data))
		assert.Equal(t, uint64(2), got.Version)
	})

	t.Run("Batch", func(t *testing.T) {
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("batch", "b1", &storage.Record{Data: []byte("a"), Version: 1}); err != nil {
				return err
			}
			if err := tx.PutCAS("batch", "b2", 0, &storage.Record{Data: []byte("b"), Version: 1}); err != nil {
				return err
			}
			got, err := tx.Get("batch", "b1")
			if err != nil {
				return err
			}
			if string(got.Data) != "a" {
				return errors.New("batch read did not observe batch write")
			}
			ids, err := tx.List("batch")
			if err != nil {
				return err
			}
			if len(ids) != 2 {
				return errors.New("batch list did not observe batch writes")
			}
			return tx.Delete("batch", "b1")
		})
		require.NoError(t, err)

		_, err = repo.Get(ns, "batch", "b1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.Get(ns, "batch", "b2")
		assert.NoError(t, err)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		simulated := errors.New("simulated error")
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("batch", "rollback", &storage.Record{Data: []byte("x")}); err != nil {
				return err
			}
			if err := tx.Delete("batch", "b2"); err != nil {
				return err
			}
			return simulated
		})
		assert.ErrorIs(t, err, simulated)

		_, err = repo.Get(ns, "batch", "rollback")
		assert.ErrorIs(t, err, storage.ErrNotFound, "write must be rolled back")
		_, err = repo.Get(ns, "batch", "b2")
		assert.NoError(t, err, "delete must be rolled back")
	})
}
