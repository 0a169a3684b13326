package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "shinkai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("identity", []byte("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchPutThenGet(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Batch(Put("identity", []byte("k1"), []byte("v1"))))

	value, err := store.Get("identity", []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(value))
}

func TestBatchIsAtomicAcrossFamilies(t *testing.T) {
	store := openTestStore(t)
	err := store.Batch(
		Put("identity", []byte("a"), []byte("1")),
		Put("inbox", []byte("b"), []byte("2")),
	)
	require.NoError(t, err)

	hasA, err := store.Has("identity", []byte("a"))
	require.NoError(t, err)
	assert.True(t, hasA)

	hasB, err := store.Has("inbox", []byte("b"))
	require.NoError(t, err)
	assert.True(t, hasB)
}

func TestBatchDelete(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Batch(Put("identity", []byte("k1"), []byte("v1"))))
	require.NoError(t, store.Batch(Delete("identity", []byte("k1"))))

	has, err := store.Has("identity", []byte("k1"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPrefixScanOrdersByKeyAndRespectsStop(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Batch(
		Put("identity", []byte("profile_a"), []byte("1")),
		Put("identity", []byte("profile_b"), []byte("2")),
		Put("identity", []byte("profile_c"), []byte("3")),
		Put("identity", []byte("device_x"), []byte("4")),
	))

	var keys []string
	err := store.PrefixScan("identity", []byte("profile_"), func(e Entry) bool {
		keys = append(keys, string(e.Key))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"profile_a", "profile_b", "profile_c"}, keys)

	var firstOnly []string
	err = store.PrefixScan("identity", []byte("profile_"), func(e Entry) bool {
		firstOnly = append(firstOnly, string(e.Key))
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"profile_a"}, firstOnly)
}

func TestUnknownFamilyErrors(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("nonexistent", []byte("k"))
	assert.Error(t, err)
}
