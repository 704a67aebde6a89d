package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	key, err := store.Save(ctx, "t1/documents/a.txt", []byte("hello"), map[string]string{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, "t1/documents/a.txt", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	meta, err := store.Metadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a", meta["name"])
}

func TestGetMissingKey(t *testing.T) {
	store := newLocal(t)
	_, err := store.Get(context.Background(), "t1/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	_, err := store.Save(ctx, "t1/doc.txt", []byte("x"), nil)
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "t1/doc.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "t1/doc.txt"))

	ok, err = store.Exists(ctx, "t1/doc.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, "t1/doc.txt"))
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	for _, key := range []string{"t1/documents/a.txt", "t1/documents/b.txt", "t2/documents/c.txt"} {
		_, err := store.Save(ctx, key, []byte("x"), map[string]string{"k": "v"})
		require.NoError(t, err)
	}

	keys, err := store.List(ctx, "t1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1/documents/a.txt", "t1/documents/b.txt"}, keys)
}

func TestRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	for _, key := range []string{"", "/etc/passwd", "../outside", "t1/../../outside"} {
		_, err := store.Save(ctx, key, []byte("x"), nil)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestMetadataForKeyWithoutSidecar(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	_, err := store.Save(ctx, "t1/doc.txt", []byte("x"), nil)
	require.NoError(t, err)

	meta, err := store.Metadata(ctx, "t1/doc.txt")
	require.NoError(t, err)
	assert.Empty(t, meta)
}
