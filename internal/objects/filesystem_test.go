package objects

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemObjectStore_PutGetDeleteRoundTrip(t *testing.T) {
	store := NewFilesystemObjectStore(t.TempDir())
	ctx := context.Background()
	key := JobLogKey("job-1", LogStreamStdout)

	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("hello\n")), "text/plain"))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	url, err := store.GetURL(ctx, key, 0)
	require.NoError(t, err)
	assert.Contains(t, url, "file://")

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilesystemObjectStore_RejectsPathTraversal(t *testing.T) {
	store := NewFilesystemObjectStore(t.TempDir())
	ctx := context.Background()

	err := store.Put(ctx, "jobs/../../etc/passwd", bytes.NewReader(nil), "text/plain")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFilesystemObjectStore_GetMissingKeyReturnsNotFound(t *testing.T) {
	store := NewFilesystemObjectStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Get(ctx, JobLogKey("missing-job", LogStreamStdout))
	assert.ErrorIs(t, err, ErrNotFound)
}
