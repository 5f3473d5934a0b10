package objects

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStore_PutGetDeleteRoundTrip(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()
	key := JobLogKey("job-1", LogStreamStdout)

	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("hello\n")), "text/plain"))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	reader, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryObjectStore_RejectsKeysOutsideJobsNamespace(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()

	err := store.Put(ctx, "builds/artifact.tar", bytes.NewReader(nil), "application/octet-stream")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryObjectStore_GetURLNotSupported(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()
	key := JobLogKey("job-1", LogStreamStderr)

	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("oops\n")), "text/plain"))

	_, err := store.GetURL(ctx, key, 0)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestMemoryObjectStore_List(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, JobLogKey("job-1", LogStreamStdout), bytes.NewReader([]byte("out\n")), "text/plain"))
	require.NoError(t, store.Put(ctx, JobLogKey("job-1", LogStreamStderr), bytes.NewReader([]byte("err\n")), "text/plain"))
	require.NoError(t, store.Put(ctx, JobLogKey("job-2", LogStreamStdout), bytes.NewReader([]byte("out2\n")), "text/plain"))

	entries, err := store.List(ctx, "jobs/job-1/")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
