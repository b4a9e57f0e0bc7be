package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/pillpal/internal/imagestore"
)

func TestLocalStoreSaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	imageData := []byte("fake png data")

	key, err := store.Save(ctx, "session", "image/png", bytes.NewReader(imageData))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "session_"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	reader, mimeType, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "image/png", mimeType)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, imageData, data)

	_, err = os.Stat(filepath.Join(dir, key))
	assert.NoError(t, err)
}

func TestLocalStoreKeysAreUnique(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	a, err := store.Save(ctx, "s", "image/jpeg", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	b, err := store.Save(ctx, "s", "image/jpeg", bytes.NewReader([]byte("b")))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalStoreDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key, err := store.Save(ctx, "s", "image/jpeg", bytes.NewReader([]byte("test data")))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, key))

	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, imagestore.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, key), imagestore.ErrNotFound)
}

func TestLocalStoreNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "nonexistent.jpg")
	assert.ErrorIs(t, err, imagestore.ErrNotFound)
}

func TestLocalStorePathTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, _, err = store.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Delete(ctx, "nested/key.jpg"), ErrInvalidKey)

	_, err = store.Save(ctx, "../escape", "image/jpeg", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocalStoreFailedSaveLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "s", "image/png", failingReader{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreKeepsMIMEType(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, mt := range []string{"image/png", "image/gif", "image/webp", "image/jpeg"} {
		key, err := store.Save(ctx, "s", mt, bytes.NewReader([]byte("x")))
		require.NoError(t, err)
		rc, got, err := store.Get(ctx, key)
		require.NoError(t, err)
		_ = rc.Close()
		assert.Equal(t, mt, got)
	}

	key, err := store.Save(ctx, "s", "image/heic", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".jpg"))
}
