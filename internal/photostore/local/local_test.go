package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveGetDelete(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Save(ctx, "user_1", "image/jpeg", bytes.NewReader([]byte("jpeg-bytes")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, time.Now().UTC().Format("2006/01/02")+"/"))
	assert.Contains(t, key, "user_1_")
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	rc, mimeType, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/jpeg", mimeType)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Get(ctx, key)
	assert.Error(t, err)
}

func TestSaveMimeExtensions(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		mimeType string
		ext      string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/webp", ".webp"},
		{"image/gif", ".gif"},
		{"application/octet-stream", ".jpg"},
	}

	for _, tt := range tests {
		key, err := store.Save(ctx, "p", tt.mimeType, bytes.NewReader([]byte("x")))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(key, tt.ext), "mime %s got key %s", tt.mimeType, key)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalPhotoStore(base)
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "user_3", "image/jpeg", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	// Only the finalized photo remains in the day directory.
	dayDir := filepath.Dir(filepath.Join(base, filepath.FromSlash(key)))
	entries, err := os.ReadDir(dayDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".upload-"))
}

func TestGetRejectsTraversal(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "../../etc/passwd")
	assert.Error(t, err)

	err = store.Delete(context.Background(), "../somefile")
	assert.Error(t, err)
}

func TestDeleteMissingPhoto(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	err = store.Delete(context.Background(), "nope.jpg")
	assert.Error(t, err)
}
