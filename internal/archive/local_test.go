package archive_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscout/toolscout/internal/archive"
)

func TestNewLocalStore(t *testing.T) {
	t.Run("ValidDir", func(t *testing.T) {
		store, err := archive.NewLocalStore(t.TempDir())
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := archive.NewLocalStore("")
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "archive")
		_, err := archive.NewLocalStore(base)
		require.NoError(t, err)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := archive.NewLocalStore(file)
		assert.Error(t, err)
	})
}

func TestLocalStorePutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := archive.NewLocalStore(tempDir)
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte(`{"source":"github"}`)
		uri, err := store.PutObject(context.Background(), "github/run-1.json", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "github/run-1.json"), uri)

		written, err := os.ReadFile(filepath.Join(tempDir, "github/run-1.json"))
		require.NoError(t, err)
		assert.Equal(t, data, written)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "application/json", bytes.NewReader([]byte("x")))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.json", "application/json", bytes.NewReader([]byte("x")))
		assert.Error(t, err)
	})
}
