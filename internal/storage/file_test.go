package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFileReadsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "snapshot.bin"))
	blob, err := fs.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, blob)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "snapshot.bin")
	fs := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, []byte("first")))
	blob, err := fs.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), blob)

	require.NoError(t, fs.Save(ctx, []byte("second")))
	blob, err = fs.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), blob)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "snapshot.bin"))
	require.NoError(t, fs.Save(context.Background(), []byte("payload")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "snapshot.bin", entries[0].Name())
}
