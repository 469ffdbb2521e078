package cachestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/fingerprint"
)

// countBlobs returns the number of files under root/objects.
func countBlobs(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(filepath.Join(root, "objects"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func digest(b byte) fingerprint.Digest {
	var d fingerprint.Digest
	d[0] = b
	return d
}

func TestInsertThenLookupRoundTrips(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fp := digest(1)
	outputs := map[string][]byte{"dist/out.bin": []byte("built artifact")}

	_, err = store.Insert(fp, 0, []byte("hello\n"), []byte(""), []string{"dist/out.bin"}, outputs)
	require.NoError(t, err)

	entry, ok, err := store.Lookup(fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, entry.ExitStatus)
	assert.Equal(t, []byte("hello\n"), entry.Stdout)
	require.Len(t, entry.Outputs, 1)
	assert.Equal(t, "dist/out.bin", entry.Outputs[0].RelPath)

	written := map[string][]byte{}
	err = entry.Replay(context.Background(), store, func(rel string, data []byte) error {
		written[rel] = data
		return nil
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("built artifact"), written["dist/out.bin"])
}

func TestLookupMiss(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Lookup(digest(7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertMissingOutputFails(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Insert(digest(2), 0, nil, nil, []string{"dist/out.bin"}, map[string][]byte{})
	require.Error(t, err)
	var missing *ErrMissingOutput
	require.ErrorAs(t, err, &missing)

	_, ok, err := store.Lookup(digest(2))
	require.NoError(t, err)
	assert.False(t, ok, "a failed insert must not leave a visible manifest")
}

func TestSweepEvictsLeastRecentlyUsed(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for i := byte(1); i <= 3; i++ {
		_, err := store.Insert(digest(i), 0, []byte("x"), nil, nil, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	stats, err := store.Sweep(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntriesBefore)
	assert.Equal(t, 2, stats.EntriesRemoved)

	_, ok, _ := store.Lookup(digest(3))
	assert.True(t, ok, "most recently inserted entry should survive the sweep")
	_, ok, _ = store.Lookup(digest(1))
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestSweepRemovesOrphanBlobs(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	defer store.Close()

	for i := byte(1); i <= 3; i++ {
		_, err := store.Insert(digest(i), 0, []byte{'x' + i}, nil, nil, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, 3, countBlobs(t, root), "each distinct stdout should write its own blob")

	_, err = store.Sweep(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, countBlobs(t, root), "evicted entries' blobs must actually be deleted from objects/")
}

func TestIndexTracksRealBlobSizeNotManifestSize(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fp := digest(9)
	stdout := make([]byte, 4096)
	_, err = store.Insert(fp, 0, stdout, nil, nil, nil)
	require.NoError(t, err)

	var size int64
	row := store.db.QueryRow(`SELECT size_bytes FROM manifests WHERE fingerprint = ?`, fp.String())
	require.NoError(t, row.Scan(&size))
	assert.Greater(t, size, int64(0))
	assert.Less(t, size, int64(4096), "zstd-compressed stdout should be far smaller than the raw 4096 bytes, and size_bytes must reflect actual blob size, not a fixed small manifest-JSON length")
}

func TestOpenTreatsIncompatibleVersionAsEmpty(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)

	fp := digest(5)
	_, err = store.Insert(fp, 0, []byte("hello"), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, os.WriteFile(filepath.Join(root, "version"), []byte("999"), 0o644))

	store2, err := Open(root)
	require.NoError(t, err)
	defer store2.Close()

	_, ok, err := store2.Lookup(fp)
	require.NoError(t, err)
	assert.False(t, ok, "a cache root with an incompatible version file must be treated as empty")

	version, err := os.ReadFile(filepath.Join(root, "version"))
	require.NoError(t, err)
	assert.Equal(t, cacheSchemaVersion, string(version))
}

func TestOpenKeepsMatchingVersion(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)

	fp := digest(6)
	_, err = store.Insert(fp, 0, []byte("hello"), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(root)
	require.NoError(t, err)
	defer store2.Close()

	_, ok, err := store2.Lookup(fp)
	require.NoError(t, err)
	assert.True(t, ok, "reopening with a matching version must preserve existing entries")
}
