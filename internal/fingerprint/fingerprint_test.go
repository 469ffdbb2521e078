package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/fsadapter/memfs"
)

func TestComputeDeterministic(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("pkg/src/a.txt", []byte("hello"), false)
	fsys.WriteFile("pkg/src/b.txt", []byte("world"), false)

	d1, err := Compute(fsys, "pkg", []string{"src/a.txt", "src/b.txt"}, "echo hi", nil)
	require.NoError(t, err)

	d2, err := Compute(fsys, "pkg", []string{"src/b.txt", "src/a.txt"}, "echo hi", nil)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "input order must not affect the digest")
}

func TestComputeChangesOnByteEdit(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("pkg/a.txt", []byte("hello"), false)
	before, err := Compute(fsys, "pkg", []string{"a.txt"}, "cmd", nil)
	require.NoError(t, err)

	fsys.WriteFile("pkg/a.txt", []byte("hellp"), false)
	after, err := Compute(fsys, "pkg", []string{"a.txt"}, "cmd", nil)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestComputeNoPrefixCollision(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("pkg/ab", []byte("c"), false)
	fsys.WriteFile("pkg/a", []byte("bc"), false)

	d1, err := Compute(fsys, "pkg", []string{"ab"}, "", nil)
	require.NoError(t, err)
	d2, err := Compute(fsys, "pkg", []string{"a"}, "", nil)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestComputeMissingInputFails(t *testing.T) {
	fsys := memfs.New()
	_, err := Compute(fsys, "pkg", []string{"missing.txt"}, "", nil)
	require.Error(t, err)
	var missing *ErrMissingInput
	assert.ErrorAs(t, err, &missing)
}

func TestComputeEnvUnsetDistinctFromEmpty(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("pkg/a.txt", []byte("x"), false)

	d1, err := Compute(fsys, "pkg", []string{"a.txt"}, "", []EnvVar{{Name: "FOO", Unset: true}})
	require.NoError(t, err)
	d2, err := Compute(fsys, "pkg", []string{"a.txt"}, "", []EnvVar{{Name: "FOO", Value: ""}})
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestComputeExecutableBitAffectsDigest(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("pkg/run.sh", []byte("echo"), false)
	before, err := Compute(fsys, "pkg", []string{"run.sh"}, "", nil)
	require.NoError(t, err)

	fsys.WriteFile("pkg/run.sh", []byte("echo"), true)
	after, err := Compute(fsys, "pkg", []string{"run.sh"}, "", nil)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestComputeSymlinkCycle(t *testing.T) {
	fsys := memfs.New()
	fsys.Symlink("pkg/a", "pkg/b")
	fsys.Symlink("pkg/b", "pkg/a")

	_, err := Compute(fsys, "pkg", []string{"a"}, "", nil)
	require.Error(t, err)
	var cycle *ErrSymlinkCycle
	assert.ErrorAs(t, err, &cycle)
}
