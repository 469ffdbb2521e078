// Package fsadapter defines the filesystem seam the core consumes. The
// fingerprinter, workspace discoverer, and launch's planning and test
// selection read the workspace through an FS value instead of calling os
// directly, so they can be exercised against an in-memory fake in tests. The
// cache store works on its own directory through os.
package fsadapter

import (
	"io/fs"
	"time"
)

// Info describes one path returned by Walk or Stat. It carries the bits the
// core actually needs (executable bit, symlink-ness) rather than the full
// os.FileInfo surface.
type Info struct {
	Path       string
	IsDir      bool
	IsSymlink  bool
	Executable bool
	Size       int64
	ModTime    time.Time
}

// FS is the filesystem adapter consumed by fingerprint, workspace, and
// launch. Paths are always slash-separated and relative to a root chosen
// by the caller of the concrete implementation (osfs.New binds a root the
// way safeio.NewSafeFS does).
type FS interface {
	// Walk returns every file (directories are not listed) under root whose path
	// matches at least one of includeGlobs (all files if includeGlobs is
	// empty) and none of excludeGlobs. Results are sorted lexicographically.
	Walk(root string, includeGlobs, excludeGlobs []string) ([]string, error)

	// Read returns the full contents of the file at path.
	Read(path string) ([]byte, error)

	// WriteAtomic writes data to path via a temp file in the same directory
	// followed by a rename, so a crash never leaves a partially written file
	// visible at path.
	WriteAtomic(path string, data []byte, perm fs.FileMode) error

	// Rename moves src to dst, replacing dst if it exists.
	Rename(src, dst string) error

	// Stat returns metadata for path without following a trailing symlink.
	Stat(path string) (Info, error)

	// EvalSymlinks resolves all symlinks in path and returns the result. It
	// is used once per input during fingerprinting; a symlink cycle is
	// reported as an error rather than looping.
	EvalSymlinks(path string) (string, error)

	// Root returns the absolute directory every relative path is resolved
	// against.
	Root() string
}

// ErrNotExist is returned by Read/Stat when the path does not exist. It wraps
// fs.ErrNotExist so callers can use errors.Is(err, fs.ErrNotExist).
var ErrNotExist = fs.ErrNotExist
