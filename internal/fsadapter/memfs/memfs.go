// Package memfs is an in-memory fsadapter.FS used by tests across the core
// packages, the same role in-memory fakes play for cache-layer tests
// elsewhere in this codebase.
package memfs

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"launchcore/internal/fsadapter"
)

type file struct {
	data       []byte
	executable bool
	symlinkTo  string // non-empty if this entry is a symlink
}

// FS is a minimal in-memory filesystem keyed by slash-separated relative
// path. It has no notion of directories beyond what Walk infers from paths.
type FS struct {
	mu    sync.Mutex
	files map[string]*file
}

// New returns an empty in-memory filesystem.
func New() *FS {
	return &FS{files: make(map[string]*file)}
}

func (f *FS) Root() string { return "/memfs" }

// WriteFile seeds path with content, for use by tests building fixtures.
func (f *FS) WriteFile(path string, data []byte, executable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[clean(path)] = &file{data: append([]byte(nil), data...), executable: executable}
}

// Symlink seeds path as a symlink pointing at target (another path in the
// same filesystem).
func (f *FS) Symlink(path, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[clean(path)] = &file{symlinkTo: clean(target)}
}

func clean(p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(p, "./"), "/")
}

func (f *FS) Walk(root string, includeGlobs, excludeGlobs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	root = clean(root)
	var out []string
	for path := range f.files {
		if root != "" && root != "." && !strings.HasPrefix(path, root+"/") && path != root {
			continue
		}
		rel := path
		if root != "" && root != "." {
			rel = strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
		}
		if rel == "" {
			continue
		}
		if !globMatches(rel, includeGlobs, excludeGlobs) {
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func globMatches(rel string, includeGlobs, excludeGlobs []string) bool {
	for _, g := range excludeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	if len(includeGlobs) == 0 {
		return true
	}
	for _, g := range includeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func (f *FS) resolveSymlink(path string, seen map[string]bool) (*file, string, error) {
	ent, ok := f.files[path]
	if !ok {
		return nil, "", fmt.Errorf("memfs: %s: %w", path, fs.ErrNotExist)
	}
	if ent.symlinkTo == "" {
		return ent, path, nil
	}
	if seen[path] {
		return nil, "", fmt.Errorf("memfs: symlink cycle at %s", path)
	}
	seen[path] = true
	return f.resolveSymlink(ent.symlinkTo, seen)
}

func (f *FS) Read(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, _, err := f.resolveSymlink(clean(path), map[string]bool{})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), ent.data...), nil
}

func (f *FS) WriteAtomic(path string, data []byte, _ fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[clean(path)] = &file{data: append([]byte(nil), data...)}
	return nil
}

func (f *FS) Rename(src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, dst = clean(src), clean(dst)
	ent, ok := f.files[src]
	if !ok {
		return fmt.Errorf("memfs: rename %s: %w", src, fs.ErrNotExist)
	}
	f.files[dst] = ent
	delete(f.files, src)
	return nil
}

func (f *FS) Stat(path string) (fsadapter.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := clean(path)
	ent, ok := f.files[p]
	if !ok {
		return fsadapter.Info{}, fmt.Errorf("memfs: stat %s: %w", path, fs.ErrNotExist)
	}
	if ent.symlinkTo != "" {
		return fsadapter.Info{Path: p, IsSymlink: true}, nil
	}
	return fsadapter.Info{Path: p, Size: int64(len(ent.data)), Executable: ent.executable}, nil
}

func (f *FS) EvalSymlinks(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, resolved, err := f.resolveSymlink(clean(path), map[string]bool{})
	if err != nil {
		return "", err
	}
	return resolved, nil
}
