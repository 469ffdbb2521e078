// Package osfs is the default fsadapter.FS, backed by the local disk. It
// locks every operation to a fixed root the way safeio.SafeFS does: all
// paths are resolved and checked against the root before any syscall touches
// them, so a malicious or buggy glob can never escape the workspace.
package osfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"launchcore/internal/fsadapter"
)

// skipDirs lists directories that are never worth walking into for a
// workspace made of source and build artifacts.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"build":        true,
	".next":        true,
	".cache":       true,
}

// FS is a fsadapter.FS rooted at a single absolute, symlink-resolved
// directory.
type FS struct {
	absRoot string
}

// New locks all future operations to root, resolved to an absolute,
// symlink-free directory.
func New(root string) (*FS, error) {
	if root == "" {
		return nil, errors.New("osfs: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("osfs: resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("osfs: root is not a directory")
	}
	return &FS{absRoot: abs}, nil
}

func (f *FS) Root() string { return f.absRoot }

func (f *FS) resolve(userPath string) (string, error) {
	if userPath == "" {
		return "", errors.New("osfs: empty path")
	}
	clean := filepath.Clean(userPath)
	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		return "", fmt.Errorf("osfs: path traversal not allowed: %s", userPath)
	}
	joined := clean
	if !isAbs {
		joined = filepath.Join(f.absRoot, clean)
	}
	if !hasPathPrefix(joined, f.absRoot) {
		return "", fmt.Errorf("osfs: path escapes root: %s", userPath)
	}
	return joined, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}

func (f *FS) Walk(root string, includeGlobs, excludeGlobs []string) ([]string, error) {
	absRoot, err := f.resolve(root)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}
		if !globMatches(rel, includeGlobs, excludeGlobs) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("osfs: walk %s: %w", root, err)
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

func (f *FS) Read(path string) ([]byte, error) {
	p, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("osfs: read %s: %w", path, fs.ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}

func (f *FS) WriteAtomic(path string, data []byte, perm fs.FileMode) error {
	p, err := f.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *FS) Rename(src, dst string) error {
	s, err := f.resolve(src)
	if err != nil {
		return err
	}
	d, err := f.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d), 0o755); err != nil {
		return err
	}
	return os.Rename(s, d)
}

func (f *FS) Stat(path string) (fsadapter.Info, error) {
	p, err := f.resolve(path)
	if err != nil {
		return fsadapter.Info{}, err
	}
	lst, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fsadapter.Info{}, fmt.Errorf("osfs: stat %s: %w", path, fs.ErrNotExist)
		}
		return fsadapter.Info{}, err
	}
	info := fsadapter.Info{
		Path:      filepath.ToSlash(path),
		IsDir:     lst.IsDir(),
		IsSymlink: lst.Mode()&os.ModeSymlink != 0,
		Size:      lst.Size(),
		ModTime:   lst.ModTime(),
	}
	if !info.IsSymlink {
		info.Executable = lst.Mode()&0o111 != 0
	}
	return info, nil
}

func (f *FS) EvalSymlinks(path string) (string, error) {
	p, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("osfs: resolving symlinks for %s: %w", path, err)
	}
	if !hasPathPrefix(resolved, f.absRoot) {
		return "", fmt.Errorf("osfs: symlink escapes root: %s", path)
	}
	rel, err := filepath.Rel(f.absRoot, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
