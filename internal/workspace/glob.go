package workspace

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"launchcore/internal/fsadapter"
)

// globDirs returns the distinct directories under root (relative to root)
// that match pattern, used to expand workspace "members" globs. Patterns
// with no wildcard are returned verbatim without requiring the directory to
// already contain files, so an empty member directory still resolves.
func globDirs(fsys fsadapter.FS, root, pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	files, err := fsys.Walk(root, nil, nil)
	if err != nil {
		return nil, err
	}
	dirSet := make(map[string]bool)
	for _, f := range files {
		dir := path.Dir(f)
		for dir != "." && dir != "/" {
			dirSet[dir] = true
			dir = path.Dir(dir)
		}
	}
	var dirs []string
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var out []string
	for _, dir := range dirs {
		if ok, _ := doublestar.Match(pattern, dir); ok {
			out = append(out, dir)
		}
	}
	return out, nil
}
