// Package changeset implements the Change Detector: mapping a
// revision pair through a revision.Adapter into the set of packages a
// change touches, directly or via dependency.
package changeset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"launchcore/internal/pkggraph"
	"launchcore/internal/revision"
)

// Kind annotates why a package is in a ChangeSet.
type Kind string

const (
	// KindDirect means files inside the package itself changed.
	KindDirect Kind = "direct"
	// KindDependency means a transitively depended package changed.
	KindDependency Kind = "dependency"
	// KindShared means a changed file lies outside any package root.
	KindShared Kind = "shared"
)

// ChangeSet is the result of Detect: every affected package and why.
type ChangeSet struct {
	Kinds map[pkggraph.ID]Kind
	// SharedFiles lists changed files that matched no package root, present
	// even when shared_affects_all escalated every package to direct, so
	// callers can still see what triggered the escalation.
	SharedFiles []string
}

// Packages returns the ChangeSet's package IDs in deterministic order.
func (c ChangeSet) Packages() []pkggraph.ID {
	out := make([]pkggraph.ID, 0, len(c.Kinds))
	for id := range c.Kinds {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Options configures Detect beyond the bare revision pair.
type Options struct {
	IgnoreChanges    []string // globs; matching files are dropped before classification
	SharedAffectsAll bool
}

// Detect implements: ask the adapter for changed files (unioned
// with untracked files), classify each by package-root containment,
// and escalate dependents of direct packages via graph.Affected.
func Detect(adapter revision.Adapter, graph *pkggraph.Graph, fromRev, toRev string, opts Options) (ChangeSet, error) {
	changed, err := adapter.ChangedFiles(fromRev, toRev)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: changed files: %w", err)
	}
	untracked, err := adapter.UntrackedFiles()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: untracked files: %w", err)
	}
	files := unionFiles(changed, untracked)

	roots := packageRootsByDepth(graph)

	result := ChangeSet{Kinds: make(map[pkggraph.ID]Kind)}
	var shared []string
	for _, f := range files {
		if matchesAny(f, opts.IgnoreChanges) {
			continue
		}
		id, ok := deepestRoot(f, roots)
		if !ok {
			shared = append(shared, f)
			continue
		}
		result.Kinds[id] = KindDirect
	}
	sort.Strings(shared)
	result.SharedFiles = shared

	if len(shared) > 0 && opts.SharedAffectsAll {
		for _, p := range graph.Packages() {
			result.Kinds[p.ID] = KindDirect
		}
	}

	var direct []pkggraph.ID
	for id, kind := range result.Kinds {
		if kind == KindDirect {
			direct = append(direct, id)
		}
	}
	if len(direct) > 0 {
		affected, err := graph.Affected(direct)
		if err != nil {
			return ChangeSet{}, fmt.Errorf("changeset: computing affected closure: %w", err)
		}
		for id := range affected {
			if _, already := result.Kinds[id]; !already {
				result.Kinds[id] = KindDependency
			}
		}
	}

	return result, nil
}

// FilesByPackage groups files (the same workspace-relative paths Detect
// consumes) by the package whose root contains them, trimming each path to
// be relative to that package's root. Files matching no package root are
// omitted — callers that care about shared files already have them via
// ChangeSet.SharedFiles. It is the building block launch.SelectTests uses to
// turn a revision adapter's flat changed-file list into the per-package
// input testselect.Select requires.
func FilesByPackage(graph *pkggraph.Graph, files []string) map[pkggraph.ID][]string {
	roots := packageRootsByDepth(graph)
	out := make(map[pkggraph.ID][]string)
	for _, f := range files {
		id, ok := deepestRoot(f, roots)
		if !ok {
			continue
		}
		rel := f
		for _, r := range roots {
			if r.id == id && r.root != "" && r.root != "." {
				rel = strings.TrimPrefix(f, r.root+"/")
				break
			}
		}
		out[id] = append(out[id], rel)
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

func unionFiles(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, f := range append(append([]string(nil), a...), b...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func matchesAny(file string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, file); ok {
			return true
		}
	}
	return false
}

type rootEntry struct {
	id   pkggraph.ID
	root string
}

// packageRootsByDepth returns package roots sorted by path depth,
// descending, so deepestRoot can pick the longest-prefix match first: the
// deepest root wins.
func packageRootsByDepth(graph *pkggraph.Graph) []rootEntry {
	var roots []rootEntry
	for _, p := range graph.Packages() {
		roots = append(roots, rootEntry{id: p.ID, root: normalizeRoot(p.Root)})
	}
	sort.Slice(roots, func(i, j int) bool {
		return strings.Count(roots[i].root, "/") > strings.Count(roots[j].root, "/")
	})
	return roots
}

func normalizeRoot(root string) string {
	root = strings.TrimPrefix(root, "./")
	root = strings.TrimSuffix(root, "/")
	return root
}

func deepestRoot(file string, roots []rootEntry) (pkggraph.ID, bool) {
	for _, r := range roots {
		if r.root == "" || r.root == "." {
			continue // workspace root itself is never an implicit package root
		}
		if file == r.root || strings.HasPrefix(file, r.root+"/") {
			return r.id, true
		}
	}
	// Fall back to a root package registered at "." explicitly, if any.
	for _, r := range roots {
		if r.root == "." || r.root == "" {
			return r.id, true
		}
	}
	return pkggraph.ID{}, false
}
