package launch

import (
	"fmt"
	"path"
	"strings"

	"launchcore/internal/changeset"
	"launchcore/internal/importgraph"
	"launchcore/internal/importgraph/jsts"
	"launchcore/internal/importgraph/python"
	"launchcore/internal/importgraph/rust"
	"launchcore/internal/launchconfig"
	"launchcore/internal/pkggraph"
	"launchcore/internal/testselect"
)

// languageParsers returns the importgraph.LanguageParser for each enabled
// family in languages ('s "three language families", each pluggable
// behind the same interface). Unknown entries are ignored. rustCrateRoots and
// npmWorkspacePackages are per-package cross-reference maps (see
// crateRootsFor and npmWorkspacePackagesFor) letting the Rust and JS/TS
// parsers resolve `use other_crate::x` and `import "@org/shared"` across a
// workspace member boundary instead of treating every such reference as
// external.
func languageParsers(languages []string, rustCrateRoots, npmWorkspacePackages map[string]string) map[string]importgraph.LanguageParser {
	out := make(map[string]importgraph.LanguageParser)
	for _, lang := range languages {
		switch strings.ToLower(lang) {
		case "rust":
			p := rust.New()
			p.CrateRoots = rustCrateRoots
			out["rust"] = p
		case "js", "ts":
			p := jsts.New()
			p.WorkspacePackages = npmWorkspacePackages
			out["jsts"] = p
		case "python":
			out["python"] = python.New()
		}
	}
	return out
}

// relativePath expresses toRoot (plus file, if non-empty) as a path
// relative to fromRoot, both package-root paths anchored at the same
// workspace root. It walks up from fromRoot to the common ancestor and back
// down to toRoot, the way filepath.Rel does for OS paths — package roots
// here are always workspace-relative slash paths, never absolute, so the
// manual walk avoids pulling in path/filepath's OS-path assumptions.
func relativePath(fromRoot, toRoot, file string) string {
	from := splitCleanPath(fromRoot)
	to := splitCleanPath(toRoot)
	i := 0
	for i < len(from) && i < len(to) && from[i] == to[i] {
		i++
	}
	segs := make([]string, 0, len(from)-i+len(to)-i+1)
	for range from[i:] {
		segs = append(segs, "..")
	}
	segs = append(segs, to[i:]...)
	if file != "" {
		segs = append(segs, file)
	}
	if len(segs) == 0 {
		return "."
	}
	return path.Join(segs...)
}

func splitCleanPath(p string) []string {
	p = path.Clean(p)
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// crateRootsFor returns the rust.Parser.CrateRoots map for pkg (every other
// Cargo workspace member's crate name mapped to its crate-root file,
// src/lib.rs falling back to src/main.rs, as a path relative to pkg's own
// root) plus every .rs file under those other crates, as a flat list for
// the caller to fold into the files a FileGraph is built from. Only the
// crate-root path is needed for the CrateRoots lookup itself, but a
// resolved `use other_crate::x::y` edge points at a specific file under
// that crate, not at its crate root — without the whole tree present in
// the same file set, the edge would have nowhere to land.
func crateRootsFor(ws *Workspace, pkg pkggraph.Package) (map[string]string, []string) {
	roots := map[string]string{}
	var extra []string
	for _, other := range ws.Packages.Packages() {
		if other.ID.Ecosystem != pkggraph.EcosystemCargo || other.ID == pkg.ID {
			continue
		}
		rootFile := "src/lib.rs"
		if _, err := ws.FS.Stat(path.Join(other.Root, rootFile)); err != nil {
			rootFile = "src/main.rs"
			if _, err := ws.FS.Stat(path.Join(other.Root, rootFile)); err != nil {
				continue // neither crate-root file exists: not a buildable crate
			}
		}
		roots[other.ID.Name] = relativePath(pkg.Root, other.Root, rootFile)

		files, err := ws.FS.Walk(other.Root, nil, other.IgnoreGlobs)
		if err != nil {
			continue
		}
		for _, f := range files {
			if path.Ext(f) == ".rs" {
				extra = append(extra, relativePath(pkg.Root, other.Root, f))
			}
		}
	}
	return roots, extra
}

// npmWorkspacePackagesFor returns the jsts.Parser.WorkspacePackages map for
// pkg (every other npm workspace member's package name mapped to its root
// directory, relative to pkg's own root) plus every JS/TS file under those
// other packages, as a flat list, for the same reason crateRootsFor walks
// the whole crate rather than just its root file.
func npmWorkspacePackagesFor(ws *Workspace, pkg pkggraph.Package) (map[string]string, []string) {
	names := map[string]string{}
	var extra []string
	for _, other := range ws.Packages.Packages() {
		if other.ID.Ecosystem != pkggraph.EcosystemNpm || other.ID == pkg.ID {
			continue
		}
		names[other.ID.Name] = relativePath(pkg.Root, other.Root, "")

		files, err := ws.FS.Walk(other.Root, nil, other.IgnoreGlobs)
		if err != nil {
			continue
		}
		for _, f := range files {
			switch path.Ext(f) {
			case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
				extra = append(extra, relativePath(pkg.Root, other.Root, f))
			}
		}
	}
	return names, extra
}

// parserForExt resolves a file's extension to one of parsers, nil if the
// language is not enabled.
func parserForExt(parsers map[string]importgraph.LanguageParser, file string) importgraph.LanguageParser {
	ext := strings.ToLower(path.Ext(file))
	for _, p := range parsers {
		for _, e := range p.Extensions() {
			if e == ext {
				return p
			}
		}
	}
	return nil
}

// isSourceExtension reports whether ext belongs to any enabled language,
// regardless of which parser claims it.
func isSourceExtension(parsers map[string]importgraph.LanguageParser, file string) bool {
	return parserForExt(parsers, file) != nil
}

// knownCodeExtension reports whether the file's extension belongs to one of
// the three language families (Rust, JS/TS, Python), whether or not that
// family is enabled — used to decide HasUnsupportedLanguageChange.
func knownCodeExtension(file string) bool {
	switch strings.ToLower(path.Ext(file)) {
	case ".rs", ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".py":
		return true
	default:
		return false
	}
}

// SelectTests builds each changed package's FileGraph from its full source
// tree and runs testselect.Select over the combination.
// changedByPackage maps a package to the files within it that changed,
// relative to the package root, as reported by the revision adapter.
func SelectTests(ws *Workspace, cs changeset.ChangeSet, cfg *launchconfig.Config, changedByPackage map[pkggraph.ID][]string) (map[pkggraph.ID][]string, error) {
	var inputs []testselect.PackageInput
	for _, id := range cs.Packages() {
		pkg, ok := ws.Packages.Package(id)
		if !ok {
			continue
		}

		rustCrateRoots, crateRootFiles := crateRootsFor(ws, pkg)
		npmPackages, npmEntryFiles := npmWorkspacePackagesFor(ws, pkg)
		parsers := languageParsers(cfg.TestSelection.Languages, rustCrateRoots, npmPackages)

		allFiles, err := ws.FS.Walk(pkg.Root, nil, pkg.IgnoreGlobs)
		if err != nil {
			return nil, fmt.Errorf("launch: walking package %s: %w", id, err)
		}

		hasUnsupported := false
		var changed []string
		for _, f := range changedByPackage[id] {
			if !isSourceExtension(parsers, f) {
				if knownCodeExtension(f) {
					// A code file in a family that test_selection.languages
					// didn't enable forces the full package test set, the
					// same as an unparseable file would.
					hasUnsupported = true
				}
				continue
			}
			changed = append(changed, f)
		}

		var graph *importgraph.FileGraph
		var sourceFiles []string
		for _, f := range allFiles {
			if isSourceExtension(parsers, f) {
				sourceFiles = append(sourceFiles, f)
			}
		}
		// Other workspace crates/packages' own files are folded in too, so a
		// `use other_crate::x::y` or `import "@org/shared/sub"` resolves to
		// wherever it actually lands rather than just to a crate/package
		// root that can never be the target of such a reference. A foreign
		// test file pulled in this way is still never selected unless this
		// package's own changed file actually reaches it, since the edges
		// between the foreign files and this package's files only ever run
		// one way (this package imports them, not the reverse).
		sourceFiles = append(sourceFiles, crateRootFiles...)
		sourceFiles = append(sourceFiles, npmEntryFiles...)
		if len(sourceFiles) > 0 {
			root := pkg.Root
			read := func(p string) ([]byte, error) { return ws.FS.Read(path.Join(root, p)) }
			parserFor := func(p string) importgraph.LanguageParser { return parserForExt(parsers, p) }
			graph = importgraph.Build(sourceFiles, read, parserFor)
		}

		var allTests []string
		if graph != nil {
			allTests = graph.TestFiles()
		}

		inputs = append(inputs, testselect.PackageInput{
			ID:                           id,
			ChangedFiles:                 changed,
			HasUnsupportedLanguageChange: hasUnsupported,
			Graph:                        graph,
			AllTestFiles:                 allTests,
		})
	}

	return testselect.Select(cs, inputs), nil
}
