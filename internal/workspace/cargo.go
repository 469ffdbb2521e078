package workspace

import (
	"fmt"
	"path"
	"strings"

	"launchcore/internal/pkggraph"
)

// discoverCargo handles a Cargo.toml carrying a [workspace] table, expanding
// its members globs and parsing each member's own Cargo.toml.
func (d *Discoverer) discoverCargo(root string) ([]discovered, error) {
	manifestPath := joinRel(root, "Cargo.toml")
	data, err := d.fsys.Read(manifestPath)
	if err != nil {
		return nil, nil // no Cargo.toml at root: not a Cargo workspace
	}
	content := string(data)
	sections := tomlSections(content)

	var workspaceBody string
	hasWorkspace := false
	for _, s := range sections {
		if s.name == "workspace" {
			hasWorkspace = true
			workspaceBody = s.body
		}
	}
	if !hasWorkspace {
		return nil, nil
	}

	members := tomlStringArray(workspaceBody, "members")
	var pkgs []discovered
	for _, pattern := range members {
		matches, err := globDirs(d.fsys, root, pattern)
		if err != nil {
			return nil, &ErrManifestParse{Path: manifestPath, Err: err}
		}
		for _, m := range matches {
			memberManifest := joinRel(root, path.Join(m, "Cargo.toml"))
			memberData, err := d.fsys.Read(memberManifest)
			if err != nil {
				continue // glob matched a directory with no Cargo.toml (e.g. not a crate)
			}
			pkg, err := parseCargoPackage(memberManifest, string(memberData), joinRel(root, m))
			if err != nil {
				return nil, err
			}
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs, nil
}

func parseCargoPackage(manifestPath, content, pkgRoot string) (discovered, error) {
	sections := tomlSections(content)
	var pkgBody string
	var depsBody string
	for _, s := range sections {
		switch s.name {
		case "package":
			pkgBody = s.body
		case "dependencies":
			depsBody = s.body
		}
	}
	name, ok := tomlString(pkgBody, "name")
	if !ok {
		return discovered{}, &ErrManifestParse{Path: manifestPath, Err: fmt.Errorf("missing [package].name")}
	}
	version, _ := tomlString(pkgBody, "version")

	var depRefs []string
	for depName := range tomlDependencyPaths(depsBody) {
		depRefs = append(depRefs, depName)
	}

	return discovered{
		pkg: pkggraph.Package{
			ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: name},
			Root:         pkgRoot,
			ManifestPath: manifestPath,
			Version:      version,
			SourceGlobs:  []string{"src/**"},
			IgnoreGlobs:  []string{"target/**"},
		},
		depRefs: depRefs,
	}, nil
}

func joinRel(root, rel string) string {
	if root == "" || root == "." {
		return rel
	}
	return strings.TrimSuffix(root, "/") + "/" + rel
}
