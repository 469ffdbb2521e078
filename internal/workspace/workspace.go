// Package workspace discovers a workspace's Packages from the manifests on
// disk. It recognizes six ecosystem markers (Cargo, npm/pnpm/yarn, Go
// modules, Maven, Docker, Python) and builds the pkggraph.Package values a
// pkggraph.Graph is constructed from.
package workspace

import (
	"fmt"
	"sort"

	"launchcore/internal/fsadapter"
	"launchcore/internal/pkggraph"
)

// ErrManifestParse is returned when a manifest exists but cannot be parsed,
// naming the file (and, where the underlying parser reports one, the line).
type ErrManifestParse struct {
	Path string
	Err  error
}

func (e *ErrManifestParse) Error() string {
	return fmt.Sprintf("workspace: parsing %s: %v", e.Path, e.Err)
}

func (e *ErrManifestParse) Unwrap() error { return e.Err }

// discovered is the intermediate per-ecosystem result before cross-ecosystem
// dependency resolution: a package plus the raw (unresolved) internal
// dependency names it declared.
type discovered struct {
	pkg     pkggraph.Package
	depRefs []string // names as written in the manifest, same ecosystem
}

// Discoverer walks a root directory and produces the workspace's packages.
type Discoverer struct {
	fsys fsadapter.FS
}

// New returns a Discoverer reading manifests through fsys.
func New(fsys fsadapter.FS) *Discoverer {
	return &Discoverer{fsys: fsys}
}

// Discover detects every supported workspace marker under root and returns
// the resulting packages with internal dependency edges resolved. Unknown
// dependency references to names outside the workspace are dropped, not
// reported as errors.
func (d *Discoverer) Discover(root string) ([]pkggraph.Package, error) {
	var all []discovered

	cargoPkgs, err := d.discoverCargo(root)
	if err != nil {
		return nil, err
	}
	all = append(all, cargoPkgs...)

	npmPkgs, err := d.discoverNpm(root)
	if err != nil {
		return nil, err
	}
	all = append(all, npmPkgs...)

	goPkgs, err := d.discoverGo(root)
	if err != nil {
		return nil, err
	}
	all = append(all, goPkgs...)

	mavenPkgs, err := d.discoverMaven(root)
	if err != nil {
		return nil, err
	}
	all = append(all, mavenPkgs...)

	pyPkgs, err := d.discoverPython(root)
	if err != nil {
		return nil, err
	}
	all = append(all, pyPkgs...)

	dockerPkgs, err := d.discoverDocker(root)
	if err != nil {
		return nil, err
	}
	all = append(all, dockerPkgs...)

	return resolveDeps(all)
}

// resolveDeps turns each discovered.depRefs (raw manifest names, possibly
// referring to packages outside the workspace) into pkggraph.ID edges,
// dropping references that do not resolve to a workspace member.
func resolveDeps(all []discovered) ([]pkggraph.Package, error) {
	byName := make(map[string][]pkggraph.ID) // name -> candidate IDs (any ecosystem)
	seen := make(map[pkggraph.ID]bool)
	for _, dp := range all {
		if seen[dp.pkg.ID] {
			return nil, &pkggraph.ErrDuplicatePackage{ID: dp.pkg.ID}
		}
		seen[dp.pkg.ID] = true
		byName[dp.pkg.ID.Name] = append(byName[dp.pkg.ID.Name], dp.pkg.ID)
	}

	out := make([]pkggraph.Package, 0, len(all))
	for _, dp := range all {
		p := dp.pkg
		var deps []pkggraph.ID
		depSeen := make(map[pkggraph.ID]bool)
		for _, ref := range dp.depRefs {
			for _, candidate := range byName[ref] {
				if candidate.Ecosystem != p.ID.Ecosystem {
					continue // same-ecosystem edges only; cross-ecosystem deps aren't expressible in a manifest
				}
				if candidate == p.ID || depSeen[candidate] {
					continue
				}
				depSeen[candidate] = true
				deps = append(deps, candidate)
			}
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
		p.Deps = deps
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out, nil
}
