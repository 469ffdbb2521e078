package workspace

import (
	"path"
	"strings"

	"launchcore/internal/pkggraph"
)

// discoverDocker treats a Dockerfile at the workspace root as a package
// boundary. Docker images have no native manifest-level dependency syntax
// comparable to the other ecosystems, so Deps is always empty.
// discoverDockerPaths also accepts explicitly listed non-root Dockerfiles,
// but discoverDocker passes none, so a Dockerfile below the root is not
// discovered.
func (d *Discoverer) discoverDocker(root string) ([]discovered, error) {
	return d.discoverDockerPaths(root, nil)
}

func (d *Discoverer) discoverDockerPaths(root string, explicit []string) ([]discovered, error) {
	var pkgs []discovered
	if _, err := d.fsys.Read(joinRel(root, "Dockerfile")); err == nil {
		pkgs = append(pkgs, dockerPackage(root, root, "Dockerfile"))
	}
	for _, p := range explicit {
		manifest := joinRel(root, p)
		if _, err := d.fsys.Read(manifest); err != nil {
			continue
		}
		dir := joinRel(root, path.Dir(p))
		pkgs = append(pkgs, dockerPackage(root, dir, p))
	}
	return pkgs, nil
}

func dockerPackage(root, pkgRoot, manifestRel string) discovered {
	name := strings.TrimPrefix(strings.TrimPrefix(pkgRoot, root), "/")
	if name == "" {
		name = "."
	}
	return discovered{
		pkg: pkggraph.Package{
			ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemDocker, Name: name},
			Root:         pkgRoot,
			ManifestPath: joinRel(root, manifestRel),
			SourceGlobs:  []string{"**"},
		},
	}
}
