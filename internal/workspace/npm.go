package workspace

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"launchcore/internal/pkggraph"
)

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Workspaces      json.RawMessage   `json:"workspaces"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type pnpmWorkspaceYAML struct {
	Packages []string `yaml:"packages"`
}

type lernaJSON struct {
	Packages []string `json:"packages"`
}

// discoverNpm handles package.json with a "workspaces" array,
// pnpm-workspace.yaml, or lerna.json.
func (d *Discoverer) discoverNpm(root string) ([]discovered, error) {
	rootManifest := joinRel(root, "package.json")
	rootData, err := d.fsys.Read(rootManifest)
	if err != nil {
		return nil, nil
	}
	var rootPkg packageJSON
	if err := json.Unmarshal(rootData, &rootPkg); err != nil {
		return nil, &ErrManifestParse{Path: rootManifest, Err: err}
	}

	patterns, err := d.npmMemberPatterns(root, rootManifest, rootPkg)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil // plain package.json, not a workspace root
	}

	var pkgs []discovered
	for _, pattern := range patterns {
		dirs, err := globDirs(d.fsys, root, pattern)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			manifest := joinRel(root, dir+"/package.json")
			data, err := d.fsys.Read(manifest)
			if err != nil {
				continue
			}
			var p packageJSON
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, &ErrManifestParse{Path: manifest, Err: err}
			}
			if p.Name == "" {
				continue
			}
			var depRefs []string
			for dep := range p.Dependencies {
				depRefs = append(depRefs, dep)
			}
			for dep := range p.DevDependencies {
				depRefs = append(depRefs, dep)
			}
			pkgs = append(pkgs, discovered{
				pkg: pkggraph.Package{
					ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemNpm, Name: p.Name},
					Root:         joinRel(root, dir),
					ManifestPath: manifest,
					Version:      p.Version,
					SourceGlobs:  []string{"src/**"},
					IgnoreGlobs:  []string{"node_modules/**", "dist/**"},
				},
				depRefs: depRefs,
			})
		}
	}
	return pkgs, nil
}

func (d *Discoverer) npmMemberPatterns(root, rootManifest string, rootPkg packageJSON) ([]string, error) {
	if len(rootPkg.Workspaces) > 0 {
		var list []string
		if err := json.Unmarshal(rootPkg.Workspaces, &list); err == nil {
			return list, nil
		}
		var obj struct {
			Packages []string `json:"packages"`
		}
		if err := json.Unmarshal(rootPkg.Workspaces, &obj); err == nil {
			return obj.Packages, nil
		}
		return nil, &ErrManifestParse{Path: rootManifest, Err: fmt.Errorf("workspaces field is neither an array nor {packages:[]}")}
	}

	if data, err := d.fsys.Read(joinRel(root, "pnpm-workspace.yaml")); err == nil {
		var w pnpmWorkspaceYAML
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, &ErrManifestParse{Path: joinRel(root, "pnpm-workspace.yaml"), Err: err}
		}
		return w.Packages, nil
	}

	if data, err := d.fsys.Read(joinRel(root, "lerna.json")); err == nil {
		var l lernaJSON
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, &ErrManifestParse{Path: joinRel(root, "lerna.json"), Err: err}
		}
		if len(l.Packages) == 0 {
			l.Packages = []string{"packages/*"}
		}
		return l.Packages, nil
	}

	return nil, nil
}
