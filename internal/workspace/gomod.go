package workspace

import (
	"golang.org/x/mod/modfile"

	"launchcore/internal/pkggraph"
)

// discoverGo handles go.mod, treated as a single package unless a go.work
// at the root declares member modules.
func (d *Discoverer) discoverGo(root string) ([]discovered, error) {
	workPath := joinRel(root, "go.work")
	if data, err := d.fsys.Read(workPath); err == nil {
		wf, err := modfile.ParseWork(workPath, data, nil)
		if err != nil {
			return nil, &ErrManifestParse{Path: workPath, Err: err}
		}
		var pkgs []discovered
		for _, use := range wf.Use {
			memberRoot := joinRel(root, use.Path)
			dp, ok, err := d.parseGoModule(memberRoot)
			if err != nil {
				return nil, err
			}
			if ok {
				pkgs = append(pkgs, dp)
			}
		}
		return pkgs, nil
	}

	dp, ok, err := d.parseGoModule(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []discovered{dp}, nil
}

func (d *Discoverer) parseGoModule(modRoot string) (discovered, bool, error) {
	modPath := joinRel(modRoot, "go.mod")
	data, err := d.fsys.Read(modPath)
	if err != nil {
		return discovered{}, false, nil
	}
	mf, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return discovered{}, false, &ErrManifestParse{Path: modPath, Err: err}
	}
	name := ""
	if mf.Module != nil {
		name = mf.Module.Mod.Path
	}
	if name == "" {
		return discovered{}, false, &ErrManifestParse{Path: modPath, Err: errMissingModuleDirective}
	}

	// Replace directives pointing at a local path are the Go ecosystem's
	// equivalent of a path-dependency: the replaced module path is an
	// internal dependency reference if it resolves to another workspace
	// member (resolved later by name in resolveDeps).
	var depRefs []string
	for _, rep := range mf.Replace {
		if rep.New.Path != "" && (rep.New.Path[0] == '.' || rep.New.Path[0] == '/') {
			depRefs = append(depRefs, rep.Old.Path)
		}
	}
	for _, req := range mf.Require {
		depRefs = append(depRefs, req.Mod.Path)
	}

	return discovered{
		pkg: pkggraph.Package{
			ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemGo, Name: name},
			Root:         modRoot,
			ManifestPath: modPath,
			Version:      moduleVersion(mf),
			SourceGlobs:  []string{"**/*.go"},
			IgnoreGlobs:  []string{"vendor/**"},
		},
		depRefs: depRefs,
	}, true, nil
}

func moduleVersion(mf *modfile.File) string {
	if mf.Go != nil {
		return mf.Go.Version
	}
	return ""
}

type manifestErr string

func (e manifestErr) Error() string { return string(e) }

const errMissingModuleDirective = manifestErr("go.mod missing module directive")
