package workspace

import (
	"regexp"

	"launchcore/internal/pkggraph"
)

var setupPyNameRe = regexp.MustCompile(`name\s*=\s*["']([^"']+)["']`)

// discoverPython handles pyproject.toml or setup.py at the root as a single
// package. Member directory lists are not read (plain pyproject.toml/setup.py
// have no workspace concept of their own, unlike Cargo or npm).
func (d *Discoverer) discoverPython(root string) ([]discovered, error) {
	if dp, ok, err := d.parsePyproject(root); err != nil {
		return nil, err
	} else if ok {
		return []discovered{dp}, nil
	}
	if dp, ok, err := d.parseSetupPy(root); err != nil {
		return nil, err
	} else if ok {
		return []discovered{dp}, nil
	}
	return nil, nil
}

func (d *Discoverer) parsePyproject(root string) (discovered, bool, error) {
	manifestPath := joinRel(root, "pyproject.toml")
	data, err := d.fsys.Read(manifestPath)
	if err != nil {
		return discovered{}, false, nil
	}
	content := string(data)
	sections := tomlSections(content)
	var projectBody string
	var depsArray []string
	for _, s := range sections {
		if s.name == "project" {
			projectBody = s.body
			depsArray = tomlStringArray(s.body, "dependencies")
		}
	}
	name, ok := tomlString(projectBody, "name")
	if !ok {
		return discovered{}, false, &ErrManifestParse{Path: manifestPath, Err: errMissingPyProjectName}
	}
	version, _ := tomlString(projectBody, "version")

	var depRefs []string
	for _, dep := range depsArray {
		depRefs = append(depRefs, pep508Name(dep))
	}

	return discovered{
		pkg: pkggraph.Package{
			ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemPython, Name: name},
			Root:         root,
			ManifestPath: manifestPath,
			Version:      version,
			SourceGlobs:  []string{"**/*.py"},
			IgnoreGlobs:  []string{"**/__pycache__/**", ".venv/**"},
		},
		depRefs: depRefs,
	}, true, nil
}

func (d *Discoverer) parseSetupPy(root string) (discovered, bool, error) {
	manifestPath := joinRel(root, "setup.py")
	data, err := d.fsys.Read(manifestPath)
	if err != nil {
		return discovered{}, false, nil
	}
	m := setupPyNameRe.FindStringSubmatch(string(data))
	if m == nil {
		return discovered{}, false, &ErrManifestParse{Path: manifestPath, Err: errMissingPyProjectName}
	}
	return discovered{
		pkg: pkggraph.Package{
			ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemPython, Name: m[1]},
			Root:         root,
			ManifestPath: manifestPath,
			SourceGlobs:  []string{"**/*.py"},
			IgnoreGlobs:  []string{"**/__pycache__/**"},
		},
	}, true, nil
}

// pep508Name strips version specifiers/extras from a PEP 508 dependency
// string ("foo>=1.0" -> "foo").
func pep508Name(spec string) string {
	for i, r := range spec {
		if r == '=' || r == '<' || r == '>' || r == '!' || r == '~' || r == '[' || r == ' ' || r == ';' {
			return spec[:i]
		}
	}
	return spec
}

type pyErr string

func (e pyErr) Error() string { return string(e) }

const errMissingPyProjectName = pyErr("missing package name")
