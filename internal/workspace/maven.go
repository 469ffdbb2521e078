package workspace

import (
	"encoding/xml"

	"launchcore/internal/pkggraph"
)

type pomXML struct {
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Version      string   `xml:"version"`
	Modules      []string `xml:"modules>module"`
	Dependencies []struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
	} `xml:"dependencies>dependency"`
}

// discoverMaven handles pom.xml with a <modules> list. No
// third-party XML library exists anywhere in the retrieval pack, and
// encoding/xml is the obvious, complete tool for a well-formed pom.xml —
// see DESIGN.md.
func (d *Discoverer) discoverMaven(root string) ([]discovered, error) {
	rootManifest := joinRel(root, "pom.xml")
	data, err := d.fsys.Read(rootManifest)
	if err != nil {
		return nil, nil
	}
	var rootPom pomXML
	if err := xml.Unmarshal(data, &rootPom); err != nil {
		return nil, &ErrManifestParse{Path: rootManifest, Err: err}
	}
	if len(rootPom.Modules) == 0 {
		return nil, nil
	}

	var pkgs []discovered
	for _, mod := range rootPom.Modules {
		manifest := joinRel(root, mod+"/pom.xml")
		modData, err := d.fsys.Read(manifest)
		if err != nil {
			continue
		}
		var pom pomXML
		if err := xml.Unmarshal(modData, &pom); err != nil {
			return nil, &ErrManifestParse{Path: manifest, Err: err}
		}
		if pom.ArtifactID == "" {
			continue
		}
		var depRefs []string
		for _, dep := range pom.Dependencies {
			depRefs = append(depRefs, dep.ArtifactID)
		}
		pkgs = append(pkgs, discovered{
			pkg: pkggraph.Package{
				ID:           pkggraph.ID{Ecosystem: pkggraph.EcosystemMaven, Name: pom.ArtifactID},
				Root:         joinRel(root, mod),
				ManifestPath: manifest,
				Version:      pom.Version,
				SourceGlobs:  []string{"src/main/**"},
				IgnoreGlobs:  []string{"target/**"},
			},
			depRefs: depRefs,
		})
	}
	return pkgs, nil
}
