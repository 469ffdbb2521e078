// Package launch implements the Planner/executor API that ties
// the Workspace Discoverer, Package Graph, Change Detector, Import Graph
// Parser, Test Selector, Task Graph Builder, Cache Store, and Wave Scheduler
// together behind five operations: build_workspace, detect_changes,
// select_tests, plan, execute.
package launch

import (
	"fmt"

	"launchcore/internal/fsadapter"
	"launchcore/internal/pkggraph"
	"launchcore/internal/workspace"
)

// Workspace is a discovered, graphed set of packages rooted at one
// filesystem location ( "a workspace owns its Packages and
// PackageGraph").
type Workspace struct {
	Root     string
	FS       fsadapter.FS
	Packages *pkggraph.Graph
}

// BuildWorkspace discovers every package under root via fsys and builds the
// dependency graph over them.
func BuildWorkspace(fsys fsadapter.FS, root string) (*Workspace, error) {
	packages, err := workspace.New(fsys).Discover(root)
	if err != nil {
		return nil, fmt.Errorf("launch: discovering workspace: %w", err)
	}
	graph, err := pkggraph.New(packages)
	if err != nil {
		return nil, fmt.Errorf("launch: building package graph: %w", err)
	}
	return &Workspace{Root: root, FS: fsys, Packages: graph}, nil
}
