// Package pkggraph models a workspace's packages and the acyclic dependency
// graph between them.
package pkggraph

import (
	"fmt"
	"sort"
)

// Ecosystem tags the manifest family a Package was discovered from.
type Ecosystem string

const (
	EcosystemNpm    Ecosystem = "npm"
	EcosystemCargo  Ecosystem = "cargo"
	EcosystemPython Ecosystem = "python"
	EcosystemGo     Ecosystem = "go"
	EcosystemMaven  Ecosystem = "maven"
	EcosystemDocker Ecosystem = "docker"
	EcosystemCustom Ecosystem = "custom"
)

// ID is a Package's stable identity: ecosystem plus a normalized name.
// (ecosystem, name) is unique within a workspace.
type ID struct {
	Ecosystem Ecosystem
	Name      string
}

func (id ID) String() string { return fmt.Sprintf("%s:%s", id.Ecosystem, id.Name) }

// Less orders IDs lexically by (ecosystem, name), the tie-break used for
// deterministic topological order.
func (id ID) Less(other ID) bool {
	if id.Ecosystem != other.Ecosystem {
		return id.Ecosystem < other.Ecosystem
	}
	return id.Name < other.Name
}

// Package is one manifest-defined unit in a workspace.
type Package struct {
	ID           ID
	Root         string // package root, relative to the workspace root
	ManifestPath string
	Version      string
	Deps         []ID // internal dependency edges; only to packages in this workspace
	SourceGlobs  []string
	IgnoreGlobs  []string
}

// ErrCyclicDependency is returned by New when the declared dependency edges
// contain a cycle. Cycle lists, sorted by ID, every package that could not be
// ordered: the packages on the cycle and any package that depends on one of
// them. It does not give the order of the nodes along the cycle.
type ErrCyclicDependency struct {
	Cycle []ID
}

func (e *ErrCyclicDependency) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = id.String()
	}
	return fmt.Sprintf("pkggraph: cyclic dependency: %v", parts)
}

// ErrDuplicatePackage is returned by New when two packages share an ID.
type ErrDuplicatePackage struct {
	ID ID
}

func (e *ErrDuplicatePackage) Error() string {
	return fmt.Sprintf("pkggraph: duplicate package: %s", e.ID)
}

// ErrUnknownPackage is returned by accessors given an ID not in the graph.
type ErrUnknownPackage struct {
	ID ID
}

func (e *ErrUnknownPackage) Error() string {
	return fmt.Sprintf("pkggraph: unknown package: %s", e.ID)
}

// Graph is an immutable, acyclic digraph over Packages.
type Graph struct {
	packages map[ID]Package
	// deps[p] lists the packages p depends on; dependents[p] lists the
	// packages that depend on p. Both are kept so dependencies_of and
	// dependents_of are O(1) lookups rather than linear scans.
	deps       map[ID][]ID
	dependents map[ID][]ID
	order      []ID // cached deterministic topological order
}

// New builds a Graph from packages, validating uniqueness and acyclicity.
// Dependency edges to IDs outside packages are an error at this layer; the
// workspace discoverer is responsible for dropping unknown external names
// before calling New.
func New(packages []Package) (*Graph, error) {
	g := &Graph{
		packages:   make(map[ID]Package, len(packages)),
		deps:       make(map[ID][]ID, len(packages)),
		dependents: make(map[ID][]ID, len(packages)),
	}
	for _, p := range packages {
		if _, dup := g.packages[p.ID]; dup {
			return nil, &ErrDuplicatePackage{ID: p.ID}
		}
		g.packages[p.ID] = p
	}
	for _, p := range packages {
		for _, dep := range p.Deps {
			if _, ok := g.packages[dep]; !ok {
				return nil, fmt.Errorf("pkggraph: package %s declares dependency on unknown package %s", p.ID, dep)
			}
			if dep == p.ID {
				return nil, fmt.Errorf("pkggraph: package %s declares a self-dependency", p.ID)
			}
			g.deps[p.ID] = append(g.deps[p.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], p.ID)
		}
	}
	for id := range g.packages {
		sortIDs(g.deps[id])
		sortIDs(g.dependents[id])
	}

	order, err := kahnOrder(g)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// kahnOrder computes a deterministic topological order over g using Kahn's
// algorithm, breaking ties by ID.Less. On failure it reports the cyclic
// subset: every node whose in-degree never reached zero.
func kahnOrder(g *Graph) ([]ID, error) {
	indeg := make(map[ID]int, len(g.packages))
	for id := range g.packages {
		indeg[id] = len(g.deps[id])
	}

	var ready []ID
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	var order []ID
	for len(ready) > 0 {
		sortIDs(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, dependent := range g.dependents[n] {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.packages) {
		var cycle []ID
		for id, d := range indeg {
			if d > 0 {
				cycle = append(cycle, id)
			}
		}
		sortIDs(cycle)
		return nil, &ErrCyclicDependency{Cycle: cycle}
	}
	return order, nil
}

// TopologicalOrder returns the package IDs in a deterministic dependency
// order: for every edge p -> q, q precedes p.
func (g *Graph) TopologicalOrder() []ID {
	out := make([]ID, len(g.order))
	copy(out, g.order)
	return out
}

// Package returns the Package for id.
func (g *Graph) Package(id ID) (Package, bool) {
	p, ok := g.packages[id]
	return p, ok
}

// Packages returns every package in the graph, in topological order.
func (g *Graph) Packages() []Package {
	out := make([]Package, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.packages[id])
	}
	return out
}

// DependenciesOf returns the packages id directly depends on.
func (g *Graph) DependenciesOf(id ID) []ID {
	out := make([]ID, len(g.deps[id]))
	copy(out, g.deps[id])
	return out
}

// DependentsOf returns the packages that directly depend on id.
func (g *Graph) DependentsOf(id ID) []ID {
	out := make([]ID, len(g.dependents[id]))
	copy(out, g.dependents[id])
	return out
}

// Affected returns seed unioned with every package that transitively depends
// on a member of seed: when a dependency changes, its
// dependents are affected. It is monotone and idempotent in seed.
func (g *Graph) Affected(seed []ID) (map[ID]bool, error) {
	result := make(map[ID]bool, len(seed))
	queue := make([]ID, 0, len(seed))
	for _, id := range seed {
		if _, ok := g.packages[id]; !ok {
			return nil, &ErrUnknownPackage{ID: id}
		}
		if !result[id] {
			result[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dependent := range g.dependents[n] {
			if !result[dependent] {
				result[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}
	return result, nil
}
