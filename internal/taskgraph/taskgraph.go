// Package taskgraph implements the Task Graph Builder: expanding
// a requested task list over a set of packages into a task-level DAG, honoring
// per-task depends_on and depends_on_packages relations, grounded on
// canaveral-tasks/src/dag.rs's TaskDag::build/topological_sort/compute_waves.
package taskgraph

import (
	"fmt"
	"sort"

	"launchcore/internal/pkggraph"
)

// ID identifies one task node: a task name materialized against a package.
type ID struct {
	Package pkggraph.ID
	Task    string
}

func (id ID) String() string { return fmt.Sprintf("%s:%s", id.Package, id.Task) }

func (id ID) less(other ID) bool {
	if id.Package != other.Package {
		return id.Package.Less(other.Package)
	}
	return id.Task < other.Task
}

// Spec is a named task's configuration template.
type Spec struct {
	Name              string
	Command           string
	DependsOn         []string // intra-package task names
	DependsOnPackages bool     // request the same task in dependency packages first
	Inputs            []string
	Outputs           []string
	Env               []string
	Cache             bool
}

// Node is one (package, task) pair materialized from a Spec × Package.
type Node struct {
	ID      ID
	Spec    Spec
	EdgesIn []ID // prerequisites; forms a DAG
	Wave    int
}

// ErrTaskNotFound is returned by Build when tasks names a task absent
// from the pipeline table.
type ErrTaskNotFound struct {
	Task string
}

func (e *ErrTaskNotFound) Error() string { return fmt.Sprintf("taskgraph: unknown task %q", e.Task) }

// ErrCycle is returned by Build when the expanded task DAG contains a cycle —
// possible only via misdeclared depends_on.
type ErrCycle struct {
	Nodes []ID
}

func (e *ErrCycle) Error() string {
	parts := make([]string, len(e.Nodes))
	for i, id := range e.Nodes {
		parts[i] = id.String()
	}
	return fmt.Sprintf("taskgraph: cyclic task dependency: %v", parts)
}

// Graph is the built task DAG: nodes, their dependency edges, and the
// execution waves computed from those edges.
type Graph struct {
	nodes map[ID]*Node
	order []ID // topological order
	waves [][]ID
}

// Build expands tasks over packages into a Graph. pipeline maps
// task name to its Spec; tasks lists the task names to materialize; packages
// is the already-filtered (e.g. by --affected) set of packages to build
// nodes for; graph is the full PackageGraph used to resolve
// depends_on_packages edges.
func Build(pipeline map[string]Spec, tasks []string, packages []pkggraph.ID, graph *pkggraph.Graph) (*Graph, error) {
	selected := make(map[ID]*Node)
	for _, pkg := range packages {
		for _, taskName := range tasks {
			spec, ok := pipeline[taskName]
			if !ok {
				return nil, &ErrTaskNotFound{Task: taskName}
			}
			id := ID{Package: pkg, Task: taskName}
			selected[id] = &Node{ID: id, Spec: spec}
		}
	}

	taskSet := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		taskSet[t] = true
	}

	for _, pkg := range packages {
		for _, taskName := range tasks {
			id := ID{Package: pkg, Task: taskName}
			node := selected[id]
			var edges []ID

			for _, depTask := range node.Spec.DependsOn {
				if !taskSet[depTask] {
					continue
				}
				depID := ID{Package: pkg, Task: depTask}
				if _, exists := selected[depID]; exists {
					edges = append(edges, depID)
				}
				// Edges pointing at nodes not selected are elided, not errors
				//: the referenced work is out of scope or
				// already complete.
			}

			if node.Spec.DependsOnPackages {
				for _, depPkg := range graph.DependenciesOf(pkg) {
					depID := ID{Package: depPkg, Task: taskName}
					if _, exists := selected[depID]; exists {
						edges = append(edges, depID)
					}
				}
			}

			sort.Slice(edges, func(i, j int) bool { return edges[i].less(edges[j]) })
			node.EdgesIn = edges
		}
	}

	order, err := topologicalSort(selected)
	if err != nil {
		return nil, err
	}
	waves := computeWaves(selected, order)
	for waveIdx, wave := range waves {
		for _, id := range wave {
			selected[id].Wave = waveIdx
		}
	}

	return &Graph{nodes: selected, order: order, waves: waves}, nil
}

// topologicalSort runs Kahn's algorithm over nodes' EdgesIn, breaking ties by
// ID order for determinism, and reports every node whose in-degree never
// reached zero on cycle.
func topologicalSort(nodes map[ID]*Node) ([]ID, error) {
	indeg := make(map[ID]int, len(nodes))
	dependents := make(map[ID][]ID, len(nodes))
	for id, n := range nodes {
		indeg[id] = len(n.EdgesIn)
		for _, dep := range n.EdgesIn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []ID
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}

	var order []ID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].less(ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(nodes) {
		var cyclic []ID
		for id, d := range indeg {
			if d > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i].less(cyclic[j]) })
		return nil, &ErrCycle{Nodes: cyclic}
	}
	return order, nil
}

// computeWaves assigns wave = 1 + max(dependency waves), default 0, and
// groups nodes by wave index.
func computeWaves(nodes map[ID]*Node, order []ID) [][]ID {
	waveOf := make(map[ID]int, len(order))
	maxWave := 0
	for _, id := range order {
		wave := -1
		for _, dep := range nodes[id].EdgesIn {
			if w := waveOf[dep]; w > wave {
				wave = w
			}
		}
		wave++
		waveOf[id] = wave
		if wave > maxWave {
			maxWave = wave
		}
	}
	waves := make([][]ID, maxWave+1)
	for _, id := range order {
		waves[waveOf[id]] = append(waves[waveOf[id]], id)
	}
	return waves
}

// Node returns the task node for id.
func (g *Graph) Node(id ID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node, in topological order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// SortedOrder returns the topological order of task IDs.
func (g *Graph) SortedOrder() []ID {
	out := make([]ID, len(g.order))
	copy(out, g.order)
	return out
}

// Waves returns the execution plan: wave 0 runs first, then wave 1, etc.
// Nodes within a wave have no edges among them and may run in parallel.
func (g *Graph) Waves() [][]ID {
	out := make([][]ID, len(g.waves))
	for i, w := range g.waves {
		cp := make([]ID, len(w))
		copy(cp, w)
		out[i] = cp
	}
	return out
}

// ExecutionPlan renders a human-readable summary of the waves and each
// node's command and prerequisites, per canaveral-tasks' execution_plan.
func (g *Graph) ExecutionPlan() string {
	out := ""
	for i, wave := range g.waves {
		out += fmt.Sprintf("Wave %d (%d tasks):\n", i, len(wave))
		for _, id := range wave {
			n := g.nodes[id]
			cmd := n.Spec.Command
			if cmd == "" {
				cmd = "<framework adapter>"
			}
			if len(n.EdgesIn) == 0 {
				out += fmt.Sprintf("  %s -> %s\n", id, cmd)
				continue
			}
			deps := make([]string, len(n.EdgesIn))
			for j, d := range n.EdgesIn {
				deps[j] = d.String()
			}
			out += fmt.Sprintf("  %s -> %s (after: %v)\n", id, cmd, deps)
		}
	}
	return out
}
