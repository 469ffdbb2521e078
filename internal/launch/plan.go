package launch

import (
	"fmt"

	"launchcore/internal/launchconfig"
	"launchcore/internal/pkggraph"
	"launchcore/internal/taskgraph"
)

// Plan expands tasks over packages into a task DAG. packages is
// the already-filtered selection (e.g. the result of applying --affected to
// ws.Packages via a ChangeSet); passing every package in ws.Packages.Packages
// plans the whole workspace.
func Plan(ws *Workspace, cfg *launchconfig.Config, tasks []string, packages []pkggraph.ID) (*taskgraph.Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("launch: invalid configuration: %w", err)
	}
	tg, err := taskgraph.Build(cfg.Pipeline(), tasks, packages, ws.Packages)
	if err != nil {
		return nil, fmt.Errorf("launch: planning: %w", err)
	}
	return tg, nil
}
