package launch

import (
	"fmt"

	"launchcore/internal/changeset"
	"launchcore/internal/launchconfig"
	"launchcore/internal/revision"
)

// DetectChanges maps a revision pair through adapter into a ChangeSet over
// ws's packages, honoring the monorepo.* policy in cfg.
func DetectChanges(ws *Workspace, adapter revision.Adapter, fromRev, toRev string, cfg *launchconfig.Config) (changeset.ChangeSet, error) {
	opts := changeset.Options{
		IgnoreChanges:    cfg.Monorepo.IgnoreChanges,
		SharedAffectsAll: cfg.Monorepo.SharedAffectsAll,
	}
	cs, err := changeset.Detect(adapter, ws.Packages, fromRev, toRev, opts)
	if err != nil {
		return changeset.ChangeSet{}, fmt.Errorf("launch: detecting changes: %w", err)
	}
	return cs, nil
}
