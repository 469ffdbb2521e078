package launch

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/changeset"
	"launchcore/internal/fsadapter/memfs"
	"launchcore/internal/importgraph"
	"launchcore/internal/importgraph/rust"
	"launchcore/internal/launchconfig"
	"launchcore/internal/pkggraph"
	"launchcore/internal/taskgraph"
)

type fakeAdapter struct {
	changed []string
}

func (f *fakeAdapter) ChangedFiles(string, string) ([]string, error) { return f.changed, nil }
func (f *fakeAdapter) CurrentHead() (string, error)                  { return "HEAD", nil }
func (f *fakeAdapter) IsDirty() (bool, error)                        { return false, nil }
func (f *fakeAdapter) UntrackedFiles() ([]string, error)             { return nil, nil }

func cargoWorkspace(t *testing.T) *Workspace {
	t.Helper()
	fsys := memfs.New()
	fsys.WriteFile("Cargo.toml", []byte(`[workspace]
members = ["core", "web"]
`), false)
	fsys.WriteFile("core/Cargo.toml", []byte(`[package]
name = "core"
`), false)
	fsys.WriteFile("core/src/lib.rs", []byte(`pub fn f() {}`), false)
	fsys.WriteFile("web/Cargo.toml", []byte(`[package]
name = "web"

[dependencies]
core = { path = "../core" }
`), false)
	fsys.WriteFile("web/src/main.rs", []byte(`fn main() {}`), false)

	ws, err := BuildWorkspace(fsys, ".")
	require.NoError(t, err)
	return ws
}

// TestSeedScenarioOneDependentOrdering covers the planning half of a build
// task with depends_on_packages: it must order build@web after build@core.
func TestSeedScenarioOneDependentOrdering(t *testing.T) {
	ws := cargoWorkspace(t)
	cfg := &launchconfig.Config{Tasks: launchconfig.TasksConfig{
		Pipeline: map[string]launchconfig.TaskSpec{
			"build": {
				Command:           "true",
				DependsOnPackages: true,
				Inputs:            []string{"src/**"},
				Outputs:           []string{"target/**"},
				Cache:             true,
			},
		},
	}}

	var ids []pkggraph.ID
	for _, p := range ws.Packages.Packages() {
		ids = append(ids, p.ID)
	}
	plan, err := Plan(ws, cfg, []string{"build"}, ids)
	require.NoError(t, err)

	order := plan.SortedOrder()
	require.Len(t, order, 2)
	coreID := taskgraph.ID{Package: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}, Task: "build"}
	webID := taskgraph.ID{Package: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}, Task: "build"}

	coreIdx, webIdx := -1, -1
	for i, id := range order {
		if id == coreID {
			coreIdx = i
		}
		if id == webID {
			webIdx = i
		}
	}
	require.NotEqual(t, -1, coreIdx)
	require.NotEqual(t, -1, webIdx)
	assert.Less(t, coreIdx, webIdx)
}

// TestSeedScenarioTwoTaskCycle covers test depends on lint and lint depends
// on test: planning must fail with a cycle error before any execution
// begins.
func TestSeedScenarioTwoTaskCycle(t *testing.T) {
	ws := cargoWorkspace(t)
	cfg := &launchconfig.Config{Tasks: launchconfig.TasksConfig{
		Pipeline: map[string]launchconfig.TaskSpec{
			"test": {Command: "true", DependsOn: []string{"lint"}},
			"lint": {Command: "true", DependsOn: []string{"test"}},
		},
	}}

	coreID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}
	_, err := Plan(ws, cfg, []string{"test", "lint"}, []pkggraph.ID{coreID})
	require.Error(t, err)
	var cycleErr *taskgraph.ErrCycle
	require.ErrorAs(t, err, &cycleErr)
}

// TestSelectTestsRust exercises DetectChanges + SelectTests together: a
// change to core/src/lib.rs with test_selection restricted to rust selects
// nothing for web, which only depends on core and changed none of its own
// files.
func TestSelectTestsRust(t *testing.T) {
	ws := cargoWorkspace(t)
	ws.FS.(*memfs.FS).WriteFile("core/tests/smoke_test.rs", []byte(`use core::f; fn t() { f(); }`), false)

	cfg := &launchconfig.Config{
		Monorepo:      launchconfig.MonorepoConfig{},
		TestSelection: launchconfig.TestSelectionConfig{Languages: []string{"rust"}},
	}
	adapter := &fakeAdapter{changed: []string{"core/src/lib.rs"}}
	cs, err := DetectChanges(ws, adapter, "HEAD~1", "", cfg)
	require.NoError(t, err)

	byPkg := changeset.FilesByPackage(ws.Packages, adapter.changed)
	tests, err := SelectTests(ws, cs, cfg, byPkg)
	require.NoError(t, err)

	coreID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}
	webID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}
	assert.Empty(t, tests[webID]) // dependency-only, no own changes
	_ = coreID
}

// TestCrateRootsForResolvesRealWorkspace exercises crateRootsFor against a
// workspace built the normal way (BuildWorkspace, not a hand-rolled
// rust.Parser{CrateRoots: ...}), proving CrateRoots is actually populated
// from discovered Cargo packages and that a `use core::a` edge from web's
// own file resolves across the crate boundary once that data is fed into
// the same FileGraph build SelectTests performs.
func TestCrateRootsForResolvesRealWorkspace(t *testing.T) {
	ws := cargoWorkspace(t)
	fsys := ws.FS.(*memfs.FS)
	fsys.WriteFile("core/src/lib.rs", []byte(`pub mod a;`), false)
	fsys.WriteFile("core/src/a.rs", []byte(`pub fn f() {}`), false)
	fsys.WriteFile("web/src/main.rs", []byte(`use core::a; fn main() { a::f(); }`), false)

	webPkg := mustPackage(t, ws, "web")
	crateRoots, crateFiles := crateRootsFor(ws, webPkg)
	require.Equal(t, "../core/src/lib.rs", crateRoots["core"])
	require.Contains(t, crateFiles, "../core/src/a.rs", "the whole dependency crate's tree, not just its root file, must be folded in for submodule-level use edges to resolve")

	webFiles, err := ws.FS.Walk(webPkg.Root, nil, webPkg.IgnoreGlobs)
	require.NoError(t, err)
	sourceFiles := append(webFiles, crateFiles...)

	root := webPkg.Root
	read := func(p string) ([]byte, error) { return ws.FS.Read(path.Join(root, p)) }
	p := rust.New()
	p.CrateRoots = crateRoots
	parserFor := func(f string) importgraph.LanguageParser {
		if path.Ext(f) == ".rs" {
			return p
		}
		return nil
	}
	graph := importgraph.Build(sourceFiles, read, parserFor)

	require.False(t, graph.AnyUnparsable())
	reached := graph.ReverseBFS([]string{"../core/src/a.rs"})
	assert.True(t, reached["src/main.rs"], "use core::a in web/src/main.rs must resolve to an edge pointing at core's a.rs, not be dropped as external")
}

func mustPackage(t *testing.T, ws *Workspace, name string) pkggraph.Package {
	t.Helper()
	pkg, ok := ws.Packages.Package(pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: name})
	require.True(t, ok)
	return pkg
}
