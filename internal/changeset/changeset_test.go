package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/pkggraph"
)

type fakeAdapter struct {
	changed   []string
	untracked []string
}

func (f *fakeAdapter) ChangedFiles(string, string) ([]string, error) { return f.changed, nil }
func (f *fakeAdapter) CurrentHead() (string, error)                  { return "HEAD", nil }
func (f *fakeAdapter) IsDirty() (bool, error)                        { return false, nil }
func (f *fakeAdapter) UntrackedFiles() ([]string, error)             { return f.untracked, nil }

func buildGraph(t *testing.T) *pkggraph.Graph {
	core := pkggraph.Package{ID: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}, Root: "core"}
	web := pkggraph.Package{ID: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}, Root: "web", Deps: []pkggraph.ID{core.ID}}
	g, err := pkggraph.New([]pkggraph.Package{core, web})
	require.NoError(t, err)
	return g
}

func TestDetectDirectAndDependency(t *testing.T) {
	g := buildGraph(t)
	adapter := &fakeAdapter{changed: []string{"core/src/lib.rs"}}

	cs, err := Detect(adapter, g, "HEAD~1", "", Options{})
	require.NoError(t, err)

	coreID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}
	webID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}
	assert.Equal(t, KindDirect, cs.Kinds[coreID])
	assert.Equal(t, KindDependency, cs.Kinds[webID])
}

func TestDetectSharedFileNotEscalating(t *testing.T) {
	g := buildGraph(t)
	adapter := &fakeAdapter{changed: []string{"README.md"}}

	cs, err := Detect(adapter, g, "HEAD~1", "", Options{SharedAffectsAll: false})
	require.NoError(t, err)
	assert.Empty(t, cs.Kinds)
	assert.Equal(t, []string{"README.md"}, cs.SharedFiles)
}

func TestDetectSharedFileEscalating(t *testing.T) {
	g := buildGraph(t)
	adapter := &fakeAdapter{changed: []string{"README.md"}}

	cs, err := Detect(adapter, g, "HEAD~1", "", Options{SharedAffectsAll: true})
	require.NoError(t, err)
	assert.Len(t, cs.Kinds, 2)
	for _, kind := range cs.Kinds {
		assert.Equal(t, KindDirect, kind)
	}
}

func TestDetectIgnoreGlobDrops(t *testing.T) {
	g := buildGraph(t)
	adapter := &fakeAdapter{changed: []string{"core/README.md"}}

	cs, err := Detect(adapter, g, "HEAD~1", "", Options{IgnoreChanges: []string{"**/README.md"}})
	require.NoError(t, err)
	assert.Empty(t, cs.Kinds)
}

func TestDetectDeepestRootWins(t *testing.T) {
	core := pkggraph.Package{ID: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}, Root: "pkgs"}
	nested := pkggraph.Package{ID: pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "nested"}, Root: "pkgs/nested"}
	g, err := pkggraph.New([]pkggraph.Package{core, nested})
	require.NoError(t, err)

	adapter := &fakeAdapter{changed: []string{"pkgs/nested/src/lib.rs"}}
	cs, err := Detect(adapter, g, "HEAD~1", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, KindDirect, cs.Kinds[nested.ID])
	_, hasCore := cs.Kinds[core.ID]
	assert.False(t, hasCore)
}

func TestFilesByPackageTrimsToPackageRelative(t *testing.T) {
	g := buildGraph(t)
	byPkg := FilesByPackage(g, []string{"core/src/lib.rs", "web/src/main.rs", "README.md"})

	coreID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}
	webID := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}
	assert.Equal(t, []string{"src/lib.rs"}, byPkg[coreID])
	assert.Equal(t, []string{"src/main.rs"}, byPkg[webID])
	assert.Len(t, byPkg, 2) // README.md matches no package root and is omitted
}
