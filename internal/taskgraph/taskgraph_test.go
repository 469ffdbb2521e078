package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/pkggraph"
)

func twoPackageGraph(t *testing.T) (*pkggraph.Graph, pkggraph.ID, pkggraph.ID) {
	t.Helper()
	core := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "core"}
	web := pkggraph.ID{Ecosystem: pkggraph.EcosystemCargo, Name: "web"}
	g, err := pkggraph.New([]pkggraph.Package{
		{ID: core},
		{ID: web, Deps: []pkggraph.ID{core}},
	})
	require.NoError(t, err)
	return g, core, web
}

func TestBuildCrossPackageDependsOnPackages(t *testing.T) {
	g, core, web := twoPackageGraph(t)
	pipeline := map[string]Spec{
		"build": {Name: "build", Command: "build.sh", DependsOnPackages: true},
	}

	tg, err := Build(pipeline, []string{"build"}, []pkggraph.ID{core, web}, g)
	require.NoError(t, err)

	order := tg.SortedOrder()
	coreIdx, webIdx := indexOfID(order, ID{Package: core, Task: "build"}), indexOfID(order, ID{Package: web, Task: "build"})
	assert.Less(t, coreIdx, webIdx, "build@core must precede build@web")

	waves := tg.Waves()
	require.Len(t, waves, 2)
	assert.Equal(t, []ID{{Package: core, Task: "build"}}, waves[0])
	assert.Equal(t, []ID{{Package: web, Task: "build"}}, waves[1])
}

func TestBuildIntraPackageDependsOn(t *testing.T) {
	g, core, _ := twoPackageGraph(t)
	pipeline := map[string]Spec{
		"build": {Name: "build"},
		"test":  {Name: "test", DependsOn: []string{"build"}},
	}

	tg, err := Build(pipeline, []string{"build", "test"}, []pkggraph.ID{core}, g)
	require.NoError(t, err)

	testNode, ok := tg.Node(ID{Package: core, Task: "test"})
	require.True(t, ok)
	assert.Equal(t, []ID{{Package: core, Task: "build"}}, testNode.EdgesIn)
	assert.Equal(t, 1, testNode.Wave)
}

func TestBuildElidesEdgeToUnselectedNode(t *testing.T) {
	g, core, _ := twoPackageGraph(t)
	pipeline := map[string]Spec{
		"build": {Name: "build"},
		"test":  {Name: "test", DependsOn: []string{"build"}},
	}

	// Only "test" is requested: the depends_on "build" edge is elided, not
	// an error, since build@core was never selected.
	tg, err := Build(pipeline, []string{"test"}, []pkggraph.ID{core}, g)
	require.NoError(t, err)

	testNode, ok := tg.Node(ID{Package: core, Task: "test"})
	require.True(t, ok)
	assert.Empty(t, testNode.EdgesIn)
	assert.Equal(t, 0, testNode.Wave)
}

func TestBuildDetectsCycle(t *testing.T) {
	g, core, _ := twoPackageGraph(t)
	pipeline := map[string]Spec{
		"test": {Name: "test", DependsOn: []string{"lint"}},
		"lint": {Name: "lint", DependsOn: []string{"test"}},
	}

	_, err := Build(pipeline, []string{"test", "lint"}, []pkggraph.ID{core}, g)
	require.Error(t, err)
	var cycleErr *ErrCycle
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []ID{
		{Package: core, Task: "test"},
		{Package: core, Task: "lint"},
	}, cycleErr.Nodes)
}

func TestBuildUnknownTaskFails(t *testing.T) {
	g, core, _ := twoPackageGraph(t)
	pipeline := map[string]Spec{"build": {Name: "build"}}

	_, err := Build(pipeline, []string{"nonexistent"}, []pkggraph.ID{core}, g)
	require.Error(t, err)
	var notFound *ErrTaskNotFound
	require.ErrorAs(t, err, &notFound)
}

func indexOfID(ids []ID, target ID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}
