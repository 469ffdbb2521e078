package pkggraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idOf(name string) ID { return ID{Ecosystem: EcosystemCargo, Name: name} }

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	core := Package{ID: idOf("core")}
	web := Package{ID: idOf("web"), Deps: []ID{idOf("core")}}

	g, err := New([]Package{web, core})
	require.NoError(t, err)

	order := g.TopologicalOrder()
	require.Len(t, order, 2)
	coreIdx, webIdx := indexOf(order, idOf("core")), indexOf(order, idOf("web"))
	assert.Less(t, coreIdx, webIdx)
}

func TestCycleDetected(t *testing.T) {
	a := Package{ID: idOf("a"), Deps: []ID{idOf("b")}}
	b := Package{ID: idOf("b"), Deps: []ID{idOf("a")}}

	_, err := New([]Package{a, b})
	require.Error(t, err)
	var cycleErr *ErrCyclicDependency
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []ID{idOf("a"), idOf("b")}, cycleErr.Cycle)
}

func TestDuplicatePackage(t *testing.T) {
	a := Package{ID: idOf("a")}
	_, err := New([]Package{a, a})
	require.Error(t, err)
	var dupErr *ErrDuplicatePackage
	require.ErrorAs(t, err, &dupErr)
}

func TestAffectedIsReverseTransitiveClosure(t *testing.T) {
	core := Package{ID: idOf("core")}
	mid := Package{ID: idOf("mid"), Deps: []ID{idOf("core")}}
	top := Package{ID: idOf("top"), Deps: []ID{idOf("mid")}}

	g, err := New([]Package{core, mid, top})
	require.NoError(t, err)

	affected, err := g.Affected([]ID{idOf("core")})
	require.NoError(t, err)
	assert.True(t, affected[idOf("core")])
	assert.True(t, affected[idOf("mid")])
	assert.True(t, affected[idOf("top")])
}

func TestAffectedMonotonicity(t *testing.T) {
	core := Package{ID: idOf("core")}
	web := Package{ID: idOf("web"), Deps: []ID{idOf("core")}}
	other := Package{ID: idOf("other")}

	g, err := New([]Package{core, web, other})
	require.NoError(t, err)

	union, err := g.Affected([]ID{idOf("core"), idOf("other")})
	require.NoError(t, err)

	fromCore, err := g.Affected([]ID{idOf("core")})
	require.NoError(t, err)
	fromOther, err := g.Affected([]ID{idOf("other")})
	require.NoError(t, err)

	for id := range fromCore {
		assert.True(t, union[id])
	}
	for id := range fromOther {
		assert.True(t, union[id])
	}
}

func indexOf(ids []ID, target ID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}
