package passmanager_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/diag"
	"optcore/internal/loopopt"
	"optcore/internal/passmanager"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

func TestAddPassRejectsUnknownID(t *testing.T) {
	pm := passmanager.New()
	err := pm.AddPass(passmanager.NewPass("not_a_real_pass", func(*ssa.Graph, *stats.Counters) bool { return false }))
	require.Error(t, err)
	require.Empty(t, pm.Passes())
}

func TestAddPassAcceptsKnownID(t *testing.T) {
	pm := passmanager.New()
	err := pm.AddPass(passmanager.NewPass(passmanager.PassCodeSinking, func(*ssa.Graph, *stats.Counters) bool { return false }))
	require.NoError(t, err)
	require.Len(t, pm.Passes(), 1)
}

func TestRunReturnsDistinctRunIDsEachTime(t *testing.T) {
	pm := passmanager.New()
	g := ssa.NewGraph()
	g.Entry().SetReturnVoid()

	id1, err := pm.Run(g)
	require.NoError(t, err)
	id2, err := pm.Run(g)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestRunStopsOnCancellation(t *testing.T) {
	pm := passmanager.New()
	ran := false
	_ = pm.AddPass(passmanager.NewPass(passmanager.PassCodeSinking, func(*ssa.Graph, *stats.Counters) bool {
		ran = true
		return false
	}))
	pm.Cancellation = func() bool { return true }

	g := ssa.NewGraph()
	g.Entry().SetReturnVoid()

	_, err := pm.Run(g)
	require.Error(t, err)
	require.True(t, errors.Is(err, diag.Bailout))
	require.False(t, ran, "cancellation checked before the pass runs, not after")
}

// TestDefaultPipelineEliminatesRedundantStore exercises the whole wired
// pipeline (code_sinking, load_store_elimination x2, loop_optimization,
// cha_guard_optimization) against a graph only load-store elimination
// should touch, confirming DefaultPipeline's ordering doesn't interfere
// with a pass that has nothing to do with sinking or loops.
func TestDefaultPipelineEliminatesRedundantStore(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	second := entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	entry.SetReturnVoid()

	pm := passmanager.DefaultPipeline(loopopt.TargetFeatures{})
	runID, err := pm.Run(g)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	require.Nil(t, second.Block(), "redundant store should have been eliminated")
	require.Equal(t, int64(1), pm.Counters.Get("lse_writes_eliminated"))
	require.Equal(t, int64(1), pm.Counters.Get(string(passmanager.PassLoadStoreElimination)+"_applied"))
}
