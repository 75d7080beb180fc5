package lse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/lse"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// TestRunEliminatesRedundantLoadAfterStore: store f(o,1)=v; load f(o,1) in
// the same block should fold to v without reading memory again.
func TestRunEliminatesRedundantLoadAfterStore(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	load := entry.NewInstanceFieldGet(ssa.Int32, obj.Result(), 1)
	entry.SetReturn(load.Result())

	counters := stats.NewCounters()
	changed := lse.Run(g, counters)
	require.True(t, changed)
	require.Nil(t, load.Block(), "redundant load should have been removed")
	require.Equal(t, int64(1), counters.Get("lse_reads_eliminated"))
}

// TestRunEliminatesRedundantStore: storing the same value twice in a row
// should drop the second store.
func TestRunEliminatesRedundantStore(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	second := entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	entry.SetReturnVoid()

	counters := stats.NewCounters()
	changed := lse.Run(g, counters)
	require.True(t, changed)
	require.Nil(t, second.Block())
	require.Equal(t, int64(1), counters.Get("lse_writes_eliminated"))
}

// TestRunMaterializesDefaultZero: a fresh allocation's never-written field
// read resolves to the zero constant rather than a memory access.
func TestRunMaterializesDefaultZero(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	load := entry.NewInstanceFieldGet(ssa.Int32, obj.Result(), 2)
	entry.SetReturn(load.Result())

	counters := stats.NewCounters()
	changed := lse.Run(g, counters)
	require.True(t, changed)
	require.Nil(t, load.Block())
}

// TestRunKeepsValueUnknownAcrossCall: a field read after an opaque Invoke
// must not be folded, since the call may have mutated the field.
func TestRunKeepsValueUnknownAcrossCall(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	entry.NewInvoke(ssa.Void, "mutate", []*ssa.Value{obj.Result()}, 0)
	load := entry.NewInstanceFieldGet(ssa.Int32, obj.Result(), 1)
	entry.SetReturn(load.Result())

	counters := stats.NewCounters()
	lse.Run(g, counters)
	require.NotNil(t, load.Block(), "load after an opaque call must survive")
	require.Equal(t, int64(0), counters.Get("lse_reads_eliminated"))
}
