package lse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/lse"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// TestRunPartialDiamondScenario builds the canonical escape diamond: an
// allocation whose field 1 is set unconditionally, then a branch where one
// side lets the reference escape to an opaque call (never touching field
// 2) and the other side only ever mutates field 2 locally. The merge block
// reads both fields back. Partial LSE should materialize a fresh object on
// the non-escaping side, route field reads at the merge through predicated
// ops keyed on a reference phi, and leave the escaping side referencing the
// original allocation untouched.
func TestRunPartialDiamondScenario(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	escapeBlk := g.NewBlock()
	nonEscapeBlk := g.NewBlock()
	after := g.NewBlock()

	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	selector := entry.NewParameter(ssa.Int32, 1)
	zero := entry.NewConstant(ssa.Int32, 0, false)
	cond := entry.NewCompare("!=", selector.Result(), zero.Result())
	entry.SetIf(cond.Result(), escapeBlk, nonEscapeBlk)

	escapeBlk.NewInvoke(ssa.Void, "consume", []*ssa.Value{obj.Result()}, 0)
	escapeBlk.SetGoto(after)

	seven := nonEscapeBlk.NewConstant(ssa.Int32, 7, false)
	nonEscapeBlk.NewInstanceFieldSet(obj.Result(), seven.Result(), 2, false)
	nonEscapeBlk.SetGoto(after)

	read1 := after.NewInstanceFieldGet(ssa.Int32, obj.Result(), 1)
	read2 := after.NewInstanceFieldGet(ssa.Int32, obj.Result(), 2)
	sum := after.NewAdd(ssa.Int32, read1.Result(), read2.Result())
	after.SetReturn(sum.Result())

	counters := stats.NewCounters()
	changed := lse.RunPartial(g, counters)
	require.True(t, changed)
	require.Equal(t, int64(1), counters.Get("partial_lse_materializations"))

	// The escaping branch keeps calling with the original allocation.
	invoke := escapeBlk.First()
	require.Equal(t, ssa.KindNewInstance, obj.Block().Instructions()[0].Kind())
	require.Same(t, obj.Result(), invoke.InputAt(0))

	// The merge block's field reads are no longer plain field accesses on
	// the original object; they were rewritten to predicated ops (or folded
	// away entirely by the scalar cleanup pass RunPartial runs afterward).
	for _, instr := range after.Instructions() {
		if instr.Kind() == ssa.KindInstanceFieldGet {
			require.NotEqual(t, obj.Result(), instr.InputAt(0), "merge-point field reads must not target the original allocation directly")
		}
	}
}

// TestRunPartialSkipsFullyEscapingAllocation: an allocation that always
// escapes has no non-escaping path to materialize around, so partial LSE
// has nothing to do.
func TestRunPartialSkipsFullyEscapingAllocation(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	entry.NewInvoke(ssa.Void, "consume", []*ssa.Value{obj.Result()}, 0)
	entry.SetReturnVoid()

	counters := stats.NewCounters()
	changed := lse.RunPartial(g, counters)
	require.False(t, changed)
	require.Equal(t, int64(0), counters.Get("partial_lse_materializations"))
}

// TestRunPartialSkipsFullyLocalAllocation: an allocation that never escapes
// is scalar LSE's job entirely; partial LSE should not touch it.
func TestRunPartialSkipsFullyLocalAllocation(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	v := entry.NewParameter(ssa.Int32, 0)
	entry.NewInstanceFieldSet(obj.Result(), v.Result(), 1, false)
	load := entry.NewInstanceFieldGet(ssa.Int32, obj.Result(), 1)
	entry.SetReturn(load.Result())

	counters := stats.NewCounters()
	changed := lse.RunPartial(g, counters)
	require.False(t, changed)
}
