package sinking_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/sinking"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// buildThrowGraph builds:
//
//	entry: obj = NewInstance("Foo"); v = Param(0); cond = v > 0; If cond
//	  common:  Return v
//	  rare:    f = InstanceFieldGet(obj, 0); InstanceFieldSet(obj, 1, f); Throw obj
//
// NewInstance and the field ops are only used along the rare path, so code
// sinking should relocate them out of entry and into the rare block.
func buildThrowGraph() (*ssa.Graph, *ssa.Instruction) {
	g := ssa.NewGraph()
	entry := g.Entry()
	common := g.NewBlock()
	rare := g.NewBlock()

	param := entry.NewParameter(ssa.Int32, 0)
	zero := entry.NewConstant(ssa.Int32, 0, false)
	obj := entry.NewNewInstance("Foo")
	cond := entry.NewCompare(">", param.Result(), zero.Result())
	entry.SetIf(cond.Result(), common, rare)

	common.SetReturn(param.Result())

	one := rare.NewConstant(ssa.Int32, 1, false)
	f := rare.NewInstanceFieldGet(ssa.Int32, obj.Result(), 0)
	rare.NewInstanceFieldSet(obj.Result(), f.Result(), 1, false)
	_ = one
	rare.SetThrow(obj.Result())

	return g, obj
}

func TestRunSinksAllocationIntoThrowBranch(t *testing.T) {
	g, obj := buildThrowGraph()
	counters := stats.NewCounters()

	changed := sinking.Run(g, counters)
	require.True(t, changed)
	require.NotEqual(t, g.Entry(), obj.Block(), "allocation should have moved out of entry")
	require.Greater(t, counters.Get("sunk_instructions"), int64(0))
}

func TestRunIsIdempotent(t *testing.T) {
	g, _ := buildThrowGraph()
	counters := stats.NewCounters()

	sinking.Run(g, counters)
	firstCount := counters.Get("sunk_instructions")
	changed := sinking.Run(g, counters)
	require.False(t, changed)
	require.Equal(t, firstCount, counters.Get("sunk_instructions"))
}

// buildStoreAndAllocInEntryGraph builds:
//
//	entry: obj = NewInstance("Foo"); InstanceFieldSet(obj, one, 0); v = Param(0); cond = v > 0; If cond
//	  common:  Return v
//	  rare:    f = InstanceFieldGet(obj, 0); Throw obj
//
// Unlike buildThrowGraph, the store sits in entry alongside the allocation,
// not already inside the post-dominated block — so code sinking must move
// the store itself, not just observe it's already where it belongs.
func buildStoreAndAllocInEntryGraph() (g *ssa.Graph, obj, store, get *ssa.Instruction, rare *ssa.BasicBlock) {
	g = ssa.NewGraph()
	entry := g.Entry()
	common := g.NewBlock()
	rare = g.NewBlock()

	param := entry.NewParameter(ssa.Int32, 0)
	zero := entry.NewConstant(ssa.Int32, 0, false)
	one := entry.NewConstant(ssa.Int32, 1, false)
	obj = entry.NewNewInstance("Foo")
	store = entry.NewInstanceFieldSet(obj.Result(), one.Result(), 0, false)
	cond := entry.NewCompare(">", param.Result(), zero.Result())
	entry.SetIf(cond.Result(), common, rare)

	common.SetReturn(param.Result())

	get = rare.NewInstanceFieldGet(ssa.Int32, obj.Result(), 0)
	rare.SetThrow(obj.Result())

	return g, obj, store, get, rare
}

func TestRunSinksStoreWithItsAllocation(t *testing.T) {
	g, obj, store, get, rare := buildStoreAndAllocInEntryGraph()
	counters := stats.NewCounters()

	changed := sinking.Run(g, counters)
	require.True(t, changed)
	require.Equal(t, rare, obj.Block(), "allocation should have sunk into the rare block")
	require.Equal(t, rare, store.Block(), "the store into the allocation should have sunk alongside it")
	require.True(t, store.StrictlyDominates(get), "the store should still happen before the read that follows it")
	require.GreaterOrEqual(t, counters.Get("sunk_instructions"), int64(2))
}

func TestRunLeavesLoopsAlone(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	rare := g.NewBlock()
	after := g.NewBlock()

	entry.SetGoto(header)

	zero := entry.NewConstant(ssa.Int32, 0, false)
	ten := entry.NewConstant(ssa.Int32, 10, false)
	i := header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(0, zero.Result())
	cond := header.NewCompare("<", i.Result(), ten.Result())
	header.SetIf(cond.Result(), body, after)

	obj := body.NewNewInstance("Bar")
	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	i.SetPhiInput(1, next.Result())
	body.SetGoto(header)
	_ = obj

	after.SetThrow(zero.Result())
	_ = rare

	counters := stats.NewCounters()
	sinking.Run(g, counters)
	require.Equal(t, body, obj.Block(), "allocation inside the loop body must not be sunk past the loop")
}
