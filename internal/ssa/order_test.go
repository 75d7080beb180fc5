package ssa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/ssa"
)

// TestReversePostOrderVisitsDominatorsFirst: a block always appears in RPO
// before any of its successors.
func TestReversePostOrderVisitsDominatorsFirst(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	left := g.NewBlock()
	right := g.NewBlock()
	merge := g.NewBlock()

	cond := entry.NewParameter(ssa.Bool, 0)
	entry.SetIf(cond.Result(), left, right)
	left.SetGoto(merge)
	right.SetGoto(merge)
	merge.SetReturnVoid()

	rpo := g.ReversePostOrder()
	pos := make(map[*ssa.BasicBlock]int, len(rpo))
	for i, b := range rpo {
		pos[b] = i
	}
	require.Less(t, pos[entry], pos[left])
	require.Less(t, pos[entry], pos[right])
	require.Less(t, pos[left], pos[merge])
	require.Less(t, pos[right], pos[merge])
}

// TestReversePostOrderCacheInvalidatesOnMutation: the cached RPO must be
// recomputed once the graph's version token advances past a structural
// mutation (§5: "a structural mutation ... invalidates ... RPO").
func TestReversePostOrderCacheInvalidatesOnMutation(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	mid := g.NewBlock()
	entry.SetGoto(mid)
	mid.SetReturnVoid()

	// entry, mid, and the exit block mid's return links to.
	first := g.ReversePostOrder()
	require.Len(t, first, 3)

	extra := g.NewBlock()
	entry2 := g.NewBlock()
	_ = entry2
	extra.SetReturnVoid()
	// NewBlock alone bumps the version; extra is unreachable from entry so
	// it must not appear, but the cache must still be recomputed rather
	// than served stale.
	second := g.ReversePostOrder()
	require.Len(t, second, 3)
	require.NotContains(t, second, extra)
}

// TestLinearOrderKeepsLoopMembersContiguous: §4.1's linearization guarantee
// - blocks belonging to the same loop form a contiguous run.
func TestLinearOrderKeepsLoopMembersContiguous(t *testing.T) {
	g, header, body, exit := buildCountedLoop()
	require.NoError(t, g.BuildLoops())

	order := g.LinearOrder()
	pos := make(map[*ssa.BasicBlock]int, len(order))
	for i, b := range order {
		pos[b] = i
	}
	require.Less(t, pos[header], pos[exit])
	require.Equal(t, pos[header]+1, pos[body], "header and body must be adjacent in a single-block-body loop")
}
