package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/analysis"
	"optcore/internal/ssa"
)

// TestCommonDominatorOfDiamondBranchesIsEntry: two branches of a diamond
// common-dominate at the entry block.
func TestCommonDominatorOfDiamondBranchesIsEntry(t *testing.T) {
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
	require.NoError(t, g.BuildDominators())

	var cd analysis.CommonDominator
	cd.Update(left)
	cd.Update(right)
	require.Equal(t, entry, cd.Get())
}

// TestCommonDominatorSingleBlockIsItself: folding only one block returns
// that block.
func TestCommonDominatorSingleBlockIsItself(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	entry.SetReturnVoid()
	require.NoError(t, g.BuildDominators())

	var cd analysis.CommonDominator
	cd.Update(entry)
	require.Equal(t, entry, cd.Get())
}

// TestCommonDominatorEmptyIsNil: Get before any Update reports nil.
func TestCommonDominatorEmptyIsNil(t *testing.T) {
	var cd analysis.CommonDominator
	require.Nil(t, cd.Get())
}

// TestCommonDominatorNestedChainPicksOuterAncestor: a chain a->b->c folded
// with a sibling of b common-dominates at a.
func TestCommonDominatorNestedChainPicksOuterAncestor(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	b := g.NewBlock()
	c := g.NewBlock()
	sibling := g.NewBlock()
	merge := g.NewBlock()

	cond := entry.NewParameter(ssa.Bool, 0)
	entry.SetIf(cond.Result(), b, sibling)
	bCond := b.NewParameter(ssa.Bool, 1)
	b.SetIf(bCond.Result(), c, merge)
	c.SetGoto(merge)
	sibling.SetGoto(merge)
	merge.SetReturnVoid()
	require.NoError(t, g.BuildDominators())

	var cd analysis.CommonDominator
	cd.Update(c)
	cd.Update(sibling)
	require.Equal(t, entry, cd.Get())
}
