package ssa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/ssa"
)

// TestReplaceWithRedirectsDataAndEnvUses: ReplaceWith must redirect both use
// classes and leave old detached with no users.
func TestReplaceWithRedirectsDataAndEnvUses(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewConstant(ssa.Int32, 1, false)
	b := entry.NewConstant(ssa.Int32, 2, false)
	user := entry.NewAdd(ssa.Int32, a.Result(), a.Result())
	deopt := entry.NewSuspendCheck(1)
	deopt.Environment().SetAt(0, a.Result())
	entry.SetReturnVoid()

	require.NoError(t, ssa.ReplaceWith(a, b))
	require.Same(t, b.Result(), user.Inputs()[0])
	require.Same(t, b.Result(), user.Inputs()[1])
	require.Same(t, b.Result(), deopt.Environment().At(0))
	require.Nil(t, a.Block())
	require.False(t, a.Result().HasUsers())
}

// TestReplaceWithRejectsTypeMismatch: replacing across DataType is a
// structural error, not silently accepted.
func TestReplaceWithRejectsTypeMismatch(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewConstant(ssa.Int32, 1, false)
	b := entry.NewConstant(ssa.Int64, 1, false)
	entry.SetReturnVoid()

	err := ssa.ReplaceWith(a, b)
	require.Error(t, err)
	var structErr *ssa.StructuralError
	require.ErrorAs(t, err, &structErr)
}

// TestRemoveRejectsInstructionWithUsers: Remove requires users to have been
// rerouted first.
func TestRemoveRejectsInstructionWithUsers(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewConstant(ssa.Int32, 1, false)
	entry.NewNeg(ssa.Int32, a.Result())
	entry.SetReturnVoid()

	err := ssa.Remove(a)
	require.Error(t, err)
}

// TestRemoveUnlinksFromUseList: after removal, the instruction (its result)
// appears on no use-list (§8 universal invariant).
func TestRemoveUnlinksFromUseList(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewConstant(ssa.Int32, 1, false)
	neg := entry.NewNeg(ssa.Int32, a.Result())
	entry.SetReturnVoid()

	require.NoError(t, ssa.Remove(neg))
	require.Nil(t, neg.Block())
	require.Empty(t, a.Result().Uses())
}

// TestRemoveRejectsBareTerminator: a terminator cannot be removed without a
// replacement (§7 structural misuse).
func TestRemoveRejectsBareTerminator(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	term := entry.SetReturnVoid()
	err := ssa.Remove(term)
	require.Error(t, err)
}

// TestInsertBeforeAndAfterOrdering: InsertBefore/InsertAfter splice into the
// intrusive list at the expected position.
func TestInsertBeforeAndAfterOrdering(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewConstant(ssa.Int32, 1, false)
	c := entry.NewConstant(ssa.Int32, 3, false)
	entry.SetReturnVoid()

	b := g.InsertConstantBefore(c, ssa.Int32, 2, false)
	require.Same(t, a, entry.First())
	require.Same(t, b, a.Next())
	require.Same(t, c, b.Next())

	// Detach b and re-link it after c.
	require.NoError(t, ssa.Remove(b))
	require.NoError(t, ssa.InsertAfter(c, b))
	require.Same(t, b, c.Next())
	require.Same(t, c, b.Prev())
}

// TestSplitCriticalEdgeRewiresPhiInputs: splitting a critical edge keeps the
// merge block's phi input slotted to the same logical predecessor, now
// flowing through the inserted block.
func TestSplitCriticalEdgeRewiresPhiInputs(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	left := g.NewBlock()
	right := g.NewBlock()
	merge := g.NewBlock()
	other := g.NewBlock()

	cond := entry.NewParameter(ssa.Bool, 0)
	entry.SetIf(cond.Result(), left, right)
	// left has two successors (critical edge candidate: left->merge).
	leftCond := left.NewParameter(ssa.Bool, 1)
	one := left.NewConstant(ssa.Int32, 1, false)
	left.SetIf(leftCond.Result(), merge, other)
	two := right.NewConstant(ssa.Int32, 2, false)
	right.SetGoto(merge)
	other.SetReturnVoid()

	predIdxLeft := merge.PredIndex(left)
	phi := merge.NewPhi(ssa.Int32, 2)
	phi.SetPhiInput(predIdxLeft, one.Result())
	phi.SetPhiInput(merge.PredIndex(right), two.Result())
	merge.SetReturn(phi.Result())

	mid, err := g.SplitCriticalEdge(left, merge)
	require.NoError(t, err)
	require.NotNil(t, mid)
	require.Equal(t, mid, merge.Predecessors()[predIdxLeft])
	require.Same(t, one.Result(), phi.Inputs()[predIdxLeft], "phi input must still be one at the same slot")
}

// TestMergeWithUniqueSuccessorSplicesBody: merging b with its sole successor
// s moves s's instructions (including terminator) into b and deletes s.
func TestMergeWithUniqueSuccessorSplicesBody(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	mid := g.NewBlock()
	entry.SetGoto(mid)
	v := mid.NewConstant(ssa.Int32, 5, false)
	mid.SetReturn(v.Result())

	require.NoError(t, g.MergeWithUniqueSuccessor(entry))
	require.Same(t, entry, v.Block())
	require.Equal(t, ssa.KindReturn, entry.Terminator().Kind())
	for _, b := range g.Blocks() {
		require.NotEqual(t, mid, b, "merged-away block must be removed from the graph")
	}
}

// TestDisconnectAndDeleteRequiresNoPredecessors: DisconnectAndDelete refuses
// to remove a block that is still reachable.
func TestDisconnectAndDeleteRequiresNoPredecessors(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	next := g.NewBlock()
	entry.SetGoto(next)
	next.SetReturnVoid()

	err := g.DisconnectAndDelete(next)
	require.Error(t, err)
}
