package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/analysis"
	"optcore/internal/ssa"
)

// buildCountedLoopForInduction builds: entry(n, i=0) -> header(i<n, If) ->
// {body(i=i+1, goto header), exit}. Returns the built pieces needed to probe
// induction analysis.
func buildCountedLoopForInduction() (g *ssa.Graph, loop *ssa.LoopInfo, i *ssa.Instruction, n *ssa.Instruction) {
	g = ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	exit := g.NewBlock()

	n = entry.NewParameter(ssa.Int32, 0)
	zero := entry.NewConstant(ssa.Int32, 0, false)
	entry.SetGoto(header)

	i = header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(header.PredIndex(entry), zero.Result())
	cond := header.NewCompare("<", i.Result(), n.Result())
	header.SetIf(cond.Result(), body, exit)

	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	body.SetGoto(header)
	i.SetPhiInput(header.PredIndex(body), next.Result())

	exit.SetReturnVoid()

	if err := g.BuildLoops(); err != nil {
		panic(err)
	}
	loop = header.Loop()
	return g, loop, i, n
}

// TestAnalyzeInductionClassifiesLinearCounter: the classic `i = 0; i < n; i
// = i + 1` shape classifies as ClassLinear with stride 1 and is Primary.
func TestAnalyzeInductionClassifiesLinearCounter(t *testing.T) {
	_, loop, i, _ := buildCountedLoopForInduction()
	ia := analysis.AnalyzeInduction(loop)

	ind := ia.Of(i)
	require.NotNil(t, ind)
	require.Equal(t, analysis.ClassLinear, ind.Class)
	require.Equal(t, int64(1), ind.Stride)
	require.Same(t, ind, ia.Primary())
}

// TestIsUnitStrideResolvesOffset: `i` and `i+3` are both unit-stride
// references to the primary induction, at offsets 0 and 3.
func TestIsUnitStrideResolvesOffset(t *testing.T) {
	g, loop, i, _ := buildCountedLoopForInduction()
	ia := analysis.AnalyzeInduction(loop)

	off, ok := ia.IsUnitStride(i.Result())
	require.True(t, ok)
	require.Equal(t, int64(0), off)

	three := g.InsertConstantBefore(loop.Header.Terminator(), ssa.Int32, 3, false)
	plus3 := g.InsertBinaryBefore(loop.Header.Terminator(), ssa.KindAdd, ssa.Int32, "+", i.Result(), three.Result())
	off, ok = ia.IsUnitStride(plus3.Result())
	require.True(t, ok)
	require.Equal(t, int64(3), off)
}

// TestTripCountConstantBounds: a loop from 0 to a constant 10 resolves a
// known constant trip count of 10.
func TestTripCountConstantBounds(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	exit := g.NewBlock()

	zero := entry.NewConstant(ssa.Int32, 0, false)
	ten := entry.NewConstant(ssa.Int32, 10, false)
	entry.SetGoto(header)

	i := header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(header.PredIndex(entry), zero.Result())
	cond := header.NewCompare("<", i.Result(), ten.Result())
	header.SetIf(cond.Result(), body, exit)

	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	body.SetGoto(header)
	i.SetPhiInput(header.PredIndex(body), next.Result())
	exit.SetReturnVoid()

	require.NoError(t, g.BuildLoops())
	loop := header.Loop()
	ia := analysis.AnalyzeInduction(loop)
	tc := ia.TripCount(cond)
	require.True(t, tc.Known)
	require.True(t, tc.IsConst)
	require.Equal(t, int64(10), tc.Constant)
}

// TestTripCountUnknownForNonLoopInvariantBound: comparing against a bound
// that is itself defined inside the loop is not resolvable (§4.2's
// is_defined_out_of_loop precondition).
func TestTripCountUnknownForNonLoopInvariantBound(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	exit := g.NewBlock()

	zero := entry.NewConstant(ssa.Int32, 0, false)
	entry.SetGoto(header)

	i := header.NewPhi(ssa.Int32, 2)
	bound := header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(header.PredIndex(entry), zero.Result())
	bound.SetPhiInput(header.PredIndex(entry), zero.Result())
	cond := header.NewCompare("<", i.Result(), bound.Result())
	header.SetIf(cond.Result(), body, exit)

	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	boundNext := body.NewAdd(ssa.Int32, bound.Result(), one.Result())
	body.SetGoto(header)
	i.SetPhiInput(header.PredIndex(body), next.Result())
	bound.SetPhiInput(header.PredIndex(body), boundNext.Result())
	exit.SetReturnVoid()

	require.NoError(t, g.BuildLoops())
	loop := header.Loop()
	ia := analysis.AnalyzeInduction(loop)

	tc := ia.TripCount(cond)
	require.False(t, tc.Known, "bound is itself loop-carried, not loop-invariant")
}

// TestGenerateTripCountEmitsIntoPreHeader: synthesizing the trip count for a
// symbolic bound inserts instructions into the loop's pre-header, ending
// just before its Goto.
func TestGenerateTripCountEmitsIntoPreHeader(t *testing.T) {
	_, loop, _, _ := buildCountedLoopForInduction()
	ia := analysis.AnalyzeInduction(loop)

	before := len(loop.PreHeader.Instructions())
	val, ok := ia.GenerateTripCount(loop.PreHeader)
	require.True(t, ok)
	require.NotNil(t, val)
	after := len(loop.PreHeader.Instructions())
	require.Greater(t, after, before)
	require.Equal(t, ssa.KindGoto, loop.PreHeader.Terminator().Kind(), "synthesis must not disturb the pre-header's terminator")
}
