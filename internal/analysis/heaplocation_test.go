package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/analysis"
	"optcore/internal/ssa"
)

// TestAnalyzeAssignsSameLocationToIdenticalArrayAccess: a[1] read twice (same
// base, same constant index) must canonicalize to the same HeapLocation.
func TestAnalyzeAssignsSameLocationToIdenticalArrayAccess(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	arr := entry.NewParameter(ssa.Reference, 0)
	one := entry.NewConstant(ssa.Int32, 1, false)
	get1 := entry.NewArrayGet(ssa.Int32, arr.Result(), one.Result())
	get2 := entry.NewArrayGet(ssa.Int32, arr.Result(), one.Result())
	entry.SetReturn(get1.Result())

	lsa := analysis.Analyze(g)
	loc1 := lsa.LocationOf(get1)
	loc2 := lsa.LocationOf(get2)
	require.NotNil(t, loc1)
	require.Same(t, loc1, loc2)
	require.Equal(t, analysis.MustAlias, analysis.Alias(loc1, loc2))
}

// TestAliasDifferentConstantIndicesNoAlias: a[1] and a[2] on the same array
// cannot alias.
func TestAliasDifferentConstantIndicesNoAlias(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	arr := entry.NewParameter(ssa.Reference, 0)
	one := entry.NewConstant(ssa.Int32, 1, false)
	two := entry.NewConstant(ssa.Int32, 2, false)
	get1 := entry.NewArrayGet(ssa.Int32, arr.Result(), one.Result())
	get2 := entry.NewArrayGet(ssa.Int32, arr.Result(), two.Result())
	entry.SetReturn(get1.Result())

	lsa := analysis.Analyze(g)
	require.Equal(t, analysis.NoAlias, analysis.Alias(lsa.LocationOf(get1), lsa.LocationOf(get2)))
}

// TestAliasVariableIndexMayAlias: a[i] and a[j], distinct induction
// variables, cannot be proven disjoint symbolically.
func TestAliasVariableIndexMayAlias(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	arr := entry.NewParameter(ssa.Reference, 0)
	i := entry.NewParameter(ssa.Int32, 1)
	j := entry.NewParameter(ssa.Int32, 2)
	get1 := entry.NewArrayGet(ssa.Int32, arr.Result(), i.Result())
	get2 := entry.NewArrayGet(ssa.Int32, arr.Result(), j.Result())
	entry.SetReturn(get1.Result())

	lsa := analysis.Analyze(g)
	require.Equal(t, analysis.MayAlias, analysis.Alias(lsa.LocationOf(get1), lsa.LocationOf(get2)))
}

// TestAliasDifferentBaseFieldsNoAlias: two field accesses on statically
// distinct objects never alias regardless of field id.
func TestAliasDifferentBaseFieldsNoAlias(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	a := entry.NewNewInstance("Foo")
	b := entry.NewNewInstance("Foo")
	getA := entry.NewInstanceFieldGet(ssa.Int32, a.Result(), 0)
	getB := entry.NewInstanceFieldGet(ssa.Int32, b.Result(), 0)
	entry.SetReturn(getA.Result())

	lsa := analysis.Analyze(g)
	require.Equal(t, analysis.NoAlias, analysis.Alias(lsa.LocationOf(getA), lsa.LocationOf(getB)))
}

// TestAliasVectorOverlapsScalarLane: a vector store spanning lanes [0,4) and
// a scalar access at index 2 must be treated as a may-alias partial overlap
// (§4.2's "vector reference with width w overlaps scalar index i..i+w-1").
func TestAliasVectorOverlapsScalarLane(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	arr := entry.NewParameter(ssa.Reference, 0)
	zero := entry.NewConstant(ssa.Int32, 0, false)
	two := entry.NewConstant(ssa.Int32, 2, false)
	val := entry.NewConstant(ssa.Int32, 9, false)
	vstore := entry.NewVecStore(arr.Result(), zero.Result(), val.Result(), 4)
	sget := entry.NewArrayGet(ssa.Int32, arr.Result(), two.Result())
	entry.SetReturn(sget.Result())

	lsa := analysis.Analyze(g)
	require.Equal(t, analysis.MayAlias, analysis.Alias(lsa.LocationOf(vstore), lsa.LocationOf(sget)))
}
