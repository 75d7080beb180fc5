package cha_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"optcore/internal/cha"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

func TestOptimizeForParameterRemovesGuard(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	receiver := entry.NewParameter(ssa.Reference, 0)
	flag, _, _ := entry.NewCHAGuard(receiver.Result(), 0)
	entry.SetReturnVoid()

	counters := stats.NewCounters()
	changed := cha.Run(g, counters)
	require.True(t, changed)
	require.Nil(t, flag.Block(), "guard triple should have been fully removed")
	require.Equal(t, int64(1), counters.Get("cha_guards_removed"))
}

func TestOptimizeWithDominatingGuardRemovesSecond(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	obj := entry.NewNewInstance("Foo")
	_, _, _ = entry.NewCHAGuard(obj.Result(), 0)

	second := g.NewBlock()
	entry.SetGoto(second)
	secondFlag, _, _ := second.NewCHAGuard(obj.Result(), 0)
	second.SetReturnVoid()

	counters := stats.NewCounters()
	changed := cha.Run(g, counters)
	require.True(t, changed)
	require.Nil(t, secondFlag.Block(), "second guard dominated by the first should be removed")
}

func TestHoistGuardMovesOutOfLoop(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	after := g.NewBlock()

	obj := entry.NewNewInstance("Foo")
	zero := entry.NewConstant(ssa.Int32, 0, false)
	ten := entry.NewConstant(ssa.Int32, 10, false)
	entry.SetGoto(header)

	i := header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(0, zero.Result())
	cond := header.NewCompare("<", i.Result(), ten.Result())
	header.SetIf(cond.Result(), body, after)

	flag, _, _ := body.NewCHAGuard(obj.Result(), 0)
	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	i.SetPhiInput(1, next.Result())
	body.SetGoto(header)

	after.SetReturnVoid()

	counters := stats.NewCounters()
	changed := cha.Run(g, counters)
	require.True(t, changed)
	require.Equal(t, entry, flag.Block(), "guard should have hoisted into the loop's pre-header")
	require.Equal(t, int64(1), counters.Get("cha_guards_hoisted"))
}

func TestHoistGuardAdjustsLoopPhiInEnvironment(t *testing.T) {
	g := ssa.NewGraph()
	entry := g.Entry()
	header := g.NewBlock()
	body := g.NewBlock()
	after := g.NewBlock()

	obj := entry.NewNewInstance("Foo")
	zero := entry.NewConstant(ssa.Int32, 0, false)
	ten := entry.NewConstant(ssa.Int32, 10, false)
	entry.SetGoto(header)

	i := header.NewPhi(ssa.Int32, 2)
	i.SetPhiInput(header.PredIndex(entry), zero.Result())
	suspend := header.NewSuspendCheck(1)
	suspend.Environment().SetAt(0, i.Result())
	cond := header.NewCompare("<", i.Result(), ten.Result())
	header.SetIf(cond.Result(), body, after)

	flag, _, deopt := body.NewCHAGuard(obj.Result(), 1)
	deopt.Environment().SetAt(0, obj.Result())
	one := body.NewConstant(ssa.Int32, 1, false)
	next := body.NewAdd(ssa.Int32, i.Result(), one.Result())
	body.SetGoto(header)
	i.SetPhiInput(header.PredIndex(body), next.Result())

	after.SetReturnVoid()

	counters := stats.NewCounters()
	changed := cha.Run(g, counters)
	require.True(t, changed)
	require.Equal(t, entry, flag.Block(), "guard should have hoisted into the loop's pre-header")

	hoistedDeopt := flag.Next().Next()
	require.Equal(t, ssa.KindDeoptimize, hoistedDeopt.Kind())
	require.Same(t, zero.Result(), hoistedDeopt.Environment().At(0),
		"the hoisted deoptimize's environment should carry the loop phi's pre-header value, not the phi itself")
}

func TestRunIsNoopWithoutGuards(t *testing.T) {
	g := ssa.NewGraph()
	g.Entry().SetReturnVoid()
	require.False(t, cha.Run(g, stats.NewCounters()))
}
