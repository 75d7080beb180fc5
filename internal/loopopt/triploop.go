package loopopt

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// tryRemoveTrivialTripCountLoop removes a loop whose trip count is known at
// compile time to be 0 (the body never runs, so the whole loop is dead
// weight) or 1 (the body runs exactly once, so the back edge can be
// severed and the loop degenerates into straight-line code), per §4.4.1.
func tryRemoveTrivialTripCountLoop(g *ssa.Graph, loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, counters *stats.Counters) bool {
	term := exitIfTerm(loop)
	if term == nil {
		return false
	}
	cond := term.InputAt(0).Def()
	tc := ia.TripCount(cond)
	if !tc.Known || !tc.IsConst {
		return false
	}
	switch tc.Constant {
	case 0:
		return removeZeroTripLoop(g, loop, term, counters)
	case 1:
		return removeUnitTripBackEdges(g, loop, term, counters)
	default:
		return false
	}
}

func exitIfTerm(loop *ssa.LoopInfo) *ssa.Instruction {
	term := loop.Header.Terminator()
	if term == nil || term.Kind() != ssa.KindIf {
		return nil
	}
	return term
}

// loopExit returns term's successor that lies outside the loop — the exit
// target an iteration count of 0 or 1 both redirect control flow to
// directly.
func loopExit(loop *ssa.LoopInfo, term *ssa.Instruction) *ssa.BasicBlock {
	for _, s := range term.Successors() {
		if !loop.Members[s] {
			return s
		}
	}
	return nil
}

func redirectPhiUses(phi *ssa.Instruction, input *ssa.Value) {
	res := phi.Result()
	if res == nil {
		return
	}
	for _, u := range append([]*ssa.Use(nil), res.Uses()...) {
		u.User.ReplaceInput(u.Index, input)
	}
	for _, e := range append([]*ssa.EnvUse(nil), res.EnvUses()...) {
		e.Env.SetAt(e.Index, input)
	}
}

// removeZeroTripLoop bypasses the loop unconditionally: the header's phis
// can only ever be observed holding their pre-header value (the body never
// executes), so every use is redirected to that value before the
// pre-header's Goto is retargeted straight to the exit and the entire loop
// body is dropped.
func removeZeroTripLoop(g *ssa.Graph, loop *ssa.LoopInfo, term *ssa.Instruction, counters *stats.Counters) bool {
	exit := loopExit(loop, term)
	if exit == nil {
		return false
	}
	preIdx := loop.Header.PredIndex(loop.PreHeader)
	if preIdx < 0 {
		return false
	}
	for _, phi := range loop.Header.Phis() {
		redirectPhiUses(phi, phi.InputAt(preIdx))
	}
	if err := g.ReplaceTerminatorWithGoto(loop.PreHeader, exit); err != nil {
		return false
	}
	for _, b := range membersOf(loop) {
		g.DeleteUnreachableBlock(b)
	}
	if counters != nil {
		counters.Inc("zero_trip_loops_removed")
	}
	return true
}

// removeUnitTripBackEdges severs every back edge (redirecting it straight
// to the loop's exit instead of back to the header) and trivializes the
// header's phis to their pre-header value, since with exactly one
// iteration the induction variable is never observed holding anything but
// its initial value. The body blocks themselves are left in place: they
// still execute, just once, as straight-line code reached through the
// header's (now never re-taken) entry branch.
func removeUnitTripBackEdges(g *ssa.Graph, loop *ssa.LoopInfo, term *ssa.Instruction, counters *stats.Counters) bool {
	exit := loopExit(loop, term)
	if exit == nil {
		return false
	}
	preIdx := loop.Header.PredIndex(loop.PreHeader)
	if preIdx < 0 {
		return false
	}
	phis := append([]*ssa.Instruction(nil), loop.Header.Phis()...)
	inputs := make([]*ssa.Value, len(phis))
	for i, phi := range phis {
		inputs[i] = phi.InputAt(preIdx)
	}
	for _, back := range loop.BackEdges {
		if err := g.ReplaceTerminatorWithGoto(back, exit); err != nil {
			return false
		}
	}
	for i, phi := range phis {
		redirectPhiUses(phi, inputs[i])
		_ = ssa.Remove(phi)
	}
	if counters != nil {
		counters.Inc("unit_trip_loops_unrolled")
	}
	return true
}
