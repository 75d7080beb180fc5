package passmanager

import (
	"optcore/internal/cha"
	"optcore/internal/loopopt"
	"optcore/internal/lse"
	"optcore/internal/sinking"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// DefaultPipeline wires every transformation pass this module implements
// into the order a method-at-a-time compiler backend would run them:
//
//  1. code_sinking — moves side-effect-free computation into uncommon
//     branches first, while the heap-location picture is still the
//     allocation's natural one; running it before load-store elimination
//     means LSE sees allocations already parked behind their uncommon
//     exits instead of having to re-derive that placement is still legal
//     after LSE has rewritten field accesses around them.
//  2. load_store_elimination (scalar, then partial/escape-aware) — the two
//     sub-algorithms of §4.5, scalar first since it is a strict subset of
//     what partial elimination subsumes and is cheaper to attempt.
//  3. loop_optimization — induction simplification, block simplification,
//     and vectorization, all under one BuildLoops().
//  4. cha_guard_optimization — runs last: guard hoisting climbs out of
//     loops, so it benefits from loop_optimization having already removed
//     trivial (zero/unit trip count) loops and simplified the survivors.
func DefaultPipeline(tf loopopt.TargetFeatures) *PassManager {
	pm := New()
	_ = pm.AddPass(NewPass(PassCodeSinking, sinking.Run))
	_ = pm.AddPass(NewPass(PassLoadStoreElimination, lse.Run))
	_ = pm.AddPass(NewPass(PassLoadStoreElimination, lse.RunPartial))
	_ = pm.AddPass(NewPass(PassLoopOptimization, func(g *ssa.Graph, counters *stats.Counters) bool {
		return loopopt.Run(g, tf, counters)
	}))
	_ = pm.AddPass(NewPass(PassCHAGuardOptimization, cha.Run))
	return pm
}
