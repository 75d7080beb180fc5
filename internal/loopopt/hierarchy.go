// Package loopopt implements loop optimization and vectorization (§4.4):
// induction simplification, block simplification, removal of loops whose
// constant trip count is 0 or 1, and innermost-loop SIMD vectorization. A
// loop whose trip count is not a constant is not removed, even when its
// body has no effects.
//
// Ported from _examples/original_source/compiler/optimizing/loop_optimization.cc:
// the same inner-to-outer traversal over the loop hierarchy, applying
// SimplifyInduction/SimplifyBlocks/OptimizeInnerLoop per node in that order,
// built atop the loop forest internal/ssa.BuildLoops already assembles
// rather than reconstructing LoopNode bookkeeping independently.
package loopopt

import (
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// Run applies loop optimization to every loop in g: induction and block
// simplification always, then either vectorization (innermost, eligible
// loops) or removal of a loop whose constant trip count is 0 or 1,
// traversing inner loops before their
// enclosing outer loop exactly as TraverseLoopsInnerToOuter does, so an
// outer loop sees its inner loop's already-simplified shape.
func Run(g *ssa.Graph, tf TargetFeatures, counters *stats.Counters) bool {
	if err := g.BuildLoops(); err != nil {
		return false
	}
	if g.HasIrreducibleLoops {
		return false
	}
	changed := false
	for _, root := range g.LoopForest() {
		if traverseInnerToOuter(g, root, tf, counters) {
			changed = true
		}
	}
	return changed
}

// traverseInnerToOuter visits node's children first, then node itself,
// mirroring the ART source's recursive descent. Re-running BuildLoops
// between nodes (when a structural edit invalidated it) keeps later nodes'
// LoopInfo accurate should an inner-loop optimization delete blocks that
// outer-loop members reference.
func traverseInnerToOuter(g *ssa.Graph, node *ssa.LoopNode, tf TargetFeatures, counters *stats.Counters) bool {
	changed := false
	for _, inner := range node.Inner {
		if traverseInnerToOuter(g, inner, tf, counters) {
			changed = true
		}
	}

	loop := node.Loop
	if changed {
		// An inner loop's removal/vectorization may have rewired edges this
		// node's LoopInfo still refers to; refresh before touching it.
		if err := g.BuildLoops(); err != nil {
			return changed
		}
		loop = currentLoopInfo(g, loop.Header)
		if loop == nil {
			return changed // this loop no longer exists (e.g. it was the removed inner body)
		}
	}

	if simplifyInduction(g, loop, counters) {
		changed = true
	}
	if simplifyBlocks(g, loop, counters) {
		changed = true
	}
	if optimizeInnerLoop(g, loop, tf, counters) {
		changed = true
	}
	return changed
}

// currentLoopInfo looks up the (possibly rebuilt) LoopInfo whose header is
// still header after a structural edit invalidated the previous one.
func currentLoopInfo(g *ssa.Graph, header *ssa.BasicBlock) *ssa.LoopInfo {
	if header.Loop() != nil && header.Loop().Header == header {
		return header.Loop()
	}
	return nil
}
