// Package sinking implements code sinking (§4.3): moving movable,
// side-effect-free computations (and allocations, and stores to sunk
// allocations) into blocks that are only reached through uncommon
// (currently: throw-terminated) branches.
//
// Ported from the algorithm in
// _examples/original_source/compiler/optimizing/code_sinking.cc: collect
// the post-dominated subset behind each uncommon exit, grow a worklist of
// interesting candidates whose users are all already accepted or inside
// the subset, then place each accepted instruction at the common dominator
// of its remaining users, climbing out of loops while that stays legal.
package sinking

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// Run applies code sinking to every uncommon-exit predecessor in g,
// returning true if any instruction was moved.
func Run(g *ssa.Graph, counters *stats.Counters) bool {
	if err := g.BuildDominators(); err != nil {
		return false
	}
	if err := g.BuildLoops(); err != nil {
		return false
	}
	changed := false
	for _, end := range uncommonExitPredecessors(g) {
		if sinkToUncommonBranch(g, end, counters) {
			changed = true
		}
	}
	return changed
}

// uncommonExitPredecessors finds every exit predecessor terminated by a
// Throw — the cold-path heuristic the ART source uses (a block that always
// throws is assumed uncommon) — and returns it as the seed for
// postDominatedSubset.
func uncommonExitPredecessors(g *ssa.Graph) []*ssa.BasicBlock {
	var ends []*ssa.BasicBlock
	for _, b := range g.Exit().Predecessors() {
		term := b.Terminator()
		if term != nil && term.Kind() == ssa.KindThrow {
			ends = append(ends, b)
		}
	}
	return ends
}

// postDominatedSubset returns the conservative set of blocks post-dominated
// by end: end itself, plus any block all of whose successors are already
// in the set. Loops are never considered post-dominated (§4.3 step 1).
func postDominatedSubset(g *ssa.Graph, end *ssa.BasicBlock) map[*ssa.BasicBlock]bool {
	subset := map[*ssa.BasicBlock]bool{end: true}
	changed := true
	for changed {
		changed = false
		for _, b := range g.Blocks() {
			if subset[b] || b.InLoop() {
				continue
			}
			if len(b.Successors()) == 0 {
				continue
			}
			all := true
			for _, s := range b.Successors() {
				if !subset[s] {
					all = false
					break
				}
			}
			if all {
				subset[b] = true
				changed = true
			}
		}
	}
	return subset
}

// isInteresting mirrors IsInterestingInstruction in code_sinking.cc (§4.3
// step 2). The entry block's constants and parameters are never moved;
// other entry-block instructions (allocations, stores) are candidates like
// any other.
func isInteresting(instr *ssa.Instruction) bool {
	if instr.Block().Graph().Entry() == instr.Block() &&
		(instr.Kind() == ssa.KindConstant || instr.Kind() == ssa.KindParameter) {
		return false
	}
	if instr.Kind() == ssa.KindInstanceFieldSet {
		if volatile, ok := instr.Aux().(bool); ok && volatile {
			return false
		}
	}
	if instr.Kind() == ssa.KindNewInstance || instr.Kind() == ssa.KindNewArray {
		return true
	}
	if instr.CanThrow() {
		return false
	}
	if instr.Kind() == ssa.KindInstanceFieldSet || instr.Kind() == ssa.KindArraySet || instr.CanBeMoved() {
		return true
	}
	return false
}

// shouldFilterUse mirrors ShouldFilterUse: a store into a sunk allocation
// is processed separately (step 5), so FindIdealPosition should ignore it
// while placing the allocation itself, unless that store's block already
// fell inside the post-dominated subset.
func shouldFilterUse(instr, user *ssa.Instruction, postDominated map[*ssa.BasicBlock]bool) bool {
	switch instr.Kind() {
	case ssa.KindNewInstance:
		return user.Kind() == ssa.KindInstanceFieldSet && user.InputAt(0) == instr.Result() && !postDominated[user.Block()]
	case ssa.KindNewArray:
		return user.Kind() == ssa.KindArraySet && user.InputAt(0) == instr.Result() && !postDominated[user.Block()]
	default:
		return false
	}
}

// findIdealPosition ports FindIdealPosition: common dominator of every
// (non-filtered) user's block, climbed out of loops while still inside the
// post-dominated subset, then the first user within the target block (or
// the position before the terminator, careful not to split an If from its
// condition).
func findIdealPosition(instr *ssa.Instruction, postDominated map[*ssa.BasicBlock]bool, filter bool) *ssa.Instruction {
	var finder analysis.CommonDominator
	if instr.Result() != nil {
		for _, use := range instr.Result().Uses() {
			if filter && shouldFilterUse(instr, use.User, postDominated) {
				continue
			}
			if use.User.IsPhi() {
				finder.Update(use.User.Block().Predecessors()[use.Index])
			} else {
				finder.Update(use.User.Block())
			}
		}
		for _, eu := range instr.Result().EnvUses() {
			finder.Update(eu.Env.Holder.Block())
		}
	}
	target := finder.Get()
	if target == nil {
		return nil
	}

	for target.InLoop() {
		dom := target.Dominator()
		if dom == nil || !postDominated[dom] {
			break
		}
		target = dom
	}

	var insertPos *ssa.Instruction
	if instr.Result() != nil {
		for _, use := range instr.Result().Uses() {
			if use.User.Block() != target {
				continue
			}
			if insertPos == nil || use.User.StrictlyDominates(insertPos) {
				insertPos = use.User
			}
		}
		for _, eu := range instr.Result().EnvUses() {
			holder := eu.Env.Holder
			if holder.Block() != target {
				continue
			}
			if insertPos == nil || holder.StrictlyDominates(insertPos) {
				insertPos = holder
			}
		}
	}
	if insertPos == nil {
		insertPos = target.Terminator()
		if insertPos != nil && insertPos.Kind() == ssa.KindIf {
			cond := insertPos.InputAt(0)
			if cond.Def() == insertPos.Prev() {
				insertPos = cond.Def()
			}
		}
	}
	return insertPos
}

func sinkToUncommonBranch(g *ssa.Graph, end *ssa.BasicBlock, counters *stats.Counters) bool {
	postDominated := postDominatedSubset(g, end)

	processed := map[*ssa.Instruction]bool{}
	var worklist []*ssa.Instruction
	addInstr := func(instr *ssa.Instruction) {
		if instr == nil || processed[instr] || postDominated[instr.Block()] || !isInteresting(instr) {
			return
		}
		worklist = append(worklist, instr)
	}
	addInputs := func(instr *ssa.Instruction) {
		for _, in := range instr.Inputs() {
			if in != nil {
				addInstr(in.Def())
			}
		}
	}
	for b := range postDominated {
		for _, phi := range b.Phis() {
			addInputs(phi)
		}
		for _, instr := range b.Instructions() {
			addInputs(instr)
		}
	}

	var accepted []*ssa.Instruction
	acceptedSet := map[*ssa.Instruction]bool{}

	for len(worklist) > 0 {
		instr := worklist[0]
		worklist = worklist[1:]
		if processed[instr] {
			continue
		}

		allResolved := true
		stuck := false // some user outside the subset can never be accepted
		if instr.Result() != nil {
			for _, use := range instr.Result().Uses() {
				user := use.User
				if postDominated[user.Block()] {
					continue
				}
				if acceptedSet[user] {
					continue
				}
				if isInteresting(user) && !processed[user] {
					// user may itself become acceptable once processed;
					// requeue this instruction and enqueue user so it gets
					// a chance to resolve and unblock this producer.
					allResolved = false
					worklist = append(worklist, user)
					continue
				}
				allResolved = false
				stuck = true
			}
			for _, eu := range instr.Result().EnvUses() {
				if !envUseIsSafe(g, eu) {
					allResolved = false
					stuck = true
				}
			}
		}
		if !allResolved {
			if stuck {
				processed[instr] = true // not sunk; never requeued
			} else {
				worklist = append(worklist, instr)
			}
			continue
		}

		processed[instr] = true
		acceptedSet[instr] = true
		accepted = append(accepted, instr)
		addInputs(instr)
	}

	if len(accepted) == 0 {
		return false
	}

	// Place accepted instructions in acceptance order, the same order the
	// original ART pass moves them in: a store is always discovered (and so
	// placed) only after the allocation it targets has already been
	// accepted, but before a later pass positions the allocation itself, so
	// the allocation's ideal position sees the store's new, sunk block
	// rather than its stale original one.
	changed := false
	for _, instr := range accepted {
		if instr.Kind() == ssa.KindInstanceFieldSet || instr.Kind() == ssa.KindArraySet {
			if placeStore(instr, postDominated, counters) {
				changed = true
			}
			continue
		}
		if placeInstruction(instr, postDominated, false, counters) {
			changed = true
		}
	}
	return changed
}

// placeStore positions a store to a sunk allocation at the ideal position
// computed from the allocation's own (filtered) uses, since the store
// itself is Void-typed and has no uses of its own to position it by.
// Mirrors code_sinking.cc's store path: FindIdealPosition(InputAt(0),
// post_dominated, filter=true).
func placeStore(st *ssa.Instruction, postDominated map[*ssa.BasicBlock]bool, counters *stats.Counters) bool {
	target := st.InputAt(0).Def()
	if target.Block() == nil {
		return false // the allocation wasn't actually moved (filtered out)
	}
	pos := findIdealPosition(target, postDominated, true)
	if pos == nil || pos == st {
		return false
	}
	if !st.Block().Dominates(pos.Block()) {
		return false
	}
	if err := ssa.MoveBefore(st, pos, false); err != nil {
		return false
	}
	if counters != nil {
		counters.Inc("sunk_instructions")
	}
	return true
}

func placeInstruction(instr *ssa.Instruction, postDominated map[*ssa.BasicBlock]bool, filter bool, counters *stats.Counters) bool {
	pos := findIdealPosition(instr, postDominated, filter)
	if pos == nil || pos == instr {
		return false
	}
	if err := ssa.MoveBefore(instr, pos, false); err != nil {
		return false
	}
	if counters != nil {
		counters.Inc("sunk_instructions")
	}
	return true
}

// envUseIsSafe mirrors §4.3 step 3's environment-user safety condition: the
// graph must not be debuggable (approximated here as "never", matching the
// AOT-compiled, non-debuggable default the vectorizer/LSE assume
// elsewhere), the user must not be a Deoptimize, and the user must not be
// able to throw into a catch handler (no try/catch is ever passed to
// optimization per §3, so this reduces to "not Deoptimize").
func envUseIsSafe(g *ssa.Graph, eu *ssa.EnvUse) bool {
	holder := eu.Env.Holder
	if holder.Kind() == ssa.KindDeoptimize {
		return false
	}
	return true
}
