package loopopt

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// simplifyInduction rewrites a header phi whose only uses lie outside the
// loop to the closed-form last value and deletes the now-dead increment
// cycle, per §4.4.1. Only a linear induction whose increment chain feeds
// nothing but the phi itself (no side instruction observes an intermediate
// value) qualifies.
func simplifyInduction(g *ssa.Graph, loop *ssa.LoopInfo, counters *stats.Counters) bool {
	ia := analysis.AnalyzeInduction(loop)
	changed := false
	for _, phi := range append([]*ssa.Instruction(nil), loop.Header.Phis()...) {
		ind := ia.Of(phi)
		if ind == nil || ind.Class != analysis.ClassLinear {
			continue
		}
		latchDefs := latchDefsOf(loop, phi)
		if len(latchDefs) == 0 {
			continue
		}
		if hasInsideUses(loop, phi, latchDefs) {
			continue
		}
		if !hasExternalUse(loop, phi) {
			continue
		}
		if !cycleIsIsolated(phi, latchDefs) {
			continue
		}
		lastVal, ok := ia.GenerateLastValue(ind, loop.PreHeader)
		if !ok {
			continue
		}
		redirectExternalUses(loop, phi, lastVal)
		deleteInductionCycle(phi, latchDefs)
		if counters != nil {
			counters.Inc("induction_cycles_simplified")
		}
		changed = true
	}
	return changed
}

// latchDefsOf returns the defining instruction feeding phi along each of
// the header's non-preheader (back-edge) predecessor slots.
func latchDefsOf(loop *ssa.LoopInfo, phi *ssa.Instruction) []*ssa.Instruction {
	header := phi.Block()
	var defs []*ssa.Instruction
	for idx, pred := range header.Predecessors() {
		if pred == loop.PreHeader {
			continue
		}
		val := phi.InputAt(idx)
		if val == nil {
			return nil
		}
		defs = append(defs, val.Def())
	}
	return defs
}

func isAmong(defs []*ssa.Instruction, instr *ssa.Instruction) bool {
	for _, d := range defs {
		if d == instr {
			return true
		}
	}
	return false
}

// hasInsideUses reports a "real" use of phi inside the loop: any use other
// than the increment chain itself feeding back into the phi.
func hasInsideUses(loop *ssa.LoopInfo, phi *ssa.Instruction, latchDefs []*ssa.Instruction) bool {
	for _, u := range phi.Result().Uses() {
		if isAmong(latchDefs, u.User) {
			continue
		}
		if loop.Members[u.User.Block()] {
			return true
		}
	}
	for _, e := range phi.Result().EnvUses() {
		holder := e.Env.Holder
		if isAmong(latchDefs, holder) {
			continue
		}
		if loop.Members[holder.Block()] {
			return true
		}
	}
	return false
}

func hasExternalUse(loop *ssa.LoopInfo, phi *ssa.Instruction) bool {
	for _, u := range phi.Result().Uses() {
		if !loop.Members[u.User.Block()] {
			return true
		}
	}
	for _, e := range phi.Result().EnvUses() {
		if !loop.Members[e.Env.Holder.Block()] {
			return true
		}
	}
	return false
}

// cycleIsIsolated requires every latch-increment instruction to have
// exactly one user: the phi's own back-edge input, and no environment use
// at all — nothing else observes an intermediate value of the induction.
func cycleIsIsolated(phi *ssa.Instruction, latchDefs []*ssa.Instruction) bool {
	for _, def := range latchDefs {
		res := def.Result()
		if res == nil {
			return false
		}
		if len(res.EnvUses()) != 0 {
			return false
		}
		uses := res.Uses()
		if len(uses) != 1 || uses[0].User != phi {
			return false
		}
	}
	return true
}

func redirectExternalUses(loop *ssa.LoopInfo, phi *ssa.Instruction, lastVal *ssa.Value) {
	for _, u := range append([]*ssa.Use(nil), phi.Result().Uses()...) {
		if !loop.Members[u.User.Block()] {
			u.User.ReplaceInput(u.Index, lastVal)
		}
	}
	for _, e := range append([]*ssa.EnvUse(nil), phi.Result().EnvUses()...) {
		if !loop.Members[e.Env.Holder.Block()] {
			e.Env.SetAt(e.Index, lastVal)
		}
	}
}

// deleteInductionCycle unlinks the phi's own references to its latch defs
// and removes the phi and every latch def, now that nothing else uses any
// of them.
func deleteInductionCycle(phi *ssa.Instruction, latchDefs []*ssa.Instruction) {
	header := phi.Block()
	for idx, pred := range header.Predecessors() {
		if isAmong(latchDefs, phi.InputAt(idx).Def()) {
			phi.SetPhiInput(idx, nil)
		}
		_ = pred
	}
	for _, def := range latchDefs {
		_ = ssa.Remove(def)
	}
	_ = ssa.Remove(phi)
}

// simplifyBlocks removes dead instructions, merges straight-line blocks of
// unit predecessor/successor degree into one, and bypasses an empty
// if-diamond whose merge observes no phi (so the branch condition is
// provably irrelevant), per §4.4.1.
func simplifyBlocks(g *ssa.Graph, loop *ssa.LoopInfo, counters *stats.Counters) bool {
	changed := false
	for _, b := range membersOf(loop) {
		if removeDeadInstructions(b, counters) {
			changed = true
		}
	}
	if mergeUnitDegreeBlocks(g, loop, counters) {
		changed = true
	}
	if bypassTrivialIfs(g, loop, counters) {
		changed = true
	}
	return changed
}

func membersOf(loop *ssa.LoopInfo) []*ssa.BasicBlock {
	out := make([]*ssa.BasicBlock, 0, len(loop.Members))
	for b := range loop.Members {
		out = append(out, b)
	}
	return out
}

func removeDeadInstructions(b *ssa.BasicBlock, counters *stats.Counters) bool {
	changed := false
	instrs := b.Instructions()
	for i := len(instrs) - 1; i >= 0; i-- {
		instr := instrs[i]
		if instr.IsControlFlow() || !instr.IsRemovable() || instr.HasSideEffects() {
			continue
		}
		if instr.Result() != nil && instr.Result().HasUsers() {
			continue
		}
		if err := ssa.Remove(instr); err == nil {
			changed = true
			if counters != nil {
				counters.Inc("dead_instructions_removed")
			}
		}
	}
	return changed
}

// mergeUnitDegreeBlocks collapses a member block into its sole successor
// when that successor's sole predecessor is the member block, repeating
// until a pass finds nothing left to merge (a merge can expose another).
func mergeUnitDegreeBlocks(g *ssa.Graph, loop *ssa.LoopInfo, counters *stats.Counters) bool {
	changed := false
	for {
		progressed := false
		for _, b := range membersOf(loop) {
			if b == loop.Header {
				continue // keep the header identifiable across the merge pass
			}
			succs := b.Successors()
			if len(succs) != 1 {
				continue
			}
			s := succs[0]
			if s == loop.Header || !loop.Members[s] {
				continue
			}
			if len(s.Predecessors()) != 1 {
				continue
			}
			if err := g.MergeWithUniqueSuccessor(b); err != nil {
				continue
			}
			delete(loop.Members, s)
			progressed = true
			changed = true
			if counters != nil {
				counters.Inc("blocks_merged")
			}
			break // Members mutated; restart the scan
		}
		if !progressed {
			break
		}
	}
	return changed
}

// bypassTrivialIfs rewrites `if (c) goto t; else goto f;` to a plain goto
// to the common merge m when t and f are each a lone Goto to m and m
// observes no phi — nothing downstream can tell which arm ran, so the
// branch is dead weight.
func bypassTrivialIfs(g *ssa.Graph, loop *ssa.LoopInfo, counters *stats.Counters) bool {
	changed := false
	for _, b := range membersOf(loop) {
		term := b.Terminator()
		if term == nil || term.Kind() != ssa.KindIf {
			continue
		}
		succs := b.Successors()
		if len(succs) != 2 {
			continue
		}
		t, f := succs[0], succs[1]
		if !isEmptyArm(t) || !isEmptyArm(f) {
			continue
		}
		if len(t.Predecessors()) != 1 || len(f.Predecessors()) != 1 {
			continue
		}
		tSuccs, fSuccs := t.Successors(), f.Successors()
		if len(tSuccs) != 1 || len(fSuccs) != 1 || tSuccs[0] != fSuccs[0] {
			continue
		}
		m := tSuccs[0]
		if len(m.Phis()) != 0 {
			continue
		}
		if err := g.ReplaceTerminatorWithGoto(b, m); err != nil {
			continue
		}
		_ = g.DisconnectAndDelete(t)
		_ = g.DisconnectAndDelete(f)
		delete(loop.Members, t)
		delete(loop.Members, f)
		changed = true
		if counters != nil {
			counters.Inc("trivial_ifs_bypassed")
		}
	}
	return changed
}

func isEmptyArm(b *ssa.BasicBlock) bool {
	if len(b.Phis()) != 0 {
		return false
	}
	instrs := b.Instructions()
	return len(instrs) == 1 && instrs[0].Kind() == ssa.KindGoto
}
