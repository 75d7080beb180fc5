// Package cha implements CHA guard optimization (§4.6): once the compiler
// has devirtualized a call under a class-hierarchy assumption, every such
// site carries a guard — ShouldDeoptimizeFlag, NotEqual, Deoptimize — that
// bails to the interpreter if a later class load invalidates the
// assumption. This pass removes guards proven redundant by an
// already-passed guard or a parameter receiver, and hoists the rest out of
// loops.
//
// Ported from _examples/original_source/compiler/optimizing/cha_guard_optimization.cc.
package cha

import (
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// Run optimizes every CHA guard in g, returning true if any guard was
// removed or hoisted. A no-op when the graph has no CHA guards.
func Run(g *ssa.Graph, counters *stats.Counters) bool {
	if !g.HasCHAGuards {
		return false
	}
	if err := g.BuildDominators(); err != nil {
		return false
	}
	if err := g.BuildLoops(); err != nil {
		return false
	}

	opt := &optimizer{g: g, blockHasGuard: make(map[*ssa.BasicBlock]bool), counters: counters}
	changed := false
	for _, b := range g.ReversePostOrder() {
		// Snapshot: optimizeGuard may move or remove instructions, which
		// would otherwise invalidate a live walk of the intrusive list.
		for _, instr := range b.Instructions() {
			if instr.Kind() != ssa.KindShouldDeoptimizeFlag {
				continue
			}
			if opt.optimizeGuard(instr) {
				changed = true
			}
		}
	}
	return changed
}

type optimizer struct {
	g             *ssa.Graph
	blockHasGuard map[*ssa.BasicBlock]bool
	counters      *stats.Counters
}

// guardTriple returns the NotEqual and Deoptimize that follow flag in
// program order, per the §4.6 convention.
func guardTriple(flag *ssa.Instruction) (notEqual, deopt *ssa.Instruction) {
	notEqual = flag.Next()
	if notEqual == nil || notEqual.Kind() != ssa.KindCompare {
		return nil, nil
	}
	deopt = notEqual.Next()
	if deopt == nil || deopt.Kind() != ssa.KindDeoptimize {
		return nil, nil
	}
	return notEqual, deopt
}

func (o *optimizer) removeGuard(flag *ssa.Instruction) {
	notEqual, deopt := guardTriple(flag)
	if notEqual == nil {
		return
	}
	_ = ssa.Remove(deopt)
	_ = ssa.Remove(notEqual)
	_ = ssa.Remove(flag)
	if o.counters != nil {
		o.counters.Inc("cha_guards_removed")
	}
}

func (o *optimizer) optimizeGuard(flag *ssa.Instruction) bool {
	receiver := flag.InputAt(0) // the class-check subject, an SSA value

	if o.optimizeForParameter(flag, receiver) {
		return true
	}
	if o.optimizeWithDominatingGuard(flag, receiver) {
		return true
	}
	if o.hoistGuard(flag, receiver) {
		return true
	}

	o.blockHasGuard[flag.Block()] = true
	return false
}

// optimizeForParameter: a method's own parameter receiver pre-exists any
// invalidation that could have happened before this compiled method was
// ever entered, so the very fact the method runs proves the assumption
// still holds for it.
func (o *optimizer) optimizeForParameter(flag *ssa.Instruction, receiver *ssa.Value) bool {
	if receiver.Def().Kind() != ssa.KindParameter {
		return false
	}
	o.removeGuard(flag)
	return true
}

// optimizeWithDominatingGuard: if a guard that already ran dominates this
// one, and that guard is itself dominated by receiver's definition, passing
// the earlier guard already proves this one redundant.
func (o *optimizer) optimizeWithDominatingGuard(flag *ssa.Instruction, receiver *ssa.Value) bool {
	receiverDef := receiver.Def()
	dominator := flag.Block()
	receiverDefBlock := receiverDef.Block()

	for dominator != receiverDefBlock {
		if o.blockHasGuard[dominator] {
			o.removeGuard(flag)
			return true
		}
		next := dominator.Dominator()
		if next == nil || next == dominator {
			return false // reached the root without finding receiver's block
		}
		dominator = next
	}

	// Linear search backward within the block for a guard instruction
	// issued after receiver's definition.
	var cursor *ssa.Instruction
	if dominator == flag.Block() {
		cursor = flag.Prev()
	} else {
		cursor = dominator.Last()
	}
	for cursor != nil && cursor != receiverDef {
		if cursor.Kind() == ssa.KindShouldDeoptimizeFlag {
			o.removeGuard(flag)
			return true
		}
		cursor = cursor.Prev()
	}
	return false
}

// hoistGuard moves a guard that is still needed out of its enclosing loop,
// provided receiver is defined outside the loop, so it runs once per loop
// entry instead of once per iteration.
//
// The old Deoptimize's environment is discarded rather than relocated: it
// was built for a program point inside the loop body, and any entry
// pinning a value defined there would violate dominance once the guard
// sits in the pre-header. Instead a fresh Deoptimize is built from the
// loop header's SuspendCheck environment — the live-value snapshot already
// known to be valid at loop entry — substituting each loop header phi it
// references with that phi's pre-header input, since the phi itself
// doesn't exist yet at that program point.
func (o *optimizer) hoistGuard(flag *ssa.Instruction, receiver *ssa.Value) bool {
	block := flag.Block()
	loop := block.Loop()
	if loop == nil {
		return false
	}
	if !loop.IsDefinedOutOfLoop(receiver) {
		return false
	}

	notEqual, deopt := guardTriple(flag)
	if notEqual == nil {
		return false
	}
	preHeader := loop.PreHeader
	anchor := preHeader.Terminator()

	if err := ssa.MoveBefore(flag, anchor, false); err != nil {
		return false
	}
	if err := ssa.MoveBefore(notEqual, anchor, false); err != nil {
		return false
	}
	if err := ssa.Remove(deopt); err != nil {
		return false
	}

	nEnv := 0
	if loop.Suspend != nil {
		nEnv = loop.Suspend.Environment().Len()
	}
	newDeopt := preHeader.NewDeoptimize(notEqual.Result(), nEnv)
	if err := ssa.MoveBefore(newDeopt, anchor, false); err != nil {
		return false
	}
	if loop.Suspend != nil {
		loop.CopyEnvironmentFromWithLoopPhiAdjustment(newDeopt, loop.Suspend.Environment())
	}

	o.blockHasGuard[preHeader] = true
	o.g.HasCHAGuards = true
	if o.counters != nil {
		o.counters.Inc("cha_guards_hoisted")
	}
	return true
}
