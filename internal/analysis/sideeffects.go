// Package analysis implements the side-effects, load-store, and
// induction-variable analyses every transformation pass consults (§4.2):
// side-effect summaries, HeapLocation alias classes, and symbolic
// induction-variable classification with trip-count synthesis.
package analysis

import "optcore/internal/ssa"

// SideEffects returns instr's per-instruction effects summary. This is a
// thin wrapper around ssa.Instruction.Effects rather than a fresh
// computation: the kernel's builder already stamps each instruction with
// its static summary at construction time (§4.2's "Instruction.has_side_effects
// ⇔ writes ∪ may_throw ∪ may_deopt ≠ ∅" is an invariant of construction,
// not something recomputed per pass). Callers that need the resolved
// summary after an instruction has been rewritten by an earlier pass should
// call this rather than caching ssa.Effects directly, since it is the
// single point where a future interprocedural Invoke summary would plug in.
func SideEffects(instr *ssa.Instruction) ssa.Effects {
	return instr.Effects()
}

// MayWriteHeapClass reports whether instr's write set intersects class,
// the coarse barrier query LSE uses before it bothers resolving precise
// HeapLocation aliasing.
func MayWriteHeapClass(instr *ssa.Instruction, class ssa.HeapClass) bool {
	return instr.Effects().Writes&class != 0
}
