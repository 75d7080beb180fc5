// Package lse implements Load-Store Elimination (§4.5): scalar.go holds
// the non-speculative heap-value-map pass (§4.5.1); partial.go adds the
// escape-aware materialization pass (§4.5.2) on top of it.
//
// No ART source for load-store elimination was available to port from, so
// this package is grounded on the heap-location/alias model in
// internal/analysis/heaplocation.go (itself ported from the spec's §4.2,
// in the same style as the rest of the kernel's RPO-ordered, version-cached
// passes) and on the dataflow shape load-store elimination passes take in
// every SSA-based compiler in the retrieved corpus: a per-location value
// map merged at joins, walked once in reverse postorder.
package lse

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// heapValue is one entry of the per-block, per-location heap value map.
type heapValue struct {
	state valueState
	value *ssa.Value // meaningful when state == stateKnown
}

type valueState int

const (
	stateDefault valueState = iota // location holds its initial zero/null value
	stateKnown                     // location holds a concrete SSA value
	stateUnknown                   // location's value cannot be assumed
)

// Run applies scalar load-store elimination to every memory access in g,
// returning true if any read or write was eliminated.
func Run(g *ssa.Graph, counters *stats.Counters) bool {
	changed, _, _ := runScalar(g, counters)
	return changed
}

// runScalar is Run's implementation, also returning the eliminator so
// partial LSE can reuse its per-block heap-value maps as the field-set
// history it needs to replay at materialization points instead of
// re-deriving the same dataflow a second time.
func runScalar(g *ssa.Graph, counters *stats.Counters) (bool, *eliminator, *analysis.LoadStoreAnalysis) {
	lsa := analysis.Analyze(g)
	if len(lsa.Locations()) == 0 {
		return false, nil, lsa
	}

	e := &eliminator{g: g, lsa: lsa, counters: counters, blockMaps: make(map[*ssa.BasicBlock]map[int]heapValue)}
	changed := e.run()
	return changed, e, lsa
}

type eliminator struct {
	g         *ssa.Graph
	lsa       *analysis.LoadStoreAnalysis
	counters  *stats.Counters
	blockMaps map[*ssa.BasicBlock]map[int]heapValue
	changed   bool
}

func (e *eliminator) run() bool {
	for _, b := range e.g.ReversePostOrder() {
		hv := e.mergePredecessors(b)
		e.processBlock(b, hv)
		e.blockMaps[b] = hv
	}
	return e.changed
}

// mergePredecessors builds the incoming heap-value map for b per §4.5.1: a
// location keeps its value only if every predecessor agrees (all the same
// concrete value, or all Default); any disagreement materializes a phi (or,
// absent full predecessor information, falls back to Unknown).
func (e *eliminator) mergePredecessors(b *ssa.BasicBlock) map[int]heapValue {
	result := make(map[int]heapValue)
	preds := b.Predecessors()
	if len(preds) == 0 {
		return result
	}

	loopHeader := b.InLoop() && b.Loop().Header == b
	for _, loc := range e.lsa.Locations() {
		if loopHeader && e.writtenInLoopBody(b.Loop(), loc) {
			// §4.5.1 loop handling: a header location written anywhere in
			// the body starts speculatively Unknown rather than forcing a
			// merge across an as-yet-unprocessed back edge.
			result[loc.ID] = heapValue{state: stateUnknown}
			continue
		}

		var vals []heapValue
		allAvailable := true
		for _, p := range preds {
			pm, ok := e.blockMaps[p]
			if !ok {
				allAvailable = false
				break
			}
			vals = append(vals, pm[loc.ID])
		}
		if !allAvailable {
			result[loc.ID] = heapValue{state: stateUnknown}
			continue
		}
		result[loc.ID] = mergeValues(b, loc.ID, vals, preds)
	}
	return result
}

func (e *eliminator) writtenInLoopBody(loop *ssa.LoopInfo, loc *analysis.HeapLocation) bool {
	for member := range loop.Members {
		for _, instr := range member.Instructions() {
			if instr.Effects().Writes == 0 {
				continue
			}
			if e.lsa.LocationOf(instr) == loc {
				return true
			}
		}
	}
	return false
}

func mergeValues(b *ssa.BasicBlock, locID int, vals []heapValue, preds []*ssa.BasicBlock) heapValue {
	if len(vals) == 0 {
		return heapValue{state: stateUnknown}
	}
	first := vals[0]
	allSameKnown := first.state == stateKnown
	allDefault := first.state == stateDefault
	for _, v := range vals[1:] {
		if v.state != stateKnown || v.value != first.value {
			allSameKnown = false
		}
		if v.state != stateDefault {
			allDefault = false
		}
	}
	if allSameKnown {
		return heapValue{state: stateKnown, value: first.value}
	}
	if allDefault {
		return heapValue{state: stateDefault}
	}
	if anyUnknown(vals) {
		return heapValue{state: stateUnknown}
	}

	// Mixed concrete/Default values: materialize a merge phi. The caller
	// (processBlock for the header edge case) may later discover the phi
	// was unnecessary; LSE does not retroactively remove it, matching the
	// spec's "materialize a phi and record it as the new value" directive.
	typ := inferType(vals)
	phi := b.NewPhi(typ, len(preds))
	for i, v := range vals {
		switch v.state {
		case stateKnown:
			phi.SetPhiInput(i, v.value)
		case stateDefault:
			zero := b.Graph().InsertConstantBefore(preds[i].Terminator(), typ, 0, typ == ssa.Reference)
			phi.SetPhiInput(i, zero.Result())
		default:
			// An Unknown predecessor value poisons the merge; bail to
			// Unknown rather than synthesizing a bogus phi input.
			return heapValue{state: stateUnknown}
		}
	}
	return heapValue{state: stateKnown, value: phi.Result()}
}

func anyUnknown(vals []heapValue) bool {
	for _, v := range vals {
		if v.state == stateUnknown {
			return true
		}
	}
	return false
}

func inferType(vals []heapValue) ssa.DataType {
	for _, v := range vals {
		if v.state == stateKnown && v.value != nil {
			return v.value.Type()
		}
	}
	return ssa.Reference
}

// processBlock walks b's instructions in order, eliminating redundant
// reads/writes against hv and updating hv as it goes (§4.5.1).
func (e *eliminator) processBlock(b *ssa.BasicBlock, hv map[int]heapValue) {
	for _, instr := range b.Instructions() {
		loc := e.lsa.LocationOf(instr)
		switch {
		case loc != nil && isRead(instr):
			e.tryEliminateRead(instr, loc, hv)
		case loc != nil && isWrite(instr):
			e.tryEliminateWrite(instr, loc, hv)
		default:
			e.killOnSideEffect(instr, hv)
		}
	}
}

func isRead(instr *ssa.Instruction) bool {
	switch instr.Kind() {
	case ssa.KindArrayGet, ssa.KindInstanceFieldGet, ssa.KindVecLoad, ssa.KindPredicatedGet:
		return true
	default:
		return false
	}
}

func isWrite(instr *ssa.Instruction) bool {
	switch instr.Kind() {
	case ssa.KindArraySet, ssa.KindInstanceFieldSet, ssa.KindVecStore, ssa.KindPredicatedSet:
		return true
	default:
		return false
	}
}

func storedValue(instr *ssa.Instruction) *ssa.Value {
	switch instr.Kind() {
	case ssa.KindArraySet:
		return instr.InputAt(2)
	default: // InstanceFieldSet, VecStore, PredicatedSet all store input 1
		return instr.InputAt(1)
	}
}

func (e *eliminator) tryEliminateRead(instr *ssa.Instruction, loc *analysis.HeapLocation, hv map[int]heapValue) {
	cur := hv[loc.ID]
	switch cur.state {
	case stateKnown:
		if err := ssa.ReplaceWith(instr, cur.value.Def()); err == nil {
			e.mark("lse_reads_eliminated")
		}
	case stateDefault:
		if loc.Kind == analysis.LocationVectorElem {
			return // vector loads are never synthesized from Default (§4.5.1)
		}
		zero := instr.Block().Graph().InsertConstantBefore(instr, instr.Type(), 0, instr.Type() == ssa.Reference)
		if err := ssa.ReplaceWith(instr, zero); err == nil {
			e.mark("lse_reads_eliminated")
			hv[loc.ID] = heapValue{state: stateKnown, value: zero.Result()}
		}
	case stateUnknown:
		if instr.Result() != nil {
			hv[loc.ID] = heapValue{state: stateKnown, value: instr.Result()}
		}
	}
}

func (e *eliminator) tryEliminateWrite(instr *ssa.Instruction, loc *analysis.HeapLocation, hv map[int]heapValue) {
	val := storedValue(instr)
	cur := hv[loc.ID]
	redundant := (cur.state == stateKnown && cur.value == val) ||
		(cur.state == stateDefault && isZeroConstant(val))
	if redundant {
		if err := ssa.Remove(instr); err == nil {
			e.mark("lse_writes_eliminated")
			return
		}
	}
	hv[loc.ID] = heapValue{state: stateKnown, value: val}
	e.killPartialOverlaps(loc, hv)
}

func isZeroConstant(v *ssa.Value) bool {
	def := v.Def()
	return def.Kind() == ssa.KindConstant && def.AuxInt() == 0
}

// killPartialOverlaps invalidates every other location that may alias loc
// (vector/scalar partial overlap, or any location whose relationship to loc
// is not provably NoAlias) per §4.5.1's "partial overlap" rule.
func (e *eliminator) killPartialOverlaps(loc *analysis.HeapLocation, hv map[int]heapValue) {
	for _, other := range e.lsa.Locations() {
		if other.ID == loc.ID {
			continue
		}
		if analysis.Alias(loc, other) == analysis.MayAlias {
			hv[other.ID] = heapValue{state: stateUnknown}
		}
	}
}

// killOnSideEffect handles any instruction that is neither a tracked read
// nor write but may still clobber memory (calls, volatile ops not modeled
// as plain field accesses, deopt points): every location the instruction's
// effects summary says it may write is set Unknown.
func (e *eliminator) killOnSideEffect(instr *ssa.Instruction, hv map[int]heapValue) {
	eff := instr.Effects()
	if eff.Writes == 0 {
		return
	}
	for _, loc := range e.lsa.Locations() {
		if locationInClass(loc, eff.Writes) {
			hv[loc.ID] = heapValue{state: stateUnknown}
		}
	}
}

func locationInClass(loc *analysis.HeapLocation, class ssa.HeapClass) bool {
	switch loc.Kind {
	case analysis.LocationArrayElem:
		return class&ssa.ClassArray != 0 || class&ssa.ClassOpaque != 0
	case analysis.LocationVectorElem:
		return class&ssa.ClassVector != 0 || class&ssa.ClassOpaque != 0
	case analysis.LocationField:
		return class&ssa.ClassField != 0 || class&ssa.ClassOpaque != 0
	default:
		return true
	}
}

func (e *eliminator) mark(counter string) {
	e.changed = true
	if e.counters != nil {
		e.counters.Inc(counter)
	}
}
