// partial.go implements escape-aware partial load-store elimination (§4.5.2).
//
// No ART source for this exists either (see scalar.go's package doc), so
// the shape here is grounded directly on the escape-cohort/frontier/
// materialization model the specification's own data-model section lays
// out, reusing this package's scalar heap-value maps (internal/lse/scalar.go)
// as the field-set history to replay at each materialization point instead
// of re-deriving the same per-block dataflow a second time.
//
// The supported shape is bounded to a single escape cohort with one entry
// join: every frontier edge must land on the same block s. A predecessor of
// s that already escaped before reaching s simply carries the original
// reference forward into the merge; only predecessors still on the
// non-escaping side need a materialized replacement. This covers the
// triangle/diamond escape pattern the specification names as the canonical
// test case while staying honest about what is and is not analyzed —
// anything wider (multiple disjoint entry points into the cohort, a
// frontier that crosses a loop back edge) falls back to scalar LSE
// untouched, per the specification's own failure semantics for this pass.
package lse

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// RunPartial applies partial LSE to every NewInstance allocation in g that
// escapes on some paths but not others, then re-runs scalar LSE once more
// to fold the redundancies the rewrite exposes. Returns true if any
// allocation was partially eliminated.
func RunPartial(g *ssa.Graph, counters *stats.Counters) bool {
	if err := g.BuildDominators(); err != nil {
		return false
	}
	if err := g.BuildLoops(); err != nil {
		return false
	}
	_, e, lsa := runScalar(g, counters)
	if e == nil {
		return false
	}

	var allocs []*ssa.Instruction
	for _, b := range g.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Kind() == ssa.KindNewInstance {
				allocs = append(allocs, instr)
			}
		}
	}

	changed := false
	for _, alloc := range allocs {
		if tryPartialEliminate(g, alloc, e, lsa, counters) {
			changed = true
		}
	}
	if changed {
		Run(g, counters)
	}
	return changed
}

type cfgEdge struct{ from, to *ssa.BasicBlock }

func tryPartialEliminate(g *ssa.Graph, alloc *ssa.Instruction, e *eliminator, lsa *analysis.LoadStoreAnalysis, counters *stats.Counters) bool {
	escapesInBlock, hasEscape, hasNonEscape := classifyEscapes(g, alloc)
	if !hasEscape || !hasNonEscape {
		return false // fully escaping or fully local: nothing for partial LSE to add
	}

	escOut, escIn := computeEscapeCohort(g, alloc, escapesInBlock)
	frontier, ok := findFrontierEdges(g, escOut, escIn)
	if !ok || len(frontier) == 0 {
		return false
	}

	s := frontier[0].to
	for _, fe := range frontier {
		if fe.to != s {
			return false // more than one join receiving this allocation's escape: beyond the bounded shape
		}
	}
	if s != alloc.Block() && !alloc.Block().Dominates(s) {
		return false
	}

	fieldLocs := fieldLocationsOf(lsa, alloc.Result())

	type materialized struct {
		block *ssa.BasicBlock
		value *ssa.Value
	}
	var results []materialized
	for _, fe := range frontier {
		p := fe.from
		var anchorBlock *ssa.BasicBlock
		var anchor *ssa.Instruction
		switch {
		case len(p.Successors()) == 1:
			// p's only outgoing edge goes to s: safe to place at p's tail.
			anchorBlock, anchor = p, p.Terminator()
		case len(s.Predecessors()) == 1:
			// s has no other incoming edge to worry about corrupting.
			anchorBlock, anchor = s, s.First()
		default:
			// Both ends are shared with other edges: this is a genuine
			// critical edge and needs its own block.
			mid, err := g.SplitCriticalEdge(p, s)
			if err != nil {
				return false
			}
			anchorBlock, anchor = mid, mid.Terminator()
		}
		val, ok := materialize(g, e, alloc, fieldLocs, p, anchor)
		if !ok {
			return false
		}
		results = append(results, materialized{anchorBlock, val})
	}

	var matRef *ssa.Value
	isPhiMerge := len(s.Predecessors()) > 1
	if !isPhiMerge {
		matRef = results[0].value
	} else {
		refPhi := s.NewPhi(ssa.Reference, len(s.Predecessors()))
		for i, pred := range s.Predecessors() {
			if escOut[pred] {
				// pred already made the allocation real before reaching s;
				// the live reference on that edge is simply the original.
				refPhi.SetPhiInput(i, alloc.Result())
				continue
			}
			var v *ssa.Value
			for _, r := range results {
				if r.block == pred {
					v = r.value
					break
				}
			}
			if v == nil {
				return false // a non-escaped predecessor of s was not among the materialized edges
			}
			refPhi.SetPhiInput(i, v)
		}
		matRef = refPhi.Result()
	}

	rewriteCohortUses(g, alloc, s, matRef, isPhiMerge)
	if counters != nil {
		counters.Inc("partial_lse_materializations")
	}
	return true
}

// classifyEscapes partitions alloc.Result()'s uses into escaping and
// non-escaping per the data-model rules in §4.5.2 step 1, recording which
// blocks contain an escaping use as it goes.
func classifyEscapes(g *ssa.Graph, alloc *ssa.Instruction) (escapesInBlock map[*ssa.BasicBlock]bool, hasEscape, hasNonEscape bool) {
	escapesInBlock = make(map[*ssa.BasicBlock]bool)
	v := alloc.Result()
	for _, u := range v.Uses() {
		if isEscapingUse(u) {
			hasEscape = true
			escapesInBlock[u.User.Block()] = true
		} else {
			hasNonEscape = true
		}
	}
	for _, eu := range v.EnvUses() {
		if analysis.EnvironmentEscapes(g, eu) {
			hasEscape = true
			escapesInBlock[eu.Env.Holder.Block()] = true
		}
	}
	return escapesInBlock, hasEscape, hasNonEscape
}

func isEscapingUse(u *ssa.Use) bool {
	switch u.User.Kind() {
	case ssa.KindInstanceFieldGet:
		return false // reading the allocation's own field is never an escape
	case ssa.KindInstanceFieldSet:
		return u.Index == 1 // storing the reference into someone else's field escapes; being the field's own object does not
	default:
		// Array stores, invoke arguments, returns, comparisons, phi merges,
		// and anything else unmodeled here: conservatively an escape.
		return true
	}
}

// computeEscapeCohort runs the OR-monotone per-block "has this allocation
// escaped by the time control reaches/leaves this block" dataflow to a
// fixed point in reverse postorder.
func computeEscapeCohort(g *ssa.Graph, alloc *ssa.Instruction, escapesInBlock map[*ssa.BasicBlock]bool) (escOut, escIn map[*ssa.BasicBlock]bool) {
	blocks := g.ReversePostOrder()
	escOut = make(map[*ssa.BasicBlock]bool)
	escIn = make(map[*ssa.BasicBlock]bool)
	allocBlock := alloc.Block()

	changed := true
	for pass := 0; changed && pass < len(blocks)+2; pass++ {
		changed = false
		for _, b := range blocks {
			in := false
			if b != allocBlock {
				for _, p := range b.Predecessors() {
					if escOut[p] {
						in = true
						break
					}
				}
			}
			if in != escIn[b] {
				escIn[b] = in
				changed = true
			}
			out := in || escapesInBlock[b]
			if out != escOut[b] {
				escOut[b] = out
				changed = true
			}
		}
	}
	return escOut, escIn
}

// findFrontierEdges collects every edge from a non-escaping block into an
// escaping one. An edge coinciding with a loop back edge is rejected
// outright (§4.5.2 step 2's "reject ... if the frontier crosses a loop
// back-edge in an unanalyzable way" — this implementation treats every
// such crossing as unanalyzable).
func findFrontierEdges(g *ssa.Graph, escOut, escIn map[*ssa.BasicBlock]bool) ([]cfgEdge, bool) {
	backEdges := make(map[cfgEdge]bool)
	for _, b := range g.Blocks() {
		if b.InLoop() && b.Loop().Header == b {
			for _, be := range b.Loop().BackEdges {
				backEdges[cfgEdge{be, b}] = true
			}
		}
	}

	var frontier []cfgEdge
	for _, b := range g.Blocks() {
		if escOut[b] {
			continue
		}
		for _, s := range b.Successors() {
			if !escIn[s] {
				continue
			}
			e := cfgEdge{b, s}
			if backEdges[e] {
				return nil, false
			}
			frontier = append(frontier, e)
		}
	}
	return frontier, true
}

func fieldLocationsOf(lsa *analysis.LoadStoreAnalysis, base *ssa.Value) []*analysis.HeapLocation {
	var out []*analysis.HeapLocation
	for _, loc := range lsa.Locations() {
		if loc.Kind == analysis.LocationField && loc.Base == base {
			out = append(out, loc)
		}
	}
	return out
}

// materialize emits a fresh allocation of alloc's class before anchor and
// replays the field-set history scalar LSE recorded at the exit of
// historyBlock (the frontier edge's source, before any critical-edge
// split), per §4.5.2 step 3.
func materialize(g *ssa.Graph, e *eliminator, alloc *ssa.Instruction, fieldLocs []*analysis.HeapLocation, historyBlock *ssa.BasicBlock, anchor *ssa.Instruction) (*ssa.Value, bool) {
	className, _ := alloc.Aux().(string)
	fresh := g.InsertNewInstanceBefore(anchor, className)

	hv := e.blockMaps[historyBlock]
	for _, loc := range fieldLocs {
		val, ok := fieldValueAt(g, hv, loc, anchor)
		if !ok {
			return nil, false
		}
		g.InsertInstanceFieldSetBefore(anchor, fresh.Result(), val, loc.FieldID, false)
	}
	return fresh.Result(), true
}

func fieldValueAt(g *ssa.Graph, hv map[int]heapValue, loc *analysis.HeapLocation, anchor *ssa.Instruction) (*ssa.Value, bool) {
	cur := hv[loc.ID]
	switch cur.state {
	case stateKnown:
		return cur.value, true
	case stateUnknown:
		return nil, false // an opaque write since the allocation makes the field's value unrecoverable
	default: // stateDefault, including an entry never observed
		zero := g.InsertConstantBefore(anchor, loc.ComponentType, 0, loc.ComponentType == ssa.Reference)
		return zero.Result(), true
	}
}

// rewriteCohortUses redirects every use of alloc.Result() within s and
// every block s dominates to matRef (§4.5.2 steps 4-5). A field access
// sitting in s itself, right where the merge phi lives, becomes a
// predicated memory op keyed on matRef rather than a plain field access,
// since that is the one point where the reference is the phi's output
// rather than a single known materialization.
func rewriteCohortUses(g *ssa.Graph, alloc *ssa.Instruction, s *ssa.BasicBlock, matRef *ssa.Value, isPhiMerge bool) {
	v := alloc.Result()

	for _, u := range append([]*ssa.Use(nil), v.Uses()...) {
		b := u.User.Block()
		if b != s && !s.Dominates(b) {
			continue
		}
		if b == s && isPhiMerge && isObjectOperandOfFieldAccess(u) {
			rewriteAsPredicated(g, u, matRef)
			continue
		}
		u.User.ReplaceInput(u.Index, matRef)
	}

	for _, eu := range append([]*ssa.EnvUse(nil), v.EnvUses()...) {
		b := eu.Env.Holder.Block()
		if b != s && !s.Dominates(b) {
			continue
		}
		eu.Env.SetAt(eu.Index, matRef)
	}
}

func isObjectOperandOfFieldAccess(u *ssa.Use) bool {
	if u.Index != 0 {
		return false
	}
	switch u.User.Kind() {
	case ssa.KindInstanceFieldGet, ssa.KindInstanceFieldSet:
		return true
	default:
		return false
	}
}

func rewriteAsPredicated(g *ssa.Graph, u *ssa.Use, matRef *ssa.Value) {
	instr := u.User
	switch instr.Kind() {
	case ssa.KindInstanceFieldGet:
		fieldID := int(instr.AuxInt())
		fallback := g.InsertConstantBefore(instr, instr.Type(), 0, instr.Type() == ssa.Reference)
		pg := g.InsertPredicatedGetBefore(instr, instr.Type(), matRef, fallback.Result(), fieldID)
		_ = ssa.ReplaceWith(instr, pg)
	case ssa.KindInstanceFieldSet:
		fieldID := int(instr.AuxInt())
		value := instr.InputAt(1)
		g.InsertPredicatedSetBefore(instr, matRef, value, fieldID)
		_ = ssa.Remove(instr)
	}
}
