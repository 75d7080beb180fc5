package analysis

import "optcore/internal/ssa"

// Classification is the induction-variable shape §4.2 names.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassLinear                 // a*i + b, a and b loop-invariant
	ClassPolynomial
	ClassGeometric
	ClassWrapAround
	ClassPeriodic
)

// Induction describes one header phi's classification. For ClassLinear,
// Initial and Stride give the closed form value(i) = Initial + Stride*i.
type Induction struct {
	Phi     *ssa.Instruction
	Class   Classification
	Initial *ssa.Value
	Stride  int64
}

// InductionAnalysis holds the classification for every header phi of one
// loop.
type InductionAnalysis struct {
	Loop    *ssa.LoopInfo
	byPhi   map[*ssa.Instruction]*Induction
	primary *Induction
}

// Of returns the induction classification for a header phi, or nil if phi
// does not belong to this loop's header.
func (ia *InductionAnalysis) Of(phi *ssa.Instruction) *Induction { return ia.byPhi[phi] }

// Primary returns the loop's trip-count-controlling induction: the
// ClassLinear phi compared against a loop-invariant bound by the header's
// exit condition, identified once at analysis time. A loop may carry other
// linear inductions alongside it (an accumulator driven by the same back
// edge count); those are never Primary, which is what lets
// simplifyInduction rewrite them to closed form while leaving the loop's
// own exit test alone.
func (ia *InductionAnalysis) Primary() *Induction { return ia.primary }

// AnalyzeInduction classifies every phi at loop's header. A phi `v = phi(init,
// latch)` is ClassLinear when the latch value is `v + stride` (stride a
// loop-invariant constant) and init is defined outside the loop; anything
// else is left ClassUnknown, per §4.2's conservative default.
func AnalyzeInduction(loop *ssa.LoopInfo) *InductionAnalysis {
	ia := &InductionAnalysis{Loop: loop, byPhi: make(map[*ssa.Instruction]*Induction)}
	header := loop.Header
	preIdx := header.PredIndex(loop.PreHeader)

	for _, phi := range header.Phis() {
		ind := &Induction{Phi: phi, Class: ClassUnknown}
		if preIdx >= 0 {
			init := phi.InputAt(preIdx)
			if loop.IsDefinedOutOfLoop(init) {
				if stride, ok := linearStride(phi, loop); ok {
					ind.Class = ClassLinear
					ind.Initial = init
					ind.Stride = stride
				}
			}
		}
		ia.byPhi[phi] = ind
	}
	ia.primary = findPrimary(ia)
	return ia
}

// findPrimary locates the header's exit Compare and, if one of its operands
// is a ClassLinear phi of this loop, returns that phi's Induction — the
// trip-count-controlling induction per §4.2.
func findPrimary(ia *InductionAnalysis) *Induction {
	cond := exitCondition(ia.Loop)
	if cond == nil {
		return nil
	}
	left, right := cond.InputAt(0), cond.InputAt(1)
	if left == nil || right == nil {
		return nil
	}
	if ind, ok := ia.byPhi[left.Def()]; ok && ind.Class == ClassLinear {
		return ind
	}
	if ind, ok := ia.byPhi[right.Def()]; ok && ind.Class == ClassLinear {
		return ind
	}
	return nil
}

// linearStride looks for a latch input of the form Add(phi, const) or
// Add(const, phi) among phi's non-preheader inputs, returning the constant
// stride shared by every back edge (a loop with multiple latches must
// agree on one stride to be linear).
func linearStride(phi *ssa.Instruction, loop *ssa.LoopInfo) (int64, bool) {
	header := phi.Block()
	var stride int64
	found := false
	for idx, pred := range header.Predecessors() {
		if pred == loop.PreHeader {
			continue
		}
		val := phi.InputAt(idx)
		def := val.Def()
		if def.Kind() != ssa.KindAdd {
			return 0, false
		}
		l, r := def.InputAt(0), def.InputAt(1)
		var s int64
		switch {
		case l == phi.Result() && r.Def().Kind() == ssa.KindConstant:
			s = r.Def().AuxInt()
		case r == phi.Result() && l.Def().Kind() == ssa.KindConstant:
			s = l.Def().AuxInt()
		default:
			return 0, false
		}
		if found && s != stride {
			return 0, false
		}
		stride = s
		found = true
	}
	return stride, found
}

// IsUnitStride reports whether index is a unit-stride reference to the
// loop's primary induction variable — index is syntactically `iv` or
// `iv + offset` with the induction's stride equal to 1 — returning the
// constant offset when so (§4.2's `is_unit_stride`).
func (ia *InductionAnalysis) IsUnitStride(index *ssa.Value) (offset int64, ok bool) {
	primary := ia.Primary()
	if primary == nil || primary.Stride != 1 {
		return 0, false
	}
	expr := indexExprOf(index)
	if expr.Var == primary.Phi.Result() {
		return expr.Offset, true
	}
	return 0, false
}

// TripCountResult is the outcome of attempting to compute a symbolic trip
// count for a counted loop exiting on `iv CMP bound`.
type TripCountResult struct {
	Known    bool
	Constant int64 // valid when IsConst
	IsConst  bool
	Bound    *ssa.Value // loop-invariant bound, valid when Known
}

// TripCount computes the (possibly symbolic) iteration count for a loop
// whose exit condition compares the primary linear induction variable
// against a loop-invariant bound, per §4.2. Only an `i < bound` test (with
// the induction variable moved to the left) and a positive stride are
// resolved; Constant is filled in (IsConst) only when both the initial
// value and the bound are constants. Anything else reports Known=false and
// callers must bail per §4.4.2's "tc unknown" path.
func (ia *InductionAnalysis) TripCount(cond *ssa.Instruction) TripCountResult {
	primary := ia.Primary()
	if primary == nil || cond.Kind() != ssa.KindCompare {
		return TripCountResult{}
	}
	left, right := cond.InputAt(0), cond.InputAt(1)
	var bound *ssa.Value
	op := cond.Op()
	if left == primary.Phi.Result() {
		bound = right
	} else if right == primary.Phi.Result() {
		bound = left
		op = flip(op)
	} else {
		return TripCountResult{}
	}
	if !ia.Loop.IsDefinedOutOfLoop(bound) {
		return TripCountResult{}
	}
	if op != "<" || primary.Stride <= 0 {
		return TripCountResult{}
	}
	res := TripCountResult{Known: true, Bound: bound}
	if primary.Initial.Def().Kind() == ssa.KindConstant && bound.Def().Kind() == ssa.KindConstant {
		init := primary.Initial.Def().AuxInt()
		lim := bound.Def().AuxInt()
		if lim > init {
			res.IsConst = true
			res.Constant = (lim - init + primary.Stride - 1) / primary.Stride
		} else {
			res.IsConst = true
			res.Constant = 0
		}
	}
	return res
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	default:
		return op
	}
}

// GenerateTripCount emits, immediately before emitAt's terminator, the
// instructions computing the loop's trip count as a runtime value
// (ceil((bound-init)/stride) for the stride-1 common case simplifies to
// bound-init). Returns the value and true if synthesis succeeded. Inserts
// rather than appends since emitAt is always a pre-header, already
// terminated by a Goto into the loop header.
func (ia *InductionAnalysis) GenerateTripCount(emitAt *ssa.BasicBlock) (*ssa.Value, bool) {
	primary := ia.Primary()
	if primary == nil {
		return nil, false
	}
	cond := exitCondition(ia.Loop)
	if cond == nil {
		return nil, false
	}
	tc := ia.TripCount(cond)
	if !tc.Known {
		return nil, false
	}
	g := emitAt.Graph()
	anchor := emitAt.Terminator()
	typ := primary.Phi.Type()
	if tc.IsConst {
		return g.InsertConstantBefore(anchor, typ, tc.Constant, false).Result(), true
	}
	diff := g.InsertBinaryBefore(anchor, ssa.KindSub, typ, "-", tc.Bound, primary.Initial)
	if primary.Stride == 1 {
		return diff.Result(), true
	}
	strideConst := g.InsertConstantBefore(anchor, typ, primary.Stride, false)
	bias := g.InsertConstantBefore(anchor, typ, primary.Stride-1, false)
	rounded := g.InsertBinaryBefore(anchor, ssa.KindAdd, typ, "+", diff.Result(), bias.Result())
	div := g.InsertBinaryBefore(anchor, ssa.KindDiv, typ, "/", rounded.Result(), strideConst.Result())
	return div.Result(), true
}

// GenerateLastValue emits, immediately before emitAt's terminator, the value
// the induction variable holds after the loop's last executed iteration:
// Initial + Stride*TripCount. Used by induction simplification (§4.4.1) to
// rewrite external uses before deleting the loop body.
func (ia *InductionAnalysis) GenerateLastValue(ind *Induction, emitAt *ssa.BasicBlock) (*ssa.Value, bool) {
	tc, ok := ia.GenerateTripCount(emitAt)
	if !ok {
		return nil, false
	}
	g := emitAt.Graph()
	anchor := emitAt.Terminator()
	typ := ind.Phi.Type()
	if ind.Stride == 1 {
		last := g.InsertBinaryBefore(anchor, ssa.KindAdd, typ, "+", ind.Initial, tc)
		return last.Result(), true
	}
	strideConst := g.InsertConstantBefore(anchor, typ, ind.Stride, false)
	scaled := g.InsertBinaryBefore(anchor, ssa.KindMul, typ, "*", tc, strideConst.Result())
	last := g.InsertBinaryBefore(anchor, ssa.KindAdd, typ, "+", ind.Initial, scaled.Result())
	return last.Result(), true
}

// exitCondition finds the If condition guarding the loop's single exit,
// per §4.4.2's expectation of a `SuspendCheck + Condition + If` header.
func exitCondition(loop *ssa.LoopInfo) *ssa.Instruction {
	term := loop.Header.Terminator()
	if term == nil || term.Kind() != ssa.KindIf {
		return nil
	}
	cond := term.InputAt(0)
	if cond.Def().Kind() != ssa.KindCompare {
		return nil
	}
	return cond.Def()
}
