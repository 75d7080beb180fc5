package loopopt

import (
	"optcore/internal/analysis"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// optimizeInnerLoop is the per-loop decision point of §4.4: an innermost
// loop is offered to the vectorizer first; if it declines, the loop is
// checked for a statically-known trip count of 0 or 1 and removed.
// Non-innermost loops (still containing an unvectorized or unremoved inner
// loop) are left alone — §4.4.2 vectorizes only the innermost nest.
func optimizeInnerLoop(g *ssa.Graph, loop *ssa.LoopInfo, tf TargetFeatures, counters *stats.Counters) bool {
	if loop.Node != nil && len(loop.Node.Inner) != 0 {
		return false
	}
	ia := analysis.AnalyzeInduction(loop)
	if ia.Primary() == nil {
		return false
	}
	if vectorizeLoop(g, loop, ia, tf, counters) {
		return true
	}
	return tryRemoveTrivialTripCountLoop(g, loop, ia, counters)
}

// bodyAllowedKinds is the closed set of instruction kinds a vectorizable
// loop body may contain: the array access/arithmetic vocabulary
// vectorizable() descends through, plus the constants and terminator every
// such body trivially carries. Anything else (a call, a field access, a
// throw) means some effect must run exactly once per original iteration,
// which the vector-plus-cleanup split would silently violate, so its
// presence disqualifies the loop outright.
var bodyAllowedKinds = map[ssa.Kind]bool{
	ssa.KindArrayGet: true, ssa.KindArraySet: true,
	ssa.KindAdd: true, ssa.KindSub: true, ssa.KindMul: true,
	ssa.KindAnd: true, ssa.KindXor: true,
	ssa.KindShl: true, ssa.KindShr: true, ssa.KindUShr: true,
	ssa.KindNeg: true, ssa.KindConstant: true, ssa.KindGoto: true,
}

// vectorizeLoop attempts innermost-loop SIMD vectorization per §4.4.2: a
// canonical two-block loop (header carrying only the primary induction
// phi, one body block feeding back to it) whose every store is a
// vectorizable expression over unit-stride array accesses, with a clean
// data-dependence test, is split into a vector loop processing VL elements
// per iteration and a scalar cleanup loop for the remainder.
func vectorizeLoop(g *ssa.Graph, loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, tf TargetFeatures, counters *stats.Counters) bool {
	primary := ia.Primary()
	if primary == nil || primary.Stride != 1 {
		return false
	}
	body, ok := canonicalBody(loop, primary)
	if !ok {
		return false
	}
	for _, instr := range body.Instructions() {
		if !bodyAllowedKinds[instr.Kind()] {
			return false
		}
	}

	var stores []*ssa.Instruction
	for _, instr := range body.Instructions() {
		if instr.Kind() == ssa.KindArraySet {
			stores = append(stores, instr)
		}
	}
	if len(stores) == 0 {
		return false
	}
	typ := stores[0].InputAt(2).Type()
	vl, restrictions, ok := tf.AcceptVectorType(typ)
	if !ok || !AcceptVectorLength(vl) {
		return false
	}

	loads := map[*ssa.Instruction]bool{}
	for _, st := range stores {
		if st.InputAt(2).Type() != typ {
			return false
		}
		if _, unit := ia.IsUnitStride(st.InputAt(1)); !unit {
			return false
		}
		if !loop.IsDefinedOutOfLoop(st.InputAt(0)) {
			return false
		}
		if !vectorizable(loop, ia, st.InputAt(2), typ, restrictions, loads) {
			return false
		}
	}

	lsa := analysis.Analyze(g)
	if !dataDependenceOK(lsa, stores, loads) {
		return false
	}

	return synthesizeVectorLoop(g, loop, ia, body, stores, typ, vl, counters)
}

// canonicalBody recognizes the one loop shape this vectorizer accepts: the
// header holds exactly the primary induction phi, there is exactly one
// other member block, and it is the loop's sole back-edge source.
func canonicalBody(loop *ssa.LoopInfo, primary *analysis.Induction) (*ssa.BasicBlock, bool) {
	if loop.Suspend == nil {
		return nil, false
	}
	if len(loop.Members) != 2 {
		return nil, false
	}
	if len(loop.Header.Phis()) != 1 || loop.Header.Phis()[0] != primary.Phi {
		return nil, false
	}
	var body *ssa.BasicBlock
	for b := range loop.Members {
		if b != loop.Header {
			body = b
		}
	}
	if body == nil || len(body.Phis()) != 0 {
		return nil, false
	}
	succs := body.Successors()
	if len(succs) != 1 || succs[0] != loop.Header {
		return nil, false
	}
	if len(loop.BackEdges) != 1 || loop.BackEdges[0] != body {
		return nil, false
	}
	return body, true
}

// vectorizable recursively classifies val as fit for SIMD lowering: a
// loop-invariant value broadcasts, a unit-stride array read becomes a
// vector load, and an arithmetic op is vectorizable iff both operands are
// and the target's restriction bitmask for typ does not forbid that
// operator (§4.4.2's recursive descent).
func vectorizable(loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, val *ssa.Value, typ ssa.DataType, restrictions Restriction, loads map[*ssa.Instruction]bool) bool {
	if loop.IsDefinedOutOfLoop(val) {
		return true
	}
	def := val.Def()
	switch def.Kind() {
	case ssa.KindArrayGet:
		if def.Type() != typ {
			return false
		}
		if _, unit := ia.IsUnitStride(def.InputAt(1)); !unit {
			return false
		}
		if !loop.IsDefinedOutOfLoop(def.InputAt(0)) {
			return false
		}
		loads[def] = true
		return true
	case ssa.KindAdd, ssa.KindSub, ssa.KindAnd, ssa.KindXor:
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads) &&
			vectorizable(loop, ia, def.InputAt(1), typ, restrictions, loads)
	case ssa.KindMul:
		if restrictions&RNoMul != 0 {
			return false
		}
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads) &&
			vectorizable(loop, ia, def.InputAt(1), typ, restrictions, loads)
	case ssa.KindShl:
		if restrictions&RNoShift != 0 {
			return false
		}
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads) &&
			loop.IsDefinedOutOfLoop(def.InputAt(1))
	case ssa.KindShr:
		if restrictions&(RNoShift|RNoShr) != 0 {
			return false
		}
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads) &&
			loop.IsDefinedOutOfLoop(def.InputAt(1))
	case ssa.KindUShr:
		if restrictions&RNoShift != 0 {
			return false
		}
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads) &&
			loop.IsDefinedOutOfLoop(def.InputAt(1))
	case ssa.KindNeg:
		return vectorizable(loop, ia, def.InputAt(0), typ, restrictions, loads)
	default:
		return false
	}
}

// dataDependenceOK rejects vectorization whenever a store's location may
// (without being proved to must) alias a load's or another store's, per
// §4.2's three-valued alias relation: a MustAlias same-element
// read-modify-write is fine, a NoAlias pair is fine, and every MayAlias
// pair is rejected. No runtime `a != b` disambiguation guard is emitted, so
// a different-base-same-index MayAlias pair is rejected too (see
// DESIGN.md).
func dataDependenceOK(lsa *analysis.LoadStoreAnalysis, stores []*ssa.Instruction, loads map[*ssa.Instruction]bool) bool {
	consider := func(x, y *analysis.HeapLocation) bool {
		return analysis.Alias(x, y) != analysis.MayAlias
	}
	for _, st := range stores {
		stLoc := lsa.LocationOf(st)
		if stLoc == nil {
			return false
		}
		for ld := range loads {
			ldLoc := lsa.LocationOf(ld)
			if ldLoc == nil || !consider(stLoc, ldLoc) {
				return false
			}
		}
	}
	for i := 0; i < len(stores); i++ {
		for j := i + 1; j < len(stores); j++ {
			a, b := lsa.LocationOf(stores[i]), lsa.LocationOf(stores[j])
			if a == nil || b == nil || !consider(a, b) {
				return false
			}
		}
	}
	return true
}

// vecIndexFor computes the vector loop's array index for a scalar access
// at idxVal: the induction variable itself when the access is exactly
// `iv`, or `vi + offset` when it carries a constant unit-stride offset.
func vecIndexFor(b *ssa.BasicBlock, ia *analysis.InductionAnalysis, idxVal, vi *ssa.Value) *ssa.Value {
	offset, _ := ia.IsUnitStride(idxVal)
	if offset == 0 {
		return vi
	}
	c := b.NewConstant(idxVal.Type(), offset, false)
	return b.NewAdd(idxVal.Type(), vi, c.Result()).Result()
}

// genVector lowers a scalar value reachable from a store's expression tree
// into its vector-lane equivalent in vecBody, memoizing so a value shared
// by two stores is only computed once.
func genVector(vecBody *ssa.BasicBlock, loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, val, vi *ssa.Value, vl int, typ ssa.DataType, memo map[*ssa.Value]*ssa.Value) *ssa.Value {
	if v, ok := memo[val]; ok {
		return v
	}
	var out *ssa.Value
	if loop.IsDefinedOutOfLoop(val) {
		out = vecBody.NewVecReplicateScalar(typ, val, vl).Result()
	} else {
		def := val.Def()
		switch def.Kind() {
		case ssa.KindArrayGet:
			idx := vecIndexFor(vecBody, ia, def.InputAt(1), vi)
			out = vecBody.NewVecLoad(typ, def.InputAt(0), idx, vl).Result()
		case ssa.KindAdd:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			r := genVector(vecBody, loop, ia, def.InputAt(1), vi, vl, typ, memo)
			out = vecBody.NewVecAdd(typ, l, r, vl).Result()
		case ssa.KindSub:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			r := genVector(vecBody, loop, ia, def.InputAt(1), vi, vl, typ, memo)
			out = vecBody.NewVecSub(typ, l, r, vl).Result()
		case ssa.KindMul:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			r := genVector(vecBody, loop, ia, def.InputAt(1), vi, vl, typ, memo)
			out = vecBody.NewVecMul(typ, l, r, vl).Result()
		case ssa.KindAnd:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			r := genVector(vecBody, loop, ia, def.InputAt(1), vi, vl, typ, memo)
			out = vecBody.NewVecAnd(typ, l, r, vl).Result()
		case ssa.KindXor:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			r := genVector(vecBody, loop, ia, def.InputAt(1), vi, vl, typ, memo)
			out = vecBody.NewVecXor(typ, l, r, vl).Result()
		case ssa.KindShl, ssa.KindShr, ssa.KindUShr:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			shiftTyp := def.InputAt(1).Type()
			maskBits := int64(31)
			if typ.SizeBytes() == 8 {
				maskBits = 63
			}
			mask := vecBody.NewConstant(shiftTyp, maskBits, false)
			masked := vecBody.NewAnd(shiftTyp, def.InputAt(1), mask.Result())
			bvec := vecBody.NewVecReplicateScalar(shiftTyp, masked.Result(), vl)
			switch def.Kind() {
			case ssa.KindShl:
				out = vecBody.NewVecShl(typ, l, bvec.Result(), vl).Result()
			case ssa.KindShr:
				out = vecBody.NewVecShr(typ, l, bvec.Result(), vl).Result()
			default:
				out = vecBody.NewVecUShr(typ, l, bvec.Result(), vl).Result()
			}
		case ssa.KindNeg:
			l := genVector(vecBody, loop, ia, def.InputAt(0), vi, vl, typ, memo)
			out = vecBody.NewVecNeg(typ, l, vl).Result()
		}
	}
	memo[val] = out
	return out
}

// buildVecBody emits vecBody's content: every store's vectorized value
// tree followed by a VecStore, the induction increment, and the back edge
// to vecHeader. Returns the incremented index value for the caller to wire
// into vecHeader's phi.
func buildVecBody(vecBody, vecHeader *ssa.BasicBlock, loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, stores []*ssa.Instruction, typ ssa.DataType, vl int, vi, vlConst *ssa.Value) *ssa.Value {
	memo := map[*ssa.Value]*ssa.Value{}
	for _, st := range stores {
		vecVal := genVector(vecBody, loop, ia, st.InputAt(2), vi, vl, typ, memo)
		idx := vecIndexFor(vecBody, ia, st.InputAt(1), vi)
		vecBody.NewVecStore(st.InputAt(0), idx, vecVal, vl)
	}
	viNext := vecBody.NewAdd(vi.Type(), vi, vlConst)
	vecBody.SetGoto(vecHeader)
	return viNext.Result()
}

// synthesizeVectorLoop builds the vector loop ahead of the original
// (header, body) pair and repurposes that original pair as the scalar
// cleanup loop for the remainder: vtc = floor(stc/vl)*vl elements run
// through the vector loop starting at the original pre-header, and the
// untouched original header/body — now entered with the induction
// variable already at vtc instead of its original initial value — runs
// the rest exactly as it always did.
func synthesizeVectorLoop(g *ssa.Graph, loop *ssa.LoopInfo, ia *analysis.InductionAnalysis, body *ssa.BasicBlock, stores []*ssa.Instruction, typ ssa.DataType, vl int, counters *stats.Counters) bool {
	preheader := loop.PreHeader
	header := loop.Header
	primary := ia.Primary()
	countType := primary.Phi.Type()
	anchor := preheader.Terminator()

	stcVal, ok := ia.GenerateTripCount(preheader)
	if !ok {
		return false
	}
	backIdx := header.PredIndex(body)
	if backIdx < 0 {
		return false
	}
	latchVal := primary.Phi.InputAt(backIdx)

	vlConst := g.InsertConstantBefore(anchor, countType, int64(vl), false)
	divided := g.InsertBinaryBefore(anchor, ssa.KindDiv, countType, "/", stcVal, vlConst.Result())
	vtcVal := g.InsertBinaryBefore(anchor, ssa.KindMul, countType, "*", divided.Result(), vlConst.Result()).Result()
	zero := g.InsertConstantBefore(anchor, countType, 0, false).Result()

	vecHeader := g.NewBlock()
	vecBody := g.NewBlock()

	if err := g.ReplaceTerminatorWithGoto(preheader, vecHeader); err != nil {
		return false
	}

	viPhi := vecHeader.NewPhi(countType, 2)
	viPhi.SetPhiInput(vecHeader.PredIndex(preheader), zero)

	// Every loop header runs its SuspendCheck before the loop condition; the
	// vector loop is a loop header like any other, so it needs its own,
	// built from the original header's with the same loop-phi adjustment
	// a hoisted CHA guard gets (the phi doesn't exist yet at this point).
	suspend := vecHeader.NewSuspendCheck(loop.Suspend.Environment().Len())
	loop.CopyEnvironmentFromWithLoopPhiAdjustment(suspend, loop.Suspend.Environment())

	cond := vecHeader.NewCompare("<", viPhi.Result(), vtcVal)
	vecHeader.SetIf(cond.Result(), vecBody, header)

	viNext := buildVecBody(vecBody, vecHeader, loop, ia, stores, typ, vl, viPhi.Result(), vlConst.Result())
	viPhi.SetPhiInput(vecHeader.PredIndex(vecBody), viNext)

	primary.Phi.SetPhiInput(header.PredIndex(vecHeader), vtcVal)
	primary.Phi.SetPhiInput(header.PredIndex(body), latchVal)

	loop.Members[vecHeader] = true
	loop.Members[vecBody] = true

	if counters != nil {
		counters.Inc("loops_vectorized")
		counters.Add("vector_stores_emitted", int64(len(stores)))
	}
	return true
}
