package ssa

// This file collects the per-Kind constructors a front end (or a pass that
// synthesizes new IR, e.g. the vectorizer or partial LSE) uses to build
// instructions. Every constructor appends the instruction to `block`,
// wires capability bits appropriate to the kind, and returns it; callers
// needing to insert elsewhere use the structural edit API in edits.go
// afterward.

// NewConstant returns a canonicalized integer/bool/null constant, creating
// it in block only the first time it is seen for (typ, val, isNull).
func (b *BasicBlock) NewConstant(typ DataType, val int64, isNull bool) *Instruction {
	g := b.graph
	if existing, ok := g.internConstant(typ, val, isNull); ok {
		return existing.def
	}
	instr := g.newInstruction(KindConstant, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = val
	instr.aux = isNull
	b.appendInstruction(instr)
	g.registerConstant(typ, val, isNull, instr.result)
	return instr
}

func (b *BasicBlock) NewParameter(typ DataType, index int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindParameter, typ)
	instr.canBeMoved = false
	instr.auxInt = int64(index)
	b.appendInstruction(instr)
	return instr
}

// NewPhi creates a phi with nInputs holes; SetPhiInput fills slot k with
// the value flowing from predecessor k.
func (b *BasicBlock) NewPhi(typ DataType, nInputs int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindPhi, typ)
	instr.canBeMoved = false
	instr.isRemovable = true
	instr.inputs = make([]*Value, nInputs)
	instr.uses = make([]*Use, nInputs)
	b.appendPhi(instr)
	return instr
}

func (p *Instruction) SetPhiInput(predIdx int, val *Value) {
	if p.inputs[predIdx] != nil {
		p.inputs[predIdx].removeUse(p.uses[predIdx])
	}
	p.inputs[predIdx] = val
	use := &Use{Value: val, User: p, Index: predIdx}
	p.uses[predIdx] = use
	if val != nil {
		val.addUse(use)
	}
}

func (b *BasicBlock) newBinary(kind Kind, typ DataType, op string, left, right *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(kind, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.opSym = op
	instr.addInput(left)
	instr.addInput(right)
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewAdd(typ DataType, left, right *Value) *Instruction { return b.newBinary(KindAdd, typ, "+", left, right) }
func (b *BasicBlock) NewSub(typ DataType, left, right *Value) *Instruction { return b.newBinary(KindSub, typ, "-", left, right) }
func (b *BasicBlock) NewMul(typ DataType, left, right *Value) *Instruction { return b.newBinary(KindMul, typ, "*", left, right) }
func (b *BasicBlock) NewDiv(typ DataType, left, right *Value) *Instruction {
	instr := b.newBinary(KindDiv, typ, "/", left, right)
	instr.canThrow = true // division by zero
	return instr
}
func (b *BasicBlock) NewRem(typ DataType, left, right *Value) *Instruction {
	instr := b.newBinary(KindRem, typ, "%", left, right)
	instr.canThrow = true
	return instr
}
func (b *BasicBlock) NewShl(typ DataType, left, right *Value) *Instruction  { return b.newBinary(KindShl, typ, "<<", left, right) }
func (b *BasicBlock) NewShr(typ DataType, left, right *Value) *Instruction  { return b.newBinary(KindShr, typ, ">>", left, right) }
func (b *BasicBlock) NewUShr(typ DataType, left, right *Value) *Instruction { return b.newBinary(KindUShr, typ, ">>>", left, right) }
func (b *BasicBlock) NewAnd(typ DataType, left, right *Value) *Instruction  { return b.newBinary(KindAnd, typ, "&", left, right) }
func (b *BasicBlock) NewOr(typ DataType, left, right *Value) *Instruction   { return b.newBinary(KindOr, typ, "|", left, right) }
func (b *BasicBlock) NewXor(typ DataType, left, right *Value) *Instruction  { return b.newBinary(KindXor, typ, "^", left, right) }

func (b *BasicBlock) NewNeg(typ DataType, operand *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindNeg, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.addInput(operand)
	b.appendInstruction(instr)
	return instr
}

// NewCompare emits a boolean-typed comparison; op is one of ==, !=, <, <=,
// >, >=.
func (b *BasicBlock) NewCompare(op string, left, right *Value) *Instruction {
	instr := b.newBinary(KindCompare, Bool, op, left, right)
	return instr
}

func (b *BasicBlock) NewTypeConversion(typ DataType, operand *Value, convName string) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindTypeConversion, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.opSym = convName
	instr.addInput(operand)
	b.appendInstruction(instr)
	return instr
}

// NewIntermediateAddress computes base+offset as an addressing value that
// feeds Array/Field get/set instructions; it is pure and movable, letting
// code sinking and LICM hoist address arithmetic independently of the
// memory op it feeds.
func (b *BasicBlock) NewIntermediateAddress(base, offset *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindIntermediateAddress, Reference)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.addInput(base)
	instr.addInput(offset)
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewArrayGet(typ DataType, array, index *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindArrayGet, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.canThrow = true // bounds check
	instr.addInput(array)
	instr.addInput(index)
	instr.effects = Effects{Reads: ClassArray, MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewArraySet(array, index, value *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindArraySet, Void)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.addInput(array)
	instr.addInput(index)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassArray, MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewInstanceFieldGet(typ DataType, object *Value, fieldID int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindInstanceFieldGet, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = int64(fieldID)
	instr.addInput(object)
	instr.effects = Effects{Reads: ClassField}
	b.appendInstruction(instr)
	return instr
}

// NewInstanceFieldSet; volatile stores are never movable (§4.3).
func (b *BasicBlock) NewInstanceFieldSet(object, value *Value, fieldID int, volatile bool) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindInstanceFieldSet, Void)
	instr.canBeMoved = !volatile
	instr.auxInt = int64(fieldID)
	instr.aux = volatile
	instr.addInput(object)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassField}
	b.appendInstruction(instr)
	return instr
}

// NewNewInstance/NewNewArray are allocations: movable (can be sunk/LICM'd
// despite being able to throw OOM), so code sinking's "allocation" carve-out
// in §4.3 applies.
func (b *BasicBlock) NewNewInstance(className string) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindNewInstance, Reference)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.isRemovable = true
	instr.aux = className
	instr.effects = Effects{MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewNewArray(elemType DataType, length *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindNewArray, Reference)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.isRemovable = true
	instr.aux = elemType
	instr.addInput(length)
	instr.effects = Effects{MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

// NewPredicatedGet/Set are synthesized by partial LSE: ref may be null, in
// which case the fallback value is used / the store is a no-op.
func (b *BasicBlock) NewPredicatedGet(typ DataType, ref, fallback *Value, fieldID int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindPredicatedGet, typ)
	instr.canBeMoved = false
	instr.auxInt = int64(fieldID)
	instr.addInput(ref)
	instr.addInput(fallback)
	instr.effects = Effects{Reads: ClassField}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewPredicatedSet(ref, value *Value, fieldID int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindPredicatedSet, Void)
	instr.canBeMoved = false
	instr.auxInt = int64(fieldID)
	instr.addInput(ref)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassField}
	b.appendInstruction(instr)
	return instr
}

// Vector (SIMD) constructors, emitted only by the loop vectorizer (§4.4.2).
// auxInt carries the lane count (VL) for every vector kind, matching what
// load-store analysis's classify() already expects of VecLoad/VecStore.

func (b *BasicBlock) NewVecLoad(typ DataType, array, index *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindVecLoad, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.canThrow = true
	instr.auxInt = int64(vl)
	instr.addInput(array)
	instr.addInput(index)
	instr.effects = Effects{Reads: ClassVector, MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewVecStore(array, index, value *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindVecStore, Void)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.auxInt = int64(vl)
	instr.addInput(array)
	instr.addInput(index)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassVector, MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) newVecBinary(kind Kind, typ DataType, left, right *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(kind, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = int64(vl)
	instr.addInput(left)
	instr.addInput(right)
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewVecAdd(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecAdd, typ, left, right, vl)
}
func (b *BasicBlock) NewVecSub(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecSub, typ, left, right, vl)
}
func (b *BasicBlock) NewVecMul(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecMul, typ, left, right, vl)
}
func (b *BasicBlock) NewVecAnd(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecAnd, typ, left, right, vl)
}
func (b *BasicBlock) NewVecXor(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecXor, typ, left, right, vl)
}

// NewVecShl/Shr/UShr carry the scalar shift-amount input unmasked; the
// vectorizer masks it to the component width ({31, 63}) before wiring it in,
// matching the scalar semantics the shift operators require (§4.4.2).
func (b *BasicBlock) NewVecShl(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecShl, typ, left, right, vl)
}
func (b *BasicBlock) NewVecShr(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecShr, typ, left, right, vl)
}
func (b *BasicBlock) NewVecUShr(typ DataType, left, right *Value, vl int) *Instruction {
	return b.newVecBinary(KindVecUShr, typ, left, right, vl)
}

func (b *BasicBlock) NewVecNeg(typ DataType, operand *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindVecNeg, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = int64(vl)
	instr.addInput(operand)
	b.appendInstruction(instr)
	return instr
}

// NewVecCnv narrows/widens a vector's component type, used by idioms (e.g.
// float absolute value via a bitwise AND with a mask, which needs the
// operand reinterpreted) that the scalar instruction set expresses as a
// TypeConversion.
func (b *BasicBlock) NewVecCnv(typ DataType, operand *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindVecCnv, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = int64(vl)
	instr.addInput(operand)
	b.appendInstruction(instr)
	return instr
}

// NewVecReplicateScalar broadcasts a loop-invariant scalar into every lane
// of a VL-wide vector, the operand form every loop-invariant use in a
// vectorized body takes (§4.4.2).
func (b *BasicBlock) NewVecReplicateScalar(typ DataType, scalar *Value, vl int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindVecReplicateScalar, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = int64(vl)
	instr.addInput(scalar)
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewLoadClass(className string) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindLoadClass, Reference)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.aux = className
	instr.effects = Effects{MayThrow: true}
	b.appendInstruction(instr)
	return instr
}

// NewShouldDeoptimizeFlag reads the CHA invalidation flag for receiver's
// assumed class; always paired with a Compare(!=, flag, 0) and a
// Deoptimize by the CHA guard triple convention (§4.6).
func (b *BasicBlock) NewShouldDeoptimizeFlag(receiver *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindShouldDeoptimizeFlag, Bool)
	instr.canBeMoved = false
	instr.addInput(receiver)
	b.appendInstruction(instr)
	b.graph.HasCHAGuards = true
	return instr
}

// NewDeoptimize is a predicated bail-to-interpreter point: cond (typically
// a CHA ShouldDeoptimizeFlag's NotEqual) gates whether this actually
// deoptimizes at runtime, mirroring the guard triple's input, not a CFG
// branch.
func (b *BasicBlock) NewDeoptimize(cond *Value, nEnv int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindDeoptimize, Void)
	instr.canBeMoved = false
	instr.effects = Effects{MayDeopt: true}
	instr.addInput(cond)
	instr.env = NewEnvironment(instr, nEnv)
	b.appendInstruction(instr)
	return instr
}

// NewCHAGuard emits the three-instruction CHA devirtualization guard
// convention (§4.6): a ShouldDeoptimizeFlag reading receiver's assumed
// class's invalidation flag, a NotEqual comparison against zero, and a
// Deoptimize predicated on that comparison. CHA guard optimization expects
// to find exactly this shape (three consecutive instructions) wherever a
// guard has not yet been removed or hoisted.
func (b *BasicBlock) NewCHAGuard(receiver *Value, nEnv int) (flag, notEqual, deopt *Instruction) {
	zero := b.NewConstant(Bool, 0, false) // created first so the triple stays contiguous
	flag = b.NewShouldDeoptimizeFlag(receiver)
	notEqual = b.NewCompare("!=", flag.Result(), zero.Result())
	deopt = b.NewDeoptimize(notEqual.Result(), nEnv)
	return flag, notEqual, deopt
}

func (b *BasicBlock) NewSuspendCheck(nEnv int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindSuspendCheck, Void)
	instr.canBeMoved = false
	instr.effects = Effects{MayDeopt: true}
	instr.env = NewEnvironment(instr, nEnv)
	b.appendInstruction(instr)
	return instr
}

func (b *BasicBlock) NewInvoke(resultType DataType, method string, args []*Value, nEnv int) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindInvoke, resultType)
	instr.canBeMoved = false
	instr.canThrow = true
	instr.aux = method
	instr.effects = Effects{Reads: ClassOpaque, Writes: ClassOpaque, MayThrow: true, MayDeopt: true}
	for _, a := range args {
		instr.addInput(a)
	}
	instr.env = NewEnvironment(instr, nEnv)
	b.appendInstruction(instr)
	return instr
}

// Terminators

func (b *BasicBlock) SetIf(cond *Value, trueBlock, falseBlock *BasicBlock) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindIf, Void)
	instr.addInput(cond)
	instr.successors = []*BasicBlock{trueBlock, falseBlock}
	b.appendInstruction(instr)
	g.ConnectBlocks(b, trueBlock)
	g.ConnectBlocks(b, falseBlock)
	return instr
}

func (b *BasicBlock) SetGoto(target *BasicBlock) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindGoto, Void)
	instr.successors = []*BasicBlock{target}
	b.appendInstruction(instr)
	g.ConnectBlocks(b, target)
	return instr
}

func (b *BasicBlock) SetReturn(value *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindReturn, Void)
	instr.addInput(value)
	b.appendInstruction(instr)
	g.ConnectBlocks(b, g.exit)
	return instr
}

func (b *BasicBlock) SetReturnVoid() *Instruction {
	g := b.graph
	instr := g.newInstruction(KindReturnVoid, Void)
	b.appendInstruction(instr)
	g.ConnectBlocks(b, g.exit)
	return instr
}

func (b *BasicBlock) SetThrow(exception *Value) *Instruction {
	g := b.graph
	instr := g.newInstruction(KindThrow, Void)
	instr.canThrow = true
	instr.addInput(exception)
	b.appendInstruction(instr)
	g.ConnectBlocks(b, g.exit)
	return instr
}

func (b *BasicBlock) SetExit() *Instruction {
	g := b.graph
	instr := g.newInstruction(KindExit, Void)
	b.appendInstruction(instr)
	return instr
}
