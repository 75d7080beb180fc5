package ssa

// HeapClass is a coarse alias class used by the cheap per-instruction
// side-effects summary (§4.2). Load-store analysis refines this into
// precise HeapLocations; the summary here only needs to answer "could this
// instruction's write ever alias that read" without a full alias query.
type HeapClass uint32

const (
	ClassArray HeapClass = 1 << iota
	ClassField
	ClassVector
	ClassOpaque // calls / anything analysis cannot resolve
)

const ClassAny HeapClass = ClassArray | ClassField | ClassVector | ClassOpaque

// Effects is the per-instruction side-effects summary: §4.2's
// (reads, writes, may_throw, may_deopt) tuple.
type Effects struct {
	Reads    HeapClass
	Writes   HeapClass
	MayThrow bool
	MayDeopt bool
}

// HasSideEffects mirrors the spec's derivation: writes ∪ may_throw ∪
// may_deopt ≠ ∅.
func (e Effects) HasSideEffects() bool {
	return e.Writes != 0 || e.MayThrow || e.MayDeopt
}

// Instruction is the tagged-variant node every pass operates on. Rather
// than one Go struct per Kind (which a closed 40-odd-member variant set
// would turn into a wall of near-identical boilerplate), payload fields are
// shared and interpreted according to Kind, the same shape the rest of the
// Go SSA-compiler corpus converges on independently.
type Instruction struct {
	id    InstrID
	kind  Kind
	typ   DataType
	block *BasicBlock

	// intrusive doubly linked list within Block's instruction list
	prev, next *Instruction

	result *Value   // nil when this instruction has no result
	inputs []*Value // ordered data inputs; use edges mirrored into each Value
	uses   []*Use   // use edges keyed by this instruction as user (parallel to inputs, same index)
	env    *Environment

	// capability bits (§3)
	canBeMoved  bool
	canThrow    bool
	isRemovable bool

	effects Effects

	// Kind-specific payload. Only the fields relevant to Kind are set; see
	// the accessor helpers below (Op, AuxInt, Aux, Successors, HeapLoc).
	opSym      string        // Compare/TypeConversion comparator or conversion name
	auxInt     int64         // lane width, base slot hint, topic count, vector VL...
	aux        any           // *HeapLocation cache, loop pointer, class name, method name, MemoryRegion, etc.
	successors []*BasicBlock // If/Goto/Switch targets, in if-true/if-false or case order
}

func (i *Instruction) ID() InstrID       { return i.id }
func (i *Instruction) Kind() Kind        { return i.kind }
func (i *Instruction) Type() DataType    { return i.typ }
func (i *Instruction) Block() *BasicBlock { return i.block }
func (i *Instruction) Result() *Value    { return i.result }
func (i *Instruction) Prev() *Instruction { return i.prev }
func (i *Instruction) Next() *Instruction { return i.next }

// Inputs returns the ordered data-use inputs. Callers must not mutate the
// returned slice directly; use ReplaceInput / the structural edit API.
func (i *Instruction) Inputs() []*Value { return i.inputs }

func (i *Instruction) InputAt(idx int) *Value { return i.inputs[idx] }

func (i *Instruction) Environment() *Environment { return i.env }

func (i *Instruction) CanBeMoved() bool     { return i.canBeMoved }
func (i *Instruction) CanThrow() bool       { return i.canThrow }
func (i *Instruction) IsRemovable() bool    { return i.isRemovable }
func (i *Instruction) IsControlFlow() bool  { return i.kind.IsControlFlow() }
func (i *Instruction) HasSideEffects() bool { return i.effects.HasSideEffects() }
func (i *Instruction) Effects() Effects     { return i.effects }

func (i *Instruction) SetEffects(e Effects) { i.effects = e }
func (i *Instruction) SetCanBeMoved(v bool) { i.canBeMoved = v }
func (i *Instruction) SetCanThrow(v bool)   { i.canThrow = v }

func (i *Instruction) Op() string      { return i.opSym }
func (i *Instruction) AuxInt() int64   { return i.auxInt }
func (i *Instruction) Aux() any        { return i.aux }
func (i *Instruction) SetAux(a any)    { i.aux = a }
func (i *Instruction) SetAuxInt(v int64) { i.auxInt = v }

// Successors returns the control-flow targets of a terminator, in
// if-true/if-false (or case) order; empty for non-terminators.
func (i *Instruction) Successors() []*BasicBlock { return i.successors }

func (i *Instruction) IsPhi() bool { return i.kind == KindPhi }

// newInstruction is the single constructor every builder helper in graph.go
// funnels through, so id assignment and default capability bits stay in one
// place.
func (g *Graph) newInstruction(kind Kind, typ DataType) *Instruction {
	instr := &Instruction{id: g.nextInstrID(), kind: kind, typ: typ}
	if typ != Void {
		instr.result = &Value{id: g.nextValueID(), typ: typ, def: instr}
	}
	return instr
}

// addInput appends val as a new data input, linking the use edge both ways.
func (i *Instruction) addInput(val *Value) {
	idx := len(i.inputs)
	i.inputs = append(i.inputs, val)
	use := &Use{Value: val, User: i, Index: idx}
	i.uses = append(i.uses, use)
	if val != nil {
		val.addUse(use)
	}
}

// ReplaceInput rewrites input idx to newVal, unlinking the old use edge and
// linking the new one. Both values must be type-compatible with the slot;
// callers are expected to have checked this (mismatches are a structural
// bug, consistent with §4.1's ReplaceWith contract).
func (i *Instruction) ReplaceInput(idx int, newVal *Value) {
	old := i.inputs[idx]
	if old != nil {
		old.removeUse(i.uses[idx])
	}
	i.inputs[idx] = newVal
	use := &Use{Value: newVal, User: i, Index: idx}
	i.uses[idx] = use
	if newVal != nil {
		newVal.addUse(use)
	}
}

// unlinkInputs detaches every input use edge, leaving the instruction's
// input list untouched (used right before the instruction itself is
// detached from its block).
func (i *Instruction) unlinkInputs() {
	for idx, val := range i.inputs {
		if val != nil {
			val.removeUse(i.uses[idx])
		}
	}
	if i.env != nil {
		for idx := 0; idx < i.env.Len(); idx++ {
			i.env.SetAt(idx, nil)
		}
	}
}
