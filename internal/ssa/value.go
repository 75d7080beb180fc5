package ssa

// Value is the SSA result produced by an Instruction. Not every
// Instruction produces one (stores, gotos, throws do not); Instruction.Result
// is nil in that case.
type Value struct {
	id   ValueID
	typ  DataType
	def  *Instruction
	uses []*Use
	env  []*EnvUse
}

// Use is a data-use edge: User consumes Value at input position Index.
// Use edges are bidirectional: the edge is reachable both from the
// Instruction's Inputs list and from the Value's Uses list, and the
// structural edit API keeps both sides consistent.
type Use struct {
	Value *Value
	User  *Instruction
	Index int
}

// EnvUse pins a Value for deoptimization materialization without counting
// as a data use. Kept as a distinct edge class (per the IR kernel's design
// notes) so escape analysis can tell data uses from deopt uses apart cheaply.
type EnvUse struct {
	Value *Value
	Env   *Environment
	Index int
}

func (v *Value) ID() ValueID    { return v.id }
func (v *Value) Type() DataType { return v.typ }
func (v *Value) Def() *Instruction {
	return v.def
}

// Uses returns the data-use edges referencing this value. Callers must not
// mutate the returned slice.
func (v *Value) Uses() []*Use { return v.uses }

// EnvUses returns the environment (deopt) edges referencing this value.
func (v *Value) EnvUses() []*EnvUse { return v.env }

// HasUsers reports whether any data or environment use still references
// this value.
func (v *Value) HasUsers() bool { return len(v.uses) > 0 || len(v.env) > 0 }

func (v *Value) addUse(u *Use)       { v.uses = append(v.uses, u) }
func (v *Value) addEnvUse(e *EnvUse) { v.env = append(v.env, e) }

func (v *Value) removeUse(u *Use) {
	for i, x := range v.uses {
		if x == u {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

func (v *Value) removeEnvUse(e *EnvUse) {
	for i, x := range v.env {
		if x == e {
			v.env = append(v.env[:i], v.env[i+1:]...)
			return
		}
	}
}

// Environment is the ordered list of pinned values attached to an
// instruction that may deoptimize or suspend (Deoptimize, SuspendCheck,
// Invoke). A nil entry is a hole: the original local had no live value at
// that point.
type Environment struct {
	Owner   *Instruction
	Holder  *Instruction // the instruction carrying this environment (may equal Owner)
	entries []*EnvUse
}

// NewEnvironment creates an environment with nEntries holes, all attached
// to owner.
func NewEnvironment(owner *Instruction, nEntries int) *Environment {
	return &Environment{Owner: owner, Holder: owner, entries: make([]*EnvUse, nEntries)}
}

// Len returns the number of environment slots.
func (e *Environment) Len() int { return len(e.entries) }

// At returns the value pinned at index i, or nil if the slot is a hole.
func (e *Environment) At(i int) *Value {
	if e.entries[i] == nil {
		return nil
	}
	return e.entries[i].Value
}

// SetAt pins val at index i, replacing whatever was there (unlinking the
// old use edge first).
func (e *Environment) SetAt(i int, val *Value) {
	if e.entries[i] != nil {
		e.entries[i].Value.removeEnvUse(e.entries[i])
		e.entries[i] = nil
	}
	if val == nil {
		return
	}
	use := &EnvUse{Value: val, Env: e, Index: i}
	val.addEnvUse(use)
	e.entries[i] = use
}

// Values returns the non-hole pinned values, in slot order.
func (e *Environment) Values() []*Value {
	var out []*Value
	for _, u := range e.entries {
		if u != nil {
			out = append(out, u.Value)
		}
	}
	return out
}
