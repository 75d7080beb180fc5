package ssa

import "fmt"

// StructuralError reports programmer misuse of the structural edit API
// (§7: "structural misuse ... aborts compilation of the method"). Passes
// never construct this directly; it is raised by the kernel and expected
// to propagate as a plain Go error up to the pass manager.
type StructuralError struct {
	Op      string
	Message string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("ssa: structural misuse in %s: %s", e.Op, e.Message)
}

func structuralErr(op, format string, args ...any) error {
	return &StructuralError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// InsertBefore links newInstr immediately before anchor in anchor's block.
// newInstr must not already belong to a block.
func InsertBefore(anchor, newInstr *Instruction) error {
	if anchor.block == nil {
		return structuralErr("insert_before", "anchor is not attached to a block")
	}
	if newInstr.block != nil {
		return structuralErr("insert_before", "instruction already belongs to a block")
	}
	b := anchor.block
	newInstr.block = b
	newInstr.prev = anchor.prev
	newInstr.next = anchor
	if anchor.prev != nil {
		anchor.prev.next = newInstr
	} else {
		b.first = newInstr
	}
	anchor.prev = newInstr
	b.graph.touch()
	return nil
}

// InsertAfter links newInstr immediately after anchor.
func InsertAfter(anchor, newInstr *Instruction) error {
	if anchor.block == nil {
		return structuralErr("insert_after", "anchor is not attached to a block")
	}
	if newInstr.block != nil {
		return structuralErr("insert_after", "instruction already belongs to a block")
	}
	b := anchor.block
	newInstr.block = b
	newInstr.prev = anchor
	newInstr.next = anchor.next
	if anchor.next != nil {
		anchor.next.prev = newInstr
	} else {
		b.last = newInstr
	}
	anchor.next = newInstr
	b.graph.touch()
	return nil
}

// ReplaceWith redirects every use (data and environment) of old to new and
// detaches old from its block. old and new must agree on DataType.
func ReplaceWith(old, new *Instruction) error {
	if old.typ != new.typ {
		return structuralErr("replace_with", "type mismatch: %s vs %s", old.typ, new.typ)
	}
	if old.result != nil {
		// Redirect data uses.
		for _, u := range append([]*Use(nil), old.result.uses...) {
			u.User.inputs[u.Index] = new.result
			u.Value = new.result
			new.result.addUse(u)
		}
		old.result.uses = nil
		// Redirect environment uses.
		for _, e := range append([]*EnvUse(nil), old.result.env...) {
			e.Env.entries[e.Index] = e
			e.Value = new.result
			new.result.addEnvUse(e)
		}
		old.result.env = nil
	}
	return removeFromBlock(old)
}

// Remove detaches instr from its block. instr must have no remaining users
// (callers are expected to have rerouted them first, e.g. via ReplaceWith),
// and must not be the sole terminator of its block.
func Remove(instr *Instruction) error {
	if instr.result != nil && instr.result.HasUsers() {
		return structuralErr("remove", "instruction still has users")
	}
	if instr.IsControlFlow() {
		return structuralErr("remove", "cannot remove a block's terminator without a replacement")
	}
	return removeFromBlock(instr)
}

// removeFromBlock unlinks instr's input/env edges and splices it out of
// its block's instruction (or phi) list.
func removeFromBlock(instr *Instruction) error {
	b := instr.block
	if b == nil {
		return structuralErr("remove", "instruction is not attached to a block")
	}
	instr.unlinkInputs()

	if instr.IsPhi() {
		for idx, p := range b.phis {
			if p == instr {
				b.phis = append(b.phis[:idx], b.phis[idx+1:]...)
				break
			}
		}
	} else {
		if instr.prev != nil {
			instr.prev.next = instr.next
		} else {
			b.first = instr.next
		}
		if instr.next != nil {
			instr.next.prev = instr.prev
		} else {
			b.last = instr.prev
		}
		instr.prev = nil
		instr.next = nil
	}
	instr.block = nil
	b.graph.touch()
	return nil
}

// MoveBefore relocates instr to sit immediately before anchor, possibly in
// a different block. If ensureSafety is set, the caller is asking the
// kernel to validate that every input still dominates the new location;
// callers that have already proven this (code sinking, LICM) may pass
// false to skip the O(uses) check.
func MoveBefore(instr, anchor *Instruction, ensureSafety bool) error {
	if instr == anchor {
		return structuralErr("move_before", "instruction cannot move before itself")
	}
	if ensureSafety {
		for _, in := range instr.inputs {
			if in == nil {
				continue
			}
			if !in.def.block.Dominates(anchor.block) && in.def.block != anchor.block {
				return structuralErr("move_before", "input does not dominate target location")
			}
		}
	}
	oldBlock := instr.block
	if err := removeFromBlockForMove(instr); err != nil {
		return err
	}
	if err := InsertBefore(anchor, instr); err != nil {
		return err
	}
	_ = oldBlock
	return nil
}

// removeFromBlockForMove splices instr out of its current block without
// unlinking its use edges (unlike Remove, a move keeps the instruction
// alive with all its inputs/users intact).
func removeFromBlockForMove(instr *Instruction) error {
	b := instr.block
	if b == nil {
		return structuralErr("move_before", "instruction is not attached to a block")
	}
	if instr.IsPhi() {
		return structuralErr("move_before", "phis cannot be moved")
	}
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		b.first = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		b.last = instr.prev
	}
	instr.prev = nil
	instr.next = nil
	instr.block = nil
	b.graph.touch()
	return nil
}

// InsertConstantBefore returns the canonical constant for (typ, val,
// isNull), inserting it immediately before anchor if this is the first
// time it is needed. Unlike BasicBlock.NewConstant (which appends to the
// tail of a block still under construction), this is safe to call on a
// fully-built block whose terminator is already in place — the exact
// situation optimization passes synthesizing zero/null defaults run in.
func (g *Graph) InsertConstantBefore(anchor *Instruction, typ DataType, val int64, isNull bool) *Instruction {
	if existing, ok := g.internConstant(typ, val, isNull); ok {
		return existing.def
	}
	instr := g.newInstruction(KindConstant, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.auxInt = val
	instr.aux = isNull
	_ = InsertBefore(anchor, instr)
	g.registerConstant(typ, val, isNull, instr.result)
	return instr
}

// InsertNewInstanceBefore synthesizes an allocation immediately before
// anchor. Used by partial LSE to materialize an object on an escape
// frontier, where the anchor block already has a terminator in place.
func (g *Graph) InsertNewInstanceBefore(anchor *Instruction, className string) *Instruction {
	instr := g.newInstruction(KindNewInstance, Reference)
	instr.canBeMoved = true
	instr.canThrow = true
	instr.isRemovable = true
	instr.aux = className
	instr.effects = Effects{MayThrow: true}
	_ = InsertBefore(anchor, instr)
	return instr
}

// InsertInstanceFieldSetBefore synthesizes a field store immediately before
// anchor, replaying one entry of an allocation's field-set history onto a
// materialized object.
func (g *Graph) InsertInstanceFieldSetBefore(anchor *Instruction, object, value *Value, fieldID int, volatile bool) *Instruction {
	instr := g.newInstruction(KindInstanceFieldSet, Void)
	instr.canBeMoved = !volatile
	instr.auxInt = int64(fieldID)
	instr.aux = volatile
	instr.addInput(object)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassField}
	_ = InsertBefore(anchor, instr)
	return instr
}

// InsertPredicatedGetBefore/InsertPredicatedSetBefore mirror
// BasicBlock.NewPredicatedGet/NewPredicatedSet but splice before an anchor
// rather than appending, for the same post-construction reason
// InsertConstantBefore exists.
func (g *Graph) InsertPredicatedGetBefore(anchor *Instruction, typ DataType, ref, fallback *Value, fieldID int) *Instruction {
	instr := g.newInstruction(KindPredicatedGet, typ)
	instr.canBeMoved = false
	instr.auxInt = int64(fieldID)
	instr.addInput(ref)
	instr.addInput(fallback)
	instr.effects = Effects{Reads: ClassField}
	_ = InsertBefore(anchor, instr)
	return instr
}

func (g *Graph) InsertPredicatedSetBefore(anchor *Instruction, ref, value *Value, fieldID int) *Instruction {
	instr := g.newInstruction(KindPredicatedSet, Void)
	instr.canBeMoved = false
	instr.auxInt = int64(fieldID)
	instr.addInput(ref)
	instr.addInput(value)
	instr.effects = Effects{Writes: ClassField}
	_ = InsertBefore(anchor, instr)
	return instr
}

// InsertBinaryBefore synthesizes a binary arithmetic instruction immediately
// before anchor, the InsertBefore-based counterpart of newBinary used when
// the target block's terminator is already in place — the situation
// induction-variable trip-count/last-value synthesis runs in, since it
// always emits into a loop's pre-header, which already ends in a Goto.
func (g *Graph) InsertBinaryBefore(anchor *Instruction, kind Kind, typ DataType, op string, left, right *Value) *Instruction {
	instr := g.newInstruction(kind, typ)
	instr.canBeMoved = true
	instr.isRemovable = true
	instr.opSym = op
	instr.addInput(left)
	instr.addInput(right)
	_ = InsertBefore(anchor, instr)
	return instr
}

// SplitCriticalEdge inserts a new block along pred->succ (which must be a
// critical edge: pred has >1 successor and succ has >1 predecessor),
// rewires the edge through it with a Goto, and adjusts succ's phi inputs to
// flow through the new block instead. Returns the inserted block.
func (g *Graph) SplitCriticalEdge(pred, succ *BasicBlock) (*BasicBlock, error) {
	if len(pred.succs) <= 1 || len(succ.preds) <= 1 {
		return nil, structuralErr("split_critical_edge", "edge is not critical")
	}
	predIdx := succ.predIndex(pred)
	if predIdx < 0 {
		return nil, structuralErr("split_critical_edge", "pred is not a predecessor of succ")
	}

	mid := g.NewBlock()
	pred.replaceSuccessor(succ, mid)
	// Fix up pred's terminator successor list to point at mid.
	term := pred.Terminator()
	for i, s := range term.successors {
		if s == succ {
			term.successors[i] = mid
		}
	}
	mid.SetGoto(succ)
	// replaceSuccessor dropped pred from succ's predecessor list and SetGoto
	// appended mid at its end; move mid into pred's old slot predIdx so
	// existing phi inputs (keyed by index) remain valid.
	succ.preds = succ.preds[:len(succ.preds)-1]
	succ.preds = append(succ.preds[:predIdx], append([]*BasicBlock{mid}, succ.preds[predIdx:]...)...)
	g.touch()
	return mid, nil
}

// MergeWithUniqueSuccessor splices s, b's sole successor, into b when b is
// s's sole predecessor: s's phis (necessarily single-input, since s has
// exactly one predecessor) resolve to that one input, s's instructions
// (including its terminator) move into b in order, and s is deleted. Used
// by loop block simplification (§4.4.1) to collapse straight-line control
// flow a prior edit left behind.
func (g *Graph) MergeWithUniqueSuccessor(b *BasicBlock) error {
	if len(b.succs) != 1 {
		return structuralErr("merge_with_unique_successor", "block does not have exactly one successor")
	}
	s := b.succs[0]
	if s == b {
		return structuralErr("merge_with_unique_successor", "self-loop")
	}
	if len(s.preds) != 1 || s.preds[0] != b {
		return structuralErr("merge_with_unique_successor", "successor does not have b as its sole predecessor")
	}
	bTerm := b.Terminator()
	if bTerm == nil || bTerm.kind != KindGoto {
		return structuralErr("merge_with_unique_successor", "predecessor is not terminated by a goto")
	}

	for _, phi := range append([]*Instruction(nil), s.phis...) {
		input := phi.inputs[0]
		if phi.result != nil {
			for _, u := range append([]*Use(nil), phi.result.uses...) {
				u.User.ReplaceInput(u.Index, input)
			}
			for _, e := range append([]*EnvUse(nil), phi.result.env...) {
				e.Env.SetAt(e.Index, input)
			}
		}
		if input != nil {
			input.removeUse(phi.uses[0])
		}
	}
	s.phis = nil

	// Splice s's body (including its terminator) into b, in order, right
	// before b's now-redundant Goto.
	for cur := s.first; cur != nil; {
		next := cur.next
		cur.prev, cur.next = nil, nil
		cur.block = nil
		_ = InsertBefore(bTerm, cur)
		cur = next
	}
	s.first, s.last = nil, nil

	// Drop the old Goto; the instruction moved in just before it (s's own
	// terminator) becomes b's new terminator.
	if bTerm.prev != nil {
		bTerm.prev.next = nil
		b.last = bTerm.prev
	} else {
		b.first, b.last = nil, nil
	}
	bTerm.block = nil

	// b inherits s's successor edges; s's successors now see b as their
	// predecessor instead of s.
	b.succs = s.succs
	for _, succ := range b.succs {
		for idx, p := range succ.preds {
			if p == s {
				succ.preds[idx] = b
			}
		}
	}
	s.succs = nil

	for idx, blk := range g.blocks {
		if blk == s {
			g.blocks = append(g.blocks[:idx], g.blocks[idx+1:]...)
			break
		}
	}
	g.touch()
	return nil
}

// ReplaceTerminatorWithGoto replaces b's current terminator with a plain
// Goto to target, used when a branch becomes provably irrelevant (e.g.
// bypassing a trivial empty if-diamond, §4.4.1). Every successor of b other
// than target loses b as a predecessor; target gains b as one if it is not
// already among its predecessors.
func (g *Graph) ReplaceTerminatorWithGoto(b *BasicBlock, target *BasicBlock) error {
	old := b.Terminator()
	if old == nil {
		return structuralErr("replace_terminator_with_goto", "block has no terminator")
	}
	for _, s := range append([]*BasicBlock(nil), b.succs...) {
		if s != target {
			s.removePredecessor(b)
		}
	}
	old.unlinkInputs()
	if old.prev != nil {
		old.prev.next = nil
		b.last = old.prev
	} else {
		b.first, b.last = nil, nil
	}
	old.block = nil

	instr := g.newInstruction(KindGoto, Void)
	instr.successors = []*BasicBlock{target}
	b.appendInstruction(instr)
	alreadyPred := false
	for _, p := range target.preds {
		if p == b {
			alreadyPred = true
			break
		}
	}
	if !alreadyPred {
		target.preds = append(target.preds, b)
	}
	b.succs = []*BasicBlock{target}
	g.touch()
	return nil
}

// DeleteUnreachableBlock forcibly removes b from the graph without
// requiring its predecessor list to be empty first, for bulk-deleting a
// region of blocks that only reference each other (e.g. a provably
// zero-trip loop body, §4.4.1). Unlike DisconnectAndDelete, callers must
// guarantee nothing outside the deleted set still reaches, or is reached
// by, b.
func (g *Graph) DeleteUnreachableBlock(b *BasicBlock) {
	for _, p := range append([]*BasicBlock(nil), b.preds...) {
		p.removeSuccessor(b)
	}
	for _, s := range append([]*BasicBlock(nil), b.succs...) {
		s.removePredecessor(b)
	}
	b.preds, b.succs = nil, nil
	for _, p := range b.phis {
		p.unlinkInputs()
	}
	b.phis = nil
	for i := b.first; i != nil; {
		next := i.next
		i.unlinkInputs()
		i = next
	}
	b.first, b.last = nil, nil
	for idx, blk := range g.blocks {
		if blk == b {
			g.blocks = append(g.blocks[:idx], g.blocks[idx+1:]...)
			break
		}
	}
	g.touch()
}

// DisconnectAndDelete removes block from the graph: rewires its
// predecessors' successor edges away from it (callers must have already
// redirected control flow, e.g. a Goto rewritten to skip this block),
// drops its phis, and leaves dominator/loop info stale (callers must
// rebuild after a batch of such deletions).
func (g *Graph) DisconnectAndDelete(b *BasicBlock) error {
	if len(b.preds) != 0 {
		return structuralErr("disconnect_and_delete", "block still has predecessors")
	}
	for _, s := range append([]*BasicBlock(nil), b.succs...) {
		s.removePredecessor(b)
	}
	b.succs = nil
	for _, p := range b.phis {
		p.unlinkInputs()
	}
	b.phis = nil
	for i := b.first; i != nil; {
		next := i.next
		i.unlinkInputs()
		i = next
	}
	b.first, b.last = nil, nil
	for idx, blk := range g.blocks {
		if blk == b {
			g.blocks = append(g.blocks[:idx], g.blocks[idx+1:]...)
			break
		}
	}
	g.touch()
	return nil
}
