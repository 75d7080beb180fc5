package ssa

// BasicBlock is a maximal straight-line instruction sequence terminated by
// exactly one control-flow instruction.
type BasicBlock struct {
	id    BlockID
	graph *Graph

	preds []*BasicBlock
	succs []*BasicBlock

	phis  []*Instruction // Phi instructions, always at block head
	first *Instruction   // head of the intrusive instruction list (post-phis)
	last  *Instruction   // tail; always the terminator once the block is well-formed

	dom         *BasicBlock   // immediate dominator
	domChildren []*BasicBlock // blocks immediately dominated by this one
	ipdom       *BasicBlock   // immediate post-dominator, nil until computed

	loop *LoopInfo // nil if this block is not part of any loop
}

func (b *BasicBlock) ID() BlockID        { return b.id }
func (b *BasicBlock) Graph() *Graph      { return b.graph }
func (b *BasicBlock) Predecessors() []*BasicBlock { return b.preds }
func (b *BasicBlock) Successors() []*BasicBlock   { return b.succs }
func (b *BasicBlock) Phis() []*Instruction        { return b.phis }
func (b *BasicBlock) Dominator() *BasicBlock      { return b.dom }
func (b *BasicBlock) DominatedChildren() []*BasicBlock { return b.domChildren }
func (b *BasicBlock) ImmediatePostDominator() *BasicBlock { return b.ipdom }
func (b *BasicBlock) Loop() *LoopInfo             { return b.loop }
func (b *BasicBlock) InLoop() bool                { return b.loop != nil }

// Terminator returns the block's control-flow instruction, or nil if the
// block has not been terminated yet (only legal transiently during
// construction).
func (b *BasicBlock) Terminator() *Instruction {
	if b.last == nil || !b.last.IsControlFlow() {
		return nil
	}
	return b.last
}

// Instructions returns the non-phi instruction list in order, head to tail
// (terminator last). Allocates a slice; hot paths that only need to walk
// forward should use First()/Next() directly.
func (b *BasicBlock) Instructions() []*Instruction {
	var out []*Instruction
	for i := b.first; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

func (b *BasicBlock) First() *Instruction { return b.first }
func (b *BasicBlock) Last() *Instruction  { return b.last }

// appendInstruction links instr at the tail of the instruction list. Used
// by the builder during initial construction; structural edits afterward
// go through InsertBefore/Remove/MoveBefore in edits.go.
func (b *BasicBlock) appendInstruction(instr *Instruction) {
	instr.block = b
	if b.last == nil {
		b.first = instr
		b.last = instr
		return
	}
	instr.prev = b.last
	b.last.next = instr
	b.last = instr
}

func (b *BasicBlock) appendPhi(phi *Instruction) {
	phi.block = b
	b.phis = append(b.phis, phi)
}

// addSuccessor/addPredecessor maintain the edge lists; order matters (it
// encodes if-true/if-false and phi-input-to-predecessor correspondence), so
// callers append in the order successors/predecessors are discovered.
func (b *BasicBlock) addSuccessor(s *BasicBlock) {
	b.succs = append(b.succs, s)
	s.preds = append(s.preds, b)
}

// PredIndex returns the index of pred within b's predecessor list, i.e.
// which phi input slot corresponds to control flow arriving from pred.
// Returns -1 if pred is not (or no longer) a predecessor.
func (b *BasicBlock) PredIndex(pred *BasicBlock) int { return b.predIndex(pred) }

// predIndex returns the index of pred within b's predecessor list, used to
// find which phi input corresponds to an edge.
func (b *BasicBlock) predIndex(pred *BasicBlock) int {
	for idx, p := range b.preds {
		if p == pred {
			return idx
		}
	}
	return -1
}

// replaceSuccessor rewrites a single successor edge in place (both this
// block's successor list and the old/new target's predecessor lists),
// preserving order and position. Used by edge splitting and block removal.
func (b *BasicBlock) replaceSuccessor(oldS, newS *BasicBlock) {
	for idx, s := range b.succs {
		if s == oldS {
			b.succs[idx] = newS
			oldS.removePredecessor(b)
			newS.preds = append(newS.preds, b)
			return
		}
	}
}

func (b *BasicBlock) removePredecessor(pred *BasicBlock) {
	for idx, p := range b.preds {
		if p == pred {
			b.preds = append(b.preds[:idx], b.preds[idx+1:]...)
			return
		}
	}
}

func (b *BasicBlock) removeSuccessor(succ *BasicBlock) {
	for idx, s := range b.succs {
		if s == succ {
			b.succs = append(b.succs[:idx], b.succs[idx+1:]...)
			return
		}
	}
}
