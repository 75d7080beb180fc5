package ssa

// Graph is the arena-owning SSA control-flow graph a single optimizer
// invocation mutates. One Graph belongs to exactly one worker goroutine for
// the duration of a compilation (§5); nothing here is safe to share across
// goroutines without external synchronization.
type Graph struct {
	entry *BasicBlock
	exit  *BasicBlock
	blocks []*BasicBlock

	constants map[constKey]*Value

	blockCounter       BlockID
	instrCounter       InstrID
	valueCounter       ValueID

	// version is bumped by every structural mutation (add/remove block,
	// add/remove/replace/move instruction, edge rewiring). Analyses cache
	// the version they were computed at and recompute lazily when stale.
	version uint64

	rpoCache    []*BasicBlock
	rpoVersion  uint64
	linearCache []*BasicBlock
	linearVersion uint64
	domVersion  uint64
	pdomVersion uint64
	loopVersion uint64

	HasLoops            bool
	HasIrreducibleLoops bool
	HasTryCatch         bool
	HasCHAGuards        bool
	HasSIMD             bool

	// Debuggable marks a method compiled with a live debugger attached: when
	// set, environment (deopt) uses of an allocation count as escapes for
	// partial LSE, since a debugger can observe the object through the
	// materialized deopt state at any safepoint.
	Debuggable bool

	loopRoots []*LoopNode // top-level loop forest, in linearization order
}

type constKey struct {
	typ DataType
	val int64
	isNull bool
}

// NewGraph creates an empty graph with an entry and an exit block and no
// edge between them. Callers build the body from the entry; a return or
// throw terminator links its block to the exit.
func NewGraph() *Graph {
	g := &Graph{constants: make(map[constKey]*Value)}
	g.entry = g.NewBlock()
	g.exit = g.NewBlock()
	return g
}

func (g *Graph) Entry() *BasicBlock { return g.entry }
func (g *Graph) Exit() *BasicBlock  { return g.exit }
func (g *Graph) Blocks() []*BasicBlock { return g.blocks }
func (g *Graph) Version() uint64    { return g.version }

// touch bumps the version token; every structural mutation must call this.
func (g *Graph) touch() { g.version++ }

func (g *Graph) nextInstrID() InstrID {
	id := g.instrCounter
	g.instrCounter++
	return id
}

func (g *Graph) nextValueID() ValueID {
	id := g.valueCounter
	g.valueCounter++
	return id
}

// NewBlock allocates a fresh block with a dense id and registers it in the
// graph. Edges must be wired separately via ConnectBlocks.
func (g *Graph) NewBlock() *BasicBlock {
	b := &BasicBlock{id: g.blockCounter, graph: g}
	g.blockCounter++
	g.blocks = append(g.blocks, b)
	g.touch()
	return b
}

// ConnectBlocks adds a from->to control-flow edge. Order of calls on a
// given `from` determines successor order (if-true first, if-false
// second), and order of calls on a given `to` determines which phi input
// slot a predecessor owns.
func (g *Graph) ConnectBlocks(from, to *BasicBlock) {
	from.addSuccessor(to)
	g.touch()
}

// internConstant canonicalizes integer/null constants so repeated literals
// share one Value, matching §3's "canonicalized integer/null constants".
func (g *Graph) internConstant(typ DataType, val int64, isNull bool) (*Value, bool) {
	key := constKey{typ: typ, val: val, isNull: isNull}
	v, ok := g.constants[key]
	return v, ok
}

func (g *Graph) registerConstant(typ DataType, val int64, isNull bool, v *Value) {
	g.constants[constKey{typ: typ, val: val, isNull: isNull}] = v
}

// Dominates reports whether a dominates b: every CFG path from entry to b
// passes through a. Requires BuildDominators to have been run since the
// last structural mutation.
func (a *BasicBlock) Dominates(b *BasicBlock) bool {
	if a == b {
		return true
	}
	for cur := b.dom; cur != nil; cur = cur.dom {
		if cur == a {
			return true
		}
		if cur.dom == cur {
			break // the entry is its own immediate dominator
		}
	}
	return false
}

// PostDominates reports whether a post-dominates b: every CFG path from b
// to exit passes through a. Requires BuildPostDominators.
func (a *BasicBlock) PostDominates(b *BasicBlock) bool {
	if a == b {
		return true
	}
	for cur := b.ipdom; cur != nil; cur = cur.ipdom {
		if cur == a {
			return true
		}
		if cur.ipdom == cur {
			break // the exit is its own immediate post-dominator
		}
	}
	return false
}

// StrictlyDominates is Dominates minus reflexivity; used by placement logic
// that needs to distinguish "is the earliest position" from "comes before".
func (a *Instruction) StrictlyDominates(b *Instruction) bool {
	if a == b {
		return false
	}
	if a.block != b.block {
		return a.block.Dominates(b.block)
	}
	for cur := a; cur != nil; cur = cur.next {
		if cur == b {
			return true
		}
	}
	return false
}
