package ssa

// LoopInfo describes one natural loop: single entry through Header, a set
// of member blocks, the unique pre-header, the back-edge sources, and the
// SuspendCheck guarding the header. Nested loops form a forest via Node.
type LoopInfo struct {
	Header     *BasicBlock
	PreHeader  *BasicBlock
	Members    map[*BasicBlock]bool
	BackEdges  []*BasicBlock // blocks with a back edge into Header
	Suspend    *Instruction  // the header's SuspendCheck, if present
	Parent     *LoopInfo     // enclosing loop, nil at the forest root
	Node       *LoopNode
}

// IsDefinedOutOfLoop reports whether val's defining block lies outside
// this loop (§4.2's `is_defined_out_of_loop`).
func (l *LoopInfo) IsDefinedOutOfLoop(val *Value) bool {
	if val == nil {
		return true
	}
	return !l.Members[val.def.block]
}

// Depth returns the loop nesting depth (1 for an outermost loop).
func (l *LoopInfo) Depth() int {
	d := 1
	for p := l.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// LoopNode is a tree node in the loop hierarchy, keyed by LoopInfo, with
// outer/inner/previous/next edges forming the nested-and-sibling forest in
// linearization order (§3's LoopNode).
type LoopNode struct {
	Loop  *LoopInfo
	Outer *LoopNode
	Inner []*LoopNode
}

// BuildLoops detects natural loops via dominance-checked back edges,
// builds the membership closure for each, creates pre-headers, and
// assembles the loop forest. If a cycle is found whose head is not
// dominated by a single block reachable along every path into the cycle
// (an irreducible loop), Graph.HasIrreducibleLoops is set and loop
// optimization must not run (§3 invariant: "no irreducible loops are
// passed to optimization").
func (g *Graph) BuildLoops() error {
	if g.domVersion != g.version {
		if err := g.BuildDominators(); err != nil {
			return err
		}
	}
	for _, b := range g.blocks {
		b.loop = nil
	}
	g.HasIrreducibleLoops = false
	g.HasLoops = false
	g.loopRoots = nil

	rpo := g.ReversePostOrder()
	rpoIndex := make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b] = i
	}
	headers := make(map[*BasicBlock]*LoopInfo)
	var orderedHeaders []*BasicBlock

	for _, b := range rpo {
		for _, s := range b.succs {
			if s.Dominates(b) {
				// Natural back edge b -> s.
				li, ok := headers[s]
				if !ok {
					li = &LoopInfo{Header: s, Members: map[*BasicBlock]bool{s: true}, Suspend: findSuspendCheck(s)}
					headers[s] = li
					orderedHeaders = append(orderedHeaders, s)
				}
				li.BackEdges = append(li.BackEdges, b)
			} else if rpoIndex[s] <= rpoIndex[b] && g.reaches(s, b) {
				// A retreating edge whose target s can reach b but doesn't
				// dominate it: a cycle through s and b with no single
				// dominating header. Irreducible.
				g.HasIrreducibleLoops = true
			}
		}
	}
	if g.HasIrreducibleLoops {
		return nil
	}

	for _, h := range orderedHeaders {
		li := headers[h]
		for _, back := range li.BackEdges {
			g.addLoopBody(li, back)
		}
	}

	// Assign each member its innermost enclosing loop: the smallest member
	// set among all loops containing it.
	for _, hi := range orderedHeaders {
		li := headers[hi]
		for m := range li.Members {
			if m.loop == nil || len(li.Members) < len(m.loop.Members) {
				m.loop = li
			}
		}
	}
	for _, hi := range orderedHeaders {
		li := headers[hi]
		for _, other := range orderedHeaders {
			oli := headers[other]
			if oli == li {
				continue
			}
			if li.Members[oli.Header] && oli.Header != li.Header {
				if oli.Parent == nil || li.Members[oli.Parent.Header] {
					oli.Parent = li
				}
			}
		}
	}

	for _, hi := range orderedHeaders {
		li := headers[hi]
		li.PreHeader = g.ensurePreHeader(li)
	}

	g.buildLoopForest(orderedHeaders, headers)
	g.HasLoops = len(orderedHeaders) > 0
	g.loopVersion = g.version
	return nil
}

// CopyEnvironmentFromWithLoopPhiAdjustment fills dst's environment from src,
// substituting each pinned value that is a phi of this loop's header with
// that phi's incoming value from the pre-header. A value sitting at a
// program point outside the loop (a pre-header, a hoisted guard) cannot
// reference the header phi directly since the phi has no definition there
// yet; every other pinned value is assumed to already dominate the
// pre-header (loop-invariant, or defined before the loop) and is copied
// unchanged. Ported from HInstruction::CopyEnvironmentFromWithLoopPhiAdjustment
// in cha_guard_optimization.cc's caller.
func (l *LoopInfo) CopyEnvironmentFromWithLoopPhiAdjustment(dst *Instruction, src *Environment) {
	if src == nil {
		return
	}
	dstEnv := dst.Environment()
	preHeaderIdx := l.Header.PredIndex(l.PreHeader)
	for i := 0; i < src.Len(); i++ {
		val := src.At(i)
		if val == nil {
			continue
		}
		if val.Def().IsPhi() && val.Def().Block() == l.Header && preHeaderIdx >= 0 {
			val = val.Def().InputAt(preHeaderIdx)
		}
		dstEnv.SetAt(i, val)
	}
}

// findSuspendCheck returns the header's SuspendCheck instruction, if it has
// one. Header compilation always places it first, but the search doesn't
// assume that.
func findSuspendCheck(header *BasicBlock) *Instruction {
	for _, instr := range header.Instructions() {
		if instr.Kind() == KindSuspendCheck {
			return instr
		}
	}
	return nil
}

// reaches is a bounded DFS reachability check used only for irreducible
// loop detection (small graphs; optimizer operates method-at-a-time).
func (g *Graph) reaches(from, to *BasicBlock) bool {
	if from == to {
		return true
	}
	visited := map[*BasicBlock]bool{from: true}
	stack := []*BasicBlock{from}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.succs {
			if s == to {
				return true
			}
			if !visited[s] {
				visited[s] = true
				stack = append(stack, s)
			}
		}
	}
	return false
}

// addLoopBody adds every block that can reach `back` without passing
// through the loop header to li.Members (standard natural-loop body
// closure via backward traversal over predecessors).
func (g *Graph) addLoopBody(li *LoopInfo, back *BasicBlock) {
	if li.Members[back] {
		return
	}
	stack := []*BasicBlock{back}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if li.Members[b] {
			continue
		}
		li.Members[b] = true
		for _, p := range b.preds {
			if p != li.Header {
				stack = append(stack, p)
			}
		}
	}
}

// ensurePreHeader returns the loop's unique pre-header, splitting the
// entry edge into the header if more than one non-back-edge predecessor
// feeds it (a pre-header must have exactly one successor: the header).
func (g *Graph) ensurePreHeader(li *LoopInfo) *BasicBlock {
	var outside []*BasicBlock
	for _, p := range li.Header.preds {
		if !li.Members[p] {
			outside = append(outside, p)
		}
	}
	if len(outside) == 1 && len(outside[0].succs) == 1 {
		return outside[0]
	}
	// Synthesize a pre-header: a fresh block that all outside predecessors
	// are redirected through via a Goto into the header.
	ph := g.NewBlock()
	ph.SetGoto(li.Header)
	for _, p := range outside {
		idx := li.Header.predIndex(p)
		p.replaceSuccessor(li.Header, ph)
		term := p.Terminator()
		for i, s := range term.successors {
			if s == li.Header {
				term.successors[i] = ph
			}
		}
		if idx >= 0 {
			li.Header.preds[idx] = ph
		}
	}
	// Collapse ph's duplicate predecessor entries into one edge, since
	// every outside predecessor now points at ph rather than directly at
	// the header.
	ph.preds = outside
	return ph
}

// buildLoopForest assembles LoopNode parent/child links from the
// LoopInfo.Parent pointers resolved during header processing, in
// linearization order.
func (g *Graph) buildLoopForest(orderedHeaders []*BasicBlock, headers map[*BasicBlock]*LoopInfo) {
	nodes := make(map[*LoopInfo]*LoopNode, len(orderedHeaders))
	for _, h := range orderedHeaders {
		li := headers[h]
		nodes[li] = &LoopNode{Loop: li}
		li.Node = nodes[li]
	}
	for _, h := range orderedHeaders {
		li := headers[h]
		node := nodes[li]
		if li.Parent != nil {
			node.Outer = nodes[li.Parent]
			nodes[li.Parent].Inner = append(nodes[li.Parent].Inner, node)
		} else {
			g.loopRoots = append(g.loopRoots, node)
		}
	}
}

// LoopForest returns the top-level loop nodes in linearization order.
func (g *Graph) LoopForest() []*LoopNode { return g.loopRoots }
