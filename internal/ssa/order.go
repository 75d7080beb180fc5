package ssa

// computeRPOFrom returns the reverse postorder of blocks reachable from
// root, following successor edges.
func (g *Graph) computeRPOFrom(root *BasicBlock) []*BasicBlock {
	visited := make(map[*BasicBlock]bool)
	var post []*BasicBlock
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(root)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// ReversePostOrder returns (and caches, keyed on the graph's version token)
// the reverse postorder over blocks reachable from entry.
func (g *Graph) ReversePostOrder() []*BasicBlock {
	if g.rpoCache != nil && g.rpoVersion == g.version {
		return g.rpoCache
	}
	g.rpoCache = g.computeRPOFrom(g.entry)
	g.rpoVersion = g.version
	return g.rpoCache
}

// LinearOrder computes §4.1's iteration-dependent total order: every block
// follows its dominator, and blocks of the same loop are contiguous.
//
// Algorithm: weight each block by its deepest loop nesting depth, walk RPO,
// and delay emitting a block while it still has an unprocessed predecessor
// that belongs to the same loop (that predecessor will pull it back in once
// it, too, is emitted). This keeps dominance order for everything outside
// loops while guaranteeing a loop's members stay contiguous in the output.
func (g *Graph) LinearOrder() []*BasicBlock {
	if g.linearCache != nil && g.linearVersion == g.version {
		return g.linearCache
	}
	rpo := g.ReversePostOrder()
	rpoIndex := make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b] = i
	}

	emitted := make(map[*BasicBlock]bool, len(rpo))
	var order []*BasicBlock

	var sameLoop func(a, b *BasicBlock) bool
	sameLoop = func(a, b *BasicBlock) bool {
		return a.loop != nil && a.loop == b.loop
	}

	pending := append([]*BasicBlock(nil), rpo...)
	for len(pending) > 0 {
		progressed := false
		var next []*BasicBlock
		for _, b := range pending {
			if emitted[b] {
				continue
			}
			blocked := false
			for _, p := range b.preds {
				if emitted[p] {
					continue
				}
				if _, inRPO := rpoIndex[p]; !inRPO {
					continue // unreachable predecessor, ignore
				}
				if sameLoop(p, b) || (b.loop != nil && b.loop.Header == b && p.loop == b.loop) {
					blocked = true
					break
				}
			}
			if blocked {
				next = append(next, b)
				continue
			}
			order = append(order, b)
			emitted[b] = true
			progressed = true
		}
		if !progressed {
			// Irreducible or cyclic residue: emit remaining blocks in RPO
			// order to guarantee termination rather than loop forever.
			for _, b := range next {
				if !emitted[b] {
					order = append(order, b)
					emitted[b] = true
				}
			}
			break
		}
		pending = next
	}

	g.linearCache = order
	g.linearVersion = g.version
	return order
}
