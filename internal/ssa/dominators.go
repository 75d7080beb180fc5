package ssa

// BuildDominators computes the immediate-dominator tree with the standard
// iterative fixed-point algorithm (Cooper, Harvey & Kennedy, "A Simple,
// Fast Dominance Algorithm"), run over reverse postorder until no idom
// changes. Populates BasicBlock.dom and domChildren for every block
// reachable from the entry.
func (g *Graph) BuildDominators() error {
	rpo := g.computeRPOFrom(g.entry)
	if len(rpo) == 0 {
		return structuralErr("build_dominators", "entry block unreachable")
	}
	index := make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		index[b] = i
		b.dom = nil
		b.domChildren = nil
	}
	g.entry.dom = g.entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *BasicBlock
			for _, p := range b.preds {
				if _, ok := index[p]; !ok {
					continue // unreachable predecessor (e.g. via irreducible back-edge not yet processed)
				}
				if p.dom == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, index)
			}
			if newIdom != b.dom {
				b.dom = newIdom
				changed = true
			}
		}
	}

	for _, b := range rpo {
		if b == g.entry || b.dom == nil {
			continue
		}
		b.dom.domChildren = append(b.dom.domChildren, b)
	}
	g.domVersion = g.version
	return nil
}

func intersect(a, b *BasicBlock, index map[*BasicBlock]int) *BasicBlock {
	for a != b {
		for index[a] > index[b] {
			a = a.dom
		}
		for index[b] > index[a] {
			b = b.dom
		}
	}
	return a
}

// BuildPostDominators runs the dual algorithm over the reverse graph
// rooted at exit, populating BasicBlock.ipdom.
func (g *Graph) BuildPostDominators() error {
	order := g.computeReversePostorderFromExit()
	if len(order) == 0 {
		return nil
	}
	index := make(map[*BasicBlock]int, len(order))
	for i, b := range order {
		index[b] = i
		b.ipdom = nil
	}
	g.exit.ipdom = g.exit

	// The same two-finger walk as intersect, but climbing the
	// post-dominator tree (ipdom) instead of the dominator tree.
	intersectPost := func(a, b *BasicBlock) *BasicBlock {
		for a != b {
			for index[a] > index[b] {
				a = a.ipdom
			}
			for index[b] > index[a] {
				b = b.ipdom
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIpdom *BasicBlock
			for _, s := range b.succs {
				if _, ok := index[s]; !ok {
					continue
				}
				if s.ipdom == nil {
					continue
				}
				if newIpdom == nil {
					newIpdom = s
					continue
				}
				newIpdom = intersectPost(newIpdom, s)
			}
			if newIpdom != b.ipdom {
				b.ipdom = newIpdom
				changed = true
			}
		}
	}
	g.pdomVersion = g.version
	return nil
}

// computeReversePostorderFromExit walks predecessor edges backward from
// exit, producing a postorder-derived order suitable for the post-dominator
// fixed point (mirrors computeRPOFrom but over the transposed graph).
func (g *Graph) computeReversePostorderFromExit() []*BasicBlock {
	visited := make(map[*BasicBlock]bool)
	var post []*BasicBlock
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, p := range b.preds {
			visit(p)
		}
		post = append(post, b)
	}
	visit(g.exit)
	// post is already entry-to-exit postorder over the transposed graph,
	// i.e. exit-to-entry order over the real graph; that is exactly the
	// reverse-postorder we want rooted at exit.
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
