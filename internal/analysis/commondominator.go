package analysis

import "optcore/internal/ssa"

// CommonDominator accumulates blocks one at a time and reports their
// nearest common dominator, the small helper code sinking's
// findIdealPosition uses (grounded on the ART
// source's CommonDominator finder in code_sinking.cc). Requires
// Graph.BuildDominators to have been run.
type CommonDominator struct {
	current *ssa.BasicBlock
	started bool
}

// Update folds b into the running common-dominator computation.
func (c *CommonDominator) Update(b *ssa.BasicBlock) {
	if b == nil {
		return
	}
	if !c.started {
		c.current = b
		c.started = true
		return
	}
	c.current = nearestCommonDominator(c.current, b)
}

// Get returns the common dominator of every block passed to Update so far,
// or nil if Update was never called.
func (c *CommonDominator) Get() *ssa.BasicBlock { return c.current }

func nearestCommonDominator(a, b *ssa.BasicBlock) *ssa.BasicBlock {
	depthOf := func(x *ssa.BasicBlock) int {
		d := 0
		for cur := x; cur != nil; cur = climbDom(cur) {
			d++
			if climbDom(cur) == cur {
				break
			}
		}
		return d
	}
	da, db := depthOf(a), depthOf(b)
	for da > db {
		a = climbDom(a)
		da--
	}
	for db > da {
		b = climbDom(b)
		db--
	}
	for a != b {
		a = climbDom(a)
		b = climbDom(b)
	}
	return a
}

func climbDom(b *ssa.BasicBlock) *ssa.BasicBlock {
	if b.Dominator() == nil {
		return b
	}
	return b.Dominator()
}
