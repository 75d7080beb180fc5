package analysis

import "optcore/internal/ssa"

// EnvironmentEscapes resolves the open question of whether an environment
// (deopt-materialization) use of an allocation counts as an escape for
// partial LSE. Per the decision recorded for this method: only when the
// owning graph is debuggable, since a live debugger can observe the object
// through the deopt state at any safepoint; in a non-debuggable compile an
// environment pin is invisible to anything but the optimizer itself and
// does not force materialization.
func EnvironmentEscapes(g *ssa.Graph, use *ssa.EnvUse) bool {
	_ = use
	return g.Debuggable
}
