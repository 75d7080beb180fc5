// Package passmanager implements the optimizer's external interface (§6):
// an ordered pipeline of named passes run once each over a graph, with
// cooperative cancellation checked between passes (§5) and a stats.Counters
// channel for the statistics every pass reports into.
//
// Grounded on the teacher's OptimizationPipeline/OptimizationPass/AddPass/
// Run in internal/ir/optimizations.go: the same "ordered slice of named
// steps, run in sequence, reporting progress" shape, generalized to the
// closed pass-identifier set and the cancellation/bailout semantics §5 and
// §7 add on top of it.
package passmanager

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"optcore/internal/diag"
	"optcore/internal/ssa"
	"optcore/internal/stats"
)

// PassID names one of the closed set of pass identifiers §6 lists as the
// optimizer's external interface. Only the subset backed by a package in
// this module has a concrete Pass wired into DefaultPipeline; the rest are
// declared here so the identifier contract is complete and so a caller
// supplying its own Pass for one of them is accepted by AddPass.
type PassID string

const (
	PassSideEffectsAnalysis                   PassID = "side_effects_analysis"
	PassInductionVarAnalysis                  PassID = "induction_var_analysis"
	PassLoadStoreAnalysis                     PassID = "load_store_analysis"
	PassGlobalValueNumbering                  PassID = "global_value_numbering"
	PassLICM                                  PassID = "licm"
	PassLoopOptimization                      PassID = "loop_optimization"
	PassBoundsCheckElimination                PassID = "bounds_check_elimination"
	PassLoadStoreElimination                  PassID = "load_store_elimination"
	PassConstantFolding                       PassID = "constant_folding"
	PassDeadCodeElimination                   PassID = "dead_code_elimination"
	PassInliner                               PassID = "inliner"
	PassSharpening                            PassID = "sharpening"
	PassSelectGenerator                       PassID = "select_generator"
	PassInstructionSimplifier                 PassID = "instruction_simplifier"
	PassIntrinsicsRecognizer                  PassID = "intrinsics_recognizer"
	PassCHAGuardOptimization                  PassID = "cha_guard_optimization"
	PassCodeSinking                           PassID = "code_sinking"
	PassConstructorFenceRedundancyElimination PassID = "constructor_fence_redundancy_elimination"
	PassScheduling                            PassID = "scheduling"
)

// knownPassIDs is the closed set AddPass validates against. Analyses
// (side_effects_analysis, induction_var_analysis, load_store_analysis) are
// included for completeness of the identifier contract even though, in
// this module, each is invoked internally by the transformation pass that
// needs it rather than standing alone as a graph-mutating Pass.
var knownPassIDs = map[PassID]bool{
	PassSideEffectsAnalysis:                   true,
	PassInductionVarAnalysis:                  true,
	PassLoadStoreAnalysis:                     true,
	PassGlobalValueNumbering:                  true,
	PassLICM:                                  true,
	PassLoopOptimization:                      true,
	PassBoundsCheckElimination:                true,
	PassLoadStoreElimination:                  true,
	PassConstantFolding:                       true,
	PassDeadCodeElimination:                   true,
	PassInliner:                               true,
	PassSharpening:                            true,
	PassSelectGenerator:                       true,
	PassInstructionSimplifier:                 true,
	PassIntrinsicsRecognizer:                  true,
	PassCHAGuardOptimization:                  true,
	PassCodeSinking:                           true,
	PassConstructorFenceRedundancyElimination: true,
	PassScheduling:                            true,
}

// Pass is one pipeline entry: a named transformation over a graph,
// reporting whether it changed anything.
type Pass interface {
	ID() PassID
	Run(g *ssa.Graph, counters *stats.Counters) bool
}

// funcPass adapts a bare Run-shaped function — every pass package in this
// module already exposes exactly this signature — into a Pass.
type funcPass struct {
	id PassID
	fn func(g *ssa.Graph, counters *stats.Counters) bool
}

func (p *funcPass) ID() PassID { return p.id }

func (p *funcPass) Run(g *ssa.Graph, counters *stats.Counters) bool { return p.fn(g, counters) }

// NewPass wraps fn (the signature every Run function in this module's pass
// packages already has) as a Pass under id.
func NewPass(id PassID, fn func(g *ssa.Graph, counters *stats.Counters) bool) Pass {
	return &funcPass{id: id, fn: fn}
}

// PassManager runs an ordered pipeline of passes over a graph. Counters
// accumulates statistics across every Run; Cancellation, when set, is
// polled between passes (§5) and a true result stops the pipeline without
// treating it as failure.
type PassManager struct {
	passes       []Pass
	Counters     *stats.Counters
	Cancellation func() bool
}

// New returns an empty PassManager with a fresh Counters.
func New() *PassManager {
	return &PassManager{Counters: stats.NewCounters()}
}

// AddPass appends p to the pipeline, rejecting any ID outside the closed
// set §6 defines.
func (pm *PassManager) AddPass(p Pass) error {
	if !knownPassIDs[p.ID()] {
		return fmt.Errorf("passmanager: %q is not a recognized pass identifier", p.ID())
	}
	pm.passes = append(pm.passes, p)
	return nil
}

// Passes returns the pipeline's current pass order, for introspection.
func (pm *PassManager) Passes() []Pass {
	return append([]Pass(nil), pm.passes...)
}

// Run executes every pass in order once, stamping the run with a KSUID so
// repeated runs over the same graph are distinguishable in logs and
// statistics. Returns the run ID and the first fatal error encountered.
//
// A pass recovers structural errors it triggers internally (every pass in
// this module already treats internal/ssa edit failures as "decline and
// move on", per their own Run implementations); Run additionally recovers
// any stray panic carrying an *ssa.StructuralError — the programmer-error
// type internal/ssa's edit API already defines — re-raising it as a plain
// error so a defect inside a pass is reported rather than crashing the
// host process, reconciling §7's "structural misuse aborts compilation"
// with the type edits.go already has.
func (pm *PassManager) Run(g *ssa.Graph) (runID string, err error) {
	runID = ksuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*ssa.StructuralError); ok {
				err = fmt.Errorf("passmanager: pass pipeline aborted: %w", se)
				return
			}
			panic(r)
		}
	}()

	for _, p := range pm.passes {
		if pm.Cancellation != nil && pm.Cancellation() {
			return runID, fmt.Errorf("passmanager: %w: cancelled before %s", diag.Bailout, p.ID())
		}
		if p.Run(g, pm.Counters) {
			pm.Counters.Inc(string(p.ID()) + "_applied")
		}
	}
	return runID, nil
}
