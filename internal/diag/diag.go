// Package diag implements the optimizer's error-handling surface (§7): a
// bailout sentinel for the "unsupported IR, decline gracefully" case, and a
// colorized pass-manager report grounded on the teacher's
// internal/errors.ErrorReporter.
//
// Structural misuse of the IR-editing API already has a home in
// internal/ssa.StructuralError (see edits.go); diag does not redefine it.
// Instead, passmanager.PassManager.Run recovers a panic carrying one at the
// pipeline boundary and re-raises it as a plain error, so a programmer
// error inside a pass still surfaces with a stack-free, readable message
// rather than crashing the host process.
package diag

import "errors"

// Bailout is the sentinel every pass may wrap (via fmt.Errorf("...: %w",
// Bailout)) to report that it declined to run on IR it cannot safely
// reason about — §7's "unsupported IR" case. Unlike a structural error,
// reaching Bailout is not a programmer mistake. PassManager.Run returns it,
// wrapped, when Cancellation stops the pipeline before a pass; the passes
// in this module report a decline by returning false rather than an error.
// Callers test for it with errors.Is.
var Bailout = errors.New("optcore/diag: pass declined, unsupported IR")

// ResourceExhausted is wrapped the same way as Bailout when a pass or the
// pass manager gives up after exceeding a resource bound (§5's arena/
// iteration-count policy) rather than because the IR shape is unsupported.
// It marks a fatal condition; no pass in this module and not
// PassManager.Run returns it.
var ResourceExhausted = errors.New("optcore/diag: resource bound exceeded")
