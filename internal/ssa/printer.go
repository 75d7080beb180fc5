package ssa

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

// ValueName returns a readable, stable name for a value: its declared Name
// if one was assigned (via NameHint), otherwise a snake_case synthesis of
// its kind and id — used by the printer and by passes that synthesize new
// instructions and want names that read naturally in a dump (e.g. the
// vectorizer's VecAdd results, partial LSE's materialized New).
func ValueName(v *Value) string {
	if v == nil {
		return "<null>"
	}
	if v.def.aux != nil {
		if hint, ok := v.def.aux.(nameHint); ok {
			return strcase.ToSnake(string(hint))
		}
	}
	return fmt.Sprintf("%s_%d", strcase.ToSnake(v.def.kind.String()), v.id)
}

type nameHint string

// NameHint attaches a human-readable name to an instruction's result,
// surfaced through ValueName without disturbing Aux's kind-specific use
// (name hints are only consulted when Aux is otherwise unused for the
// instruction's kind, i.e. for synthesized instructions like vector ops).
func NameHint(i *Instruction, name string) {
	if i.aux == nil {
		i.aux = nameHint(name)
	}
}

// Print renders the graph as an indented textual dump: one line per
// instruction, block headers showing predecessors/successors, and loop
// membership annotations. Intended for pass-manager diagnostics and tests
// asserting shape, not a stable serialization format.
func Print(g *Graph) string {
	var sb strings.Builder
	for _, b := range g.blocks {
		fmt.Fprintf(&sb, "block b%d", b.id)
		if b.loop != nil {
			fmt.Fprintf(&sb, " (loop h%d depth=%d)", b.loop.Header.id, b.loop.Depth())
		}
		sb.WriteString(":\n")
		fmt.Fprintf(&sb, "  preds:")
		for _, p := range b.preds {
			fmt.Fprintf(&sb, " b%d", p.id)
		}
		sb.WriteString("\n")
		for _, phi := range b.phis {
			printInstr(&sb, phi)
		}
		for i := b.first; i != nil; i = i.next {
			printInstr(&sb, i)
		}
	}
	return sb.String()
}

func printInstr(sb *strings.Builder, i *Instruction) {
	sb.WriteString("  ")
	if i.result != nil {
		fmt.Fprintf(sb, "%s = ", ValueName(i.result))
	}
	fmt.Fprintf(sb, "%s", i.kind)
	if i.opSym != "" {
		fmt.Fprintf(sb, "[%s]", i.opSym)
	}
	if len(i.inputs) > 0 {
		sb.WriteString("(")
		for idx, in := range i.inputs {
			if idx > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(ValueName(in))
		}
		sb.WriteString(")")
	}
	if len(i.successors) > 0 {
		sb.WriteString(" ->")
		for _, s := range i.successors {
			fmt.Fprintf(sb, " b%d", s.id)
		}
	}
	sb.WriteString("\n")
}
