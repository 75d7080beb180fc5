// Package ssa implements the arena-backed SSA control-flow graph that the
// optimization core operates on: basic blocks, a tagged-variant instruction
// set, phis, dominator and loop information, and the structural edit API
// every pass builds on.
package ssa

import "fmt"

// DataType is the value type every Instruction result (and every input) is
// tagged with.
type DataType uint8

const (
	Int32 DataType = iota
	Int64
	Float
	Double
	Reference
	Void
	Bool
	Char
	Short
	Byte
)

func (t DataType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float:
		return "float"
	case Double:
		return "double"
	case Reference:
		return "reference"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Char:
		return "char"
	case Short:
		return "short"
	case Byte:
		return "byte"
	default:
		return fmt.Sprintf("datatype(%d)", uint8(t))
	}
}

// sizeBytes returns the storage width of one value of this type in bytes,
// or 0 for a type with no storage (Void).
func (t DataType) sizeBytes() int {
	switch t {
	case Byte, Bool:
		return 1
	case Short, Char:
		return 2
	case Int32, Float:
		return 4
	case Int64, Double, Reference:
		return 8
	default:
		return 0
	}
}

// SizeBytes returns the storage width of the component type, used by
// load-store analysis to detect partial overlaps between scalar and vector
// heap locations.
func (t DataType) SizeBytes() int { return t.sizeBytes() }

// BlockID and InstrID are dense identifiers assigned by the Graph's arena.
// Passes should prefer these over pointer identity when persisting
// cross-pass state (e.g. stats keys), though pointer identity remains valid
// within a single Graph's lifetime.
type BlockID uint32
type InstrID uint32
type ValueID uint32
