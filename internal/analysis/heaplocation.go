package analysis

import "optcore/internal/ssa"

// AliasKind is the three-valued alias relation §4.2 defines between two
// HeapLocations.
type AliasKind int

const (
	NoAlias AliasKind = iota
	MayAlias
	MustAlias
)

// IndexExpr is a symbolically-simplified array index: Var + Offset, where
// Var may be nil to mean "constant index" (then Offset is the whole
// index). Two IndexExprs are syntactically equal iff Var is the same value
// (or both nil) and Offset matches — the "symbolic simplification" §4.2
// calls for, kept deliberately shallow (linear-in-one-variable) since that
// covers every array access the loop optimizer and vectorizer themselves
// synthesize or accept.
type IndexExpr struct {
	Var    *ssa.Value
	Offset int64
}

func (a IndexExpr) equal(b IndexExpr) bool {
	return a.Var == b.Var && a.Offset == b.Offset
}

// LocationKind distinguishes the shape of a HeapLocation.
type LocationKind int

const (
	LocationArrayElem LocationKind = iota
	LocationField
	LocationVectorElem
)

// HeapLocation is the alias class keyed by base, offset/index, component
// type and vector-width per §3.
type HeapLocation struct {
	ID            int
	Kind          LocationKind
	Base          *ssa.Value // array or object reference; nil only for unresolved/opaque
	Index         IndexExpr  // meaningful for LocationArrayElem/LocationVectorElem
	FieldID       int        // meaningful for LocationField
	ComponentType ssa.DataType
	VectorWidth   int // lane count for LocationVectorElem, 0 otherwise
}

// rangesOverlap reports whether two index ranges, each spanning its width
// in elements starting at a syntactic offset relative to the same Var, can
// possibly overlap. Used for the vector/scalar partial-overlap
// rule.
func rangesOverlap(aOff int64, aWidth int, bOff int64, bWidth int) bool {
	aEnd := aOff + int64(aWidth)
	bEnd := bOff + int64(bWidth)
	return aOff < bEnd && bOff < aEnd
}

// Alias computes the alias relation between two HeapLocations per §4.2:
//   - same base, same offset/index expression, same component size → MustAlias
//   - different statically-known bases of disjoint types → NoAlias
//   - same base but index expressions differ symbolically → MayAlias
//   - vector reference overlapping a scalar index range → MayAlias
func Alias(a, b *HeapLocation) AliasKind {
	if a.Kind == LocationField || b.Kind == LocationField {
		if a.Kind != b.Kind {
			return NoAlias
		}
		if a.Base == nil || b.Base == nil {
			return MayAlias
		}
		if a.Base != b.Base {
			return NoAlias
		}
		if a.FieldID == b.FieldID {
			return MustAlias
		}
		return NoAlias
	}

	// Both array/vector element locations.
	if a.Base == nil || b.Base == nil {
		return MayAlias
	}
	if a.Base != b.Base {
		return NoAlias
	}
	if a.ComponentType.SizeBytes() != b.ComponentType.SizeBytes() && a.VectorWidth == 0 && b.VectorWidth == 0 {
		return NoAlias
	}

	aWidth := max(a.VectorWidth, 1)
	bWidth := max(b.VectorWidth, 1)

	if a.Index.Var == b.Index.Var {
		if a.Index.Offset == b.Index.Offset && aWidth == bWidth {
			return MustAlias
		}
		if rangesOverlap(a.Index.Offset, aWidth, b.Index.Offset, bWidth) {
			return MayAlias
		}
		return NoAlias
	}
	// Index expressions involve different (or unknown) induction
	// variables: cannot prove disjointness symbolically.
	return MayAlias
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// LoadStoreAnalysis assigns every memory-touching instruction in a function
// a canonical HeapLocation, sharing ids for syntactically-identical
// locations.
type LoadStoreAnalysis struct {
	locOf     map[*ssa.Instruction]*HeapLocation
	locations []*HeapLocation
	version   uint64
}

// Locations returns every distinct HeapLocation discovered.
func (a *LoadStoreAnalysis) Locations() []*HeapLocation { return a.locations }

// LocationOf returns the HeapLocation assigned to instr, or nil if instr
// does not touch memory.
func (a *LoadStoreAnalysis) LocationOf(instr *ssa.Instruction) *HeapLocation {
	return a.locOf[instr]
}

// Analyze walks every block in RPO and assigns HeapLocations to the array,
// vector, instance-field and predicated get/set instructions per §4.2.
// Allocations themselves get no HeapLocation.
func Analyze(g *ssa.Graph) *LoadStoreAnalysis {
	a := &LoadStoreAnalysis{locOf: make(map[*ssa.Instruction]*HeapLocation), version: g.Version()}
	canon := make(map[canonKey]*HeapLocation)

	for _, b := range g.ReversePostOrder() {
		for _, instr := range b.Instructions() {
			loc := classify(instr)
			if loc == nil {
				continue
			}
			key := canonKeyOf(loc)
			if existing, ok := canon[key]; ok {
				a.locOf[instr] = existing
				continue
			}
			loc.ID = len(a.locations)
			canon[key] = loc
			a.locations = append(a.locations, loc)
			a.locOf[instr] = loc
		}
	}
	return a
}

type canonKey struct {
	kind     LocationKind
	base     *ssa.Value
	idxVar   *ssa.Value
	idxOff   int64
	fieldID  int
	compType ssa.DataType
	width    int
}

func canonKeyOf(l *HeapLocation) canonKey {
	return canonKey{l.Kind, l.Base, l.Index.Var, l.Index.Offset, l.FieldID, l.ComponentType, l.VectorWidth}
}

// indexExprOf resolves idxVal into an IndexExpr: a bare Add(var, const) or
// Add(const, var) simplifies to Var+Offset; a pure Constant simplifies to
// nil-Var+value; anything else is treated as an opaque variable with zero
// offset (still precise enough for equality comparisons, just unable to
// prove a constant-offset relationship to a sibling access).
func indexExprOf(idxVal *ssa.Value) IndexExpr {
	if idxVal == nil {
		return IndexExpr{}
	}
	def := idxVal.Def()
	if def.Kind() == ssa.KindConstant {
		return IndexExpr{Offset: def.AuxInt()}
	}
	if def.Kind() == ssa.KindAdd {
		l, r := def.Inputs()[0], def.Inputs()[1]
		if r.Def().Kind() == ssa.KindConstant {
			return IndexExpr{Var: l, Offset: r.Def().AuxInt()}
		}
		if l.Def().Kind() == ssa.KindConstant {
			return IndexExpr{Var: r, Offset: l.Def().AuxInt()}
		}
	}
	return IndexExpr{Var: idxVal}
}

func classify(instr *ssa.Instruction) *HeapLocation {
	switch instr.Kind() {
	case ssa.KindArrayGet:
		return &HeapLocation{Kind: LocationArrayElem, Base: instr.InputAt(0), Index: indexExprOf(instr.InputAt(1)), ComponentType: instr.Type()}
	case ssa.KindArraySet:
		return &HeapLocation{Kind: LocationArrayElem, Base: instr.InputAt(0), Index: indexExprOf(instr.InputAt(1)), ComponentType: instr.InputAt(2).Type()}
	case ssa.KindVecLoad:
		return &HeapLocation{Kind: LocationVectorElem, Base: instr.InputAt(0), Index: indexExprOf(instr.InputAt(1)), ComponentType: instr.Type(), VectorWidth: int(instr.AuxInt())}
	case ssa.KindVecStore:
		return &HeapLocation{Kind: LocationVectorElem, Base: instr.InputAt(0), Index: indexExprOf(instr.InputAt(1)), ComponentType: instr.InputAt(2).Type(), VectorWidth: int(instr.AuxInt())}
	case ssa.KindInstanceFieldGet:
		return &HeapLocation{Kind: LocationField, Base: instr.InputAt(0), FieldID: int(instr.AuxInt()), ComponentType: instr.Type()}
	case ssa.KindInstanceFieldSet:
		return &HeapLocation{Kind: LocationField, Base: instr.InputAt(0), FieldID: int(instr.AuxInt()), ComponentType: instr.InputAt(1).Type()}
	case ssa.KindPredicatedGet:
		return &HeapLocation{Kind: LocationField, Base: instr.InputAt(0), FieldID: int(instr.AuxInt()), ComponentType: instr.Type()}
	case ssa.KindPredicatedSet:
		return &HeapLocation{Kind: LocationField, Base: instr.InputAt(0), FieldID: int(instr.AuxInt()), ComponentType: instr.InputAt(1).Type()}
	default:
		return nil
	}
}
