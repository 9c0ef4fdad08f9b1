package index

import "stc/src/ast"

// TypeKind discriminates the index's Type entries (spec.md §3.2's "data-type
// entries with information (numeric, float, string, pointer, struct, enum,
// alias, sub-range, array, void, generic)").
type TypeKind int

const (
	KindNumeric TypeKind = iota
	KindFloat
	KindString
	KindPointer
	KindStruct
	KindEnum
	KindAlias
	KindSubRange
	KindArray
	KindVoid
	KindGeneric
	KindVarArgs
)

// Type is one index entry for a user or built-in data type.
type Type struct {
	Name string
	Kind TypeKind
	Loc  ast.Loc
	Node *ast.Node // The declaring TypeDecl/StructType/EnumType/... node, nil for built-ins.

	// Numeric.
	Signed bool
	Bits   int

	// String.
	StrSize int
	StrWide bool

	// Pointer.
	Inner string
	Deref ast.AutoDeref

	// Struct.
	Members []StructMember

	// Enum.
	Backing  string
	Elements []EnumElement

	// SubRange.
	Base     string
	Low, Hi  int64
	HasRange bool

	// Array.
	Element string
	Dims    []ArrayDim
	VLA     bool

	// Alias.
	AliasOf string
}

// StructMember is one ordered member of a struct type, with its position in
// the struct's member list recorded by the indexer.
type StructMember struct {
	Name   string
	TypeRef string
	Offset int // Struct-GEP index, not byte offset; codegen computes byte offsets from the LLVM data layout.
}

// EnumElement is one ordered identifier of an enum type, with its constant
// id pointing into the project's const-expressions table once the constant
// evaluator assigns explicit/implicit values.
type EnumElement struct {
	Name    string
	ConstID ConstID
}

// ArrayDim is one dimension's declared bounds (or VLA marker).
type ArrayDim struct {
	Lo, Hi int64
	VLA    bool
}

// EffectiveType unwraps alias and sub-range types to their underlying
// representation type, per spec.md §3.2: "each type exposes an effective
// type (alias/sub-range/enum unwrapping)".
func (ix *Index) EffectiveType(name string) (*Type, bool) {
	t, ok := ix.LookupType(name)
	seen := map[string]bool{}
	for ok && (t.Kind == KindAlias || t.Kind == KindSubRange) && !seen[fold(t.Name)] {
		seen[fold(t.Name)] = true
		next := t.AliasOf
		if t.Kind == KindSubRange {
			next = t.Base
		}
		t, ok = ix.LookupType(next)
	}
	return t, ok
}

// builtinNumeric registers the fixed-width integer types of the IEC lattice
// (spec.md §4.3): BOOL/SINT/USINT/INT/UINT/DINT/UDINT/LINT/ULINT plus the
// unsigned bit-string aliases BYTE/WORD/DWORD/LWORD.
var builtinNumeric = []struct {
	name   string
	bits   int
	signed bool
}{
	{"BOOL", 1, false},
	{"SINT", 8, true}, {"USINT", 8, false}, {"BYTE", 8, false},
	{"INT", 16, true}, {"UINT", 16, false}, {"WORD", 16, false},
	{"DINT", 32, true}, {"UDINT", 32, false}, {"DWORD", 32, false},
	{"LINT", 64, true}, {"ULINT", 64, false}, {"LWORD", 64, false},
}

var builtinFloat = []struct {
	name string
	bits int
}{
	{"REAL", 32},
	{"LREAL", 64},
}

// RegisterBuiltins populates ix with the elementary types every ST program
// may use without declaring them, plus TIME/DATE/TOD/DT and STRING/WSTRING
// with the standard's default sizes.
func RegisterBuiltins(ix *Index) {
	for _, b := range builtinNumeric {
		ix.Types[fold(b.name)] = &Type{Name: b.name, Kind: KindNumeric, Bits: b.bits, Signed: b.signed}
	}
	for _, b := range builtinFloat {
		ix.Types[fold(b.name)] = &Type{Name: b.name, Kind: KindFloat, Bits: b.bits}
	}
	ix.Types[fold("TIME")] = &Type{Name: "TIME", Kind: KindNumeric, Bits: 64, Signed: true}
	ix.Types[fold("DATE")] = &Type{Name: "DATE", Kind: KindNumeric, Bits: 64, Signed: true}
	ix.Types[fold("TIME_OF_DAY")] = &Type{Name: "TIME_OF_DAY", Kind: KindNumeric, Bits: 64, Signed: true}
	ix.Types[fold("TOD")] = ix.Types[fold("TIME_OF_DAY")]
	ix.Types[fold("DATE_AND_TIME")] = &Type{Name: "DATE_AND_TIME", Kind: KindNumeric, Bits: 64, Signed: true}
	ix.Types[fold("DT")] = ix.Types[fold("DATE_AND_TIME")]
	ix.Types[fold("STRING")] = &Type{Name: "STRING", Kind: KindString, StrSize: 80, StrWide: false}
	ix.Types[fold("WSTRING")] = &Type{Name: "WSTRING", Kind: KindString, StrSize: 80, StrWide: true}
	ix.Types[fold("__VOID")] = &Type{Name: "__VOID", Kind: KindVoid}
}
