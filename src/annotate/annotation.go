package annotate

import (
	"stc/src/ast"
	"stc/src/index"
)

// AnnotationKind discriminates the StatementAnnotation tagged union of
// spec.md §3.3. Matching the spec's explicit instruction that this stays a
// tagged union rather than an interface hierarchy — visitor-style codegen
// and validator code switch on Kind instead of type-asserting an interface.
type AnnotationKind int

const (
	AnnValue AnnotationKind = iota
	AnnVariable
	AnnFunction
	AnnProgram
	AnnType
	AnnLabel
	AnnOverride
)

// Annotation is the single tagged-union payload attached to one AST node id.
// Only the fields relevant to Kind are meaningful; the rest are zero.
type Annotation struct {
	Kind AnnotationKind

	// Value.
	ResultingType string

	// Variable.
	QualifiedName string
	Constant      bool
	ArgumentType  ast.ParamPassing
	AutoDeref     ast.AutoDeref

	// Function / Program.
	ReturnType string
	CallName   string

	// Type.
	TypeName string

	// Label.
	LabelName string

	// Override: the qualified name of the base-class member this POU
	// overrides, set by the inheritance-lowering participant rather than
	// the resolver itself.
	OverrideOf string
}

// Map is the project-wide annotation map of spec.md §3.3: a per-node
// Annotation, a parallel per-node type-hint (the type the node's *context*
// expects, driving an implicit cast when it differs from ResultingType),
// a transitive per-unit dependency set, and a deduplicated string-literal
// pool keyed by content.
type Map struct {
	Index *index.Index

	Values map[ast.ID]Annotation
	Hints  map[ast.ID]string // Node id -> expected type name.

	Deps map[int]map[string]bool // Compilation-unit file id -> referenced qualified names.

	StringsUTF8  map[string]int // Content -> pool index.
	StringsUTF16 map[string]int
}

// NewMap returns an empty Map bound to ix for type lookups.
func NewMap(ix *index.Index) *Map {
	return &Map{
		Index:        ix,
		Values:       map[ast.ID]Annotation{},
		Hints:        map[ast.ID]string{},
		Deps:         map[int]map[string]bool{},
		StringsUTF8:  map[string]int{},
		StringsUTF16: map[string]int{},
	}
}

// Annotate records ann as n's annotation. Per spec.md invariant 3
// ("Annotating an already-annotated unit overwrites but preserves semantic
// equivalence"), a second call for the same node id simply replaces the
// first.
func (m *Map) Annotate(n *ast.Node, ann Annotation) { m.Values[n.ID] = ann }

// Hint records the type-hint the surrounding context imposes on n, e.g. the
// left-hand side's type flowing onto an assignment's right-hand side.
func (m *Map) Hint(n *ast.Node, typeName string) { m.Hints[n.ID] = typeName }

// Get returns n's annotation, if any.
func (m *Map) Get(n *ast.Node) (Annotation, bool) {
	a, ok := m.Values[n.ID]
	return a, ok
}

// NeedsCast reports whether n's resulting type differs from its hinted
// type — spec.md invariant 4: "if t ≠ h then codegen emits a cast from t to
// h at that point in the IR."
func (m *Map) NeedsCast(n *ast.Node) (from, to string, ok bool) {
	ann, hasAnn := m.Values[n.ID]
	hint, hasHint := m.Hints[n.ID]
	if !hasAnn || !hasHint || hint == "" {
		return "", "", false
	}
	actual := ann.ResultingType
	if actual == "" {
		actual = ann.ReturnType
	}
	if actual == "" || actual == hint {
		return "", "", false
	}
	return actual, hint, true
}

// addDep records that the compilation unit identified by file depends on
// the qualified symbol name, for the "transitive set of symbols required by
// each compilation unit" bookkeeping of spec.md §3.3.
func (m *Map) addDep(file int, qualifiedName string) {
	set, ok := m.Deps[file]
	if !ok {
		set = map[string]bool{}
		m.Deps[file] = set
	}
	set[qualifiedName] = true
}

// InternString adds s to the deduplicated literal pool (UTF-8 or UTF-16
// selected by wide) and returns its pool index, creating a fresh entry only
// on first sight of that exact content.
func (m *Map) InternString(s string, wide bool) int {
	pool := m.StringsUTF8
	if wide {
		pool = m.StringsUTF16
	}
	if i, ok := pool[s]; ok {
		return i
	}
	i := len(pool)
	pool[s] = i
	return i
}
