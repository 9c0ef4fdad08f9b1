// Package index implements the compiler's symbol table (spec.md §3.2): a
// forest of case-folded maps recording every type, POU, variable, constant
// expression, enum, interface, property and hardware binding seen across a
// project's compilation units. It is built by a one-pass walk per unit
// (spec.md §4's "Indexer" component) and merged into a single shared Index
// by a deterministic serial step (spec.md §5).
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"stc/src/ast"
	"stc/src/diag"
)

// Index is the project-wide symbol table. Before Freeze it is exclusively
// owned by the merging driver goroutine; after Freeze it is shared
// read-only by every later phase (spec.md §5: "the index is exclusively
// owned by the driver during merging and is shared immutably thereafter").
type Index struct {
	Types      map[string]*Type
	POUs       map[string]*POU
	Impls      map[string]*ast.Node // Keyed by qualified POU name.
	Variables  map[string]*Variable // Keyed by "owner.name" for members, bare name for globals.
	Consts     []*ConstExpr         // Indexed by ConstID.
	Enums      map[string]*Type     // Subset of Types that are enums, for quick enum-only lookup.
	Interfaces map[string]*POU
	Properties map[string]*Property
	HWBindings []HWBinding

	frozen bool
	mu     sync.Mutex // Guards concurrent unit-local augmentation before Freeze.
}

// ConstID indexes into Index.Consts.
type ConstID int

// ConstExpr is one entry of the const-expressions table (spec.md §3.2): the
// unevaluated expression, its type-directed target (if any, e.g. the `INT`
// in `INT#3`), and, once the constant evaluator (src/index/constant) has run,
// its folded value.
type ConstExpr struct {
	ID         ConstID
	Expr       *ast.Node
	TargetType string
	Folded     bool
	Value      ConstValue
}

// ConstValue is the folded value of a constant expression: at most one of
// the fields is meaningful, selected by Kind.
type ConstValue struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

type ConstKind int

const (
	ConstUnresolved ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstString
)

// Property is a GET/SET pair attached to a POU member (spec.md §4.6's
// "Properties" check category).
type Property struct {
	Owner      string
	Name       string
	ReturnType string
	HasGet     bool
	HasSet     bool
	GetLoc     ast.Loc
	SetLoc     ast.Loc
}

// HWBinding is one hardware-address record (spec.md §6's
// "Hardware binding file").
type HWBinding struct {
	Name       string
	AccessType byte // 'B'|'W'|'D'|'L'|'X'
	Direction  byte // 'I'|'Q'|'M'|'G'
	Address    []int
}

// New returns an empty, ready-to-populate Index.
func New() *Index {
	return &Index{
		Types:      map[string]*Type{},
		POUs:       map[string]*POU{},
		Impls:      map[string]*ast.Node{},
		Variables:  map[string]*Variable{},
		Enums:      map[string]*Type{},
		Interfaces: map[string]*POU{},
		Properties: map[string]*Property{},
	}
}

// fold is the index's case-folding convention: ST is case-insensitive for
// keywords and identifiers (glossary), so every key is upper-cased before
// lookup/insertion.
func fold(s string) string { return strings.ToUpper(s) }

// Freeze marks the index read-only. Called once by the driver immediately
// after the serial merge step (spec.md §5).
func (ix *Index) Freeze() { ix.frozen = true }

// AddConst appends a constant-expression entry and returns its id.
func (ix *Index) AddConst(expr *ast.Node, targetType string) ConstID {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	id := ConstID(len(ix.Consts))
	ix.Consts = append(ix.Consts, &ConstExpr{ID: id, Expr: expr, TargetType: targetType})
	return id
}

// Const returns the constant-expression entry for id.
func (ix *Index) Const(id ConstID) *ConstExpr {
	if int(id) < 0 || int(id) >= len(ix.Consts) {
		return nil
	}
	return ix.Consts[id]
}

// LookupType returns the named type entry, case-insensitively.
func (ix *Index) LookupType(name string) (*Type, bool) {
	t, ok := ix.Types[fold(name)]
	return t, ok
}

// LookupPOU returns the named POU entry, case-insensitively.
func (ix *Index) LookupPOU(name string) (*POU, bool) {
	p, ok := ix.POUs[fold(name)]
	return p, ok
}

// LookupVariable returns a variable by its fully qualified key (e.g.
// "MyProgram.counter" for a member, "g_Tick" for a global).
func (ix *Index) LookupVariable(qualified string) (*Variable, bool) {
	v, ok := ix.Variables[fold(qualified)]
	return v, ok
}

// Merge folds a unit-local Index built by BuildUnit into the receiver,
// reporting E021 name-clash diagnostics for collisions instead of silently
// overwriting — this is the "deterministic serial step" of spec.md §5,
// invoked once per unit in input-source order.
func (ix *Index) Merge(unit *Index, batch *diag.Batch) {
	for k, t := range unit.Types {
		if existing, ok := ix.Types[k]; ok {
			batch.Add(diag.Diagnostic{
				Kind: diag.ENameClash, Severity: diag.Error,
				Message:   fmt.Sprintf("type %q declared more than once", t.Name),
				Primary:   t.Loc,
				Secondary: []ast.Loc{existing.Loc},
			})
			continue
		}
		ix.Types[k] = t
		if t.Kind == KindEnum {
			ix.Enums[k] = t
		}
	}
	for k, p := range unit.POUs {
		if existing, ok := ix.POUs[k]; ok {
			batch.Add(diag.Diagnostic{
				Kind: diag.ENameClash, Severity: diag.Error,
				Message:   fmt.Sprintf("POU %q declared more than once", p.Name),
				Primary:   p.Loc,
				Secondary: []ast.Loc{existing.Loc},
			})
			continue
		}
		ix.POUs[k] = p
	}
	for k, n := range unit.Impls {
		ix.Impls[k] = n
	}
	for k, v := range unit.Variables {
		if existing, ok := ix.Variables[k]; ok {
			batch.Add(diag.Diagnostic{
				Kind: diag.ENameClash, Severity: diag.Error,
				Message:   fmt.Sprintf("variable %q declared more than once", v.Name),
				Primary:   v.Loc,
				Secondary: []ast.Loc{existing.Loc},
			})
			continue
		}
		ix.Variables[k] = v
	}
	base := len(ix.Consts)
	for _, v := range unit.Variables {
		if v.HasInit {
			v.InitConst += ConstID(base)
		}
	}
	for _, t := range unit.Types {
		for i := range t.Elements {
			if t.Elements[i].ConstID >= 0 {
				t.Elements[i].ConstID += ConstID(base)
			}
		}
	}
	for _, c := range unit.Consts {
		c.ID = ConstID(base + int(c.ID))
		ix.Consts = append(ix.Consts, c)
	}
	for k, p := range unit.Properties {
		ix.Properties[k] = p
	}
	for k, p := range unit.Interfaces {
		ix.Interfaces[k] = p
	}
	ix.HWBindings = append(ix.HWBindings, unit.HWBindings...)
}

// SortedTypeNames returns every type name in deterministic (sorted) order,
// used by codegen when it needs a stable iteration order for emitting
// struct/enum definitions.
func (ix *Index) SortedTypeNames() []string {
	names := make([]string, 0, len(ix.Types))
	for k := range ix.Types {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
