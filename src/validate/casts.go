package validate

import (
	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// castAllowed is indexed [from][to], grounded on the teacher's ir.validate.go
// lutExp/lutAssign lookup-table idiom: a flat compatibility matrix instead of
// a chain of if-kind-is-X-and-kind-is-Y conditionals. Casts between any two
// scalar kinds (numeric, float, string, pointer, enum) are allowed — the
// numeric range/precision narrowing itself is a runtime concern, not a
// compile-time one — but a struct or array can never be the source or
// target of a T#x cast: there's no single bit pattern spec.md defines for
// reinterpreting aggregate storage that way.
var castAllowed = [index.KindVarArgs + 1][index.KindVarArgs + 1]bool{}

func init() {
	for from := index.TypeKind(0); from <= index.KindVarArgs; from++ {
		for to := index.TypeKind(0); to <= index.KindVarArgs; to++ {
			castAllowed[from][to] = from != index.KindStruct && from != index.KindArray &&
				to != index.KindStruct && to != index.KindArray
		}
	}
}

// checkCast validates spec.md §4.6's "Casts" category: a T#x reference
// expression's target and operand types must both be scalar.
func checkCast(n *ast.Node, ix *index.Index, m *annotate.Map, batch *diag.Batch) {
	rd, ok := n.Data.(ast.RefExprData)
	if !ok || rd.Access != ast.RefCast {
		return
	}
	operand := n.Base()
	if operand == nil {
		return
	}
	ann, ok := m.Get(operand)
	if !ok {
		return
	}
	fromT, ok := ix.EffectiveType(ann.ResultingType)
	if !ok {
		return
	}
	toT, ok := ix.EffectiveType(rd.CastTarget)
	if !ok {
		return
	}
	if !castAllowed[fromT.Kind][toT.Kind] {
		batch.Errorf(diag.EInvalidCast, n.Loc, "cannot cast %q to %q", ann.ResultingType, rd.CastTarget)
	}
}
