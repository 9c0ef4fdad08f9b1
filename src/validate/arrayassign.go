package validate

import (
	"strings"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// checkArrayAssignment validates spec.md §4.6's "Array assignment" category:
// when both sides of an Assignment resolve to array types, their element
// type and every dimension's bounds must match exactly — ST has no implicit
// array reshaping or widening.
func checkArrayAssignment(n *ast.Node, ix *index.Index, m *annotate.Map, batch *diag.Batch) {
	if len(n.Children) != 2 {
		return
	}
	lhs, rhs := n.Children[0], n.Children[1]
	lann, ok := m.Get(lhs)
	if !ok {
		return
	}
	rann, ok := m.Get(rhs)
	if !ok {
		return
	}
	lt, ok := ix.EffectiveType(lann.ResultingType)
	if !ok || lt.Kind != index.KindArray {
		return
	}
	rt, ok := ix.EffectiveType(rann.ResultingType)
	if !ok || rt.Kind != index.KindArray {
		return
	}

	if !strings.EqualFold(lt.Element, rt.Element) {
		batch.Errorf(diag.EArrayOverflow, n.Loc,
			"array assignment element type mismatch: %q <- %q", lt.Element, rt.Element)
		return
	}
	if len(lt.Dims) != len(rt.Dims) {
		batch.Errorf(diag.EArrayOverflow, n.Loc,
			"array assignment dimension count mismatch: %d <- %d", len(lt.Dims), len(rt.Dims))
		return
	}
	for i := range lt.Dims {
		if lt.Dims[i].Lo != rt.Dims[i].Lo || lt.Dims[i].Hi != rt.Dims[i].Hi {
			batch.Errorf(diag.EArrayOverflow, n.Loc,
				"array assignment dimension %d bounds mismatch: [%d..%d] <- [%d..%d]",
				i, lt.Dims[i].Lo, lt.Dims[i].Hi, rt.Dims[i].Lo, rt.Dims[i].Hi)
			return
		}
	}
}
