package lowering

import (
	"strings"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// AggregateReturnLowering is mandatory built-in participant 6 (spec.md
// §4.2): converts a function whose return type is aggregate (string,
// array, struct) into a void-returning function taking a hidden
// by-reference first parameter for the result, and rewrites call sites
// that assign the result directly into a variable to call through that
// parameter instead. Must run before codegen sees any call, and before
// VLALowering so a VLA parameter's position accounts for the prepended
// result parameter.
type AggregateReturnLowering struct {
	BaseParticipant

	// Aggregate maps a lowered function's qualified name to its original
	// (pre-lowering) return type name, consulted by codegen when it needs
	// to know the ABI's logical result type.
	Aggregate map[string]string
}

func (ar *AggregateReturnLowering) Name() string { return "aggregate-return-lowering" }

func (ar *AggregateReturnLowering) PostIndex(ix *index.Index, batch *diag.Batch) {
	ar.Aggregate = map[string]string{}
	for _, p := range ix.POUs {
		if !p.IsCallable() || p.ReturnType == "" {
			continue
		}
		t, ok := ix.EffectiveType(p.ReturnType)
		if !ok {
			continue
		}
		switch t.Kind {
		case index.KindString, index.KindArray, index.KindStruct:
		default:
			continue
		}

		ar.Aggregate[p.Name] = p.ReturnType
		resultKey := strings.ToUpper(p.Name + ".__result")
		if _, exists := ix.Variables[resultKey]; !exists {
			ix.Variables[resultKey] = &index.Variable{
				Name: p.Name + ".__result", Simple: "__result", Owner: p.Name,
				TypeRef: p.ReturnType, Role: index.RoleParamOut, Passing: ast.ByRef, Offset: -1,
			}
		}
		p.ReturnType = ""
	}
}

// PreCodegen rewrites every `lhs := f(...)` where f is an aggregate-return
// function into a direct call `f(&lhs, ...)`, converting the Assignment
// node itself into the Call so existing parent/child pointers into it
// stay valid (the same in-place-node-replacement trick PropertyLowering
// uses for accessor calls).
func (ar *AggregateReturnLowering) PreCodegen(m *annotate.Map, batch *diag.Batch) {
	for _, impl := range m.Index.Impls {
		ar.lowerStmtList(impl, m, batch)
	}
}

func (ar *AggregateReturnLowering) lowerStmtList(n *ast.Node, m *annotate.Map, batch *diag.Batch) {
	for _, c := range n.Children {
		if c.Kind == ast.Assignment && len(c.Children) == 2 && ar.tryLowerAssignment(c, m, batch) {
			continue
		}
		ar.lowerStmtList(c, m, batch)
	}
}

// tryLowerAssignment rewrites n in place and returns true when its
// right-hand side is a call to an aggregate-returning function; calls to
// such a function nested inside a larger expression (rather than directly
// assigned) are left to a later diagnostic pass, since they would need a
// synthesized temporary this participant doesn't introduce.
func (ar *AggregateReturnLowering) tryLowerAssignment(n *ast.Node, m *annotate.Map, batch *diag.Batch) bool {
	lhs, rhs := n.Children[0], n.Children[1]
	if rhs.Kind != ast.Call || len(rhs.Children) < 2 {
		return false
	}
	callee := rhs.Children[0]
	ann, ok := m.Get(callee)
	if !ok || ann.Kind != annotate.AnnFunction {
		return false
	}
	if _, ok := ar.Aggregate[ann.QualifiedName]; !ok {
		return false
	}

	addr := &ast.Node{ID: lhs.ID, Kind: ast.ReferenceExpr, Loc: lhs.Loc, Data: ast.RefExprData{Access: ast.RefAddress}, Children: []*ast.Node{lhs}}
	outArg := &ast.Node{ID: lhs.ID, Kind: ast.Argument, Loc: lhs.Loc, Data: ast.ArgumentData{}, Children: []*ast.Node{addr}}
	argList := rhs.Children[1]
	argList.Children = append([]*ast.Node{outArg}, argList.Children...)

	n.Kind = ast.Call
	n.Data = nil
	n.Children = rhs.Children
	m.Annotate(n, annotate.Annotation{Kind: annotate.AnnValue})
	return true
}
