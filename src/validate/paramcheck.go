package validate

import (
	"sort"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// checkParameterPassing validates spec.md §4.6's "Parameter passing"
// category: a call site may not supply more positional/named arguments than
// the callee declares, and any argument bound to a VAR_OUTPUT or VAR_IN_OUT
// parameter must be an addressable reference (a plain identifier or member
// access), since the callee writes back through it.
func checkParameterPassing(n *ast.Node, ix *index.Index, m *annotate.Map, batch *diag.Batch) {
	if len(n.Children) != 2 {
		return
	}
	callee, argList := n.Children[0], n.Children[1]
	ann, ok := m.Get(callee)
	if !ok || ann.QualifiedName == "" {
		return
	}
	params := calleeParams(ix, ann.QualifiedName)
	args := argList.Children

	if len(args) > len(params) {
		batch.Errorf(diag.EUnresolvedReference, n.Loc,
			"call to %q passes %d arguments, expected at most %d", ann.QualifiedName, len(args), len(params))
		return
	}

	for i, arg := range args {
		if i >= len(params) {
			break
		}
		p := params[i]
		if p.Role != index.RoleParamOut && p.Role != index.RoleParamInOut {
			continue
		}
		if len(arg.Children) == 0 {
			continue
		}
		val := arg.Children[0]
		if val.Kind != ast.Identifier && val.Kind != ast.ReferenceExpr {
			batch.Errorf(diag.EUnresolvedReference, arg.Loc,
				"argument for VAR_OUTPUT/VAR_IN_OUT parameter %q must be an addressable reference", p.Simple)
		}
	}
}

// calleeParams returns pouName's declared parameters, ordered the way they
// were declared (index.Variable.Offset), the order a positional call site
// binds its arguments against.
func calleeParams(ix *index.Index, pouName string) []*index.Variable {
	var params []*index.Variable
	for _, v := range ix.Variables {
		if v.Owner == pouName && v.IsParam() {
			params = append(params, v)
		}
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Offset < params[j].Offset })
	return params
}
