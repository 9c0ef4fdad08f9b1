package validate

import (
	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// checkConstants validates spec.md §4.6's "Constants" category: a variable
// declared CONSTANT must carry an initializer (there's no other way to
// give it a value, since every later write is illegal), and nothing may
// assign to a constant after declaration.
func checkConstants(ix *index.Index, batch *diag.Batch) {
	for _, v := range ix.Variables {
		if v.Constant && !v.HasInit {
			batch.Errorf(diag.EConstantRequiresInit, v.Loc, "constant %q has no initializer", v.Name)
		}
	}
}

// checkConstAssignment flags an Assignment whose left-hand side resolved to
// a constant variable.
func checkConstAssignment(n *ast.Node, m *annotate.Map, batch *diag.Batch) {
	if len(n.Children) != 2 {
		return
	}
	lhs := n.Children[0]
	ann, ok := m.Get(lhs)
	if !ok || ann.Kind != annotate.AnnVariable || !ann.Constant {
		return
	}
	batch.Errorf(diag.EAssignToConstant, n.Loc, "assignment to constant %q", ann.QualifiedName)
}
