package validate

import (
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
	"stc/src/index/constant"
)

// caseSpan is one CASE label's folded integer range, kept only for labels
// the evaluator could resolve — a label naming something the evaluator
// can't fold (a non-constant expression slipping past the parser) is simply
// skipped rather than reported, since that's a different diagnostic's job.
type caseSpan struct {
	lo, hi int64
	loc    ast.Loc
}

// checkSwitchCase validates spec.md §4.6's "Switch/case" category: no two
// CASE labels (including range labels) on the same selector may overlap.
// Reuses the project's existing constant.Evaluator rather than re-folding
// label expressions by hand.
func checkSwitchCase(n *ast.Node, ev *constant.Evaluator, batch *diag.Batch) {
	var spans []caseSpan
	for _, branch := range n.Children[1:] {
		if branch.Kind != ast.CaseBranch {
			continue
		}
		if s, ok := branch.Data.(string); ok && s == "else" {
			continue
		}
		labels := branch.Children
		if len(labels) > 0 {
			labels = labels[:len(labels)-1] // drop the trailing body child.
		}
		for _, label := range labels {
			if label.Kind != ast.CaseLabel || len(label.Children) == 0 {
				continue
			}
			lo, ok := evalCaseBound(ev, label.Children[0])
			if !ok {
				continue
			}
			hi := lo
			if len(label.Children) > 1 {
				hi, ok = evalCaseBound(ev, label.Children[1])
				if !ok {
					continue
				}
			}
			spans = append(spans, caseSpan{lo: lo, hi: hi, loc: label.Loc})
		}
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].lo <= spans[j].hi && spans[j].lo <= spans[i].hi {
				batch.Errorf(diag.EDuplicateCase, spans[j].loc,
					"case label overlaps earlier label at line %d", spans[i].loc.Line)
			}
		}
	}
}

func evalCaseBound(ev *constant.Evaluator, n *ast.Node) (int64, bool) {
	v, err := ev.Eval(n)
	if err != nil || v.Kind != index.ConstInt {
		return 0, false
	}
	return v.Int, true
}
