package annotate

import (
	"sort"
	"strings"

	"stc/src/ast"
	"stc/src/index"
)

// inferringPass walks every statement/expression in u, annotating each
// expression node with its resulting type and, where its context expects a
// different type, a type hint (spec.md §4.4 pass 3 / §4.3's promotion
// rules).
func (r *Resolver) inferringPass(u *ast.Unit) {
	for _, pn := range u.POUs {
		r.inferPOU(pn)
	}
}

// inferPOU infers pn's own implementation body (if it has one) and then
// recurses into its nested METHOD/PROPERTY/ACTION POU children, mirroring
// scopedResolutionPass's recursive unpacking of the same Children shape.
func (r *Resolver) inferPOU(pn *ast.Node) {
	pd, ok := pn.Data.(ast.POUData)
	if !ok {
		return
	}
	if impl, ok := r.ix.Impls[strings.ToUpper(pd.Name)]; ok {
		for _, c := range impl.Children {
			r.inferStmt(c)
		}
	}
	for _, c := range pn.Children {
		if c.Kind == ast.POU {
			r.inferPOU(c)
		}
	}
}

func (r *Resolver) inferStmt(n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.IntLiteral, ast.RealLiteral:
		r.annotateLiteral(n)
		return
	case ast.Assignment, ast.RefAssignment, ast.OutputAssignment:
		r.inferAssignment(n)
		return
	case ast.Call:
		r.inferCall(n)
		return
	case ast.BinaryExpr, ast.UnaryExpr, ast.ReferenceExpr:
		r.inferExpr(n)
		return
	}
	for _, c := range n.Children {
		r.inferStmt(c)
	}
}

// annotateLiteral records a literal leaf's own resulting type (the same
// DINT/LREAL default resultType already falls back to), so that a later
// Hint from an assignment, call argument or binary operand gives NeedsCast
// both halves of its comparison instead of finding the literal unannotated.
func (r *Resolver) annotateLiteral(n *ast.Node) {
	if _, ok := r.m.Get(n); ok {
		return
	}
	var t string
	switch n.Kind {
	case ast.IntLiteral:
		t = "DINT"
	case ast.RealLiteral:
		t = "LREAL"
	default:
		return
	}
	r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: t})
}

// inferAssignment hints the right-hand side with the left-hand side's
// declared type, per spec.md §4.4: "On an assignment left := right, the
// right-hand side receives a type hint equal to the left-hand side's
// declared type."
func (r *Resolver) inferAssignment(n *ast.Node) {
	if len(n.Children) != 2 {
		return
	}
	lhs, rhs := n.Children[0], n.Children[1]
	r.inferStmt(lhs)
	r.inferStmt(rhs)
	if ann, ok := r.m.Get(lhs); ok && ann.ResultingType != "" {
		r.m.Hint(rhs, ann.ResultingType)
	}
}

// inferCall hints each argument's value expression with its formal
// parameter's declared type.
func (r *Resolver) inferCall(n *ast.Node) {
	if len(n.Children) < 2 {
		return
	}
	callee, argList := n.Children[0], n.Children[1]
	calleeName := calleeQualifiedName(r.m, callee)
	pou, _ := r.ix.LookupPOU(calleeName)
	params := orderedParams(r.ix, pou)

	for i, arg := range argList.Children {
		if len(arg.Children) == 0 {
			continue
		}
		val := arg.Children[0]
		r.inferStmt(val)
		data, _ := arg.Data.(ast.ArgumentData)
		var paramType string
		if data.Name != "" {
			if v, ok := r.ix.LookupVariable(calleeName + "." + data.Name); ok {
				paramType = effectiveName(r.ix, v.TypeRef)
			}
		} else if i < len(params) {
			paramType = params[i]
		}
		if paramType != "" {
			r.m.Hint(val, paramType)
		}
	}
}

func orderedParams(ix *index.Index, p *index.POU) []string {
	if p == nil {
		return nil
	}
	var params []*index.Variable
	for _, v := range ix.Variables {
		if v.Owner == p.Name && v.IsParam() {
			params = append(params, v)
		}
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Offset < params[j].Offset })
	types := make([]string, 0, len(params))
	for _, v := range params {
		types = append(types, effectiveName(ix, v.TypeRef))
	}
	return types
}

// inferExpr annotates n's resulting type bottom-up: literals already carry
// one from the declared-type pass (enum elements) or are self-describing;
// binary/unary expressions combine their operands per the promotion
// lattice and record the promoted type as a hint on each operand (spec.md
// §4.3's "the resolver records... the promoted operand type... and, on
// each operand, a type-hint annotation carrying that promoted type").
func (r *Resolver) inferExpr(n *ast.Node) {
	switch n.Kind {
	case ast.BinaryExpr:
		if len(n.Children) != 2 {
			return
		}
		l, rr := n.Children[0], n.Children[1]
		r.inferStmt(l)
		r.inferStmt(rr)
		lt := r.resultType(l)
		rt := r.resultType(rr)
		ltype, lok := r.ix.EffectiveType(lt)
		rtype, rok := r.ix.EffectiveType(rt)
		if !lok || !rok {
			return
		}
		promoted := r.ix.Promote(ltype, rtype)
		if promoted == nil {
			return
		}
		if isComparison(n) {
			r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: "BOOL"})
		} else {
			r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: promoted.Name})
		}
		r.m.Hint(l, promoted.Name)
		r.m.Hint(rr, promoted.Name)
	case ast.UnaryExpr:
		if len(n.Children) != 1 {
			return
		}
		r.inferStmt(n.Children[0])
		if ann, ok := r.m.Get(n.Children[0]); ok {
			r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: ann.ResultingType})
		}
	case ast.ReferenceExpr:
		for _, c := range n.Children {
			r.inferStmt(c)
		}
	}
}

func (r *Resolver) resultType(n *ast.Node) string {
	if ann, ok := r.m.Get(n); ok {
		if ann.ResultingType != "" {
			return ann.ResultingType
		}
		return ann.ReturnType
	}
	switch n.Kind {
	case ast.IntLiteral:
		return "DINT"
	case ast.RealLiteral:
		return "LREAL"
	case ast.BoolLiteral:
		return "BOOL"
	case ast.StringLiteral:
		return "STRING"
	}
	return ""
}

// isComparison reports whether n's operator token name suggests a
// relational/equality comparison. Codegen and the validator both need
// "does this binary expression yield BOOL" — rather than depend on
// src/frontend's token set from this package, the operator's already-
// recorded Data is compared by its String() spelling, which is stable
// across the lexer's token table.
func isComparison(n *ast.Node) bool {
	switch stringerName(n.Data) {
	case "TokEq", "TokNe", "TokLt", "TokLe", "TokGt", "TokGe":
		return true
	}
	return false
}

func stringerName(v interface{}) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return ""
}
