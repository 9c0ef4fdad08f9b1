package annotate

import (
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// Resolver runs the three-pass algorithm of spec.md §4.4 over an indexed
// project, producing a Map. It is re-entrant per project (not per unit): the
// scoped-resolution and inferring passes need the fully merged, frozen
// Index so a reference in one compilation unit can resolve to a POU or
// global declared in another.
type Resolver struct {
	ix    *index.Index
	batch *diag.Batch
	m     *Map
}

// NewResolver returns a Resolver over the frozen project index ix.
func NewResolver(ix *index.Index, batch *diag.Batch) *Resolver {
	return &Resolver{ix: ix, batch: batch, m: NewMap(ix)}
}

// Run executes all three passes over every unit and returns the resulting
// annotation map.
func (r *Resolver) Run(proj *ast.Project) *Map {
	r.declaredTypePass()
	for _, u := range proj.Units {
		r.scopedResolutionPass(u)
	}
	for _, u := range proj.Units {
		r.inferringPass(u)
	}
	return r.m
}

// declaredTypePass annotates variable declarations, POU signatures,
// constants and enum members, filling in effective types through alias
// chains (spec.md §4.4 pass 1). It walks the Index rather than raw AST
// since every declaration the pass cares about already has an Index entry
// with its effective-type linkage resolved.
func (r *Resolver) declaredTypePass() {
	for _, v := range r.ix.Variables {
		ann := Annotation{
			Kind:          AnnVariable,
			QualifiedName: v.Name,
			ResultingType: effectiveName(r.ix, v.TypeRef),
			Constant:      v.Constant,
			ArgumentType:  v.Passing,
			AutoDeref:     v.Deref,
		}
		r.m.Annotate(v.Node, ann)
	}
	for _, p := range r.ix.POUs {
		var kind AnnotationKind = AnnProgram
		if p.IsCallable() && p.Kind != ast.POUProgram {
			kind = AnnFunction
		}
		r.m.Annotate(p.Node, Annotation{
			Kind:          kind,
			QualifiedName: p.Name,
			ReturnType:    effectiveName(r.ix, p.ReturnType),
			CallName:      p.CallName,
		})
	}
	for _, t := range r.ix.Types {
		if t.Node == nil {
			continue
		}
		r.m.Annotate(t.Node, Annotation{Kind: AnnType, TypeName: t.Name})
		for _, e := range t.Elements {
			// Enum element nodes are indexed separately from their owning
			// TypeDecl; the constant evaluator (src/index/constant) already
			// assigned each one a ConstID, so here they just need a Value
			// annotation carrying the enum's own name as their type.
			if c := r.ix.Const(e.ConstID); c != nil && c.Expr != nil {
				r.m.Annotate(c.Expr, Annotation{Kind: AnnValue, ResultingType: t.Name})
			}
		}
	}
}

// effectiveName resolves name through alias/sub-range chains to the name of
// its effective type, or returns name unchanged if it cannot be resolved
// yet (another unit may still declare it; the scoped-resolution pass
// reports a real diagnostic for any name that remains unresolved there).
func effectiveName(ix *index.Index, name string) string {
	if name == "" {
		return ""
	}
	if t, ok := ix.EffectiveType(name); ok {
		return t.Name
	}
	return name
}

// scopedResolutionPass walks each POU's implementation body with a scope
// stack, resolving every Identifier/ReferenceExpr root to a Variable,
// Function, Program, or Type annotation (spec.md §4.4 pass 2). A class's
// METHOD/PROPERTY/ACTION bodies are nested POU nodes mixed into the class
// POU's own Children (src/frontend/parser.go's parsePOU), not separate
// entries of ast.Unit.POUs, so this recurses into every POU child the same
// way src/index/build.go's indexPOUOwned unpacks them — otherwise no method
// or property-accessor body would ever be resolved at all.
func (r *Resolver) scopedResolutionPass(u *ast.Unit) {
	for _, pn := range u.POUs {
		r.resolvePOU(pn)
	}
}

func (r *Resolver) resolvePOU(pn *ast.Node) {
	pd, ok := pn.Data.(ast.POUData)
	if !ok {
		return
	}
	p, ok := r.ix.LookupPOU(pd.Name)
	if ok {
		if impl, ok := r.ix.Impls[strings.ToUpper(pd.Name)]; ok {
			st := NewScopeStack()
			st.Push(Frame{Kind: ScopeGlobalVariables})
			st.Push(Frame{Kind: ScopePOUs})
			st.Push(Frame{Kind: ScopeTypes})
			st.Push(Frame{Kind: ScopeLocalVariable, Owner: p.Name})
			for _, c := range impl.Children {
				r.resolveStmt(c, st)
			}
		}
	}
	for _, c := range pn.Children {
		if c.Kind == ast.POU {
			r.resolvePOU(c)
		}
	}
}

// resolveStmt recurses through a statement subtree, pushing/popping scope
// frames for constructs that introduce their own lexical context (a FOR
// loop's control variable, a CASE arm) and resolving every reference it
// finds along the way.
func (r *Resolver) resolveStmt(n *ast.Node, st *ScopeStack) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.Call:
		r.resolveCall(n, st)
		return
	case ast.ReferenceExpr, ast.Identifier:
		r.resolveRef(n, st)
		return
	}
	for _, c := range n.Children {
		r.resolveStmt(c, st)
	}
}

// resolveCall resolves the callee to a Function/Program annotation, then
// resolves each argument's value expression in the surrounding scope. A
// named argument's parameter name is not scope-resolved here: inferCall and
// codegen match it directly against the callee's own parameters.
func (r *Resolver) resolveCall(n *ast.Node, st *ScopeStack) {
	if len(n.Children) == 0 {
		return
	}
	callee := n.Children[0]
	r.resolveRef(callee, st)

	if len(n.Children) < 2 {
		return
	}
	argList := n.Children[1]
	for _, arg := range argList.Children {
		// An Argument node's Children[0] is the value expression; named
		// arguments additionally carry the parameter name in their Data,
		// which never needs scope resolution (it's matched directly
		// against the callee's parameter table), so only the value
		// expression is walked here.
		if len(arg.Children) == 0 {
			continue
		}
		r.resolveStmt(arg.Children[0], st)
	}
}

func paramNames(ix *index.Index, p *index.POU) map[string]bool {
	names := map[string]bool{}
	if p == nil {
		return names
	}
	for key, v := range ix.Variables {
		if v.Owner == p.Name && v.IsParam() {
			names[strings.ToUpper(v.Simple)] = true
			_ = key
		}
	}
	return names
}

func calleeQualifiedName(m *Map, n *ast.Node) string {
	ann, ok := m.Get(n)
	if !ok {
		return ""
	}
	return ann.QualifiedName
}

// resolveRef resolves a bare Identifier or a ReferenceExpr chain's root to
// its declaration, walking from innermost scope outward (or restricted to
// the innermost frame alone when it is Strict).
func (r *Resolver) resolveRef(n *ast.Node, st *ScopeStack) {
	switch n.Kind {
	case ast.Identifier:
		name := n.Data.(string)
		r.lookupAndAnnotate(n, name, st)
	case ast.ReferenceExpr:
		data := n.Data.(ast.RefExprData)
		base := n.Base()
		switch data.Access {
		case ast.RefMember:
			r.resolveStmt(base, st)
			r.resolveMember(n, base, data.Member)
		case ast.RefIndex:
			r.resolveStmt(base, st)
			if idx := n.Index(); idx != nil {
				r.resolveStmt(idx, st)
			}
			if ann, ok := r.m.Get(base); ok {
				r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: elementTypeOf(r.ix, ann.ResultingType)})
			}
		case ast.RefDeref:
			r.resolveStmt(base, st)
			if ann, ok := r.m.Get(base); ok {
				r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: pointerInnerOf(r.ix, ann.ResultingType)})
			}
		case ast.RefAddress:
			r.resolveStmt(base, st)
		case ast.RefCast:
			r.resolveStmt(base, st)
			r.m.Annotate(n, Annotation{Kind: AnnValue, ResultingType: data.CastTarget})
		}
	}
}

// resolveMember annotates a qualified-member reference (a.b) by looking up
// "b" as a member of whatever type "a" resolved to.
func (r *Resolver) resolveMember(n, base *ast.Node, member string) {
	ann, ok := r.m.Get(base)
	if !ok {
		return
	}
	owner := ann.QualifiedName
	if owner == "" {
		owner = ann.ResultingType
	}
	key := owner + "." + member
	if v, ok := r.ix.LookupVariable(key); ok {
		r.m.Annotate(n, Annotation{
			Kind: AnnVariable, QualifiedName: v.Name,
			ResultingType: effectiveName(r.ix, v.TypeRef),
			Constant:      v.Constant, ArgumentType: v.Passing, AutoDeref: v.Deref,
		})
		return
	}
	if p, ok := r.ix.LookupPOU(key); ok {
		r.m.Annotate(n, Annotation{Kind: AnnFunction, QualifiedName: p.Name, ReturnType: effectiveName(r.ix, p.ReturnType), CallName: p.CallName})
		return
	}
	r.batch.Errorf(diag.EUnresolvedReference, n.Loc, "%q has no member %q", owner, member)
}

// lookupAndAnnotate resolves name against the scope stack's frames
// (innermost first; a Strict frame stops the walk instead of falling
// through to the enclosing scope on a miss).
func (r *Resolver) lookupAndAnnotate(n *ast.Node, name string, st *ScopeStack) {
	frames := st.Frames()
	for _, f := range frames {
		if ok := r.tryFrame(n, name, f); ok {
			return
		}
		if f.Kind == ScopeStrict {
			break
		}
	}
	r.batch.Errorf(diag.EUnresolvedReference, n.Loc, "unresolved reference %q", name)
}

func (r *Resolver) tryFrame(n *ast.Node, name string, f Frame) bool {
	switch f.Kind {
	case ScopeStrict:
		if !f.Names[strings.ToUpper(name)] {
			return false
		}
		key := f.Owner + "." + name
		if v, ok := r.ix.LookupVariable(key); ok {
			r.m.Annotate(n, Annotation{Kind: AnnVariable, QualifiedName: v.Name, ResultingType: effectiveName(r.ix, v.TypeRef), ArgumentType: v.Passing})
			return true
		}
		return false
	case ScopeLocalVariable:
		key := f.Owner + "." + name
		if v, ok := r.ix.LookupVariable(key); ok {
			r.m.Annotate(n, Annotation{
				Kind: AnnVariable, QualifiedName: v.Name,
				ResultingType: effectiveName(r.ix, v.TypeRef),
				Constant:      v.Constant, ArgumentType: v.Passing, AutoDeref: v.Deref,
			})
			return true
		}
		return false
	case ScopeGlobalVariables:
		if v, ok := r.ix.LookupVariable(name); ok && v.Owner == "" {
			r.m.Annotate(n, Annotation{Kind: AnnVariable, QualifiedName: v.Name, ResultingType: effectiveName(r.ix, v.TypeRef), Constant: v.Constant})
			return true
		}
		return false
	case ScopePOUs:
		if p, ok := r.ix.LookupPOU(name); ok {
			kind := AnnProgram
			if p.IsCallable() && p.Kind != ast.POUProgram {
				kind = AnnFunction
			}
			r.m.Annotate(n, Annotation{Kind: kind, QualifiedName: p.Name, ReturnType: effectiveName(r.ix, p.ReturnType), CallName: p.CallName})
			return true
		}
		return false
	case ScopeTypes:
		if t, ok := r.ix.LookupType(name); ok {
			r.m.Annotate(n, Annotation{Kind: AnnType, TypeName: t.Name})
			return true
		}
		return false
	}
	return false
}

func elementTypeOf(ix *index.Index, arrayTypeName string) string {
	if t, ok := ix.EffectiveType(arrayTypeName); ok && t.Kind == index.KindArray {
		return t.Element
	}
	return arrayTypeName
}

func pointerInnerOf(ix *index.Index, ptrTypeName string) string {
	if t, ok := ix.EffectiveType(ptrTypeName); ok && t.Kind == index.KindPointer {
		return t.Inner
	}
	return ptrTypeName
}
