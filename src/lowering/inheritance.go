package lowering

import (
	"strings"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// InheritanceLowering is mandatory built-in participant 4 (spec.md §4.2):
// for every class/function-block that EXTENDS a super-type, injects a
// __BASE member of the super-type as the instance's first member, and
// qualifies every reference inside a method body that resolves to an
// inherited (not locally declared, not directly owned) member with a
// __BASE chain. This keeps the syntax tree acyclic — inheritance is
// expressed as a named member of the child's own struct, never as a
// pointer back into the parent's AST (spec.md's "Recursive AST with
// cycles" design note).
type InheritanceLowering struct {
	BaseParticipant
}

func (il *InheritanceLowering) Name() string { return "inheritance-lowering" }

// PostIndex runs once the full project index is built (and before
// annotation, so the rewritten references resolve the same way ordinary
// ones do). It must run before InitializerSynthesis, which reads the
// __BASE member back out to order nested initializer calls.
func (il *InheritanceLowering) PostIndex(ix *index.Index, batch *diag.Batch) {
	for _, p := range ix.POUs {
		if p.Kind != ast.POUClass && p.Kind != ast.POUFunctionBlock {
			continue
		}
		if p.Super == "" {
			continue
		}
		key := strings.ToUpper(p.Name + ".__BASE")
		if _, exists := ix.Variables[key]; exists {
			continue
		}
		ix.Variables[key] = &index.Variable{
			Name: p.Name + ".__BASE", Simple: "__BASE", Owner: p.Name,
			TypeRef: p.Super, Role: index.RoleMember, Offset: -1,
		}
	}

	for key, impl := range ix.Impls {
		method, ok := ix.LookupPOU(key)
		if !ok || method.Owner == "" {
			continue
		}
		class, ok := ix.LookupPOU(method.Owner)
		if !ok || class.Super == "" {
			continue
		}
		il.qualifyParentRefs(impl, ix, class.Name, method.Name)
	}
}

// qualifyParentRefs walks impl's statement tree, replacing any bare
// Identifier that names an inherited (not local, not own-class) member
// with a ReferenceExpr chain through the required number of __BASE hops.
func (il *InheritanceLowering) qualifyParentRefs(n *ast.Node, ix *index.Index, className, methodName string) {
	for i, c := range n.Children {
		if c.Kind == ast.Identifier {
			if name, ok := c.Data.(string); ok {
				if depth, ok := inheritedMemberDepth(ix, className, methodName, name); ok {
					n.Children[i] = wrapBaseChain(c, name, depth)
					continue
				}
			}
		}
		il.qualifyParentRefs(c, ix, className, methodName)
	}
}

// inheritedMemberDepth reports how many __BASE hops from className reach a
// member named name, or false when name is the method's own local/param,
// a member declared directly on className, or not a member anywhere in
// the ancestor chain (an ordinary identifier the resolver handles as
// usual: a global, a POU name, a type name, ...).
func inheritedMemberDepth(ix *index.Index, className, methodName, name string) (int, bool) {
	if _, ok := ix.LookupVariable(methodName + "." + name); ok {
		return 0, false
	}
	if _, ok := ix.LookupVariable(className + "." + name); ok {
		return 0, false
	}
	cur := className
	depth := 0
	seen := map[string]bool{}
	for {
		p, ok := ix.LookupPOU(cur)
		if !ok || p.Super == "" || seen[cur] {
			return 0, false
		}
		seen[cur] = true
		cur = p.Super
		depth++
		if _, ok := ix.LookupVariable(cur + "." + name); ok {
			return depth, true
		}
	}
}

// PostAnnotate records, for every method that overrides an ancestor's
// method of the same simple name, an Override annotation naming the base
// method it replaces (spec.md §3.3's Override annotation kind). This runs
// after resolution so it can annotate by node rather than duplicate the
// resolver's own lookup machinery.
func (il *InheritanceLowering) PostAnnotate(m *annotate.Map, batch *diag.Batch) {
	ix := m.Index
	for _, p := range ix.POUs {
		if p.Kind != ast.POUMethod || p.Owner == "" {
			continue
		}
		class, ok := ix.LookupPOU(p.Owner)
		if !ok || class.Super == "" {
			continue
		}
		simple := strings.TrimPrefix(p.Name, p.Owner+".")
		if base, ok := findOverriddenMethod(ix, class.Super, simple); ok {
			m.Annotate(p.Node, annotate.Annotation{Kind: annotate.AnnOverride, OverrideOf: base})
		}
	}
}

// findOverriddenMethod walks fromClass's ancestor chain looking for a
// method named methodName, returning the first (nearest ancestor) match.
func findOverriddenMethod(ix *index.Index, fromClass, methodName string) (string, bool) {
	cur := fromClass
	seen := map[string]bool{}
	for cur != "" && !seen[cur] {
		seen[cur] = true
		if p, ok := ix.LookupPOU(cur + "." + methodName); ok {
			return p.Name, true
		}
		parent, ok := ix.LookupPOU(cur)
		if !ok {
			break
		}
		cur = parent.Super
	}
	return "", false
}

// wrapBaseChain replaces a bare identifier leaf with depth nested __BASE
// member accesses followed by the final member access, e.g. depth 1
// rewrites `x` into `__BASE.x`; depth 2 into `__BASE.__BASE.x`.
func wrapBaseChain(leaf *ast.Node, name string, depth int) *ast.Node {
	base := &ast.Node{ID: leaf.ID, Kind: ast.Identifier, Loc: leaf.Loc, Data: "__BASE"}
	for d := 1; d < depth; d++ {
		base = &ast.Node{
			ID: leaf.ID, Kind: ast.ReferenceExpr, Loc: leaf.Loc,
			Data:     ast.RefExprData{Access: ast.RefMember, Member: "__BASE"},
			Children: []*ast.Node{base},
		}
	}
	return &ast.Node{
		ID: leaf.ID, Kind: ast.ReferenceExpr, Loc: leaf.Loc,
		Data:     ast.RefExprData{Access: ast.RefMember, Member: name},
		Children: []*ast.Node{base},
	}
}
