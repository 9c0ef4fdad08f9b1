package lowering

import (
	"strings"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
)

// PolymorphicCallLowering is mandatory built-in participant 2 (spec.md
// §4.2): rewrites virtual calls into indirect calls through the vtable
// slot VTableGenerator assigned. It must run after VTableGenerator, which
// NewDriver's registration order guarantees.
type PolymorphicCallLowering struct {
	BaseParticipant
	VTables *VTableGenerator

	// Slots maps a lowered Call node's id to the vtable slot index codegen
	// must load through, instead of calling the statically resolved target
	// directly.
	Slots map[ast.ID]int
}

func (p *PolymorphicCallLowering) Name() string { return "polymorphic-call-lowering" }

// Bind wires this participant to the VTableGenerator instance that ran
// earlier in the same pipeline, since the vtable layout it needs is built
// in that pass's PostIndex hook, not reconstructable from the index alone
// (slot order depends on ancestor declaration order, not just presence).
func (p *PolymorphicCallLowering) Bind(v *VTableGenerator) { p.VTables = v }

func (p *PolymorphicCallLowering) PreCodegen(m *annotate.Map, batch *diag.Batch) {
	p.Slots = map[ast.ID]int{}
	if p.VTables == nil {
		return
	}
	for _, impl := range m.Index.Impls {
		ast.Walk(impl, func(n *ast.Node) {
			if n.Kind != ast.Call || len(n.Children) == 0 {
				return
			}
			callee := n.Children[0]
			ann, ok := m.Get(callee)
			if !ok || ann.Kind != annotate.AnnFunction {
				return
			}
			owner, method := splitQualified(ann.QualifiedName)
			methods, ok := p.vtableFor(owner)
			if !ok {
				return
			}
			for slot, name := range methods {
				if strings.EqualFold(name, method) {
					p.Slots[n.ID] = slot
					return
				}
			}
		})
	}
}

// vtableFor returns the vtable recorded for owner itself; no ancestor walk
// is made. VTableGenerator records a layout for every class/function-block
// with a super-class or interfaces, and that layout already includes every
// ancestor's methods.
func (p *PolymorphicCallLowering) vtableFor(owner string) ([]string, bool) {
	methods, ok := p.VTables.VTables[owner]
	return methods, ok
}

func splitQualified(qualified string) (owner, member string) {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+1:]
}

// PropertyLowering is mandatory built-in participant 3 (spec.md §4.2):
// rewrites property reads/writes into calls to the GET/SET implementations.
// Run at PreCodegen so the resolver's annotation map (needed to tell a
// property member apart from an ordinary field) is already populated.
type PropertyLowering struct {
	BaseParticipant
}

func (pl *PropertyLowering) Name() string { return "property-lowering" }

func (pl *PropertyLowering) PreCodegen(m *annotate.Map, batch *diag.Batch) {
	for _, impl := range m.Index.Impls {
		pl.lowerStmtList(impl, m, batch)
	}
}

func (pl *PropertyLowering) lowerStmtList(n *ast.Node, m *annotate.Map, batch *diag.Batch) {
	for i, c := range n.Children {
		if c.Kind == ast.Assignment {
			pl.lowerAssignment(c, m, batch)
			continue // The assignment's own lhs was consumed into the SET call; don't also read-lower it.
		}
		if replacement := pl.lowerRead(c, m, batch); replacement != nil {
			n.Children[i] = replacement
			c = replacement
		}
		pl.lowerStmtList(c, m, batch)
	}
}

// lowerRead rewrites a bare property reference used as a value (anywhere
// other than an assignment's left-hand side, which lowerAssignment already
// handles) into a Call to its GET accessor, returning the replacement node
// or nil if n isn't a property read.
func (pl *PropertyLowering) lowerRead(n *ast.Node, m *annotate.Map, batch *diag.Batch) *ast.Node {
	if n.Kind != ast.Identifier && n.Kind != ast.ReferenceExpr {
		return nil
	}
	ann, ok := m.Get(n)
	if !ok || ann.Kind != annotate.AnnVariable {
		return nil
	}
	prop, ok := m.Index.Properties[strings.ToUpper(ann.QualifiedName)]
	if !ok || !prop.HasGet {
		return nil
	}
	getName := prop.Owner + ".get_" + prop.Name
	p, ok := m.Index.LookupPOU(getName)
	if !ok {
		batch.Errorf(diag.EGetSetCountWrong, n.Loc, "property %q has no GET accessor to lower into", ann.QualifiedName)
		return nil
	}
	calleeRef := &ast.Node{ID: n.ID, Kind: ast.Identifier, Loc: n.Loc, Data: p.Name}
	argList := &ast.Node{ID: n.ID, Kind: ast.ArgumentList, Loc: n.Loc}
	call := &ast.Node{ID: n.ID, Kind: ast.Call, Loc: n.Loc, Children: []*ast.Node{calleeRef, argList}}
	m.Annotate(calleeRef, annotate.Annotation{Kind: annotate.AnnFunction, QualifiedName: p.Name, ReturnType: prop.ReturnType, CallName: p.CallName})
	m.Annotate(call, annotate.Annotation{Kind: annotate.AnnValue, ResultingType: prop.ReturnType})
	return call
}

// lowerAssignment rewrites `lhs := rhs` in place into a Call to the
// property's SET accessor when lhs names a property member, converting the
// Assignment node itself into the replacement Call node so every existing
// parent/child pointer into it stays valid.
func (pl *PropertyLowering) lowerAssignment(n *ast.Node, m *annotate.Map, batch *diag.Batch) {
	if len(n.Children) != 2 {
		return
	}
	lhs, rhs := n.Children[0], n.Children[1]
	ann, ok := m.Get(lhs)
	if !ok || ann.Kind != annotate.AnnVariable {
		return
	}
	prop, ok := m.Index.Properties[strings.ToUpper(ann.QualifiedName)]
	if !ok || !prop.HasSet {
		return
	}
	setName := prop.Owner + ".set_" + prop.Name
	p, ok := m.Index.LookupPOU(setName)
	if !ok {
		batch.Errorf(diag.EGetSetCountWrong, n.Loc, "property %q has no SET accessor to lower into", ann.QualifiedName)
		return
	}
	calleeRef := &ast.Node{ID: lhs.ID, Kind: ast.Identifier, Loc: lhs.Loc, Data: p.Name}
	arg := &ast.Node{ID: rhs.ID, Kind: ast.Argument, Loc: rhs.Loc, Data: ast.ArgumentData{}, Children: []*ast.Node{rhs}}
	argList := &ast.Node{ID: n.ID, Kind: ast.ArgumentList, Loc: n.Loc, Children: []*ast.Node{arg}}
	n.Kind = ast.Call
	n.Data = nil
	n.Children = []*ast.Node{calleeRef, argList}
	m.Annotate(calleeRef, annotate.Annotation{Kind: annotate.AnnFunction, QualifiedName: p.Name, ReturnType: "", CallName: p.CallName})
}
