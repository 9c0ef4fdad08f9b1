package index

import (
	"strings"
	"sync"

	"stc/src/ast"
	"stc/src/diag"
)

// BuildUnit walks a single compilation unit and returns a fresh, unit-local
// Index recording every type/POU/variable/constant it declares. It performs
// no cross-unit lookups (a sub-range's base type, say, may live in a
// different file) — that resolution happens later, in src/annotate, once
// every unit's Index has been merged (spec.md §5's "build now, resolve
// later" ordering).
func BuildUnit(u *ast.Unit, batch *diag.Batch) *Index {
	ix := New()
	b := &builder{ix: ix, file: u.File, batch: batch}

	for _, t := range u.Types {
		b.indexTypeDecl(t)
	}
	for _, g := range u.Globals {
		b.indexVarBlock(g, "", RoleGlobal)
	}
	for _, p := range u.POUs {
		b.indexPOU(p)
	}
	for _, impl := range u.Impls {
		if d, ok := impl.Data.(ast.ImplementationData); ok {
			ix.Impls[fold(d.Name)] = impl
		}
	}
	return ix
}

// BuildProject runs BuildUnit over every unit in parallel and folds the
// results into a single shared Index via a deterministic serial merge,
// directly mirroring the teacher's ir.Optimise/ir.ValidateTree worker-pool
// shape: one goroutine per chunk of units, a WaitGroup barrier, then a
// strictly sequential reduction so diagnostic order stays reproducible
// (spec.md §5).
func BuildProject(proj *ast.Project, batch *diag.Batch, threads int) *Index {
	if threads < 1 {
		threads = 1
	}
	n := len(proj.Units)
	results := make([]*Index, n)

	chunk := (n + threads - 1) / threads
	if chunk < 1 {
		chunk = 1
	}
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				results[i] = BuildUnit(proj.Units[i], batch)
			}
		}(lo, hi)
	}
	wg.Wait()

	merged := New()
	RegisterBuiltins(merged)
	for _, r := range results {
		merged.Merge(r, batch)
	}
	merged.Freeze()
	return merged
}

// builder carries per-unit indexing state.
type builder struct {
	ix    *Index
	file  int
	batch *diag.Batch
}

func (b *builder) indexTypeDecl(n *ast.Node) {
	d, ok := n.Data.(ast.TypeDeclData)
	if !ok || d.Name == "" {
		return
	}
	t := &Type{Name: d.Name, Loc: n.Loc, Node: n}

	switch {
	case n.Kind == ast.StructType:
		t.Kind = KindStruct
		t.Members = b.structMembers(n)
	case n.Kind == ast.EnumType:
		t.Kind = KindEnum
		t.Backing = d.BackingType
		t.Elements = b.enumElements(n)
	case n.Kind == ast.ArrayType:
		t.Kind = KindArray
		t.Element = d.ElementTypeRef
		t.VLA = d.VLA
		t.Dims = b.arrayDims(n)
	case d.InnerTypeRef != "":
		t.Kind = KindPointer
		t.Inner = d.InnerTypeRef
		t.Deref = d.Deref
	case d.HasRange:
		t.Kind = KindSubRange
		t.Base = d.BaseType
		t.Low, t.Hi, t.HasRange = d.Low, d.Hi, true
	case d.StringSize > 0:
		t.Kind = KindString
		t.StrSize = d.StringSize
		t.StrWide = d.StringEncoding == ast.UTF16
	default:
		t.Kind = KindAlias
		t.AliasOf = d.BaseType
	}

	b.ix.Types[fold(d.Name)] = t
	if t.Kind == KindEnum {
		b.ix.Enums[fold(d.Name)] = t
	}
}

func (b *builder) structMembers(n *ast.Node) []StructMember {
	members := make([]StructMember, 0, len(n.Children))
	for i, c := range n.Children {
		if c.Kind != ast.StructMember {
			continue
		}
		vd, _ := c.Data.(ast.VariableData)
		members = append(members, StructMember{Name: vd.Name, TypeRef: vd.TypeRef, Offset: i})
	}
	return members
}

func (b *builder) enumElements(n *ast.Node) []EnumElement {
	elems := make([]EnumElement, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Kind != ast.EnumElement {
			continue
		}
		name, _ := c.Data.(string)
		id := ConstID(-1)
		if len(c.Children) > 0 {
			id = b.ix.AddConst(c.Children[0], "")
		}
		elems = append(elems, EnumElement{Name: name, ConstID: id})
	}
	return elems
}

func (b *builder) arrayDims(n *ast.Node) []ArrayDim {
	dims := make([]ArrayDim, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Kind != ast.ArrayDimension {
			continue
		}
		ad, _ := c.Data.(ast.ArrayDimensionData)
		dims = append(dims, ArrayDim{Lo: ad.Lo, Hi: ad.Hi})
	}
	return dims
}

// indexVarBlock walks a VariableBlock node, registering each Variable child.
// owner is the qualified POU name ("" for globals); defaultRole is the role
// assigned when the block's own kind doesn't disambiguate it further (e.g.
// VAR_INPUT maps to RoleParamIn regardless of defaultRole).
func (b *builder) indexVarBlock(n *ast.Node, owner string, defaultRole VarRole) {
	bd, _ := n.Data.(ast.VariableBlockData)
	role := defaultRole
	switch bd.Kind {
	case ast.VarInput:
		role = RoleParamIn
	case ast.VarOutput:
		role = RoleParamOut
	case ast.VarInOut:
		role = RoleParamInOut
	case ast.VarTemp:
		role = RoleTemp
	case ast.VarReturn:
		role = RoleReturn
	case ast.VarGlobal, ast.VarExternal:
		role = RoleGlobal
	case ast.VarLocal, ast.VarBase:
		if owner != "" {
			role = RoleMember
		} else {
			role = RoleLocal
		}
	}

	vars := make([]*ast.Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Kind == ast.Block {
			vars = append(vars, c.Children...)
		} else {
			vars = append(vars, c)
		}
	}
	for i, c := range vars {
		if c.Kind != ast.Variable {
			continue
		}
		vd, _ := c.Data.(ast.VariableData)
		key := vd.Name
		if owner != "" {
			key = owner + "." + vd.Name
		}
		v := &Variable{
			Name:      key,
			Simple:    vd.Name,
			Owner:     owner,
			TypeRef:   vd.TypeRef,
			Loc:       c.Loc,
			Node:      c,
			Role:      role,
			Passing:   bd.Passing,
			Constant:  bd.Constant,
			Retain:    bd.Retain,
			Offset:    i,
			HWAddress: vd.HWAddress,
		}
		if len(c.Children) > 0 && c.Children[len(c.Children)-1].Kind != ast.TypeDecl {
			v.HasInit = true
			v.InitConst = b.ix.AddConst(c.Children[len(c.Children)-1], vd.TypeRef)
		}
		b.ix.Variables[fold(key)] = v
	}
}

func (b *builder) indexPOU(n *ast.Node) { b.indexPOUOwned(n, "", false) }

// indexPOUOwned indexes a POU node, recording owner as its containing
// class/function-block's qualified name (empty for top-level POUs). A
// class's METHOD/PROPERTY children were parsed as their own nested POU
// nodes mixed into the class POU's Children alongside its VariableBlock
// children (src/frontend/parser.go's parsePOU); this is where that mixing
// gets unpacked: VariableBlock children become member variables, nested
// POU children become owned methods indexed under the class's name.
// ownerIsInterface is true while indexing the direct children of an
// INTERFACE declaration, marking its METHOD/PROPERTY signatures Abstract
// (they have no Implementation body of their own, see spec.md §4.6's
// Interfaces check).
func (b *builder) indexPOUOwned(n *ast.Node, owner string, ownerIsInterface bool) {
	pd, ok := n.Data.(ast.POUData)
	if !ok {
		return
	}
	p := &POU{
		Name:         pd.Name,
		Kind:         pd.Kind,
		Loc:          n.Loc,
		Node:         n,
		ReturnType:   pd.ReturnTypeRef,
		Super:        pd.Super,
		Interfaces:   pd.Interfaces,
		InstanceType: pd.Name,
		CallName:     mangle(pd.Name),
		Owner:        owner,
		IsInterface:  pd.IsInterface,
		Abstract:     ownerIsInterface,
		Linkage:      pd.Linkage,
	}

	if pd.Kind == ast.POUProgram || pd.Kind == ast.POUFunctionBlock || pd.Kind == ast.POUClass {
		b.ix.Types[fold(pd.Name)] = &Type{Name: pd.Name, Kind: KindStruct, Loc: n.Loc, Node: n}
	}

	for _, c := range n.Children {
		switch c.Kind {
		case ast.VariableBlock:
			b.indexVarBlock(c, pd.Name, RoleLocal)
		case ast.POU:
			b.indexPOUOwned(c, pd.Name, pd.IsInterface)
			if cd, ok := c.Data.(ast.POUData); ok && cd.Kind == ast.POUProperty {
				b.indexPropertyAccessor(pd.Name, cd, c.Loc)
			}
		case ast.Implementation:
			if d, ok := c.Data.(ast.ImplementationData); ok {
				b.ix.Impls[fold(d.Name)] = c
			}
		}
	}

	b.ix.POUs[fold(pd.Name)] = p
}

// indexPropertyAccessor folds one GET or SET accessor POU (named
// "Owner.get_Name"/"Owner.set_Name" by src/frontend/parser.go) into owner's
// shared Property entry, creating it on first sight of either accessor.
func (b *builder) indexPropertyAccessor(owner string, pd ast.POUData, loc ast.Loc) {
	name, accessor, ok := splitAccessorName(pd.Name)
	if !ok {
		return
	}
	key := fold(owner + "." + name)
	prop, exists := b.ix.Properties[key]
	if !exists {
		prop = &Property{Owner: owner, Name: name}
		b.ix.Properties[key] = prop
	}
	switch accessor {
	case "get":
		prop.HasGet = true
		prop.GetLoc = loc
		prop.ReturnType = pd.ReturnTypeRef
	case "set":
		prop.HasSet = true
		prop.SetLoc = loc
	}
}

// splitAccessorName splits a synthesized accessor POU name into the
// property's simple name and which accessor ("get"/"set") it implements.
func splitAccessorName(qualified string) (name, accessor string, ok bool) {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return "", "", false
	}
	simple := qualified[i+1:]
	switch {
	case strings.HasPrefix(simple, "get_"):
		return simple[len("get_"):], "get", true
	case strings.HasPrefix(simple, "set_"):
		return simple[len("set_"):], "set", true
	}
	return "", "", false
}

// mangle produces the section-name ABI tag codegen uses to distinguish
// overloaded/qualified call targets (spec.md §4.7 "fn-<name>:<types>"); the
// type-suffix half is appended later by codegen once parameter types are
// resolved, so the indexer only ever emits the bare-name prefix.
func mangle(name string) string {
	return "fn-" + name
}
