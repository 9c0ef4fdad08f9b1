package codegen

import (
	"strings"

	"tinygo.org/x/go-llvm"

	"stc/src/index"
)

// typeCache maps an index.Type by name to its llvm.Type, memoizing struct
// bodies so a self-referential type (a linked-list node with a POINTER TO
// itself) can be looked up mid-construction without recursing forever:
// struct types are forward-declared via ctx.StructCreateNamed before their
// member list is walked, exactly the two-step "declare, then fill body"
// idiom LLVM's own C API documents for recursive aggregate types.
type typeCache struct {
	ctx  llvm.Context
	ix   *index.Index
	byName map[string]llvm.Type
}

func newTypeCache(ctx llvm.Context, ix *index.Index) *typeCache {
	return &typeCache{ctx: ctx, ix: ix, byName: map[string]llvm.Type{}}
}

// funcPtrType is the representation of the "__FUNCPTR" placeholder member
// VTableGenerator gives every vtable slot (spec.md §4.2 participant 1): an
// opaque function pointer, i8* bitcast to the right signature at each call
// site rather than typed per-slot, since a vtable mixes methods of
// differing arity/return type.
func (c *typeCache) funcPtrType() llvm.Type {
	return llvm.PointerType(c.ctx.Int8Type(), 0)
}

// get resolves name to an llvm.Type, building struct/array/pointer types on
// first use and memoizing the result.
func (c *typeCache) get(name string) llvm.Type {
	key := strings.ToUpper(name)
	if t, ok := c.byName[key]; ok {
		return t
	}
	t := c.build(name)
	c.byName[key] = t
	return t
}

func (c *typeCache) build(name string) llvm.Type {
	if name == "" || strings.EqualFold(name, "__FUNCPTR") {
		return c.funcPtrType()
	}
	t, ok := c.ix.LookupType(name)
	if !ok {
		// Unresolved reference already reported by src/validate; fall back
		// to an opaque byte so codegen can keep going and not panic.
		return c.ctx.Int8Type()
	}
	switch t.Kind {
	case index.KindVoid:
		return c.ctx.VoidType()
	case index.KindNumeric:
		if t.Bits == 1 {
			// BOOL's in-memory storage is i8 (spec.md §4.7: "i1 in
			// predicates"); predicates are truncated/extended at the use
			// site rather than carried as the stored type.
			return c.ctx.Int8Type()
		}
		return c.ctx.IntType(maxInt(t.Bits, 8))
	case index.KindFloat:
		if t.Bits <= 32 {
			return c.ctx.FloatType()
		}
		return c.ctx.DoubleType()
	case index.KindString:
		unit := c.ctx.Int8Type()
		if t.StrWide {
			unit = c.ctx.Int16Type()
		}
		return llvm.ArrayType(unit, t.StrSize+1)
	case index.KindPointer:
		return llvm.PointerType(c.get(t.Inner), 0)
	case index.KindEnum:
		return c.get(t.Backing)
	case index.KindAlias:
		return c.get(t.AliasOf)
	case index.KindSubRange:
		return c.get(t.Base)
	case index.KindArray:
		elem := c.get(t.Element)
		return arrayOfDims(elem, t.Dims)
	case index.KindStruct:
		return c.structType(t)
	case index.KindVarArgs, index.KindGeneric:
		return c.ctx.Int8Type()
	default:
		return c.ctx.Int8Type()
	}
}

// arrayOfDims builds the nested LLVM array type for a multi-dimensional
// declaration, innermost dimension first (spec.md §4.7: "Arrays become
// nested LLVM arrays").
func arrayOfDims(elem llvm.Type, dims []index.ArrayDim) llvm.Type {
	if len(dims) == 0 {
		return llvm.ArrayType(elem, 0)
	}
	t := elem
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		count := 0
		if !d.VLA {
			count = int(d.Hi-d.Lo) + 1
		}
		t = llvm.ArrayType(t, count)
	}
	return t
}

// structType builds a named LLVM struct type in declaration order (spec.md
// §4.7). A forward-declared opaque struct is registered in byName *before*
// member types are resolved, so a pointer-typed member referring back to
// this same struct (or any cycle through pointers) resolves to the
// already-created (if still opaque) struct type instead of recursing.
func (c *typeCache) structType(t *index.Type) llvm.Type {
	key := strings.ToUpper(t.Name)
	st := c.ctx.StructCreateNamed(t.Name)
	c.byName[key] = st

	members := make([]llvm.Type, len(t.Members))
	for i, m := range t.Members {
		members[i] = c.get(m.TypeRef)
	}
	st.StructSetBody(members, false)
	return st
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
