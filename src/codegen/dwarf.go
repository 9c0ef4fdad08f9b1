package codegen

import (
	"strconv"

	"tinygo.org/x/go-llvm"

	"stc/src/ast"
	"stc/src/index"
	"stc/src/util"
)

// debugInfo wraps one module's DIBuilder session (spec.md §4.7's debug-info
// requirements), grounded on google-gapid/core/codegen's dbg type: a
// compile unit, a memoized type cache so a struct referenced from many
// functions gets one DI node, and a lazily-built file/line scope per POU.
//
// Only a single compile-unit file is tracked: index.Index does not carry
// the original per-Loc source file table through to codegen (only
// ast.Project does, one layer up, and it is discarded after indexing), so
// every location in this run is attributed to opt.Src — a known
// simplification for multi-file projects until that table is threaded
// through.
type debugInfo struct {
	b    *llvm.DIBuilder
	cu   llvm.Metadata
	file llvm.Metadata

	tys map[string]llvm.Metadata
}

func newDebugInfo(ctx llvm.Context, mod llvm.Module, opt util.Options) *debugInfo {
	name := opt.Src
	if name == "" {
		name = "stc-module"
	}
	b := llvm.NewDIBuilder(mod)
	file := b.CreateFile(name, ".")
	cu := b.CreateCompileUnit(llvm.DICompileUnit{
		Language:       0x9, // DW_LANG_C99, the closest DWARF source-language tag to ST's block-structured imperative model.
		File:           name,
		Dir:            ".",
		Producer:       "stc",
		RuntimeVersion: 0,
	})
	return &debugInfo{b: b, cu: cu, file: file, tys: map[string]llvm.Metadata{}}
}

func (d *debugInfo) finalize() {
	if d != nil && d.b != nil {
		d.b.Finalize()
	}
}

// ty returns (building and memoizing on first use) the debug type for the
// index.Type named name.
func (d *debugInfo) ty(ix *index.Index, name string) llvm.Metadata {
	if m, ok := d.tys[name]; ok {
		return m
	}
	m := d.buildTy(ix, name)
	d.tys[name] = m
	return m
}

func (d *debugInfo) buildTy(ix *index.Index, name string) llvm.Metadata {
	t, ok := ix.LookupType(name)
	if !ok {
		return d.b.CreateBasicType(llvm.DIBasicType{Name: "void"})
	}
	switch t.Kind {
	case index.KindVoid:
		return d.b.CreateBasicType(llvm.DIBasicType{Name: "void"})
	case index.KindNumeric:
		enc := llvm.DW_ATE_unsigned
		if t.Signed {
			enc = llvm.DW_ATE_signed
		}
		return d.b.CreateBasicType(llvm.DIBasicType{Name: t.Name, SizeInBits: uint64(t.Bits), Encoding: enc})
	case index.KindFloat:
		return d.b.CreateBasicType(llvm.DIBasicType{Name: t.Name, SizeInBits: uint64(t.Bits), Encoding: llvm.DW_ATE_float})
	case index.KindString:
		// A fixed-length array of UTF-8/UTF-16 code units, tagged
		// DW_ATE_UTF per spec.md §4.7; UTF-16 (WSTRING) is distinguished by
		// its doubled code-unit width rather than a separate encoding tag,
		// since DWARF has no dedicated UCS attribute-encoding constant.
		unitBits := 8
		if t.StrWide {
			unitBits = 16
		}
		return d.b.CreateBasicType(llvm.DIBasicType{
			Name:       "STRING[" + strconv.Itoa(t.StrSize) + "]",
			SizeInBits: uint64((t.StrSize + 1) * unitBits),
			Encoding:   llvm.DW_ATE_UTF,
		})
	case index.KindPointer:
		return d.b.CreatePointerType(llvm.DIPointerType{
			Pointee:    d.ty(ix, t.Inner),
			SizeInBits: 64,
		})
	case index.KindEnum:
		return d.b.CreateBasicType(llvm.DIBasicType{Name: t.Name, SizeInBits: 32, Encoding: llvm.DW_ATE_signed})
	case index.KindSubRange, index.KindAlias:
		under := t.Base
		if t.Kind == index.KindAlias {
			under = t.AliasOf
		}
		return d.ty(ix, under)
	case index.KindArray:
		count := int64(0)
		lo := int64(0)
		if len(t.Dims) > 0 {
			lo = t.Dims[0].Lo
			count = t.Dims[0].Hi - t.Dims[0].Lo + 1
		}
		return d.b.CreateArrayType(llvm.DIArrayType{
			ElementType: d.ty(ix, t.Element),
			Subscripts:  []llvm.DISubrange{{Lo: lo, Count: count}},
		})
	case index.KindStruct:
		members := make([]llvm.Metadata, len(t.Members))
		for i, m := range t.Members {
			members[i] = d.b.CreateMemberType(d.cu, llvm.DIMemberType{
				Name: m.Name,
				Type: d.ty(ix, m.TypeRef),
			})
		}
		return d.b.CreateStructType(d.cu, llvm.DIStructType{
			Name:     t.Name,
			Elements: members,
		})
	}
	return d.b.CreateBasicType(llvm.DIBasicType{Name: "void"})
}

// subprogram attaches a DISubprogram to fn so stepping through p in a
// debugger resolves to named locals and its declaration site, and returns
// the subprogram metadata as the scope for that function's statement
// locations.
func (d *debugInfo) subprogram(ix *index.Index, p *index.POU, fn llvm.Value) llvm.Metadata {
	retTy := d.ty(ix, p.ReturnType)
	params := []llvm.Metadata{retTy}
	for _, v := range orderedParams(ix, p) {
		params = append(params, d.ty(ix, v.TypeRef))
	}
	subTy := d.b.CreateSubroutineType(llvm.DISubroutineType{Parameters: params})
	sub := d.b.CreateFunction(d.file, llvm.DIFunction{
		Name:         p.Name,
		LinkageName:  p.CallName,
		File:         d.file,
		Line:         p.Loc.Line,
		Type:         subTy,
		IsDefinition: true,
		ScopeLine:    p.Loc.Line,
	})
	fn.SetSubprogram(sub)
	return sub
}

// setLoc tags subsequent instructions built on b with loc's !dbg location
// scoped to scope — spec.md §4.7's "per-statement !dbg locations".
func (d *debugInfo) setLoc(b llvm.Builder, scope llvm.Metadata, loc ast.Loc) {
	b.SetCurrentDebugLocation(uint(loc.Line), 0, scope, llvm.Metadata{})
}
