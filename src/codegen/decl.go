package codegen

import (
	"sort"

	"tinygo.org/x/go-llvm"

	"stc/src/ast"
	"stc/src/index"
)

// genStructTypes forces every struct-kind Type (instance types, vtable
// types, the VLA dimension-descriptor types InitializerSynthesis/VLALowering
// register into the index) to be built up front, so later per-goroutine
// lookups during the parallel phases only ever hit the memoized cache and
// never race on first-construction of the same named struct.
func (g *Generator) genStructTypes() {
	for name, t := range g.ix.Types {
		if t.Kind == index.KindStruct {
			g.types.get(name)
		}
	}
}

// genStringLiteralGlobals interns every string-literal node reachable from
// an implementation body into g.m's literal pools (annotate's inferrer
// annotates only integer and real literal leaves and never interns string
// literals, so codegen is the first and only place that needs the full set
// of literal contents) and then emits one
// global constant array per pooled entry (spec.md §4.7: "string literals
// are emitted as global constants"), UTF-8 and UTF-16 kept separate since
// they differ in element width.
func (g *Generator) genStringLiteralGlobals() {
	for _, impl := range g.ix.Impls {
		ast.Walk(impl, func(n *ast.Node) {
			if n.Kind != ast.StringLiteral {
				return
			}
			data, ok := n.Data.(ast.StringLitData)
			if !ok {
				return
			}
			g.m.InternString(data.Val, data.Enc == ast.UTF16)
		})
	}
	g.genLiteralPool(g.m.StringsUTF8, false)
	g.genLiteralPool(g.m.StringsUTF16, true)
}

func (g *Generator) genLiteralPool(pool map[string]int, wide bool) {
	for content, idx := range pool {
		unit := g.ctx.Int8Type()
		if wide {
			unit = g.ctx.Int16Type()
		}
		data := stringConstBytes(content, wide)
		arrTy := llvm.ArrayType(unit, len(data)/unitSize(wide))
		init := llvm.ConstArray(unit, constUnits(g.ctx, data, wide))
		name := literalGlobalName(wide, idx)
		gv := llvm.AddGlobal(g.mod, arrTy, name)
		gv.SetInitializer(init)
		gv.SetGlobalConstant(true)
		gv.SetLinkage(llvm.PrivateLinkage)
		g.global.set(name, gv)
	}
}

func literalGlobalName(wide bool, idx int) string {
	if wide {
		return literalPrefixWide + itoa(idx)
	}
	return literalPrefix + itoa(idx)
}

const literalPrefix = "L_str."
const literalPrefixWide = "L_wstr."

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b [20]byte
	p := len(b)
	for i > 0 {
		p--
		b[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		b[p] = '-'
	}
	return string(b[p:])
}

func unitSize(wide bool) int {
	if wide {
		return 2
	}
	return 1
}

// stringConstBytes appends a trailing NUL terminator, mirroring spec.md
// §4.7's "length declared+1 to hold a trailing null terminator".
func stringConstBytes(s string, wide bool) []byte {
	b := []byte(s)
	if wide {
		b = append(b, 0, 0)
	} else {
		b = append(b, 0)
	}
	return b
}

func constUnits(ctx llvm.Context, b []byte, wide bool) []llvm.Value {
	if !wide {
		vals := make([]llvm.Value, len(b))
		for i, c := range b {
			vals[i] = llvm.ConstInt(ctx.Int8Type(), uint64(c), false)
		}
		return vals
	}
	vals := make([]llvm.Value, len(b)/2)
	for i := range vals {
		u := uint16(b[2*i]) | uint16(b[2*i+1])<<8
		vals[i] = llvm.ConstInt(ctx.Int16Type(), uint64(u), false)
	}
	return vals
}

// genGlobalsFor declares the storage backing name's POU, per spec.md
// §4.7's "Programs and function-blocks take a single pointer to their
// instance struct... for a PROGRAM it is a process-global singleton": a
// PROGRAM gets a module-level global of its own instance type; a bare
// FUNCTION/METHOD/ACTION needs no storage of its own. It also declares
// every global (Owner == "") Variable exactly once, the first time it is
// reached through any POU's iteration (duplicate AddGlobal calls are
// guarded by the symbol table).
func (g *Generator) genGlobalsFor(name string) error {
	p := g.ix.POUs[name]
	if p.Kind == ast.POUProgram {
		instTy := g.types.get(p.InstanceType)
		gv := llvm.AddGlobal(g.mod, instTy, "prog-"+p.Name)
		gv.SetInitializer(llvm.ConstNull(instTy))
		g.global.set("prog-"+p.Name, gv)
	}
	for _, v := range g.ix.Variables {
		if v.Owner != "" {
			continue
		}
		if _, ok := g.global.get(v.Name); ok {
			continue
		}
		ty := g.types.get(v.TypeRef)
		gv := llvm.AddGlobal(g.mod, ty, "var-"+v.Name)
		gv.SetInitializer(llvm.ConstNull(ty))
		gv.SetSection(mangleVarSection(g.ix, v))
		g.global.set(v.Name, gv)
	}
	return nil
}

// genFuncHeader declares p's body function (or, for PROGRAM, its VOID()
// cyclic-scan entry point) in the module, mirroring the teacher's
// genFuncHeader: build the parameter type list in declared order, then
// llvm.AddFunction. Abstract interface methods (no Implementation) get no
// declaration at all — nothing ever calls them directly, only through a
// vtable slot whose function-pointer type is opaque.
func (g *Generator) genFuncHeader(p *index.POU) error {
	if p.Abstract {
		return nil
	}
	if _, exists := g.global.get(p.CallName); exists {
		return nil
	}

	params := orderedParams(g.ix, p)
	paramTypes := make([]llvm.Type, len(params))
	for i, v := range params {
		paramTypes[i] = g.paramType(v)
	}

	retTy := g.types.get(p.ReturnType)
	if p.ReturnType == "" {
		retTy = g.ctx.VoidType()
	}
	var selfTy llvm.Type
	var allParamTypes []llvm.Type
	if hasSelfParam(p) {
		selfTy = llvm.PointerType(g.types.get(ownerInstanceType(g.ix, p)), 0)
		allParamTypes = append([]llvm.Type{selfTy}, paramTypes...)
	} else {
		allParamTypes = paramTypes
	}

	fnTy := llvm.FunctionType(retTy, allParamTypes, false)
	fn := llvm.AddFunction(g.mod, p.CallName, fnTy)
	if p.Linkage == ast.Internal || p.Linkage == ast.BuiltIn {
		// External/SystemExternal POUs have no body of stc's own to tag
		// (spec.md property 8: the fn- section set is exactly the
		// Internal/BuiltIn-linkage declarations).
		fn.SetSection(mangleFuncSection(g.ix, p))
	}
	g.global.set(p.CallName, fn)

	if g.dbg != nil {
		scope := g.dbg.subprogram(g.ix, p, fn)
		g.dbgScopes.set(p.CallName, scope)
	}
	return nil
}

// paramType resolves a parameter's storage type: a hidden result/VLA
// element/ByRef/by-reference parameter is a pointer to its declared type;
// an ordinary VAR_INPUT parameter is passed by value.
func (g *Generator) paramType(v *index.Variable) llvm.Type {
	base := g.types.get(v.TypeRef)
	if v.Passing == ast.ByRef {
		return llvm.PointerType(base, 0)
	}
	t, ok := g.ix.EffectiveType(v.TypeRef)
	if ok && (t.Kind == index.KindStruct || t.Kind == index.KindArray) {
		// Aggregate-by-value parameters are still passed as a pointer at
		// the ABI level; AggregateReturnLowering only handles *returns*,
		// ordinary aggregate VAR_INPUT parameters get the same treatment
		// codegen must apply uniformly (spec.md §4.7's call-convention
		// rule groups "marked inout/output, or the parameter type is
		// aggregate" together).
		return llvm.PointerType(base, 0)
	}
	return base
}

// orderedParams returns p's VAR_INPUT/VAR_OUTPUT/VAR_IN_OUT variables in
// declaration (struct-GEP offset) order.
func orderedParams(ix *index.Index, p *index.POU) []*index.Variable {
	var params []*index.Variable
	for _, v := range ix.Variables {
		if v.Owner == p.Name && v.IsParam() {
			params = append(params, v)
		}
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Offset < params[j].Offset })
	return params
}

func ownerInstanceType(ix *index.Index, p *index.POU) string {
	if p.Owner == "" {
		return p.InstanceType
	}
	owner, ok := ix.LookupPOU(p.Owner)
	if !ok {
		return p.Owner
	}
	return owner.InstanceType
}

// genVTableGlobals builds the global vtable instance for every class
// VTableGenerator recorded, one function-pointer slot per entry in
// declaration order, each slot's initializer a bitcast of the concrete
// override nearest the vtable's owner (or, absent an override at this
// level, the ancestor's own implementation — the same method may appear in
// more than one subclass's vtable unchanged).
func (g *Generator) genVTableGlobals() {
	if g.abi.VTables == nil {
		return
	}
	for owner, methods := range g.abi.VTables.VTables {
		vtTypeName := owner + ".VTable"
		vtTy := g.types.get(vtTypeName)
		slots := make([]llvm.Value, len(methods))
		for i, name := range methods {
			slots[i] = g.vtableSlotValue(owner, name)
		}
		init := llvm.ConstNamedStruct(vtTy, slots)
		gv := llvm.AddGlobal(g.mod, vtTy, "vtable-"+owner)
		gv.SetInitializer(init)
		gv.SetGlobalConstant(true)
		gv.SetLinkage(llvm.PrivateLinkage)
		g.global.set("vtable-"+owner, gv)
	}
}

// vtableSlotValue finds the method implementation nearest owner (owner's
// own override if it declared one, else the nearest ancestor's), bitcast
// to the opaque function-pointer slot type.
func (g *Generator) vtableSlotValue(owner, method string) llvm.Value {
	for cur := owner; cur != ""; {
		if p, ok := g.ix.LookupPOU(cur + "." + method); ok {
			if fn, ok := g.global.get(p.CallName); ok {
				return llvm.ConstBitCast(fn, g.types.funcPtrType())
			}
		}
		parent, ok := g.ix.LookupPOU(cur)
		if !ok {
			break
		}
		cur = parent.Super
	}
	return llvm.ConstNull(g.types.funcPtrType())
}
