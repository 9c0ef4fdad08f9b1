package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"tinygo.org/x/go-llvm"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/frontend"
	"stc/src/index"
)

// funcCtx carries the per-function state a statement/expression generator
// needs: the function's builder (teacher idiom: one llvm.Builder per
// goroutine, since builders aren't safe for concurrent use), the function
// being built, its lexical scope stack, its instance pointer (nil for a
// bare FUNCTION), and the currently enclosing loop's break/continue targets
// (spec.md §3.1's EXIT/CONTINUE statements).
type funcCtx struct {
	g          *Generator
	b          llvm.Builder
	fn         llvm.Value
	p          *index.POU
	scope      *scopeStack
	self       llvm.Value
	returnSlot llvm.Value
	loops      []loopFrame

	dbgScope    llvm.Metadata
	hasDbgScope bool
}

type loopFrame struct {
	breakBB, continueBB llvm.BasicBlock
}

func (f *funcCtx) pushLoop(brk, cont llvm.BasicBlock) { f.loops = append(f.loops, loopFrame{brk, cont}) }
func (f *funcCtx) popLoop()                           { f.loops = f.loops[:len(f.loops)-1] }
func (f *funcCtx) currentLoop() (loopFrame, bool) {
	if len(f.loops) == 0 {
		return loopFrame{}, false
	}
	return f.loops[len(f.loops)-1], true
}

// genExpr generates n's value, applying an implicit cast when the
// annotation map records a type-hint mismatch (spec.md invariant 4 /
// §4.7's "correct ABI").
func (f *funcCtx) genExpr(n *ast.Node) (llvm.Value, error) {
	v, err := f.genExprRaw(n)
	if err != nil {
		return v, err
	}
	if from, to, ok := f.g.m.NeedsCast(n); ok {
		return f.genCast(v, from, to), nil
	}
	return v, nil
}

func (f *funcCtx) genExprRaw(n *ast.Node) (llvm.Value, error) {
	switch n.Kind {
	case ast.IntLiteral:
		return llvm.ConstInt(f.g.ctx.Int64Type(), uint64(mustParseInt(n.Data)), true), nil
	case ast.RealLiteral:
		return llvm.ConstFloat(f.g.ctx.DoubleType(), mustParseFloat(n.Data)), nil
	case ast.BoolLiteral:
		v := 0
		if b, _ := n.Data.(bool); b {
			v = 1
		}
		return llvm.ConstInt(f.g.ctx.Int8Type(), uint64(v), false), nil
	case ast.StringLiteral:
		return f.genStringLiteralRef(n)
	case ast.Identifier:
		return f.genLoadIdent(n)
	case ast.ReferenceExpr:
		return f.genLoadRef(n)
	case ast.BinaryExpr:
		return f.genBinary(n)
	case ast.UnaryExpr:
		return f.genUnary(n)
	case ast.Call:
		return f.g.genCall(f, n)
	}
	return llvm.Value{}, fmt.Errorf("codegen: unsupported expression node %s", n.Kind)
}

func (f *funcCtx) genStringLiteralRef(n *ast.Node) (llvm.Value, error) {
	data, ok := n.Data.(ast.StringLitData)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: malformed string literal at %s", n.Loc)
	}
	wide := data.Enc == ast.UTF16
	idx := f.g.m.InternString(data.Val, wide)
	name := literalGlobalName(wide, idx)
	gv, ok := f.g.global.get(name)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: missing string literal global %q", name)
	}
	return gv, nil
}

func (f *funcCtx) genLoadIdent(n *ast.Node) (llvm.Value, error) {
	ann, ok := f.g.m.Get(n)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: unannotated identifier at %s", n.Loc)
	}
	if ann.Kind != annotate.AnnVariable {
		// A bare reference to a function/program/type name outside of call
		// position has no runtime value; callers only reach here through
		// genCall's callee handling, never through genExpr directly.
		return llvm.Value{}, fmt.Errorf("codegen: %q is not a value", ann.QualifiedName)
	}
	addr, _, err := f.addrOfVariable(ann.QualifiedName)
	if err != nil {
		return llvm.Value{}, err
	}
	v := f.b.CreateLoad(addr, "")
	if ann.AutoDeref != ast.DerefNone {
		// addr held a REFERENCE TO/alias pointer, not the pointee's storage
		// (spec.md §4.7: "codegen inserts the load"); load through it.
		v = f.b.CreateLoad(v, "")
	}
	return v, nil
}

func (f *funcCtx) genLoadRef(n *ast.Node) (llvm.Value, error) {
	data, _ := n.Data.(ast.RefExprData)
	if data.Access == ast.RefAddress {
		return f.genAddr(n.Base())
	}
	if data.Access == ast.RefCast {
		operand, err := f.genExpr(n.Base())
		if err != nil {
			return llvm.Value{}, err
		}
		ann, _ := f.g.m.Get(n.Base())
		return f.genCast(operand, ann.ResultingType, data.CastTarget), nil
	}
	addr, err := f.genAddr(n)
	if err != nil {
		return llvm.Value{}, err
	}
	return f.b.CreateLoad(addr, ""), nil
}

// genAddr resolves n to the memory address it names — everything in this
// codegen (locals, members, array elements, string buffers) lives in
// memory, the same alloca-everything discipline the teacher's transform.go
// follows for VSL's declarations — so every reference expression has an
// address, even ones whose value ends up loaded immediately after.
func (f *funcCtx) genAddr(n *ast.Node) (llvm.Value, error) {
	switch n.Kind {
	case ast.Identifier:
		ann, ok := f.g.m.Get(n)
		if !ok || ann.Kind != annotate.AnnVariable {
			return llvm.Value{}, fmt.Errorf("codegen: %s is not addressable", n)
		}
		addr, _, err := f.addrOfVariable(ann.QualifiedName)
		return addr, err
	case ast.ReferenceExpr:
		data, _ := n.Data.(ast.RefExprData)
		switch data.Access {
		case ast.RefMember:
			return f.genMemberAddr(n, data.Member)
		case ast.RefIndex:
			return f.genIndexAddr(n)
		case ast.RefDeref:
			baseAddr, err := f.genAddr(n.Base())
			if err != nil {
				return llvm.Value{}, err
			}
			return f.b.CreateLoad(baseAddr, ""), nil
		}
	}
	return llvm.Value{}, fmt.Errorf("codegen: %s has no address", n)
}

// genMemberAddr resolves a.b: the base resolves to the owning struct's
// address (auto-deref-loading it first if the base itself is a pointer/
// REFERENCE TO/alias variable, per spec.md §4.7's pointer layout rule),
// then a struct-GEP to the member's recorded Offset.
func (f *funcCtx) genMemberAddr(n *ast.Node, member string) (llvm.Value, error) {
	base := n.Base()
	baseStruct, err := f.structBaseAddr(base)
	if err != nil {
		return llvm.Value{}, err
	}
	ann, ok := f.g.m.Get(n)
	if !ok || ann.Kind != annotate.AnnVariable {
		return llvm.Value{}, fmt.Errorf("codegen: %q has no addressable member %q", n, member)
	}
	v, ok := f.g.ix.LookupVariable(ann.QualifiedName)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: unknown member %q", ann.QualifiedName)
	}
	return f.b.CreateStructGEP(baseStruct, v.Offset, ""), nil
}

// structBaseAddr returns base's address as a pointer to the struct it
// denotes, auto-dereferencing through a pointer-typed/REFERENCE-TO/alias
// variable when the base's own declared type is itself a pointer (spec.md
// §4.7: "All three [REF_TO/REFERENCE TO/alias] differ only in whether
// codegen emits implicit loads/stores at use sites").
func (f *funcCtx) structBaseAddr(base *ast.Node) (llvm.Value, error) {
	addr, err := f.genAddr(base)
	if err != nil {
		return llvm.Value{}, err
	}
	ann, ok := f.g.m.Get(base)
	if !ok {
		return addr, nil
	}
	if t, ok := f.g.ix.EffectiveType(ann.ResultingType); ok && t.Kind == index.KindPointer {
		return f.b.CreateLoad(addr, ""), nil
	}
	if ann.AutoDeref != ast.DerefNone {
		return f.b.CreateLoad(addr, ""), nil
	}
	return addr, nil
}

// genIndexAddr resolves a[i]: a single-dimension element GEP. Multi-
// dimension linearization per spec.md §4.7 would walk every declared
// dimension's (lo, stride) pair; src/frontend's current grammar only
// retains the innermost comma-separated index expression per bracket
// (src/frontend/parser.go's parseReferenceSuffixes), so only a single
// index dimension is addressed here.
func (f *funcCtx) genIndexAddr(n *ast.Node) (llvm.Value, error) {
	base := n.Base()
	baseAddr, err := f.genAddr(base)
	if err != nil {
		return llvm.Value{}, err
	}
	idxNode := n.Index()
	idxVal, err := f.genExpr(idxNode)
	if err != nil {
		return llvm.Value{}, err
	}

	baseAnn, _ := f.g.m.Get(base)
	lo := int64(0)
	if t, ok := f.g.ix.EffectiveType(baseAnn.ResultingType); ok && t.Kind == index.KindArray && len(t.Dims) > 0 {
		lo = t.Dims[0].Lo
	}
	if lo != 0 {
		idxVal = f.b.CreateSub(idxVal, llvm.ConstInt(idxVal.Type(), uint64(lo), true), "")
	}
	zero := llvm.ConstInt(f.g.ctx.Int32Type(), 0, false)
	return f.b.CreateGEP(baseAddr, []llvm.Value{zero, idxVal}, ""), nil
}

// addrOfVariable dispatches on a resolved qualified name's Role: locals/
// params live in the function's scope stack (declared once at function
// entry by genFuncBody); globals are module globals; members are resolved
// relative to the function's instance pointer.
func (f *funcCtx) addrOfVariable(qualified string) (llvm.Value, *index.Variable, error) {
	v, ok := f.g.ix.LookupVariable(qualified)
	if !ok {
		return llvm.Value{}, nil, fmt.Errorf("codegen: unknown variable %q", qualified)
	}
	switch v.Role {
	case index.RoleLocal, index.RoleTemp, index.RoleParamIn, index.RoleParamOut, index.RoleParamInOut:
		if addr, ok := f.scope.lookup(v.Name); ok {
			return addr, v, nil
		}
		return llvm.Value{}, nil, fmt.Errorf("codegen: %q not in scope", qualified)
	case index.RoleGlobal, index.RoleExternal:
		if gv, ok := f.g.global.get(v.Name); ok {
			return gv, v, nil
		}
		return llvm.Value{}, nil, fmt.Errorf("codegen: global %q not declared", qualified)
	case index.RoleMember:
		if f.self.IsNil() {
			return llvm.Value{}, nil, fmt.Errorf("codegen: member %q referenced without an instance", qualified)
		}
		return f.b.CreateStructGEP(f.self, v.Offset, ""), v, nil
	}
	return llvm.Value{}, nil, fmt.Errorf("codegen: unhandled variable role for %q", qualified)
}

func (f *funcCtx) genBinary(n *ast.Node) (llvm.Value, error) {
	l, err := f.genExpr(n.Children[0])
	if err != nil {
		return llvm.Value{}, err
	}
	r, err := f.genExpr(n.Children[1])
	if err != nil {
		return llvm.Value{}, err
	}
	op, _ := n.Data.(frontend.TokenType)
	isFloat := l.Type().TypeKind() == llvm.FloatTypeKind || l.Type().TypeKind() == llvm.DoubleTypeKind

	switch op {
	case frontend.TokPlus:
		if isFloat {
			return f.b.CreateFAdd(l, r, ""), nil
		}
		return f.b.CreateAdd(l, r, ""), nil
	case frontend.TokMinus:
		if isFloat {
			return f.b.CreateFSub(l, r, ""), nil
		}
		return f.b.CreateSub(l, r, ""), nil
	case frontend.TokStar:
		if isFloat {
			return f.b.CreateFMul(l, r, ""), nil
		}
		return f.b.CreateMul(l, r, ""), nil
	case frontend.TokSlash:
		if isFloat {
			return f.b.CreateFDiv(l, r, ""), nil
		}
		return f.b.CreateSDiv(l, r, ""), nil
	case frontend.TokMod:
		return f.b.CreateSRem(l, r, ""), nil
	case frontend.TokPow:
		return f.genPow(l, r, isFloat), nil
	case frontend.TokAnd, frontend.TokAmp:
		return f.b.CreateAnd(l, r, ""), nil
	case frontend.TokOr:
		return f.b.CreateOr(l, r, ""), nil
	case frontend.TokXor:
		return f.b.CreateXor(l, r, ""), nil
	case frontend.TokEq, frontend.TokNe, frontend.TokLt, frontend.TokLe, frontend.TokGt, frontend.TokGe:
		return f.genCompare(op, l, r, isFloat), nil
	}
	return llvm.Value{}, fmt.Errorf("codegen: unsupported binary operator %s", op)
}

// genPow has no direct LLVM instruction; every `**`, whether its exponent is
// constant or not, is lowered to the libm llvm.pow.f64 intrinsic (integer
// operands are converted to double first), declaring it lazily the same way
// the teacher declares printf/atoi/atof on first use. The constant evaluator
// (src/index/constant) does not fold `**`.
func (f *funcCtx) genPow(l, r llvm.Value, isFloat bool) llvm.Value {
	lf, rf := l, r
	if !isFloat {
		lf = f.b.CreateSIToFP(l, f.g.ctx.DoubleType(), "")
		rf = f.b.CreateSIToFP(r, f.g.ctx.DoubleType(), "")
	}
	powFn := f.g.declarePowIntrinsic()
	res := f.b.CreateCall(powFn, []llvm.Value{lf, rf}, "")
	if !isFloat {
		return f.b.CreateFPToSI(res, l.Type(), "")
	}
	return res
}

func (g *Generator) declarePowIntrinsic() llvm.Value {
	const name = "llvm.pow.f64"
	if fn, ok := g.global.get(name); ok {
		return fn
	}
	ft := llvm.FunctionType(g.ctx.DoubleType(), []llvm.Type{g.ctx.DoubleType(), g.ctx.DoubleType()}, false)
	fn := llvm.AddFunction(g.mod, name, ft)
	g.global.set(name, fn)
	return fn
}

func (f *funcCtx) genCompare(op frontend.TokenType, l, r llvm.Value, isFloat bool) llvm.Value {
	var res llvm.Value
	if isFloat {
		var pred llvm.FloatPredicate
		switch op {
		case frontend.TokEq:
			pred = llvm.FloatOEQ
		case frontend.TokNe:
			pred = llvm.FloatONE
		case frontend.TokLt:
			pred = llvm.FloatOLT
		case frontend.TokLe:
			pred = llvm.FloatOLE
		case frontend.TokGt:
			pred = llvm.FloatOGT
		default:
			pred = llvm.FloatOGE
		}
		res = f.b.CreateFCmp(pred, l, r, "")
	} else {
		var pred llvm.IntPredicate
		switch op {
		case frontend.TokEq:
			pred = llvm.IntEQ
		case frontend.TokNe:
			pred = llvm.IntNE
		case frontend.TokLt:
			pred = llvm.IntSLT
		case frontend.TokLe:
			pred = llvm.IntSLE
		case frontend.TokGt:
			pred = llvm.IntSGT
		default:
			pred = llvm.IntSGE
		}
		res = f.b.CreateICmp(pred, l, r, "")
	}
	// BOOL's storage representation is i8 (spec.md §4.7); predicates
	// naturally come back i1, so every comparison result gets zero-extended
	// before it can be stored into a BOOL-typed location.
	return f.b.CreateZExt(res, f.g.ctx.Int8Type(), "")
}

func (f *funcCtx) genUnary(n *ast.Node) (llvm.Value, error) {
	operand, err := f.genExpr(n.Children[0])
	if err != nil {
		return llvm.Value{}, err
	}
	op, _ := n.Data.(frontend.TokenType)
	isFloat := operand.Type().TypeKind() == llvm.FloatTypeKind || operand.Type().TypeKind() == llvm.DoubleTypeKind
	switch op {
	case frontend.TokPlus:
		return operand, nil
	case frontend.TokMinus:
		if isFloat {
			return f.b.CreateFNeg(operand, ""), nil
		}
		return f.b.CreateNeg(operand, ""), nil
	case frontend.TokNot:
		if isFloat {
			return llvm.Value{}, fmt.Errorf("codegen: NOT applied to a float operand")
		}
		return f.b.CreateXor(operand, llvm.ConstInt(operand.Type(), ^uint64(0), true), ""), nil
	}
	return llvm.Value{}, fmt.Errorf("codegen: unsupported unary operator %s", op)
}

// genCast implements a T#x reference expression (spec.md §4.7's scalar
// cast rule, already validated against src/validate/casts.go's
// castAllowed matrix before codegen ever sees it): int<->int by
// sign/zero-extension or truncation, float<->float likewise, and
// int<->float by the matching signed conversion instruction.
func (f *funcCtx) genCast(v llvm.Value, from, to string) llvm.Value {
	toTy := f.g.types.get(to)
	fromT, fromOK := f.g.ix.EffectiveType(from)
	toT, toOK := f.g.ix.EffectiveType(to)
	if !fromOK || !toOK {
		return v
	}
	switch {
	case fromT.Kind == index.KindFloat && toT.Kind == index.KindFloat:
		if toT.Bits > fromT.Bits {
			return f.b.CreateFPExt(v, toTy, "")
		}
		return f.b.CreateFPTrunc(v, toTy, "")
	case fromT.Kind == index.KindFloat && (toT.Kind == index.KindNumeric || toT.Kind == index.KindEnum):
		return f.b.CreateFPToSI(v, toTy, "")
	case (fromT.Kind == index.KindNumeric || fromT.Kind == index.KindEnum) && toT.Kind == index.KindFloat:
		return f.b.CreateSIToFP(v, toTy, "")
	case fromT.Kind == index.KindPointer || toT.Kind == index.KindPointer:
		return f.b.CreateBitCast(v, toTy, "")
	default:
		fromBits := v.Type().IntTypeWidth()
		toBits := toTy.IntTypeWidth()
		switch {
		case toBits > fromBits:
			if fromT.Signed {
				return f.b.CreateSExt(v, toTy, "")
			}
			return f.b.CreateZExt(v, toTy, "")
		case toBits < fromBits:
			return f.b.CreateTrunc(v, toTy, "")
		default:
			return v
		}
	}
}

// parseIntLiteral parses an IntLiteral node's raw lexeme: plain decimal
// with optional '_' digit separators, or a based literal "16#FF"/"2#1010"
// (grounded on src/index/constant.parseIntLiteral, which codegen can't
// import directly since it's unexported there).
func parseIntLiteral(raw string) int64 {
	raw = strings.ReplaceAll(raw, "_", "")
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		base, err := strconv.Atoi(raw[:i])
		if err != nil {
			return 0
		}
		v, _ := strconv.ParseInt(raw[i+1:], base, 64)
		return v
	}
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

func mustParseInt(data interface{}) int64 {
	s, _ := data.(string)
	return parseIntLiteral(s)
}

func mustParseFloat(data interface{}) float64 {
	s, _ := data.(string)
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
	return v
}
