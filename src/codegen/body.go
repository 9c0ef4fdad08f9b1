package codegen

import (
	"fmt"
	"strings"

	"tinygo.org/x/go-llvm"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/index"
)

// hasSelfParam reports whether p's generated function signature carries a
// hidden instance pointer as its first argument: every callable that runs
// against an instance struct (function blocks, classes, their methods and
// actions) does, as does a synthesized per-POU "<Owner>.__init" function
// (InitializerSynthesis, spec.md §4.2 participant 5) since it writes
// directly into the instance it initializes; a bare FUNCTION and a
// top-level PROGRAM's cyclic body function do not — mirrored from
// genFuncHeader's own selfTy condition in decl.go, which this must stay in
// lockstep with.
func hasSelfParam(p *index.POU) bool {
	switch p.Kind {
	case ast.POUFunctionBlock, ast.POUClass, ast.POUMethod, ast.POUAction:
		return true
	}
	return p.Owner != "" && strings.HasSuffix(p.Name, ".__init")
}

// genFuncBody emits p's entry block, copies every by-value parameter into
// a local alloca (mirroring the teacher's genFuncBody, which does the same
// for VSL's scalar parameters), allocates storage for every local/temp
// declaration, and then walks impl's statement list.
func (g *Generator) genFuncBody(b llvm.Builder, p *index.POU, impl *ast.Node) error {
	fn, ok := g.global.get(p.CallName)
	if !ok {
		return fmt.Errorf("codegen: %s has no declared header", p.Name)
	}

	entry := llvm.AddBasicBlock(fn, "entry")
	b.SetInsertPointAtEnd(entry)

	fc := &funcCtx{g: g, b: b, fn: fn, p: p, scope: newScopeStack()}
	fc.scope.push()
	if g.dbg != nil {
		if scope, ok := g.dbgScopes.get(p.CallName); ok {
			fc.dbgScope = scope
			fc.hasDbgScope = true
		}
	}

	idx := 0
	if hasSelfParam(p) {
		fc.self = fn.Param(0)
		idx = 1
	}

	params := orderedParams(g.ix, p)
	for i, v := range params {
		argVal := fn.Param(idx + i)
		if byRefOrAggregate(g.ix, v) {
			// The incoming value already is the address (spec.md §4.7's
			// call convention); declare it directly, no local copy.
			fc.scope.declare(v.Name, argVal)
			continue
		}
		alloc := b.CreateAlloca(g.types.get(v.TypeRef), v.Simple)
		b.CreateStore(argVal, alloc)
		fc.scope.declare(v.Name, alloc)
	}

	for _, v := range g.ix.Variables {
		if v.Owner != p.Name {
			continue
		}
		if v.Role != index.RoleLocal && v.Role != index.RoleTemp {
			continue
		}
		alloc := b.CreateAlloca(g.types.get(v.TypeRef), v.Simple)
		fc.scope.declare(v.Name, alloc)
	}

	var returnSlot llvm.Value
	if _, isAgg := g.abi.Agg.Aggregate[p.Name]; !isAgg && p.ReturnType != "" {
		returnSlot = b.CreateAlloca(g.types.get(p.ReturnType), "ret")
	}
	fc.returnSlot = returnSlot

	terminated, err := fc.genStmtList(impl.Children)
	if err != nil {
		return err
	}
	if !terminated {
		fc.emitReturn()
	}
	fc.scope.pop()
	return nil
}

func byRefOrAggregate(ix *index.Index, v *index.Variable) bool {
	if v.Passing == ast.ByRef {
		return true
	}
	if t, ok := ix.EffectiveType(v.TypeRef); ok && (t.Kind == index.KindStruct || t.Kind == index.KindArray) {
		return true
	}
	return false
}

// emitReturn closes off the current function: a function lowered to an
// aggregate return (spec.md §4.2 participant 6) always returns void — its
// result lives behind the hidden __result pointer parameter, written by
// genStmt's self-name-assignment case — everything else returns its
// return-slot's current contents, or void if it declared none.
func (f *funcCtx) emitReturn() {
	if f.returnSlot.IsNil() {
		f.b.CreateRetVoid()
		return
	}
	f.b.CreateRet(f.b.CreateLoad(f.returnSlot, ""))
}

// genStmtList runs every statement in stmts in order, stopping as soon as
// one terminates the current basic block (Return/Exit/Continue) since
// LLVM disallows instructions after a block's terminator; it reports
// whether the list as a whole is guaranteed to have terminated.
func (f *funcCtx) genStmtList(stmts []*ast.Node) (bool, error) {
	for _, s := range stmts {
		terminated, err := f.genStmt(s)
		if err != nil {
			return false, err
		}
		if terminated {
			return true, nil
		}
	}
	return false, nil
}

func (f *funcCtx) genStmt(n *ast.Node) (bool, error) {
	if f.g.dbg != nil && f.hasDbgScope {
		f.g.dbg.setLoc(f.b, f.dbgScope, n.Loc)
	}
	switch n.Kind {
	case ast.Empty:
		return false, nil
	case ast.StatementList, ast.Block:
		f.scope.push()
		terminated, err := f.genStmtList(n.Children)
		f.scope.pop()
		return terminated, err
	case ast.Assignment, ast.RefAssignment, ast.OutputAssignment:
		return false, f.genAssignment(n)
	case ast.Call:
		_, err := f.g.genCall(f, n)
		return false, err
	case ast.If:
		return f.genIf(n)
	case ast.While:
		return f.genWhile(n)
	case ast.Repeat:
		return f.genRepeat(n)
	case ast.For:
		return f.genFor(n)
	case ast.Case:
		return f.genCase(n)
	case ast.Return:
		f.emitReturn()
		return true, nil
	case ast.Exit:
		if lp, ok := f.currentLoop(); ok {
			f.b.CreateBr(lp.breakBB)
		}
		return true, nil
	case ast.Continue:
		if lp, ok := f.currentLoop(); ok {
			f.b.CreateBr(lp.continueBB)
		}
		return true, nil
	}
	return false, fmt.Errorf("codegen: unsupported statement node %s", n.Kind)
}

// genAssignment stores rhs into lhs's address. A self-name assignment
// (IEC's "FuncName := expr;" return-value convention — resolved by
// src/annotate's resolver as an AnnFunction reference to the enclosing
// POU itself, since no hidden return-value Variable is ever synthesized
// for it) is special-cased: for an aggregate-lowered function the store
// goes through the hidden __result pointer parameter; otherwise it goes
// into the function's own return-slot alloca.
func (f *funcCtx) genAssignment(n *ast.Node) error {
	lhs, rhs := n.Children[0], n.Children[1]

	if lhs.Kind == ast.Identifier {
		if ann, ok := f.g.m.Get(lhs); ok && ann.Kind == annotate.AnnFunction && ann.QualifiedName == f.p.Name {
			return f.storeReturnValue(rhs)
		}
	}

	addr, err := f.genAddr(lhs)
	if err != nil {
		return err
	}
	// A plain ":=" or output-parameter store through a REFERENCE TO/alias
	// variable lands on the pointee (spec.md §4.7), matching genLoadIdent's
	// read-side load-through-load; REF= replaces the pointer itself, so it
	// keeps addr pointed at the variable's own storage slot.
	if n.Kind != ast.RefAssignment && lhs.Kind == ast.Identifier {
		if ann, ok := f.g.m.Get(lhs); ok && ann.AutoDeref != ast.DerefNone {
			addr = f.b.CreateLoad(addr, "")
		}
	}
	val, err := f.genExpr(rhs)
	if err != nil {
		return err
	}
	f.b.CreateStore(val, addr)
	return nil
}

func (f *funcCtx) storeReturnValue(rhs *ast.Node) error {
	val, err := f.genExpr(rhs)
	if err != nil {
		return err
	}
	if _, isAgg := f.g.abi.Agg.Aggregate[f.p.Name]; isAgg {
		addr, ok := f.scope.lookup(f.p.Name + ".__result")
		if !ok {
			return fmt.Errorf("codegen: %s has no __result parameter", f.p.Name)
		}
		f.b.CreateStore(val, addr)
		return nil
	}
	if f.returnSlot.IsNil() {
		return fmt.Errorf("codegen: %s has no return slot", f.p.Name)
	}
	f.b.CreateStore(val, f.returnSlot)
	return nil
}

// genIf mirrors the teacher's genIf: one conditional branch per IF/ELSIF
// arm into its own "then" block, all converging on a shared block, with an
// ELSE arm (if present) itself chained the same way. Reports true only
// when every arm — and an ELSE arm must be present — unconditionally
// terminates, so the caller knows not to fall through.
func (f *funcCtx) genIf(n *ast.Node) (bool, error) {
	arms := ifArms(n)
	hasElse := len(n.Children) == len(arms)+2 && n.Children[len(n.Children)-1].Kind == ast.StatementList

	conv := llvm.AddBasicBlock(f.fn, "")
	allTerminate := true

	var elseBody *ast.Node
	if hasElse {
		elseBody = n.Children[len(n.Children)-1]
	}

	for i, arm := range arms {
		isLast := i == len(arms)-1
		var falseBB llvm.BasicBlock
		if !isLast {
			falseBB = llvm.AddBasicBlock(f.fn, "")
		} else if hasElse {
			falseBB = llvm.AddBasicBlock(f.fn, "")
		} else {
			falseBB = conv
		}

		condVal, err := f.genExpr(arm.cond)
		if err != nil {
			return false, err
		}
		condVal = f.toI1(condVal)
		thenBB := llvm.AddBasicBlock(f.fn, "")
		f.b.CreateCondBr(condVal, thenBB, falseBB)

		f.b.SetInsertPointAtEnd(thenBB)
		f.scope.push()
		terminated, err := f.genStmtList(arm.body.Children)
		f.scope.pop()
		if err != nil {
			return false, err
		}
		if !terminated {
			f.b.CreateBr(conv)
			allTerminate = false
		}

		if isLast && hasElse {
			f.b.SetInsertPointAtEnd(falseBB)
			f.scope.push()
			terminated, err := f.genStmtList(elseBody.Children)
			f.scope.pop()
			if err != nil {
				return false, err
			}
			if !terminated {
				f.b.CreateBr(conv)
				allTerminate = false
			}
		} else {
			f.b.SetInsertPointAtEnd(falseBB)
		}
	}

	if !hasElse {
		allTerminate = false
	}

	f.b.SetInsertPointAtEnd(conv)
	return allTerminate, nil
}

type ifArm struct {
	cond *ast.Node
	body *ast.Node
}

// ifArms extracts the IF/ELSIF (condition, body) pairs from n's children.
// Layout follows src/frontend/parser.go's parseIf: [cond, thenBody,
// ElseIfBranch*, optional trailing elseBody StatementList].
func ifArms(n *ast.Node) []ifArm {
	var arms []ifArm
	if len(n.Children) < 2 {
		return arms
	}
	arms = append(arms, ifArm{cond: n.Children[0], body: n.Children[1]})
	for _, c := range n.Children[2:] {
		if c.Kind == ast.ElseIfBranch && len(c.Children) == 2 {
			arms = append(arms, ifArm{cond: c.Children[0], body: c.Children[1]})
		}
	}
	return arms
}

// toI1 narrows a stored BOOL (i8) predicate value down to i1 for use as a
// branch condition (spec.md §4.7: "BOOL is i8 storage, i1 in predicates").
func (f *funcCtx) toI1(v llvm.Value) llvm.Value {
	if v.Type().IntTypeWidth() == 1 {
		return v
	}
	zero := llvm.ConstInt(v.Type(), 0, false)
	return f.b.CreateICmp(llvm.IntNE, v, zero, "")
}

// genWhile mirrors a standard pretest loop: head block evaluates the
// condition, body block runs and branches back to head, end block is
// where EXIT and a false condition both land.
func (f *funcCtx) genWhile(n *ast.Node) (bool, error) {
	cond, body := n.Children[0], n.Children[1]
	head := llvm.AddBasicBlock(f.fn, "")
	bodyBB := llvm.AddBasicBlock(f.fn, "")
	end := llvm.AddBasicBlock(f.fn, "")

	f.b.CreateBr(head)
	f.b.SetInsertPointAtEnd(head)
	condVal, err := f.genExpr(cond)
	if err != nil {
		return false, err
	}
	f.b.CreateCondBr(f.toI1(condVal), bodyBB, end)

	f.b.SetInsertPointAtEnd(bodyBB)
	f.pushLoop(end, head)
	f.scope.push()
	terminated, err := f.genStmtList(body.Children)
	f.scope.pop()
	f.popLoop()
	if err != nil {
		return false, err
	}
	if !terminated {
		f.b.CreateBr(head)
	}

	f.b.SetInsertPointAtEnd(end)
	return false, nil
}

// genRepeat mirrors a standard posttest loop: body always runs once, the
// condition (UNTIL) is tested at the bottom and loops back while false.
func (f *funcCtx) genRepeat(n *ast.Node) (bool, error) {
	body, cond := n.Children[0], n.Children[1]
	bodyBB := llvm.AddBasicBlock(f.fn, "")
	testBB := llvm.AddBasicBlock(f.fn, "")
	end := llvm.AddBasicBlock(f.fn, "")

	f.b.CreateBr(bodyBB)
	f.b.SetInsertPointAtEnd(bodyBB)
	f.pushLoop(end, testBB)
	f.scope.push()
	terminated, err := f.genStmtList(body.Children)
	f.scope.pop()
	f.popLoop()
	if err != nil {
		return false, err
	}
	if !terminated {
		f.b.CreateBr(testBB)
	}

	f.b.SetInsertPointAtEnd(testBB)
	condVal, err := f.genExpr(cond)
	if err != nil {
		return false, err
	}
	f.b.CreateCondBr(f.toI1(condVal), end, bodyBB)

	f.b.SetInsertPointAtEnd(end)
	return false, nil
}

// genFor emits a counted loop over the declared control variable's own
// address: initialized from the FOR's start expression, tested against
// the end expression every iteration, and incremented by the optional BY
// step (default 1) after the body runs.
func (f *funcCtx) genFor(n *ast.Node) (bool, error) {
	// Children: [RangeStatement[ctrlVarIdent, fromExpr, toExpr, (byExpr)?], bodyStatementList]
	if len(n.Children) != 2 || len(n.Children[0].Children) < 3 {
		return false, fmt.Errorf("codegen: malformed FOR statement")
	}
	rng, body := n.Children[0], n.Children[1]
	ctrl := rng.Children[0]
	fromExpr := rng.Children[1]
	toExpr := rng.Children[2]
	var byExpr *ast.Node
	if len(rng.Children) == 4 {
		byExpr = rng.Children[3]
	}

	ctrlAddr, err := f.genAddr(ctrl)
	if err != nil {
		return false, err
	}
	fromVal, err := f.genExpr(fromExpr)
	if err != nil {
		return false, err
	}
	f.b.CreateStore(fromVal, ctrlAddr)

	head := llvm.AddBasicBlock(f.fn, "")
	bodyBB := llvm.AddBasicBlock(f.fn, "")
	stepBB := llvm.AddBasicBlock(f.fn, "")
	end := llvm.AddBasicBlock(f.fn, "")

	f.b.CreateBr(head)
	f.b.SetInsertPointAtEnd(head)
	cur := f.b.CreateLoad(ctrlAddr, "")
	toVal, err := f.genExpr(toExpr)
	if err != nil {
		return false, err
	}
	cond := f.b.CreateICmp(llvm.IntSLE, cur, toVal, "")
	f.b.CreateCondBr(cond, bodyBB, end)

	f.b.SetInsertPointAtEnd(bodyBB)
	f.pushLoop(end, stepBB)
	f.scope.push()
	terminated, err := f.genStmtList(body.Children)
	f.scope.pop()
	f.popLoop()
	if err != nil {
		return false, err
	}
	if !terminated {
		f.b.CreateBr(stepBB)
	}

	f.b.SetInsertPointAtEnd(stepBB)
	var stepVal llvm.Value
	if byExpr != nil {
		stepVal, err = f.genExpr(byExpr)
		if err != nil {
			return false, err
		}
	} else {
		cur2 := f.b.CreateLoad(ctrlAddr, "")
		stepVal = llvm.ConstInt(cur2.Type(), 1, true)
	}
	cur2 := f.b.CreateLoad(ctrlAddr, "")
	next := f.b.CreateAdd(cur2, stepVal, "")
	f.b.CreateStore(next, ctrlAddr)
	f.b.CreateBr(head)

	f.b.SetInsertPointAtEnd(end)
	return false, nil
}

// genCase lowers a CASE statement to an if/else-if compare chain (rather
// than LLVM's switch instruction) since a CaseLabel may name a sub-range,
// not just a single constant, per spec.md §3.1's CASE grammar.
func (f *funcCtx) genCase(n *ast.Node) (bool, error) {
	if len(n.Children) == 0 {
		return false, nil
	}
	selectorNode := n.Children[0]
	selector, err := f.genExpr(selectorNode)
	if err != nil {
		return false, err
	}

	var branches []*ast.Node
	var elseBody *ast.Node
	for _, c := range n.Children[1:] {
		if c.Kind != ast.CaseBranch || len(c.Children) == 0 {
			continue
		}
		if tag, _ := c.Data.(string); tag == "else" {
			elseBody = c.Children[len(c.Children)-1]
		} else {
			branches = append(branches, c)
		}
	}

	conv := llvm.AddBasicBlock(f.fn, "")
	allTerminate := elseBody != nil

	for _, br := range branches {
		if len(br.Children) < 2 {
			continue
		}
		labels := br.Children[:len(br.Children)-1]
		body := br.Children[len(br.Children)-1]

		matchBB := llvm.AddBasicBlock(f.fn, "")
		nextBB := llvm.AddBasicBlock(f.fn, "")

		var match llvm.Value
		for _, lbl := range labels {
			m, err := f.genCaseLabelMatch(selector, lbl)
			if err != nil {
				return false, err
			}
			if match.IsNil() {
				match = m
			} else {
				match = f.b.CreateOr(match, m, "")
			}
		}
		if match.IsNil() {
			match = llvm.ConstInt(f.g.ctx.Int8Type(), 0, false)
		}
		f.b.CreateCondBr(f.toI1(match), matchBB, nextBB)

		f.b.SetInsertPointAtEnd(matchBB)
		f.scope.push()
		terminated, err := f.genStmtList(body.Children)
		f.scope.pop()
		if err != nil {
			return false, err
		}
		if !terminated {
			f.b.CreateBr(conv)
			allTerminate = false
		}

		f.b.SetInsertPointAtEnd(nextBB)
	}

	if elseBody != nil {
		f.scope.push()
		terminated, err := f.genStmtList(elseBody.Children)
		f.scope.pop()
		if err != nil {
			return false, err
		}
		if !terminated {
			f.b.CreateBr(conv)
			allTerminate = false
		}
	} else {
		f.b.CreateBr(conv)
	}

	f.b.SetInsertPointAtEnd(conv)
	return allTerminate, nil
}

// genCaseLabelMatch evaluates a single CaseLabel (a constant, or a Lo..Hi
// sub-range per spec.md §3.1) against selector, returning an i8 boolean.
func (f *funcCtx) genCaseLabelMatch(selector llvm.Value, lbl *ast.Node) (llvm.Value, error) {
	if len(lbl.Children) == 2 {
		lo, err := f.genExpr(lbl.Children[0])
		if err != nil {
			return llvm.Value{}, err
		}
		hi, err := f.genExpr(lbl.Children[1])
		if err != nil {
			return llvm.Value{}, err
		}
		geLo := f.b.CreateICmp(llvm.IntSGE, selector, lo, "")
		leHi := f.b.CreateICmp(llvm.IntSLE, selector, hi, "")
		both := f.b.CreateAnd(geLo, leHi, "")
		return f.b.CreateZExt(both, f.g.ctx.Int8Type(), ""), nil
	}
	val, err := f.genExpr(lbl.Children[0])
	if err != nil {
		return llvm.Value{}, err
	}
	eq := f.b.CreateICmp(llvm.IntEQ, selector, val, "")
	return f.b.CreateZExt(eq, f.g.ctx.Int8Type(), ""), nil
}
