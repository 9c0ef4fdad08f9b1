package codegen

import (
	"fmt"
	"strings"

	"tinygo.org/x/go-llvm"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/index"
)

// genCall emits one CALL (statement or expression position — they share
// the same node shape, spec.md §3.1's Call grammar). PropertyLowering and
// AggregateReturnLowering have already rewritten property accesses and
// aggregate-returning call-sites into ordinary Calls by the time codegen
// runs (both are PreCodegen participants, spec.md §4.2), so this is the
// single call-emission path for all of them; the only remaining special
// case codegen itself must handle is indirect vtable dispatch
// (PolymorphicCallLowering's Slots map).
func (g *Generator) genCall(f *funcCtx, n *ast.Node) (llvm.Value, error) {
	if len(n.Children) < 2 {
		return llvm.Value{}, fmt.Errorf("codegen: malformed call at %s", n.Loc)
	}
	callee, argList := n.Children[0], n.Children[1]

	calleeName, self, err := f.resolveCallee(callee)
	if err != nil {
		return llvm.Value{}, err
	}
	pou, ok := g.ix.LookupPOU(calleeName)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: call to unknown callable %q", calleeName)
	}
	target, ok := g.global.get(pou.CallName)
	if !ok {
		return llvm.Value{}, fmt.Errorf("codegen: %q has no declared header", calleeName)
	}

	params := orderedParams(g.ix, pou)
	args := make([]llvm.Value, len(params))
	set := make([]bool, len(params))

	for i, argNode := range argList.Children {
		if len(argNode.Children) == 0 {
			continue
		}
		data, _ := argNode.Data.(ast.ArgumentData)
		val := argNode.Children[0]

		slot := i
		if data.Name != "" {
			slot = paramIndexByName(params, data.Name)
			if slot < 0 {
				continue
			}
		}
		if slot >= len(params) {
			continue
		}

		argVal, err := f.argumentValue(val, params[slot])
		if err != nil {
			return llvm.Value{}, err
		}
		args[slot] = argVal
		set[slot] = true
	}
	for i, p := range params {
		if !set[i] {
			args[i] = llvm.ConstNull(g.paramType(p))
		}
	}

	if !self.IsNil() {
		args = append([]llvm.Value{self}, args...)
	}

	if slot, ok := f.polymorphicSlot(n); ok {
		owner := pou.Owner
		if owner == "" {
			owner = pou.Name
		}
		fnVal, callErr := f.genIndirectCall(self, owner, slot, target, args)
		return fnVal, callErr
	}

	return f.b.CreateCall(target, args, ""), nil
}

func (f *funcCtx) polymorphicSlot(n *ast.Node) (int, bool) {
	if f.g.abi.Poly == nil {
		return 0, false
	}
	slot, ok := f.g.abi.Poly.Slots[n.ID]
	return slot, ok
}

// genIndirectCall dispatches through owner's vtable: load the instance's
// __vtable pointer member, GEP to the slot, load the opaque function
// pointer, bitcast it to target's concrete signature, and call that.
func (f *funcCtx) genIndirectCall(self llvm.Value, owner string, slot int, target llvm.Value, args []llvm.Value) (llvm.Value, error) {
	vtField, ok := f.g.ix.LookupVariable(owner + ".__vtable")
	if !ok {
		return f.b.CreateCall(target, args, ""), nil
	}
	vtPtrAddr := f.b.CreateStructGEP(self, vtField.Offset, "")
	vtPtr := f.b.CreateLoad(vtPtrAddr, "")
	slotAddr := f.b.CreateStructGEP(vtPtr, slot, "")
	slotVal := f.b.CreateLoad(slotAddr, "")
	casted := f.b.CreateBitCast(slotVal, llvm.PointerType(target.Type().ElementType(), 0), "")
	return f.b.CreateCall(casted, args, ""), nil
}

// nestedInitSelf finds the current initializer's own member whose declared
// type is nestedOwner (InitializerSynthesis.nestedInstanceDeps picks exactly
// one such member per dependency edge) and returns that member's address as
// the nested self pointer for its "<nestedOwner>.__init" call.
func (f *funcCtx) nestedInitSelf(nestedOwner string) (llvm.Value, bool) {
	for _, v := range f.g.ix.Variables {
		if v.Owner != f.p.Owner || v.Role != index.RoleMember {
			continue
		}
		if strings.EqualFold(v.TypeRef, nestedOwner) {
			return f.b.CreateStructGEP(f.self, v.Offset, ""), true
		}
	}
	return llvm.Value{}, false
}

func paramIndexByName(params []*index.Variable, name string) int {
	for i, p := range params {
		if strings.EqualFold(p.Simple, name) {
			return i
		}
	}
	return -1
}

// argumentValue evaluates val for formal parameter p: a ByRef/aggregate
// parameter (spec.md §4.7's call convention) receives val's address; an
// ordinary by-value parameter receives val's loaded value.
func (f *funcCtx) argumentValue(val *ast.Node, p *index.Variable) (llvm.Value, error) {
	if byRefOrAggregate(f.g.ix, p) {
		return f.genAddr(val)
	}
	return f.genExpr(val)
}

// resolveCallee returns the callee's qualified POU name and, for an
// instance method/action call (a bare name resolving to a method on the
// current self, or an explicit a.Method(...) reference), the instance
// pointer to prepend as the hidden first argument.
func (f *funcCtx) resolveCallee(callee *ast.Node) (string, llvm.Value, error) {
	switch callee.Kind {
	case ast.Identifier:
		ann, ok := f.g.m.Get(callee)
		if !ok {
			return "", llvm.Value{}, fmt.Errorf("codegen: unresolved call target at %s", callee.Loc)
		}
		if ann.Kind != annotate.AnnFunction && ann.Kind != annotate.AnnProgram {
			return "", llvm.Value{}, fmt.Errorf("codegen: %q is not callable", ann.QualifiedName)
		}
		pou, _ := f.g.ix.LookupPOU(ann.QualifiedName)
		if pou != nil && hasSelfParam(pou) {
			if pou.Owner != "" && strings.HasSuffix(pou.Name, ".__init") {
				// A synthesized initializer calling a nested member's own
				// __init (InitializerSynthesis's zero-arg callStmt, spec.md
				// §4.2 participant 5): the nested self is the address of
				// whichever of the current instance's own members has the
				// callee's owner as its type.
				if self, ok := f.nestedInitSelf(pou.Owner); ok {
					return ann.QualifiedName, self, nil
				}
			}
			// A bare name resolving to a method/FB invocation on the
			// current instance (e.g. an ACTION calling a sibling METHOD).
			return ann.QualifiedName, f.self, nil
		}
		return ann.QualifiedName, llvm.Value{}, nil
	case ast.ReferenceExpr:
		data, _ := callee.Data.(ast.RefExprData)
		if data.Access != ast.RefMember {
			return "", llvm.Value{}, fmt.Errorf("codegen: unsupported call target shape at %s", callee.Loc)
		}
		ann, ok := f.g.m.Get(callee)
		if !ok {
			return "", llvm.Value{}, fmt.Errorf("codegen: unresolved call target at %s", callee.Loc)
		}
		self, err := f.structBaseAddr(callee.Base())
		if err != nil {
			return "", llvm.Value{}, err
		}
		return ann.QualifiedName, self, nil
	}
	return "", llvm.Value{}, fmt.Errorf("codegen: unsupported call target node %s", callee.Kind)
}
