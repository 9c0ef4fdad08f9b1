package codegen

import (
	"fmt"
	"strings"

	"tinygo.org/x/go-llvm"

	"stc/src/ast"
)

// genMain builds the module's startup sequence: spec.md §4.2's
// InitializerSynthesis leaves behind an ordered list of synthesized
// initializer names (nested members strictly before the POUs that embed
// them, §3's "Registered as a global constructor"); this wires that list
// into an actual LLVM constructor, both as an llvm.global_ctors entry (for
// platforms that honor it) and as an explicitly exported "__init" entry
// point a host can call directly ("On platforms without constructor
// support the driver emits an explicit __init entry point that the host
// must call").
//
// Only PROGRAM singletons (the one instance every PROGRAM already gets,
// spec.md §4.7) and VAR_GLOBAL-declared function-block/class instances are
// reachable from here with a concrete self pointer; a function-block
// instance that only ever exists as a stack-local or as a nested member of
// another non-global instance is initialized transitively by its owner's
// own constructor call instead (InitializerSynthesis's nested-dependency
// Call statements), never directly from this list.
func (g *Generator) genMain() error {
	if g.abi.Init == nil || len(g.abi.Init.Order) == 0 {
		return nil
	}

	ctorTy := llvm.FunctionType(g.ctx.VoidType(), nil, false)
	ctor := llvm.AddFunction(g.mod, "__stc_ctor", ctorTy)
	ctor.SetLinkage(llvm.InternalLinkage)

	b := g.ctx.NewBuilder()
	defer b.Dispose()
	entry := llvm.AddBasicBlock(ctor, "entry")
	b.SetInsertPointAtEnd(entry)

	for _, name := range g.abi.Init.Order {
		if err := g.emitInitCall(b, name); err != nil {
			return err
		}
	}
	b.CreateRetVoid()

	g.registerGlobalCtor(ctor)
	g.genExplicitInitEntryPoint(ctor)
	return nil
}

// emitInitCall appends one call to name's (an InitializerSynthesis Order
// entry) generated function, supplying whatever self pointer its signature
// needs.
func (g *Generator) emitInitCall(b llvm.Builder, name string) error {
	pou, ok := g.ix.LookupPOU(name)
	if !ok {
		return fmt.Errorf("codegen: constructor references unknown POU %q", name)
	}
	target, ok := g.global.get(pou.CallName)
	if !ok {
		return fmt.Errorf("codegen: %s has no declared header", name)
	}
	if !hasSelfParam(pou) {
		b.CreateCall(target, nil, "")
		return nil
	}
	self, ok := g.topLevelInstance(pou.Owner)
	if !ok {
		// Only reachable transitively through another global instance's own
		// constructor call; nothing to do at the top level.
		return nil
	}
	b.CreateCall(target, []llvm.Value{self}, "")
	return nil
}

// topLevelInstance returns the address of ownerName's one process-wide
// instance, if it has one: a PROGRAM's singleton, or a VAR_GLOBAL-declared
// instance of a function-block/class type.
func (g *Generator) topLevelInstance(ownerName string) (llvm.Value, bool) {
	owner, ok := g.ix.LookupPOU(ownerName)
	if ok && owner.Kind == ast.POUProgram {
		if gv, ok := g.global.get("prog-" + owner.Name); ok {
			return gv, true
		}
	}
	for _, v := range g.ix.Variables {
		if v.Owner == "" && strings.EqualFold(v.TypeRef, ownerName) {
			if gv, ok := g.global.get(v.Name); ok {
				return gv, true
			}
		}
	}
	return llvm.Value{}, false
}

// registerGlobalCtor appends ctor to the module's "llvm.global_ctors"
// array, LLVM's standard static-constructor convention: an appending
// array of {i32 priority, void()* ctor, i8* data}.
func (g *Generator) registerGlobalCtor(ctor llvm.Value) {
	i32 := g.ctx.Int32Type()
	ctorPtrTy := llvm.PointerType(llvm.FunctionType(g.ctx.VoidType(), nil, false), 0)
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	elemTy := g.ctx.StructType([]llvm.Type{i32, ctorPtrTy, i8ptr}, false)

	entry := llvm.ConstNamedStruct(elemTy, []llvm.Value{
		llvm.ConstInt(i32, 65535, false),
		ctor,
		llvm.ConstNull(i8ptr),
	})
	arrTy := llvm.ArrayType(elemTy, 1)
	arr := llvm.AddGlobal(g.mod, arrTy, "llvm.global_ctors")
	arr.SetInitializer(llvm.ConstArray(elemTy, []llvm.Value{entry}))
	arr.SetLinkage(llvm.AppendingLinkage)
}

// genExplicitInitEntryPoint exposes an externally callable "__init"
// function delegating to ctor, for hosts/platforms with no constructor
// section support.
func (g *Generator) genExplicitInitEntryPoint(ctor llvm.Value) {
	fnTy := llvm.FunctionType(g.ctx.VoidType(), nil, false)
	fn := llvm.AddFunction(g.mod, "__init", fnTy)
	fn.SetLinkage(llvm.ExternalLinkage)

	b := g.ctx.NewBuilder()
	defer b.Dispose()
	entry := llvm.AddBasicBlock(fn, "entry")
	b.SetInsertPointAtEnd(entry)
	b.CreateCall(ctor, nil, "")
	b.CreateRetVoid()
}
