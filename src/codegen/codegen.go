// Package codegen implements spec.md §4.7: given the annotated AST and the
// frozen index, emit an LLVM module with correct ABI and (optionally) debug
// info. It generalizes the teacher's src/ir/llvm (transform.go)'s GenLLVM
// entry point — same symbol-table-threading and two-phase worker-pool
// shape (function headers and globals first, then bodies, since a body may
// call a function declared later in iteration order) — from VSL's
// int/float-only node set to the full index.Type lattice and to the
// post-lowering ABI conventions the spec.md §4.2 participants establish
// (vtables, polymorphic dispatch, aggregate returns, VLA descriptors,
// synthesized initializers).
package codegen

import (
	"fmt"
	"sync"

	"tinygo.org/x/go-llvm"

	"stc/src/annotate"
	"stc/src/diag"
	"stc/src/index"
	"stc/src/lowering"
	"stc/src/util"
)

// ABI bundles the post-lowering conventions codegen must consult, one field
// per mandatory participant that leaves behind information codegen needs
// (spec.md §4.2's hook list; these are the concrete participant instances
// src/cmd/stc's pipeline wiring holds onto after running the driver, rather
// than reaching through the generic lowering.Participant interface).
type ABI struct {
	VTables *lowering.VTableGenerator
	Poly    *lowering.PolymorphicCallLowering
	Agg     *lowering.AggregateReturnLowering
	VLA     *lowering.VLALowering
	Init    *lowering.InitializerSynthesis
}

// Generator holds everything one module-generation run needs, mirroring
// the teacher's package-level globals/ctx/builder/module but instanced
// rather than global, so nothing stops two Generate calls (e.g. for two
// --target triples of the same plc.json, spec.md §6's "one artifact per
// listed target") from running with separate contexts (spec.md §5: "each
// codegen call owns its LLVM context exclusively").
type Generator struct {
	ix   *index.Index
	m    *annotate.Map
	abi  ABI
	opt  util.Options
	batch *diag.Batch

	ctx    llvm.Context
	mod    llvm.Module
	types  *typeCache
	global symTab // Function/global-variable symbols, keyed upper-case.

	dbg       *debugInfo // nil unless opt.Debug.
	dbgScopes metaTab    // CallName -> DISubprogram scope, populated in the headers phase.
}

// Generate lowers ix/m into an LLVM module and returns the serialized
// artifact bytes for opt.Output (object/IR text/bitcode), per spec.md
// §4.7 and §6's output-format flags.
func Generate(ix *index.Index, m *annotate.Map, abi ABI, opt util.Options, batch *diag.Batch) ([]byte, error) {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	modName := opt.Src
	if modName == "" {
		modName = "stc-module"
	}
	mod := ctx.NewModule(modName)
	defer mod.Dispose()

	g := &Generator{
		ix: ix, m: m, abi: abi, opt: opt, batch: batch,
		ctx: ctx, mod: mod,
		types:     newTypeCache(ctx, ix),
		global:    newSymTab(),
		dbgScopes: newMetaTab(),
	}
	if opt.Debug {
		g.dbg = newDebugInfo(ctx, mod, opt)
		defer g.dbg.finalize()
	}

	if err := g.run(); err != nil {
		return nil, err
	}

	return g.emit()
}

// run performs the two-phase codegen pass: every POU's function header and
// every global variable is declared first (so a forward call resolves
// regardless of iteration order over the index's maps), then every POU's
// body is generated. The teacher fans phase 1 and phase 2 each across
// opt.Threads goroutines with a shared error channel; only phase 2 needs a
// per-goroutine llvm.Builder (builders are not safe for concurrent use —
// the module and context are, once headers exist).
func (g *Generator) run() error {
	g.genStringLiteralGlobals()
	g.genStructTypes()

	names := make([]string, 0, len(g.ix.POUs))
	for k := range g.ix.POUs {
		names = append(names, k)
	}

	if err := g.fanOut(names, func(name string) error { return g.genGlobalsFor(name) }); err != nil {
		return err
	}
	if err := g.fanOut(names, func(name string) error { return g.genFuncHeader(g.ix.POUs[name]) }); err != nil {
		return err
	}
	if err := g.fanOut(names, func(name string) error {
		p := g.ix.POUs[name]
		if p.Impl == nil && p.Abstract {
			return nil
		}
		impl, ok := g.ix.Impls[name]
		if !ok {
			return nil
		}
		b := g.ctx.NewBuilder()
		defer b.Dispose()
		return g.genFuncBody(b, p, impl)
	}); err != nil {
		return err
	}

	g.genVTableGlobals()
	return g.genMain()
}

// fanOut runs fn(name) for every name across g.opt.EffectiveThreads()
// goroutines, collecting the first error (mirroring the teacher's cerr
// chan error pattern in GenLLVM).
func (g *Generator) fanOut(names []string, fn func(string) error) error {
	threads := g.opt.EffectiveThreads()
	n := len(names)
	if n == 0 {
		return nil
	}
	if threads > n {
		threads = n
	}
	chunk := (n + threads - 1) / threads
	cerr := make(chan error, threads)
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
				if err := fn(names[i]); err != nil {
					cerr <- err
					return
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	close(cerr)
	for err := range cerr {
		if err != nil {
			return err
		}
	}
	return nil
}

// emit serializes g.mod per opt.Output, setting up the target machine for
// object/relocatable/shared emission (spec.md §4.7/§6). IR and bitcode
// dumps need no target machine at all.
func (g *Generator) emit() ([]byte, error) {
	switch g.opt.Output {
	case util.OutputIR:
		return []byte(g.mod.String()), nil
	case util.OutputBitcode:
		buf := llvm.WriteBitcodeToMemoryBuffer(g.mod)
		defer buf.Dispose()
		return buf.Bytes(), nil
	}

	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargets()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	triple := g.opt.Target
	if triple == "" {
		triple = llvm.DefaultTargetTriple()
	}
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}

	reloc := llvm.RelocDefault
	if g.opt.PIC || g.opt.Output == util.OutputShared {
		reloc = llvm.RelocPIC
	}
	codeModel := llvm.CodeModelDefault
	if g.opt.Output == util.OutputRelocatable {
		codeModel = llvm.CodeModelDefault
	}

	tm := target.CreateTargetMachine(triple, "", "", codeGenLevel(g.opt.Opt), reloc, codeModel)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()
	g.mod.SetDataLayout(td.String())
	g.mod.SetTarget(tm.Triple())

	if err := llvm.VerifyModule(g.mod, llvm.ReturnStatusAction); err != nil {
		return nil, fmt.Errorf("codegen: module verification failed: %w", err)
	}

	buf, err := tm.EmitToMemoryBuffer(g.mod, llvm.ObjectFile)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	defer buf.Dispose()
	return buf.Bytes(), nil
}

func codeGenLevel(opt util.OptLevel) llvm.CodeGenOptLevel {
	switch opt {
	case util.OptNone:
		return llvm.CodeGenLevelNone
	case util.OptLess:
		return llvm.CodeGenLevelLess
	case util.OptAggressive:
		return llvm.CodeGenLevelAggressive
	default:
		return llvm.CodeGenLevelDefault
	}
}
