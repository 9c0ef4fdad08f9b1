// Package validate implements spec.md §4.6's semantic checks: the pass that
// runs after src/annotate has resolved every reference and before src/codegen
// ever sees the tree. Global-uniqueness (duplicate POU/type/variable names)
// is already enforced by index.Index.Merge, so it has no checker here.
package validate

import (
	"sync"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
	"stc/src/index/constant"
)

// Validate runs every check category over ix/m except "VLA misuse", which
// runs separately and earlier (see CheckVLAUsage), appending diagnostics to
// batch. It mirrors the teacher's ir.ValidateTree worker-pool shape: the
// whole-index checks run once up front (cheap, and some — recursive types —
// have no natural per-implementation split), then every implementation's
// statement tree is walked concurrently across threads goroutines.
func Validate(ix *index.Index, m *annotate.Map, batch *diag.Batch, threads int) {
	checkRecursiveTypes(ix, batch)
	checkProperties(ix, batch)
	checkInterfaces(ix, batch)
	checkConstants(ix, batch)

	names := make([]string, 0, len(ix.Impls))
	for k := range ix.Impls {
		names = append(names, k)
	}
	n := len(names)
	if n == 0 {
		return
	}
	if threads < 1 {
		threads = 1
	}
	if threads > n {
		threads = n
	}

	ev := constant.New(ix, batch)
	chunk := (n + threads - 1) / threads
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
				impl := ix.Impls[names[i]]
				checkStatementTree(impl, ix, m, ev, batch)
			}
		}(lo, hi)
	}
	wg.Wait()
}

// checkStatementTree walks one Implementation body, dispatching every node
// kind a per-statement check cares about. ast.Walk is the same generic
// post-order helper the lowering participants use (src/ast/node.go).
func checkStatementTree(impl *ast.Node, ix *index.Index, m *annotate.Map, ev *constant.Evaluator, batch *diag.Batch) {
	ast.Walk(impl, func(n *ast.Node) {
		switch n.Kind {
		case ast.Assignment:
			checkArrayAssignment(n, ix, m, batch)
			checkConstAssignment(n, m, batch)
		case ast.Call:
			checkParameterPassing(n, ix, m, batch)
		case ast.Case:
			checkSwitchCase(n, ev, batch)
		case ast.ReferenceExpr:
			checkCast(n, ix, m, batch)
		}
	})
}
