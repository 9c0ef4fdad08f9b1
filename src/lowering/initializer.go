package lowering

import (
	"sort"
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// InitializerSynthesis is mandatory built-in participant 5 (spec.md §4.2):
// for each stateful POU (program/function-block/class) and for globals
// whose initializer the constant evaluator could not fold, synthesizes a
// function named <name>.__init (there is no __init_<name> symbol; globals
// share one __init_globals function) performing pointer fixups (handled implicitly:
// a nested member's own __init call runs before the fields that reference
// it), nested-initializer calls in dependency order, and assignment of
// default values. Must run after InheritanceLowering, whose __BASE member
// is itself an ordinary nested-instance dependency here.
type InitializerSynthesis struct {
	BaseParticipant

	// Order lists the synthesized per-POU initializer names in the order
	// codegen must emit calls to them from the module's constructor list
	// (nested members strictly before the POUs that embed them).
	Order []string
}

func (is *InitializerSynthesis) Name() string { return "initializer-synthesis" }

func (is *InitializerSynthesis) PostIndex(ix *index.Index, batch *diag.Batch) {
	stateful := map[string]bool{}
	for _, p := range ix.POUs {
		if p.Kind == ast.POUProgram || p.Kind == ast.POUFunctionBlock || p.Kind == ast.POUClass {
			stateful[p.Name] = true
		}
	}

	deps := map[string][]string{}
	for name := range stateful {
		deps[name] = nestedInstanceDeps(ix, name, stateful)
	}
	is.Order = topoSortPOUs(deps)

	for _, name := range is.Order {
		is.synthesizePOUInit(ix, name)
	}
	is.synthesizeGlobalInit(ix)
}

// nestedInstanceDeps finds, among owner's own members, every one whose
// declared type is itself a stateful POU's instance type — the case a
// struct member is an embedded function-block/class instance (including
// the __BASE member InheritanceLowering injects).
func nestedInstanceDeps(ix *index.Index, owner string, stateful map[string]bool) []string {
	var deps []string
	for _, v := range ix.Variables {
		if v.Owner != owner || v.Role != index.RoleMember {
			continue
		}
		if stateful[v.TypeRef] {
			deps = append(deps, v.TypeRef)
		}
	}
	sort.Strings(deps)
	return deps
}

// topoSortPOUs orders deps' keys so every name follows all of its own
// dependencies, breaking ties alphabetically for reproducible output. A
// dependency cycle (which src/validate separately rejects as a recursive
// data structure) just stops descending rather than looping forever.
func topoSortPOUs(deps map[string][]string) []string {
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)

	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var order []string
	var visit func(string)
	visit = func(n string) {
		if state[n] != 0 {
			return
		}
		state[n] = 1
		for _, d := range deps[n] {
			if _, ok := deps[d]; ok {
				visit(d)
			}
		}
		state[n] = 2
		order = append(order, n)
	}
	for _, n := range names {
		visit(n)
	}
	return order
}

// synthesizePOUInit builds the <name>.__init POU/Implementation pair for a
// stateful POU: one Call statement per nested-instance member (whose own
// initializer, by construction, already appears earlier in is.Order),
// followed by one Assignment per own member with a foldable initializer.
func (is *InitializerSynthesis) synthesizePOUInit(ix *index.Index, name string) {
	initName := name + ".__init"
	key := strings.ToUpper(initName)
	if _, exists := ix.POUs[key]; exists {
		return
	}
	ix.POUs[key] = &index.POU{Name: initName, Kind: ast.POUFunction, Owner: name, CallName: "fn-" + initName}

	members := make([]*index.Variable, 0)
	for _, v := range ix.Variables {
		if v.Owner == name {
			members = append(members, v)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Offset < members[j].Offset })

	var stmts []*ast.Node
	for _, v := range members {
		if dep, ok := ix.LookupPOU(v.TypeRef + ".__init"); ok {
			stmts = append(stmts, callStmt(v.Loc, dep.Name))
			continue
		}
		if v.HasInit {
			if c := ix.Const(v.InitConst); c != nil && c.Folded && c.Expr != nil {
				stmts = append(stmts, assignStmt(v.Loc, v.Name, c.Expr))
			}
		}
	}

	ix.Impls[key] = &ast.Node{
		Kind: ast.Implementation,
		Data: ast.ImplementationData{Name: initName, Kind: ast.POUFunction, Linkage: ast.Internal},
		Children: stmts,
	}
}

// synthesizeGlobalInit collects every global variable whose initializer
// the constant evaluator left unfolded (one referencing another global, a
// function call, or anything else not resolvable at compile time) into a
// single __init_globals function, run once at program start.
func (is *InitializerSynthesis) synthesizeGlobalInit(ix *index.Index) {
	var stmts []*ast.Node
	for _, v := range ix.Variables {
		if v.Owner != "" || !v.HasInit {
			continue
		}
		c := ix.Const(v.InitConst)
		if c == nil || c.Folded || c.Expr == nil {
			continue
		}
		stmts = append(stmts, assignStmt(v.Loc, v.Name, c.Expr))
	}
	if len(stmts) == 0 {
		return
	}
	const initName = "__init_globals"
	ix.POUs[strings.ToUpper(initName)] = &index.POU{Name: initName, Kind: ast.POUFunction, CallName: "fn-" + initName}
	ix.Impls[strings.ToUpper(initName)] = &ast.Node{
		Kind: ast.Implementation,
		Data: ast.ImplementationData{Name: initName, Kind: ast.POUFunction, Linkage: ast.Internal},
		Children: stmts,
	}
	is.Order = append(is.Order, initName)
}

func callStmt(loc ast.Loc, calleeName string) *ast.Node {
	callee := &ast.Node{Kind: ast.Identifier, Loc: loc, Data: calleeName}
	args := &ast.Node{Kind: ast.ArgumentList, Loc: loc}
	return &ast.Node{Kind: ast.Call, Loc: loc, Children: []*ast.Node{callee, args}}
}

func assignStmt(loc ast.Loc, targetName string, rhs *ast.Node) *ast.Node {
	lhs := &ast.Node{Kind: ast.Identifier, Loc: loc, Data: targetName}
	return &ast.Node{Kind: ast.Assignment, Loc: loc, Children: []*ast.Node{lhs, rhs}}
}
