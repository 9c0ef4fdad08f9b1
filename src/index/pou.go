package index

import "stc/src/ast"

// POU is one index entry for a program organization unit: a program,
// function, function block, class, action, method, or property-accessor
// body (spec.md §3.2).
type POU struct {
	Name    string // Qualified name, e.g. "MyFB" or "MyClass.MyMethod".
	Kind    ast.POUKind
	Loc     ast.Loc
	Node    *ast.Node // The declaring POU node.
	Impl    *ast.Node // Not set by the indexer; implementation nodes are kept in Index.Impls by qualified name.

	ReturnType string // Non-empty for FUNCTION and METHOD/PROPERTY accessors with a return value.

	// Function-block / class instance layout.
	InstanceType string // Name of the synthesized struct Type holding this POU's persistent state.
	Super        string // EXTENDS target, empty if none.
	Interfaces   []string

	// Method/action/property ownership.
	Owner string // Qualified name of the containing class/function block, empty for top-level POUs.

	Access ast.AccessModifier

	// CallName is the mangled symbol codegen emits for this POU's body
	// function, see spec.md §4.7's section-name mangling.
	CallName string

	Abstract bool // True for interface method signatures with no Implementation.

	IsInterface bool // True for an INTERFACE declaration; never has instance state of its own.

	Linkage ast.Linkage // One of Internal/External/BuiltIn/SystemExternal (spec.md §3.1, §3.2).
}

// IsCallable reports whether p can appear as the callee of a Call node
// (spec.md §3.1.1's reference-expression "Call" form): functions, function
// blocks, methods and actions. Programs, classes and properties (accessed via
// member reference, not a call) are not callable.
func (p *POU) IsCallable() bool {
	switch p.Kind {
	case ast.POUFunction, ast.POUFunctionBlock, ast.POUMethod, ast.POUAction:
		return true
	default:
		return false
	}
}
