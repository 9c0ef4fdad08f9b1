package ast

import "fmt"

// Node is the single ownership-tree node type for the whole syntax tree,
// generalizing the teacher's ir.Node (Typ/Line/Pos/Data/Children) to the
// richer kind set of spec.md §3.1. Every node carries a stable ID (used as the
// annotation map's key), a source Loc, a Kind discriminator and a
// kind-specific Data payload; Children holds the node's owned sub-tree.
type Node struct {
	ID       ID
	Kind     Kind
	Loc      Loc
	Data     interface{} // Kind-specific payload; see the *Data structs below.
	Children []*Node
}

// POUData is the Data payload of a POU node.
type POUData struct {
	Name          string
	Kind          POUKind
	Super         string   // Super-class/function-block name, if EXTENDS was used.
	Interfaces    []string // Names of implemented interfaces.
	Linkage       Linkage
	ReturnTypeRef string // Empty for PROGRAM/FUNCTION_BLOCK.
	IsInterface   bool   // True for an INTERFACE declaration (parsed as Kind==POUClass, no instance state).
}

// ImplementationData is the Data payload of an Implementation node.
type ImplementationData struct {
	Name    string // Qualified name of the POU this implementation belongs to.
	Kind    POUKind
	Linkage Linkage
}

// VariableBlockData is the Data payload of a VariableBlock node.
type VariableBlockData struct {
	Kind     VariableBlockKind
	Passing  ParamPassing
	Constant bool
	Retain   bool
	Access   AccessModifier
}

// VariableData is the Data payload of a Variable node.
type VariableData struct {
	Name        string
	TypeRef     string // Name of the referenced type; empty if TypeDecl child holds an inline type.
	HWAddress   string // Raw "AT %QW1" text, empty if unbound.
	SizedFlag   bool   // {sized} attribute, for variadic parameters.
	RefFlag     bool   // {ref} attribute.
	ExternalTag bool   // {external} attribute.
}

// TypeDeclData is the Data payload of struct/enum/subrange/array/string/
// pointer type declarations (spec.md §3.1 "DataType").
type TypeDeclData struct {
	Name string // Empty for anonymous inline types.

	// Struct: members are StructMember children.

	// Enum.
	BackingType string
	Explicit    bool // true if enum elements carry explicit values.

	// SubRange.
	BaseType string
	Low, Hi  int64
	HasRange bool

	// Array: dimensions are ArrayDimension children; ElementTypeRef names the element type.
	ElementTypeRef string
	VLA            bool // ARRAY[*] OF T.

	// String.
	StringSize     int
	StringEncoding StringEncoding

	// Pointer.
	InnerTypeRef string
	Deref        AutoDeref
}

// StringEncoding is utf8 or utf16 (spec.md §3.1 "String").
type StringEncoding int

const (
	UTF8 StringEncoding = iota
	UTF16
)

// StringLitData is the Data payload of a StringLiteral expression node.
type StringLitData struct {
	Val string
	Enc StringEncoding
}

// ArgumentData is the Data payload of an Argument node (spec.md §3.1's
// call-site named/positional argument form): whether it's a named
// (possibly output "=>") association or a bare positional argument.
type ArgumentData struct {
	Name string
	Out  bool
}

// ArrayDimensionData bounds one dimension of an array type.
type ArrayDimensionData struct {
	Lo, Hi int64
}

// RefExprData is the Data payload of a ReferenceExpr node (spec.md §3.1.1).
// Base, held in Children[0] when non-nil, is the preceding reference in a
// qualified chain; a.b.c stores c at the root with base b whose base is a.
type RefExprData struct {
	Access     RefAccess
	Member     string // Set when Access == RefMember.
	CastTarget string // Set when Access == RefCast.
}

// Base returns the base reference of a qualified access, or nil for a root
// reference (spec.md §3.1.1: "recursively in evaluation order reversed").
func (n *Node) Base() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Index returns the index/cast/sub-expression child of a reference node, or
// nil when the access kind carries none (Deref, Address).
func (n *Node) Index() *Node {
	if len(n.Children) < 2 {
		return nil
	}
	return n.Children[1]
}

// String returns a print-friendly representation, mirroring the teacher's
// ir.Node.String().
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s @%s", n.Kind, n.Loc)
}

// Print recursively prints the node and its children, indenting by depth,
// exactly like the teacher's ir.Node.Print.
func (n *Node) Print(depth int) {
	if n == nil {
		fmt.Printf("%*c---> NIL\n", depth<<1, ' ')
		return
	}
	fmt.Printf("%*c%s\n", depth<<1, ' ', n.String())
	for _, c := range n.Children {
		c.Print(depth + 1)
	}
}

// Walk visits n and every descendant depth-first in post-order (children
// before their parent), calling fn on each node. Lowering participants and the validator both use Walk for
// the common "recurse over everything, switch on Kind" shape (the teacher's
// optimise()/validate() recursion pattern, generalized into a reusable
// traversal so each participant only writes its switch cases).
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
	fn(n)
}
