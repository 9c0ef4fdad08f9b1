package index

import "stc/src/ast"

// VarRole discriminates why a Variable exists, independent of the
// VariableBlockKind it was declared under — e.g. a VAR_INPUT member still
// needs to know it is a by-value parameter versus a plain local for ABI
// lowering (spec.md §4.7's "by-reference parameter passing").
type VarRole int

const (
	RoleLocal VarRole = iota
	RoleTemp
	RoleParamIn
	RoleParamOut
	RoleParamInOut
	RoleGlobal
	RoleExternal
	RoleReturn
	RoleMember // Struct/FB/class field accessed via instance base pointer.
)

// Variable is one index entry for a declared variable: a POU-local, a
// parameter, a global, or a struct/FB/class member (spec.md §3.2).
type Variable struct {
	Name    string // Qualified key as stored in Index.Variables ("owner.name" or bare global name).
	Simple  string // Unqualified declaration name, as written in source.
	Owner   string // Qualified POU name this variable belongs to, empty for globals.
	TypeRef string // Declared type name (possibly an inline-synthesized anonymous type).
	Loc     ast.Loc
	Node    *ast.Node // The declaring Variable node.

	Role     VarRole
	Passing  ast.ParamPassing // ByVal/ByRef, meaningful for RoleParam*.
	Deref    ast.AutoDeref    // Auto-deref kind for REFERENCE TO / alias variables.
	Constant bool
	Retain   bool

	Offset int // Struct-GEP index within Owner's instance type, meaningful for RoleMember.

	InitConst  ConstID
	HasInit    bool

	HWAddress string // Raw "%QW1.0"-style text, empty unless AT-bound.
}

// IsParam reports whether v is a call parameter (as opposed to a local,
// global, temp, or member).
func (v *Variable) IsParam() bool {
	switch v.Role {
	case RoleParamIn, RoleParamOut, RoleParamInOut:
		return true
	default:
		return false
	}
}
