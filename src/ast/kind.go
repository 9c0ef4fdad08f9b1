package ast

// Kind differentiates the node variants of the syntax tree. The set reproduces
// spec.md §3.1's exhaustive node-kind list; it plays the role the teacher's
// ir.NodeType constants play for VSL, generalized from VSL's dozen statement
// kinds to the full ST grammar.
type Kind int

const (
	// Compilation unit.
	CompilationUnit Kind = iota
	PouList
	GlobalVarBlockList
	TypeDeclList
	ImplementationList

	// POUs and implementations (spec.md §3.1 "POU").
	POU
	Implementation
	VariableBlock
	Variable

	// Data type declarations (spec.md §3.1 "DataType").
	TypeDecl
	StructType
	StructMember
	EnumType
	EnumElement
	SubRangeType
	ArrayType
	ArrayDimension
	StringType
	PointerType
	VarArgsType
	GenericType
	NamedTypeRef

	// Statements (spec.md §3.1 "Statement").
	StatementList
	Assignment
	RefAssignment
	OutputAssignment
	Call
	BinaryExpr
	UnaryExpr
	ReferenceExpr
	ExpressionList
	RangeStatement
	If
	ElseIfBranch
	For
	While
	Repeat
	Case
	CaseBranch
	CaseLabel
	Return
	Exit
	Continue
	Jump
	Label
	Empty
	Block

	// Literals.
	IntLiteral
	RealLiteral
	BoolLiteral
	StringLiteral
	TimeLiteral
	DateLiteral
	ArrayLiteral

	// Bare identifier use (function/type names in non-reference positions).
	Identifier

	// Argument passing (call-site named/positional arguments).
	Argument
	ArgumentList
)

var kindNames = [...]string{
	"CompilationUnit", "PouList", "GlobalVarBlockList", "TypeDeclList", "ImplementationList",
	"POU", "Implementation", "VariableBlock", "Variable",
	"TypeDecl", "StructType", "StructMember", "EnumType", "EnumElement", "SubRangeType",
	"ArrayType", "ArrayDimension", "StringType", "PointerType", "VarArgsType", "GenericType", "NamedTypeRef",
	"StatementList", "Assignment", "RefAssignment", "OutputAssignment", "Call", "BinaryExpr", "UnaryExpr",
	"ReferenceExpr", "ExpressionList", "RangeStatement", "If", "ElseIfBranch", "For", "While", "Repeat",
	"Case", "CaseBranch", "CaseLabel", "Return", "Exit", "Continue", "Jump", "Label", "Empty", "Block",
	"IntLiteral", "RealLiteral", "BoolLiteral", "StringLiteral", "TimeLiteral", "DateLiteral", "ArrayLiteral",
	"Identifier", "Argument", "ArgumentList",
}

// String returns a print friendly name for the Kind, mirroring the teacher's
// ir.Node.Type() helper.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN_KIND"
	}
	return kindNames[k]
}

// POUKind differentiates the flavours of Program Organization Unit (glossary
// "POU"): program, function, function_block, class, action, method, property.
type POUKind int

const (
	POUProgram POUKind = iota
	POUFunction
	POUFunctionBlock
	POUClass
	POUAction
	POUMethod
	POUProperty
)

func (k POUKind) String() string {
	switch k {
	case POUProgram:
		return "PROGRAM"
	case POUFunction:
		return "FUNCTION"
	case POUFunctionBlock:
		return "FUNCTION_BLOCK"
	case POUClass:
		return "CLASS"
	case POUAction:
		return "ACTION"
	case POUMethod:
		return "METHOD"
	case POUProperty:
		return "PROPERTY"
	default:
		return "UNKNOWN_POU"
	}
}

// Linkage is one of the four recognized linkage values (spec.md §3.1, §3.2
// invariant "every call target's linkage is one of the four recognized
// values").
type Linkage int

const (
	Internal Linkage = iota
	External
	BuiltIn
	SystemExternal
)

// VariableBlockKind discriminates the kind of a VAR_* block (spec.md §3.1).
type VariableBlockKind int

const (
	VarLocal VariableBlockKind = iota
	VarTemp
	VarInput
	VarOutput
	VarInOut
	VarGlobal
	VarExternal
	VarReturn
	VarBase
)

// ParamPassing distinguishes by-reference from by-value VAR_INPUT parameters.
type ParamPassing int

const (
	ByVal ParamPassing = iota
	ByRef
)

// AccessModifier mirrors the standard's PUBLIC|PRIVATE|PROTECTED|INTERNAL.
type AccessModifier int

const (
	AccessPublic AccessModifier = iota
	AccessPrivate
	AccessProtected
	AccessInternal
)

// RefAccess discriminates the one shared reference-expression node variant
// (spec.md §3.1.1): flat names, qualified access, indexing, dereference,
// address-of, and casts all share this single discriminant.
type RefAccess int

const (
	RefMember RefAccess = iota // a.b -> Member("b")
	RefIndex                   // a[i] -> Index(expr)
	RefCast                    // T#x -> Cast(expr), Data holds target type name
	RefDeref                   // p^  -> Deref
	RefAddress                 // &v  -> Address
)

// AutoDeref classifies the implicit-dereference behaviour of a pointer-typed
// variable (glossary "Auto-deref").
type AutoDeref int

const (
	DerefNone AutoDeref = iota
	DerefDefault
	DerefAlias
	DerefReferenceTo
)
