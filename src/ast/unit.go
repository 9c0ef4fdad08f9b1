package ast

// Unit is a single compilation unit (one source file), the root produced by
// the parser (spec.md §3.1 "Compilation unit"). It owns the top-level lists
// rather than nesting them under a single generic root node, so the indexer
// can iterate POUs/globals/types without a type switch on every root child.
type Unit struct {
	File  int
	POUs  []*Node // Kind == POU
	Impls []*Node // Kind == Implementation
	Globals []*Node // Kind == VariableBlock, VarGlobal kind
	Types []*Node // Kind == TypeDecl
}

// Project is the parsed representation of every compilation unit fed to the
// pipeline (the "ParsedProject" of spec.md §2's pipeline diagram).
type Project struct {
	Units []*Unit
	Files []string // File id -> path, for diagnostics.
}
