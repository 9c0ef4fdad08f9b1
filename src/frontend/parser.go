// parser.go drives a hand-written recursive-descent, Pratt-precedence parser
// over the concurrent lexer's token stream, building ast.Node trees. This
// replaces the teacher's goyacc-generated grammar (parser.y/y.go, absent from
// this tree): ST's expression grammar mixes word-operators (MOD, AND, OR,
// XOR) with symbolic ones and reads more naturally as an explicit precedence
// table than as an LALR grammar file, and a hand-written parser gives direct
// control over error recovery (spec.md §4.1: "parse errors should not abort
// the whole unit"). The lexer-as-goroutine architecture and the Parse/
// TokenStream entry points are kept exactly as the teacher shaped them.
package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"stc/src/ast"
	"stc/src/diag"
)

// Parser holds the state of a single compilation unit's recursive-descent
// parse. One Parser is created per file by ParseUnit; Project-level merging
// happens one level up in src/index.
type Parser struct {
	l    *lexer
	tok  Token  // Current lookahead token.
	peek *Token // One token of lookahead beyond tok, lazily filled.

	file  int
	ids   *ast.IDProvider
	batch *diag.Batch
}

// NewParser starts the lexer goroutine over src and returns a ready-to-use
// Parser for compilation unit file (an index into diag's file table).
func NewParser(src string, file int, ids *ast.IDProvider, batch *diag.Batch) *Parser {
	l := newLexer(src, lexGlobal)
	go l.run()
	p := &Parser{l: l, file: file, ids: ids, batch: batch}
	p.advance()
	return p
}

func (p *Parser) loc() ast.Loc { return ast.Loc{File: p.file, Line: p.tok.Line, Pos: p.tok.Pos} }

func (p *Parser) advance() {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return
	}
	p.tok = p.l.nextItem()
}

func (p *Parser) peekTok() Token {
	if p.peek == nil {
		t := p.l.nextItem()
		p.peek = &t
	}
	return *p.peek
}

func (p *Parser) at(tt TokenType) bool { return p.tok.Type == tt }

func (p *Parser) accept(tt TokenType) bool {
	if p.at(tt) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of type tt or reports E007 unexpected token and
// performs single-token error recovery: skip forward to the next token of
// the expected kind or a statement/declaration boundary, whichever comes
// first, mirroring spec.md §4.1's "parse errors should not abort the whole
// unit" requirement.
func (p *Parser) expect(tt TokenType) Token {
	if p.at(tt) {
		t := p.tok
		p.advance()
		return t
	}
	p.batch.Errorf(diag.EUnexpectedToken, p.loc(), "expected %s, got %s", tt, p.tok.Type)
	for !p.at(tt) && !p.atSync() {
		p.advance()
	}
	if p.at(tt) {
		t := p.tok
		p.advance()
		return t
	}
	return p.tok
}

// atSync reports whether the current token is a safe synchronization point
// for error recovery: EOF, a semicolon, or any of the block-closing keywords.
func (p *Parser) atSync() bool {
	switch p.tok.Type {
	case TokEOF, TokSemi, TokEndIf, TokEndCase, TokEndFor, TokEndWhile, TokEndRepeat,
		TokEndVar, TokEndProgram, TokEndFunction, TokEndFunctionBlock, TokEndClass,
		TokEndMethod, TokEndAction, TokEndProperty, TokEndStruct, TokEndType:
		return true
	}
	return false
}

func (p *Parser) newNode(kind ast.Kind, loc ast.Loc, data interface{}, children ...*ast.Node) *ast.Node {
	return &ast.Node{ID: p.ids.Next(), Kind: kind, Loc: loc, Data: data, Children: children}
}

// ---------------------------------------------------------------------
// Compilation unit
// ---------------------------------------------------------------------

// ParseUnit parses a whole compilation unit: a sequence of top-level POU
// declarations, global VAR_GLOBAL blocks and TYPE blocks, in any order
// (spec.md §3.1 "Compilation unit").
func (p *Parser) ParseUnit() *ast.Unit {
	u := &ast.Unit{File: p.file}
	for !p.at(TokEOF) {
		switch p.tok.Type {
		case TokProgram, TokFunction, TokFunctionBlock, TokClass, TokInterface:
			pou, impl := p.parsePOU()
			if pou != nil {
				u.POUs = append(u.POUs, pou)
			}
			if impl != nil {
				u.Impls = append(u.Impls, impl)
			}
		case TokVarGlobal:
			u.Globals = append(u.Globals, p.parseVarBlock())
		case TokType:
			u.Types = append(u.Types, p.parseTypeBlock()...)
		case TokUsing, TokNamespace, TokConfiguration:
			// Namespaces and configurations are accepted syntactically and
			// otherwise unused by the annotator (spec.md Non-goals exclude
			// the configuration/resource/task deployment model).
			p.skipToMatchingEnd()
		default:
			p.batch.Errorf(diag.EUnexpectedToken, p.loc(), "unexpected top-level token %s", p.tok.Type)
			p.advance()
		}
	}
	return u
}

// skipToMatchingEnd consumes tokens until the current statement/block's
// matching END_* keyword (used for syntactic-only constructs the annotator
// does not model).
func (p *Parser) skipToMatchingEnd() {
	depth := 0
	for !p.at(TokEOF) {
		switch p.tok.Type {
		case TokConfiguration, TokNamespace:
			depth++
		case TokEndConfiguration, TokEndNamespace:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		case TokSemi:
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}

// ---------------------------------------------------------------------
// POU (PROGRAM / FUNCTION / FUNCTION_BLOCK / CLASS / INTERFACE)
// ---------------------------------------------------------------------

func (p *Parser) parsePOU() (pou, impl *ast.Node) {
	loc := p.loc()
	var kind ast.POUKind
	var endTok TokenType
	var isInterface bool
	switch p.tok.Type {
	case TokProgram:
		kind, endTok = ast.POUProgram, TokEndProgram
	case TokFunction:
		kind, endTok = ast.POUFunction, TokEndFunction
	case TokFunctionBlock:
		kind, endTok = ast.POUFunctionBlock, TokEndFunctionBlock
	case TokClass:
		kind, endTok = ast.POUClass, TokEndClass
	case TokInterface:
		kind, endTok = ast.POUClass, TokEndInterface
		isInterface = true
	}
	p.advance()

	name := p.expect(TokIdentifier).Val

	var retType string
	if kind == ast.POUFunction && p.accept(TokColon) {
		retType = p.parseTypeName()
	}

	var super string
	var ifaces []string
	if p.accept(TokExtends) {
		super = p.expect(TokIdentifier).Val
	}
	if p.accept(TokImplements) {
		ifaces = append(ifaces, p.expect(TokIdentifier).Val)
		for p.accept(TokComma) {
			ifaces = append(ifaces, p.expect(TokIdentifier).Val)
		}
	}

	pouData := ast.POUData{Name: name, Kind: kind, Super: super, Interfaces: ifaces, Linkage: ast.Internal, ReturnTypeRef: retType, IsInterface: isInterface}
	var varBlocks []*ast.Node
	for isVarBlockStart(p.tok.Type) {
		varBlocks = append(varBlocks, p.parseVarBlock())
	}

	// METHOD/PROPERTY bodies nested inside a CLASS are accepted syntactically
	// and parsed as their own top-level-shaped POU/Implementation pair; the
	// indexer re-parents them onto the owning class by name (src/index).
	for p.tok.Type == TokMethod || p.tok.Type == TokProperty {
		mloc := p.loc()
		isProperty := p.tok.Type == TokProperty
		p.advance()
		mname := p.expect(TokIdentifier).Val
		var mret string
		if p.accept(TokColon) {
			mret = p.parseTypeName()
		}
		var mVarBlocks []*ast.Node
		for isVarBlockStart(p.tok.Type) {
			mVarBlocks = append(mVarBlocks, p.parseVarBlock())
		}

		if isProperty {
			// A PROPERTY's body is a GET accessor and an optional SET
			// accessor, each its own statement list, rather than the single
			// body a METHOD has; each becomes its own nested POU/
			// Implementation pair named "Owner.get_Name"/"Owner.set_Name"
			// so the indexer can assemble the GET/SET pair (src/index).
			if p.accept(TokGet) {
				getStmts := p.parseStatementList(TokEndGet)
				p.expect(TokEndGet)
				gpou := p.newNode(ast.POU, mloc, ast.POUData{Name: name + ".get_" + mname, Kind: ast.POUProperty, Linkage: ast.Internal, ReturnTypeRef: mret}, mVarBlocks...)
				gimpl := p.newNode(ast.Implementation, mloc, ast.ImplementationData{Name: name + ".get_" + mname, Kind: ast.POUProperty, Linkage: ast.Internal}, getStmts)
				varBlocks = append(varBlocks, gpou, gimpl)
			}
			if p.accept(TokSet) {
				setStmts := p.parseStatementList(TokEndSet)
				p.expect(TokEndSet)
				spou := p.newNode(ast.POU, mloc, ast.POUData{Name: name + ".set_" + mname, Kind: ast.POUProperty, Linkage: ast.Internal}, mVarBlocks...)
				simpl := p.newNode(ast.Implementation, mloc, ast.ImplementationData{Name: name + ".set_" + mname, Kind: ast.POUProperty, Linkage: ast.Internal}, setStmts)
				varBlocks = append(varBlocks, spou, simpl)
			}
			p.expect(TokEndProperty)
			continue
		}

		mStmts := p.parseStatementList(TokEndMethod)
		p.expect(TokEndMethod)
		mpou := p.newNode(ast.POU, mloc, ast.POUData{Name: name + "." + mname, Kind: ast.POUMethod, Linkage: ast.Internal, ReturnTypeRef: mret}, mVarBlocks...)
		mimpl := p.newNode(ast.Implementation, mloc, ast.ImplementationData{Name: name + "." + mname, Kind: ast.POUMethod, Linkage: ast.Internal}, mStmts)
		// Nested POU/Implementation children are mixed in alongside this
		// class's own VariableBlock children; src/index filters the owning
		// POU's Children by Kind when building VAR blocks vs. member tables.
		varBlocks = append(varBlocks, mpou, mimpl)
	}

	var stmts *ast.Node
	if kind != ast.POUClass {
		stmts = p.parseStatementList(endTok)
	}
	p.expect(endTok)

	pouNode := p.newNode(ast.POU, loc, pouData, varBlocks...)
	var implNode *ast.Node
	if stmts != nil {
		implNode = p.newNode(ast.Implementation, loc, ast.ImplementationData{Name: name, Kind: kind, Linkage: ast.Internal}, stmts)
	}
	return pouNode, implNode
}

func isVarBlockStart(t TokenType) bool {
	switch t {
	case TokVar, TokVarInput, TokVarOutput, TokVarInOut, TokVarTemp, TokVarGlobal, TokVarExternal, TokVarAccess, TokVarConfig:
		return true
	}
	return false
}

// ---------------------------------------------------------------------
// Variable declaration blocks
// ---------------------------------------------------------------------

func (p *Parser) parseVarBlock() *ast.Node {
	loc := p.loc()
	kind := ast.VarLocal
	switch p.tok.Type {
	case TokVarInput:
		kind = ast.VarInput
	case TokVarOutput:
		kind = ast.VarOutput
	case TokVarInOut:
		kind = ast.VarInOut
	case TokVarTemp:
		kind = ast.VarTemp
	case TokVarGlobal:
		kind = ast.VarGlobal
	case TokVarExternal:
		kind = ast.VarExternal
	}
	p.advance()

	constant := p.accept(TokConstant)
	retain := false
	if p.at(TokRetain) || p.at(TokNonRetain) {
		retain = p.tok.Type == TokRetain
		p.advance()
	}
	passing := ast.ByVal
	if kind == ast.VarInOut {
		passing = ast.ByRef
	}

	var vars []*ast.Node
	for !p.at(TokEndVar) && !p.at(TokEOF) {
		vars = append(vars, p.parseVariable())
	}
	p.expect(TokEndVar)

	data := ast.VariableBlockData{Kind: kind, Passing: passing, Constant: constant, Retain: retain, Access: ast.AccessPublic}
	return p.newNode(ast.VariableBlock, loc, data, vars...)
}

// parseVariable parses one "name[, name2] {attrs} : type [:= init];" entry.
func (p *Parser) parseVariable() *ast.Node {
	loc := p.loc()
	names := []string{p.expect(TokIdentifier).Val}
	for p.accept(TokComma) {
		names = append(names, p.expect(TokIdentifier).Val)
	}

	var hwAddr string
	if p.tok.Type == TokIdentifier && strings.EqualFold(p.tok.Val, "AT") {
		p.advance()
		hwAddr = p.expect(TokPercentIO).Val
	}

	var ref, sized, external bool
	for p.accept(TokLBrace) {
		for !p.at(TokRBrace) && !p.at(TokEOF) {
			switch p.tok.Type {
			case TokRef:
				ref = true
			case TokSized:
				sized = true
			case TokExternal:
				external = true
			}
			p.advance()
		}
		p.expect(TokRBrace)
	}

	p.expect(TokColon)
	typeNode, typeRef := p.parseTypeSpec()

	var initExpr *ast.Node
	if p.accept(TokAssign) {
		initExpr = p.parseExpr(0)
	}

	// A multi-name declaration ("a, b : INT;") desugars into one Variable
	// node per name sharing the same inline type/init subtree, mirroring
	// how the standard treats it as shorthand for repeated declarations.
	first := true
	var nodes []*ast.Node
	for _, nm := range names {
		data := ast.VariableData{Name: nm, TypeRef: typeRef, HWAddress: hwAddr, SizedFlag: sized, RefFlag: ref, ExternalTag: external}
		children := []*ast.Node{}
		if typeNode != nil && first {
			children = append(children, typeNode)
		}
		if initExpr != nil {
			children = append(children, initExpr)
		}
		nodes = append(nodes, p.newNode(ast.Variable, loc, data, children...))
		first = false
	}
	p.expect(TokSemi)
	if len(nodes) == 1 {
		return nodes[0]
	}
	// Wrap siblings so parseVarBlock's single-child-per-iteration loop still
	// sees one node; callers that care about individual Variables Walk past
	// this wrapper Block.
	return p.newNode(ast.Block, loc, nil, nodes...)
}

// ---------------------------------------------------------------------
// Type specifications
// ---------------------------------------------------------------------

// parseTypeSpec parses a type reference, which is either a bare name
// (typeNode == nil, typeRef == name) or an inline structured type
// definition (array/struct/pointer/string/subrange literal).
func (p *Parser) parseTypeSpec() (typeNode *ast.Node, typeRef string) {
	loc := p.loc()
	switch p.tok.Type {
	case TokArray:
		return p.parseArrayType(), ""
	case TokStruct:
		return p.parseStructType(), ""
	case TokPointer:
		p.advance()
		p.expect(TokTo)
		inner := p.parseTypeName()
		return p.newNode(ast.TypeDecl, loc, ast.TypeDeclData{InnerTypeRef: inner, Deref: ast.DerefDefault}), ""
	default:
		name := p.parseTypeName()
		if p.accept(TokLParen) {
			// Subrange constraint inline, e.g. "INT (0..10)".
			lo := p.parseConstIntLiteral()
			p.expect(TokDotDot)
			hi := p.parseConstIntLiteral()
			p.expect(TokRParen)
			return p.newNode(ast.TypeDecl, loc, ast.TypeDeclData{BaseType: name, Low: lo, Hi: hi, HasRange: true}), ""
		}
		return nil, name
	}
}

func (p *Parser) parseTypeName() string {
	if p.at(TokIdentifier) {
		t := p.tok.Val
		p.advance()
		return t
	}
	// Built-in elementary type keywords double as type names (INT, REAL,
	// BOOL, TIME, STRING, ...) but are lexed as TokIdentifier already since
	// they are not in the reserved-word table; this branch only guards
	// against a stray keyword appearing where a type is expected.
	t := p.tok.Val
	p.batch.Errorf(diag.EUnexpectedToken, p.loc(), "expected type name, got %s", p.tok.Type)
	p.advance()
	return t
}

func (p *Parser) parseArrayType() *ast.Node {
	loc := p.loc()
	p.expect(TokArray)
	p.expect(TokLBracket)
	var dims []*ast.Node
	vla := false
	for {
		dloc := p.loc()
		if p.accept(TokStar) {
			vla = true
			dims = append(dims, p.newNode(ast.ArrayDimension, dloc, ast.ArrayDimensionData{}))
		} else {
			lo := p.parseConstIntLiteral()
			p.expect(TokDotDot)
			hi := p.parseConstIntLiteral()
			dims = append(dims, p.newNode(ast.ArrayDimension, dloc, ast.ArrayDimensionData{Lo: lo, Hi: hi}))
		}
		if !p.accept(TokComma) {
			break
		}
	}
	p.expect(TokRBracket)
	p.expect(TokOf)
	elem := p.parseTypeName()
	return p.newNode(ast.ArrayType, loc, ast.TypeDeclData{ElementTypeRef: elem, VLA: vla}, dims...)
}

func (p *Parser) parseStructType() *ast.Node {
	loc := p.loc()
	p.expect(TokStruct)
	var members []*ast.Node
	for !p.at(TokEndStruct) && !p.at(TokEOF) {
		mloc := p.loc()
		name := p.expect(TokIdentifier).Val
		p.expect(TokColon)
		typeNode, typeRef := p.parseTypeSpec()
		var init *ast.Node
		if p.accept(TokAssign) {
			init = p.parseExpr(0)
		}
		p.expect(TokSemi)
		children := []*ast.Node{}
		if typeNode != nil {
			children = append(children, typeNode)
		}
		if init != nil {
			children = append(children, init)
		}
		members = append(members, p.newNode(ast.StructMember, mloc, ast.VariableData{Name: name, TypeRef: typeRef}, children...))
	}
	p.expect(TokEndStruct)
	return p.newNode(ast.StructType, loc, ast.TypeDeclData{}, members...)
}

// parseTypeBlock parses a TYPE ... END_TYPE block, which may declare several
// named types (structs, enums, subranges, arrays, strings, aliases).
func (p *Parser) parseTypeBlock() []*ast.Node {
	p.expect(TokType)
	var decls []*ast.Node
	for !p.at(TokEndType) && !p.at(TokEOF) {
		loc := p.loc()
		name := p.expect(TokIdentifier).Val
		p.expect(TokColon)

		switch p.tok.Type {
		case TokLParen:
			decls = append(decls, p.parseEnumType(name, loc))
		case TokStruct:
			n := p.parseStructType()
			d := n.Data.(ast.TypeDeclData)
			d.Name = name
			n.Data = d
			decls = append(decls, n)
		case TokArray:
			n := p.parseArrayType()
			d := n.Data.(ast.TypeDeclData)
			d.Name = name
			n.Data = d
			decls = append(decls, n)
		default:
			// Subrange, string, pointer-to, or plain alias.
			baseName := p.parseTypeName()
			if p.accept(TokLParen) {
				lo := p.parseConstIntLiteral()
				p.expect(TokDotDot)
				hi := p.parseConstIntLiteral()
				p.expect(TokRParen)
				decls = append(decls, p.newNode(ast.SubRangeType, loc, ast.TypeDeclData{Name: name, BaseType: baseName, Low: lo, Hi: hi, HasRange: true}))
			} else {
				decls = append(decls, p.newNode(ast.NamedTypeRef, loc, ast.TypeDeclData{Name: name, BaseType: baseName}))
			}
		}
		_ = p.accept(TokAssign) && p.skipInitExpr()
		p.expect(TokSemi)
	}
	p.expect(TokEndType)
	return decls
}

// skipInitExpr discards a default-value initializer already consumed by the
// caller's "p.accept(TokAssign) &&" short-circuit guard; it always parses
// (and drops) exactly one expression before returning true so the &&-chain
// reads naturally at the call site.
func (p *Parser) skipInitExpr() bool {
	p.parseExpr(0)
	return true
}

func (p *Parser) parseEnumType(name string, loc ast.Loc) *ast.Node {
	p.expect(TokLParen)
	var elems []*ast.Node
	explicit := false
	for {
		eloc := p.loc()
		elemName := p.expect(TokIdentifier).Val
		var val *ast.Node
		if p.accept(TokAssign) {
			explicit = true
			val = p.parseExpr(0)
		}
		var children []*ast.Node
		if val != nil {
			children = append(children, val)
		}
		elems = append(elems, p.newNode(ast.EnumElement, eloc, elemName, children...))
		if !p.accept(TokComma) {
			break
		}
	}
	p.expect(TokRParen)
	return p.newNode(ast.EnumType, loc, ast.TypeDeclData{Name: name, Explicit: explicit}, elems...)
}

func (p *Parser) parseConstIntLiteral() int64 {
	neg := p.accept(TokMinus)
	t := p.expect(TokInteger)
	v, _ := strconv.ParseInt(strings.ReplaceAll(t.Val, "_", ""), 0, 64)
	if neg {
		v = -v
	}
	return v
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

// parseStatementList parses statements until one of the stop tokens (an
// END_* keyword, UNTIL, ELSE, ELSIF) is reached.
func (p *Parser) parseStatementList(stop ...TokenType) *ast.Node {
	loc := p.loc()
	var stmts []*ast.Node
	for !p.atAny(stop...) && !p.at(TokEOF) {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	return p.newNode(ast.StatementList, loc, nil, stmts...)
}

func (p *Parser) atAny(tts ...TokenType) bool {
	for _, t := range tts {
		if p.at(t) {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatement() *ast.Node {
	switch p.tok.Type {
	case TokSemi:
		p.advance()
		return nil
	case TokIf:
		return p.parseIf()
	case TokCase:
		return p.parseCase()
	case TokFor:
		return p.parseFor()
	case TokWhile:
		return p.parseWhile()
	case TokRepeat:
		return p.parseRepeat()
	case TokReturn:
		loc := p.loc()
		p.advance()
		p.expect(TokSemi)
		return p.newNode(ast.Return, loc, nil)
	case TokExit:
		loc := p.loc()
		p.advance()
		p.expect(TokSemi)
		return p.newNode(ast.Exit, loc, nil)
	case TokContinue:
		loc := p.loc()
		p.advance()
		p.expect(TokSemi)
		return p.newNode(ast.Continue, loc, nil)
	case TokIdentifier:
		return p.parseSimpleStatement()
	default:
		p.batch.Errorf(diag.EUnexpectedToken, p.loc(), "unexpected statement start %s", p.tok.Type)
		p.advance()
		return nil
	}
}

// parseSimpleStatement parses an assignment, reference-assignment, output
// assignment, or a bare call statement — all of which start with a
// reference-expression and are disambiguated by what follows it.
func (p *Parser) parseSimpleStatement() *ast.Node {
	loc := p.loc()
	ref := p.parsePostfix()

	switch p.tok.Type {
	case TokAssign:
		p.advance()
		rhs := p.parseExpr(0)
		p.expect(TokSemi)
		return p.newNode(ast.Assignment, loc, nil, ref, rhs)
	case TokRefAssign:
		p.advance()
		rhs := p.parseExpr(0)
		p.expect(TokSemi)
		return p.newNode(ast.RefAssignment, loc, nil, ref, rhs)
	case TokLParen:
		call := p.parseCallArgs(ref)
		p.expect(TokSemi)
		return call
	default:
		p.expect(TokSemi)
		return ref
	}
}

func (p *Parser) parseCallArgs(callee *ast.Node) *ast.Node {
	loc := callee.Loc
	p.expect(TokLParen)
	argsLoc := p.loc()
	var args []*ast.Node
	for !p.at(TokRParen) && !p.at(TokEOF) {
		aloc := p.loc()
		var name string
		out := false
		if p.at(TokIdentifier) {
			if nt := p.peekTok(); nt.Type == TokAssign || nt.Type == TokArrow {
				name = p.tok.Val
				out = nt.Type == TokArrow
				p.advance()
				p.advance()
			}
		}
		val := p.parseExpr(0)
		args = append(args, p.newNode(ast.Argument, aloc, ast.ArgumentData{Name: name, Out: out}, val))
		if !p.accept(TokComma) {
			break
		}
	}
	p.expect(TokRParen)
	argList := p.newNode(ast.ArgumentList, argsLoc, nil, args...)
	return p.newNode(ast.Call, loc, nil, callee, argList)
}

func (p *Parser) parseIf() *ast.Node {
	loc := p.loc()
	p.expect(TokIf)
	cond := p.parseExpr(0)
	p.expect(TokThen)
	thenBody := p.parseStatementList(TokElsif, TokElse, TokEndIf)

	children := []*ast.Node{cond, thenBody}
	for p.at(TokElsif) {
		eloc := p.loc()
		p.advance()
		econd := p.parseExpr(0)
		p.expect(TokThen)
		ebody := p.parseStatementList(TokElsif, TokElse, TokEndIf)
		children = append(children, p.newNode(ast.ElseIfBranch, eloc, nil, econd, ebody))
	}
	if p.accept(TokElse) {
		elseBody := p.parseStatementList(TokEndIf)
		children = append(children, elseBody)
	}
	p.expect(TokEndIf)
	return p.newNode(ast.If, loc, nil, children...)
}

func (p *Parser) parseCase() *ast.Node {
	loc := p.loc()
	p.expect(TokCase)
	sel := p.parseExpr(0)
	p.expect(TokOf)

	children := []*ast.Node{sel}
	for p.at(TokInteger) || p.at(TokIdentifier) || p.at(TokMinus) {
		bloc := p.loc()
		var labels []*ast.Node
		for {
			lloc := p.loc()
			lo := p.parseExpr(0)
			if p.accept(TokDotDot) {
				hi := p.parseExpr(0)
				labels = append(labels, p.newNode(ast.CaseLabel, lloc, nil, lo, hi))
			} else {
				labels = append(labels, p.newNode(ast.CaseLabel, lloc, nil, lo))
			}
			if !p.accept(TokComma) {
				break
			}
		}
		p.expect(TokColon)
		body := p.parseStatementList(TokInteger, TokIdentifier, TokMinus, TokElse, TokEndCase)
		labels = append(labels, body)
		children = append(children, p.newNode(ast.CaseBranch, bloc, nil, labels...))
	}
	if p.accept(TokElse) {
		body := p.parseStatementList(TokEndCase)
		children = append(children, p.newNode(ast.CaseBranch, p.loc(), "else", body))
	}
	p.expect(TokEndCase)
	return p.newNode(ast.Case, loc, nil, children...)
}

func (p *Parser) parseFor() *ast.Node {
	loc := p.loc()
	p.expect(TokFor)
	varLoc := p.loc()
	name := p.expect(TokIdentifier).Val
	p.expect(TokAssign)
	from := p.parseExpr(0)
	p.expect(TokTo)
	to := p.parseExpr(0)
	var step *ast.Node
	if p.accept(TokBy) {
		step = p.parseExpr(0)
	}
	p.expect(TokDo)
	body := p.parseStatementList(TokEndFor)
	p.expect(TokEndFor)

	ctrl := p.newNode(ast.Identifier, varLoc, name)
	children := []*ast.Node{ctrl, from, to}
	if step != nil {
		children = append(children, step)
	}
	rng := p.newNode(ast.RangeStatement, loc, nil, children...)
	return p.newNode(ast.For, loc, nil, rng, body)
}

func (p *Parser) parseWhile() *ast.Node {
	loc := p.loc()
	p.expect(TokWhile)
	cond := p.parseExpr(0)
	p.expect(TokDo)
	body := p.parseStatementList(TokEndWhile)
	p.expect(TokEndWhile)
	return p.newNode(ast.While, loc, nil, cond, body)
}

func (p *Parser) parseRepeat() *ast.Node {
	loc := p.loc()
	p.expect(TokRepeat)
	body := p.parseStatementList(TokUntil)
	p.expect(TokUntil)
	cond := p.parseExpr(0)
	p.expect(TokEndRepeat)
	return p.newNode(ast.Repeat, loc, nil, body, cond)
}

// ---------------------------------------------------------------------
// Expressions (Pratt / operator-precedence)
// ---------------------------------------------------------------------

// Binding powers, low to high, matching spec.md's expression grammar's
// precedence order: OR < XOR < AND < equality < relational < additive <
// multiplicative/MOD < unary < power < postfix.
const (
	bpOr = (iota + 1) * 10
	bpXor
	bpAnd
	bpEquality
	bpRelational
	bpAdditive
	bpMultiplicative
	bpUnary
	bpPower
)

func (p *Parser) parseExpr(minBP int) *ast.Node {
	left := p.parseUnary()
	for {
		opBP, rightAssoc := infixBP(p.tok.Type)
		if opBP == 0 || opBP < minBP {
			break
		}
		opTok := p.tok
		loc := p.loc()
		p.advance()
		nextMin := opBP + 1
		if rightAssoc {
			nextMin = opBP
		}
		right := p.parseExpr(nextMin)
		left = p.newNode(ast.BinaryExpr, loc, opTok.Type, left, right)
	}
	return left
}

func infixBP(t TokenType) (bp int, rightAssoc bool) {
	switch t {
	case TokOr:
		return bpOr, false
	case TokXor:
		return bpXor, false
	case TokAnd, TokAmp:
		return bpAnd, false
	case TokEq, TokNe:
		return bpEquality, false
	case TokLt, TokLe, TokGt, TokGe:
		return bpRelational, false
	case TokPlus, TokMinus:
		return bpAdditive, false
	case TokStar, TokSlash, TokMod:
		return bpMultiplicative, false
	case TokPow:
		return bpPower, true
	}
	return 0, false
}

func (p *Parser) parseUnary() *ast.Node {
	loc := p.loc()
	switch p.tok.Type {
	case TokMinus, TokPlus, TokNot:
		op := p.tok.Type
		p.advance()
		operand := p.parseExpr(bpUnary)
		return p.newNode(ast.UnaryExpr, loc, op, operand)
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any chain of member
// access, indexing, dereference or cast suffixes, producing the unified
// ReferenceExpr nodes of spec.md §3.1.1.
func (p *Parser) parsePostfix() *ast.Node {
	n := p.parsePrimary()
	return p.parseReferenceSuffixes(n)
}

func (p *Parser) parseReferenceSuffixes(base *ast.Node) *ast.Node {
	for {
		loc := p.loc()
		switch p.tok.Type {
		case TokDot:
			p.advance()
			member := p.expect(TokIdentifier).Val
			base = p.newNode(ast.ReferenceExpr, loc, ast.RefExprData{Access: ast.RefMember, Member: member}, base)
		case TokLBracket:
			p.advance()
			idx := p.parseExpr(0)
			for p.accept(TokComma) {
				idx = p.parseExpr(0) // Additional dims folded left-to-right; codegen walks ArgumentList-less index chain.
			}
			p.expect(TokRBracket)
			base = p.newNode(ast.ReferenceExpr, loc, ast.RefExprData{Access: ast.RefIndex}, base, idx)
		case TokCaret:
			p.advance()
			base = p.newNode(ast.ReferenceExpr, loc, ast.RefExprData{Access: ast.RefDeref}, base)
		case TokLParen:
			base = p.parseCallArgs(base)
		default:
			return base
		}
	}
}

func (p *Parser) parsePrimary() *ast.Node {
	loc := p.loc()
	switch p.tok.Type {
	case TokInteger:
		v := p.tok.Val
		p.advance()
		return p.newNode(ast.IntLiteral, loc, v)
	case TokReal:
		v := p.tok.Val
		p.advance()
		return p.newNode(ast.RealLiteral, loc, v)
	case TokString, TokWString:
		v := p.tok.Val
		enc := ast.UTF8
		if p.tok.Type == TokWString {
			enc = ast.UTF16
		}
		p.advance()
		return p.newNode(ast.StringLiteral, loc, ast.StringLitData{Val: v, Enc: enc})
	case TokTrue, TokFalse:
		v := p.tok.Type == TokTrue
		p.advance()
		return p.newNode(ast.BoolLiteral, loc, v)
	case TokTime:
		v := p.tok.Val
		p.advance()
		return p.newNode(ast.TimeLiteral, loc, v)
	case TokDate, TokTimeOfDay, TokDateTime:
		v := p.tok.Val
		p.advance()
		return p.newNode(ast.DateLiteral, loc, v)
	case TokAmp:
		// &variable: address-of, spec.md §3.1.1 RefAddress.
		p.advance()
		operand := p.parsePostfix()
		return p.newNode(ast.ReferenceExpr, loc, ast.RefExprData{Access: ast.RefAddress}, operand)
	case TokLParen:
		p.advance()
		e := p.parseExpr(0)
		p.expect(TokRParen)
		return e
	case TokIdentifier:
		name := p.tok.Val
		p.advance()
		if p.accept(TokHash) {
			// Typed literal / cast: TYPE#value or TYPE#base#digits.
			target := name
			inner := p.parsePrimary()
			return p.newNode(ast.ReferenceExpr, loc, ast.RefExprData{Access: ast.RefCast, CastTarget: target}, inner)
		}
		return p.newNode(ast.Identifier, loc, name)
	default:
		p.batch.Errorf(diag.EUnexpectedToken, p.loc(), "unexpected expression token %s", p.tok.Type)
		tok := p.tok
		p.advance()
		return p.newNode(ast.Empty, loc, tok.Val)
	}
}

// ---------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------

// Parse parses a single compilation unit's source text, returning its Unit
// tree and accumulating any diagnostics into batch.
func Parse(src string, file int, ids *ast.IDProvider, batch *diag.Batch) *ast.Unit {
	p := NewParser(src, file, ids, batch)
	return p.ParseUnit()
}

// TokenStream lexes src and writes a tab-aligned token dump, matching the
// teacher's -ts debug flag (spec.md §6's --tokens).
func TokenStream(src string) (string, error) {
	l := newLexer(src, lexGlobal)
	go l.run()

	sb := strings.Builder{}
	tw := tabwriter.NewWriter(&sb, 10, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "Value\tType\tPosition\n")
	for {
		t := l.nextItem()
		switch t.Type {
		case TokEOF:
			tw.Flush()
			return sb.String(), nil
		case TokError:
			tw.Flush()
			return sb.String(), fmt.Errorf("%s", t.Val)
		default:
			val := t.Val
			if len(val) > 20 {
				val = val[:17] + "..."
			}
			fmt.Fprintf(tw, "%q\t%s\t%d:%d\n", val, t.Type, t.Line, t.Pos)
		}
	}
}
