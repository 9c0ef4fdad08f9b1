// Package constant implements the fixed-point constant evaluator of spec.md
// §4.5: it folds CONST-qualified initializers, enum element values, and
// array/sub-range bounds into concrete ConstValues ahead of codegen,
// directly generalizing the teacher's ir.constantFolding (src/ir/optimise.go)
// from VSL's int/float-only EXPRESSION node into ST's full literal and
// operator set, with explicit two's-complement overflow wraparound instead
// of silently relying on Go's native int width.
package constant

import (
	"fmt"
	"strconv"
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/frontend"
	"stc/src/index"
)

// Evaluator folds constant expressions against an Index's type table.
type Evaluator struct {
	ix    *index.Index
	batch *diag.Batch
}

// New returns an Evaluator reading from (but not mutating) ix's type table.
func New(ix *index.Index, batch *diag.Batch) *Evaluator {
	return &Evaluator{ix: ix, batch: batch}
}

// EvalAll folds every unresolved entry in the index's constant-expressions
// table in declaration order, so that a later constant may reference an
// earlier one's folded value (spec.md §4.5: "constants may reference
// previously declared constants within the same pass").
func (e *Evaluator) EvalAll() {
	for id := 0; id < len(e.ix.Consts); id++ {
		c := e.ix.Const(index.ConstID(id))
		if c == nil || c.Folded {
			continue
		}
		v, err := e.Eval(c.Expr)
		if err != nil {
			e.batch.Errorf(diag.EInternal, c.Expr.Loc, "%s", err)
			continue
		}
		if c.TargetType != "" {
			v = e.coerce(v, c.TargetType, c.Expr.Loc)
		}
		c.Value = v
		c.Folded = true
	}
}

// Eval recursively folds an expression subtree into a ConstValue, failing if
// it is not a compile-time constant (spec.md §4.5's "constant expression"
// grammar: literals, named constants, and arithmetic/logical/relational
// combinations thereof).
func (e *Evaluator) Eval(n *ast.Node) (index.ConstValue, error) {
	if n == nil {
		return index.ConstValue{}, fmt.Errorf("nil constant expression")
	}
	switch n.Kind {
	case ast.IntLiteral:
		v, err := parseIntLiteral(n.Data.(string))
		if err != nil {
			return index.ConstValue{}, err
		}
		return index.ConstValue{Kind: index.ConstInt, Int: v}, nil
	case ast.RealLiteral:
		v, err := strconv.ParseFloat(strings.ReplaceAll(n.Data.(string), "_", ""), 64)
		if err != nil {
			return index.ConstValue{}, err
		}
		return index.ConstValue{Kind: index.ConstFloat, Float: v}, nil
	case ast.BoolLiteral:
		return index.ConstValue{Kind: index.ConstBool, Bool: n.Data.(bool)}, nil
	case ast.StringLiteral:
		return index.ConstValue{Kind: index.ConstString, Str: n.Data.(ast.StringLitData).Val}, nil
	case ast.UnaryExpr:
		return e.evalUnary(n)
	case ast.BinaryExpr:
		return e.evalBinary(n)
	case ast.Identifier:
		return e.resolveNamed(n.Data.(string), n.Loc)
	default:
		return index.ConstValue{}, fmt.Errorf("line %d:%d: not a constant expression", n.Loc.Line, n.Loc.Pos)
	}
}

func (e *Evaluator) evalUnary(n *ast.Node) (index.ConstValue, error) {
	operand, err := e.Eval(n.Children[0])
	if err != nil {
		return index.ConstValue{}, err
	}
	op := n.Data.(frontend.TokenType)
	switch op {
	case frontend.TokMinus:
		switch operand.Kind {
		case index.ConstInt:
			return index.ConstValue{Kind: index.ConstInt, Int: wrap64(-operand.Int)}, nil
		case index.ConstFloat:
			return index.ConstValue{Kind: index.ConstFloat, Float: -operand.Float}, nil
		}
	case frontend.TokPlus:
		return operand, nil
	case frontend.TokNot:
		if operand.Kind == index.ConstBool {
			return index.ConstValue{Kind: index.ConstBool, Bool: !operand.Bool}, nil
		}
		if operand.Kind == index.ConstInt {
			return index.ConstValue{Kind: index.ConstInt, Int: ^operand.Int}, nil
		}
	}
	return index.ConstValue{}, fmt.Errorf("line %d:%d: invalid unary operand for %s", n.Loc.Line, n.Loc.Pos, op)
}

func (e *Evaluator) evalBinary(n *ast.Node) (index.ConstValue, error) {
	a, err := e.Eval(n.Children[0])
	if err != nil {
		return index.ConstValue{}, err
	}
	b, err := e.Eval(n.Children[1])
	if err != nil {
		return index.ConstValue{}, err
	}
	op := n.Data.(frontend.TokenType)
	loc := n.Loc

	if a.Kind == index.ConstFloat || b.Kind == index.ConstFloat {
		fa, fb := asFloat(a), asFloat(b)
		switch op {
		case frontend.TokPlus:
			return index.ConstValue{Kind: index.ConstFloat, Float: fa + fb}, nil
		case frontend.TokMinus:
			return index.ConstValue{Kind: index.ConstFloat, Float: fa - fb}, nil
		case frontend.TokStar:
			return index.ConstValue{Kind: index.ConstFloat, Float: fa * fb}, nil
		case frontend.TokSlash:
			if fb == 0 {
				return index.ConstValue{}, fmt.Errorf("line %d:%d: division by zero in constant expression", loc.Line, loc.Pos)
			}
			return index.ConstValue{Kind: index.ConstFloat, Float: fa / fb}, nil
		case frontend.TokLt, frontend.TokLe, frontend.TokGt, frontend.TokGe, frontend.TokEq, frontend.TokNe:
			return index.ConstValue{Kind: index.ConstBool, Bool: compareFloat(fa, op, fb)}, nil
		}
		return index.ConstValue{}, fmt.Errorf("line %d:%d: operator %s not defined for floating constants", loc.Line, loc.Pos, op)
	}

	if a.Kind == index.ConstBool && b.Kind == index.ConstBool {
		switch op {
		case frontend.TokAnd:
			return index.ConstValue{Kind: index.ConstBool, Bool: a.Bool && b.Bool}, nil
		case frontend.TokOr:
			return index.ConstValue{Kind: index.ConstBool, Bool: a.Bool || b.Bool}, nil
		case frontend.TokXor:
			return index.ConstValue{Kind: index.ConstBool, Bool: a.Bool != b.Bool}, nil
		case frontend.TokEq:
			return index.ConstValue{Kind: index.ConstBool, Bool: a.Bool == b.Bool}, nil
		case frontend.TokNe:
			return index.ConstValue{Kind: index.ConstBool, Bool: a.Bool != b.Bool}, nil
		}
	}

	if a.Kind == index.ConstInt && b.Kind == index.ConstInt {
		x, y := a.Int, b.Int
		switch op {
		case frontend.TokPlus:
			return index.ConstValue{Kind: index.ConstInt, Int: wrap64(x + y)}, e.overflowCheck(x, y, x+y, loc)
		case frontend.TokMinus:
			return index.ConstValue{Kind: index.ConstInt, Int: wrap64(x - y)}, nil
		case frontend.TokStar:
			return index.ConstValue{Kind: index.ConstInt, Int: wrap64(x * y)}, nil
		case frontend.TokSlash:
			if y == 0 {
				return index.ConstValue{}, fmt.Errorf("line %d:%d: division by zero in constant expression", loc.Line, loc.Pos)
			}
			return index.ConstValue{Kind: index.ConstInt, Int: x / y}, nil
		case frontend.TokMod:
			if y == 0 {
				return index.ConstValue{}, fmt.Errorf("line %d:%d: modulo by zero in constant expression", loc.Line, loc.Pos)
			}
			return index.ConstValue{Kind: index.ConstInt, Int: x % y}, nil
		case frontend.TokAnd:
			return index.ConstValue{Kind: index.ConstInt, Int: x & y}, nil
		case frontend.TokOr:
			return index.ConstValue{Kind: index.ConstInt, Int: x | y}, nil
		case frontend.TokXor:
			return index.ConstValue{Kind: index.ConstInt, Int: x ^ y}, nil
		case frontend.TokLt:
			return index.ConstValue{Kind: index.ConstBool, Bool: x < y}, nil
		case frontend.TokLe:
			return index.ConstValue{Kind: index.ConstBool, Bool: x <= y}, nil
		case frontend.TokGt:
			return index.ConstValue{Kind: index.ConstBool, Bool: x > y}, nil
		case frontend.TokGe:
			return index.ConstValue{Kind: index.ConstBool, Bool: x >= y}, nil
		case frontend.TokEq:
			return index.ConstValue{Kind: index.ConstBool, Bool: x == y}, nil
		case frontend.TokNe:
			return index.ConstValue{Kind: index.ConstBool, Bool: x != y}, nil
		}
	}

	return index.ConstValue{}, fmt.Errorf("line %d:%d: operator %s not defined for this constant operand pair", loc.Line, loc.Pos, op)
}

// resolveNamed resolves a bare-name reference to a previously folded named
// constant: an enum element or another CONST-qualified variable, per
// spec.md §4.5's "constants may reference previously declared constants".
// Qualified/indexed/cast references never reach here — those stay
// ReferenceExpr nodes and are rejected by Eval's default case, matching the
// standard's restriction that a constant expression's operands must
// themselves be constants, not arbitrary reference chains.
func (e *Evaluator) resolveNamed(name string, loc ast.Loc) (index.ConstValue, error) {
	for _, t := range e.ix.Enums {
		for _, elem := range t.Elements {
			if !strings.EqualFold(elem.Name, name) {
				continue
			}
			c := e.ix.Const(elem.ConstID)
			if c == nil {
				return index.ConstValue{Kind: index.ConstInt}, nil
			}
			if !c.Folded {
				v, err := e.Eval(c.Expr)
				if err != nil {
					return index.ConstValue{}, err
				}
				c.Value, c.Folded = v, true
			}
			return c.Value, nil
		}
	}
	if v, ok := e.ix.LookupVariable(name); ok && v.Constant && v.HasInit {
		c := e.ix.Const(v.InitConst)
		if c == nil {
			return index.ConstValue{}, fmt.Errorf("line %d:%d: constant %q has no initializer recorded", loc.Line, loc.Pos, name)
		}
		if !c.Folded {
			val, err := e.Eval(c.Expr)
			if err != nil {
				return index.ConstValue{}, err
			}
			c.Value, c.Folded = val, true
		}
		return c.Value, nil
	}
	return index.ConstValue{}, fmt.Errorf("line %d:%d: %q is not a known constant", loc.Line, loc.Pos, name)
}

// coerce narrows a folded value to targetType's representation, applying
// two's-complement wraparound for integer targets narrower than 64 bits and
// reporting overflow as a warning rather than an error, matching how most
// ST toolchains treat CONST initializer truncation.
func (e *Evaluator) coerce(v index.ConstValue, targetType string, loc ast.Loc) index.ConstValue {
	t, ok := e.ix.EffectiveType(targetType)
	if !ok || v.Kind != index.ConstInt {
		return v
	}
	bits := t.BitWidth()
	if bits == 0 || bits >= 64 {
		return v
	}
	mask := int64(1)<<uint(bits) - 1
	wrapped := v.Int & mask
	if t.Signed && wrapped&(int64(1)<<uint(bits-1)) != 0 {
		wrapped -= int64(1) << uint(bits)
	}
	if wrapped != v.Int {
		e.batch.Warnf(diag.EOutOfRange, loc, "constant %d overflows %s, wrapped to %d", v.Int, targetType, wrapped)
	}
	v.Int = wrapped
	return v
}

func (e *Evaluator) overflowCheck(x, y, sum int64, loc ast.Loc) error {
	if (y > 0 && sum < x) || (y < 0 && sum > x) {
		e.batch.Warnf(diag.EOutOfRange, loc, "constant addition %d + %d overflows 64 bits, wrapped", x, y)
	}
	return nil
}

// wrap64 is a no-op identity at 64 bits — Go's int64 already wraps on
// overflow with two's-complement semantics, so this only documents the
// invariant rather than performing extra work. Narrower wraparound happens
// in coerce once the target type is known.
func wrap64(v int64) int64 { return v }

func asFloat(v index.ConstValue) float64 {
	if v.Kind == index.ConstFloat {
		return v.Float
	}
	return float64(v.Int)
}

func compareFloat(a float64, op frontend.TokenType, b float64) bool {
	switch op {
	case frontend.TokLt:
		return a < b
	case frontend.TokLe:
		return a <= b
	case frontend.TokGt:
		return a > b
	case frontend.TokGe:
		return a >= b
	case frontend.TokEq:
		return a == b
	case frontend.TokNe:
		return a != b
	}
	return false
}

// parseIntLiteral parses the raw lexeme of an IntLiteral node: plain decimal
// with optional '_' digit separators, or a based literal "16#FF"/"2#1010".
func parseIntLiteral(raw string) (int64, error) {
	raw = strings.ReplaceAll(raw, "_", "")
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		base, err := strconv.Atoi(raw[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid literal base in %q", raw)
		}
		return strconv.ParseInt(raw[i+1:], base, 64)
	}
	return strconv.ParseInt(raw, 10, 64)
}
