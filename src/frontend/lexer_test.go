// Tests the lexing state functions against a short Structured Text program,
// in the same style as the teacher's TestLexer: drive the lexer as its own
// goroutine and compare the emitted token stream, in order, against a
// hand-built expectation slice.

package frontend

import "testing"

func TestLexerProgramSkeleton(t *testing.T) {
	src := `PROGRAM main
VAR
  x : INT;
END_VAR
x := 1;
END_PROGRAM`

	exp := []Token{
		{Type: TokProgram, Val: "PROGRAM"},
		{Type: TokIdentifier, Val: "main"},
		{Type: TokVar, Val: "VAR"},
		{Type: TokIdentifier, Val: "x"},
		{Type: TokColon, Val: ":"},
		{Type: TokIdentifier, Val: "INT"},
		{Type: TokSemi, Val: ";"},
		{Type: TokEndVar, Val: "END_VAR"},
		{Type: TokIdentifier, Val: "x"},
		{Type: TokAssign, Val: ":="},
		{Type: TokInteger, Val: "1"},
		{Type: TokSemi, Val: ";"},
		{Type: TokEndProgram, Val: "END_PROGRAM"},
	}

	l := newLexer(src, lexGlobal)
	go l.run()

	for i, want := range exp {
		got := l.nextItem()
		if got.Type != want.Type || got.Val != want.Val {
			t.Fatalf("token %d: got {%s %q}, want {%s %q}", i, got.Type, got.Val, want.Type, want.Val)
		}
	}
	if tok := l.nextItem(); tok.Type != TokEOF {
		t.Fatalf("expected EOF after %d tokens, got %s", len(exp), tok)
	}
}

func TestLexerHardwareAddress(t *testing.T) {
	// "AT" is not a reserved word lexically — the parser recognizes it by
	// value on an ordinary identifier token (parser.go's parseVariable) — so
	// the lexer must hand back TokIdentifier for it, not a keyword token.
	src := `x AT %QW1.0 : INT;`
	exp := []Token{
		{Type: TokIdentifier, Val: "x"},
		{Type: TokIdentifier, Val: "AT"},
		{Type: TokPercentIO, Val: "%QW1.0"},
		{Type: TokColon, Val: ":"},
		{Type: TokIdentifier, Val: "INT"},
		{Type: TokSemi, Val: ";"},
	}

	l := newLexer(src, lexGlobal)
	go l.run()

	for i, want := range exp {
		got := l.nextItem()
		if got.Type != want.Type || got.Val != want.Val {
			t.Fatalf("token %d: got {%s %q}, want {%s %q}", i, got.Type, got.Val, want.Type, want.Val)
		}
	}
}

func TestLexerStringLiteral(t *testing.T) {
	src := `'hello world'`
	l := newLexer(src, lexGlobal)
	go l.run()

	tok := l.nextItem()
	if tok.Type != TokString {
		t.Fatalf("type = %s, want STRING", tok.Type)
	}
	if tok.Val != "hello world" {
		t.Fatalf("val = %q, want %q", tok.Val, "hello world")
	}
}

func TestLexerRealLiteral(t *testing.T) {
	src := `1.5E10`
	l := newLexer(src, lexGlobal)
	go l.run()

	tok := l.nextItem()
	if tok.Type != TokReal || tok.Val != "1.5E10" {
		t.Fatalf("got {%s %q}, want {REAL %q}", tok.Type, tok.Val, "1.5E10")
	}
}
