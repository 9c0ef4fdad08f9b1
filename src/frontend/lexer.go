// This lexer is based on, and copied from, Rob Pike's talk on Go scanners.
// Link to the talk on YouTube: https://www.youtube.com/watch?v=HxaD_trXwRE
// Link to presentation slides: https://talks.golang.org/2011/lex.slide#1
//
// The lexer uses state functions stateFunc to define the lexer state. States
// allow the lexer to treat the same runes differently depending on context.
// State transitions happen within the current state on appearance of key
// runes. The lexer uses Go's native 'rune' type, giving it native UTF-8
// support for the source being scanned.

package frontend

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// stateFunc defines the state of the lexer.
type stateFunc func(*lexer) stateFunc

// lexer is a lexical scanner that traverses a source stream rune by rune and
// emits Tokens on a channel, consumed concurrently by the parser — the
// teacher's concurrent-lexer-as-goroutine architecture, kept unchanged in
// shape and generalized from VSL's dozen-token grammar to full ST.
type lexer struct {
	input       string     // The source stream of characters to scan.
	start       int        // The starting byte offset of the current token.
	pos         int        // The current byte offset of the scanner.
	width       int        // The width in bytes of the most recently scanned rune.
	line        int        // The current line in the source stream. Not zero-indexed.
	startOnLine int        // The start column of the current token on the current line. Not zero-indexed.
	state       stateFunc  // The current state of the lexer.
	err         chan error // Channel for reporting fatal scan errors.
	items       chan Token // Channel for emitting scanned tokens.
}

const eof = 0 // Same as '\0' for null-terminated C strings.

// newLexer creates and returns a pointer to a new lexer, ready to run().
func newLexer(src string, start stateFunc) *lexer {
	return &lexer{
		input:       src,
		line:        1,
		startOnLine: 1,
		state:       start,
		err:         make(chan error),
		items:       make(chan Token, 2),
	}
}

// run drives the lexer's state machine until it terminates, emitting tokens
// on l.items as it goes. Invoked as its own goroutine by the parser so that
// scanning and parsing pipeline concurrently.
func (l *lexer) run() {
	defer close(l.items)
	defer close(l.err)
	for state := l.state; state != nil; {
		select {
		case err := <-l.err:
			fmt.Printf("lexical error: %s\n", err)
			return
		default:
			state = state(l)
		}
	}
}

// emit sends a token of type typ back to the parser.
func (l *lexer) emit(typ TokenType) {
	defer func() {
		if r := recover(); r != nil {
			// Send on a closed channel: the parser has given up reading.
			l.state = nil
		}
	}()

	l.items <- Token{
		Type: typ,
		Val:  l.input[l.start:l.pos],
		Line: l.line,
		Pos:  l.startOnLine,
	}
	l.startOnLine += len(l.input[l.start:l.pos])
	l.start = l.pos
}

// next returns the next rune in the input, advancing the scan position.
func (l *lexer) next() (r rune) {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += l.width
	return r
}

// ignore skips over the pending input before this point.
func (l *lexer) ignore() {
	l.startOnLine += len(l.input[l.start:l.pos])
	l.start = l.pos
}

// backup steps back one rune. Must only be called once per call of next.
func (l *lexer) backup() {
	if l.pos > l.start {
		l.pos -= l.width
	}
}

// peek returns, but does not consume, the next rune in the input.
func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// peekAt returns, without consuming, the rune n positions ahead of pos
// (peekAt(0) == peek()). Used by the operator states to distinguish e.g.
// ':' from ':=' and 'R' 'E' 'F' '=' (REF=) from a bare identifier REF.
func (l *lexer) peekAt(n int) rune {
	pos := l.pos
	var r rune
	for i := 0; i <= n; i++ {
		if pos >= len(l.input) {
			return eof
		}
		var w int
		r, w = utf8.DecodeRuneInString(l.input[pos:])
		pos += w
	}
	return r
}

// accept consumes the next rune if it's a member of the valid set.
func (l *lexer) accept(valid string) bool {
	if strings.IndexRune(valid, l.next()) >= 0 {
		return true
	}
	l.backup()
	return false
}

// acceptRun consumes a run of runes that are members of the valid set.
func (l *lexer) acceptRun(valid string) {
	for strings.IndexRune(valid, l.next()) >= 0 {
	}
	l.backup()
}

// nextItem returns the next token from the input, blocking until the lexer
// goroutine has one ready.
func (l *lexer) nextItem() Token {
	tok := <-l.items
	return tok
}

// errorf emits an error token and terminates the scan, returning a nil state
// which ends l.run.
func (l *lexer) errorf(format string, args ...interface{}) stateFunc {
	l.items <- Token{
		Type: TokError,
		Val:  fmt.Sprintf(format, args...),
		Line: l.line,
		Pos:  l.startOnLine,
	}
	return nil
}
