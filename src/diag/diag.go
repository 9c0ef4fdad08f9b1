// Package diag implements the diagnostic hierarchy of spec.md §7: severity-
// carrying, location-tagged errors and warnings with pluggable reporters.
// It generalizes the teacher's util.perror (a channel-fed error collector)
// from a flat []error into a structured, sortable batch of Diagnostics.
package diag

import (
	"fmt"

	"stc/src/ast"
)

// Severity is one of {Error, Warning, Info} (spec.md §7).
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// ErrorKind is a string code, e.g. "E001" unresolved reference (spec.md §7).
type ErrorKind string

// Reproduces the named codes from spec.md §7's examples; the long tail of
// codes follows the same "E" + zero-padded-number convention as new checks
// are added to validate.go.
const (
	EUnresolvedReference  ErrorKind = "E001"
	EUnexpectedToken      ErrorKind = "E007"
	ENameClash            ErrorKind = "E021"
	ERecursiveDataStruct  ErrorKind = "E030"
	EArrayOverflow        ErrorKind = "E035"
	EDuplicateCase        ErrorKind = "E040"
	EPropertyReturnMismatch ErrorKind = "E048"
	EConstantRequiresInit ErrorKind = "E060"
	EAssignToConstant     ErrorKind = "E061"
	EInvalidCast          ErrorKind = "E070"
	EOutOfRange           ErrorKind = "E080"
	EVLAMisuse            ErrorKind = "E090"
	EOverriddenSignature  ErrorKind = "E112"
	EPropertyInStateless  ErrorKind = "E115"
	EDisallowedVarBlock   ErrorKind = "E116"
	EGetSetCountWrong     ErrorKind = "E117"
	EInternal             ErrorKind = "E999"
)

// Diagnostic is a single reported issue, carrying a primary location and zero
// or more secondary locations (e.g. for name-clash: the other declarations).
type Diagnostic struct {
	Kind       ErrorKind
	Severity   Severity
	Message    string
	Primary    ast.Loc
	Secondary  []ast.Loc
}

// Batch collects diagnostics from every phase. It is safe for concurrent use:
// file-level-parallel phases (spec.md §5) each hold a reference and append
// independently, grounded on the teacher's util.perror channel-collector
// shape but simplified to a mutex since batches are drained, not streamed.
type Batch struct {
	mu    chan struct{} // 1-buffered channel used as a mutex (teacher idiom: channels over sync primitives).
	items []Diagnostic
	elevate map[ErrorKind]Severity // user-config severity overrides.
}

// NewBatch returns an empty, ready-to-use Batch.
func NewBatch() *Batch {
	b := &Batch{mu: make(chan struct{}, 1), elevate: map[ErrorKind]Severity{}}
	b.mu <- struct{}{}
	return b
}

func (b *Batch) lock()   { <-b.mu }
func (b *Batch) unlock() { b.mu <- struct{}{} }

// SetSeverity overrides the severity the diagnostician assigns to kind,
// implementing the "severity is elevated/downgraded per user config" policy.
func (b *Batch) SetSeverity(kind ErrorKind, sev Severity) {
	b.lock()
	defer b.unlock()
	b.elevate[kind] = sev
}

// Add appends a diagnostic to the batch, applying any severity override.
func (b *Batch) Add(d Diagnostic) {
	b.lock()
	defer b.unlock()
	if sev, ok := b.elevate[d.Kind]; ok {
		d.Severity = sev
	}
	b.items = append(b.items, d)
}

// Errorf is a convenience constructor for an Error-severity diagnostic.
func (b *Batch) Errorf(kind ErrorKind, loc ast.Loc, format string, args ...interface{}) {
	b.Add(Diagnostic{Kind: kind, Severity: Error, Message: fmt.Sprintf(format, args...), Primary: loc})
}

// Warnf is a convenience constructor for a Warning-severity diagnostic.
func (b *Batch) Warnf(kind ErrorKind, loc ast.Loc, format string, args ...interface{}) {
	b.Add(Diagnostic{Kind: kind, Severity: Warning, Message: fmt.Sprintf(format, args...), Primary: loc})
}

// HasErrors reports whether any Error-severity diagnostic was recorded; the
// driver uses this to decide whether to invoke the linker (spec.md §7).
func (b *Batch) HasErrors() bool {
	b.lock()
	defer b.unlock()
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Sorted returns the batch's diagnostics ordered by (file id, source offset,
// severity), as required by spec.md §5's cross-unit ordering guarantee.
func (b *Batch) Sorted() []Diagnostic {
	b.lock()
	defer b.unlock()
	out := make([]Diagnostic, len(b.items))
	copy(out, b.items)
	sortDiagnostics(out)
	return out
}

func sortDiagnostics(d []Diagnostic) {
	// Simple insertion sort: diagnostic batches are small relative to source
	// size, and insertion sort keeps the comparison logic inline and obvious.
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && less(d[j], d[j-1]); j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

func less(a, b Diagnostic) bool {
	if a.Primary.File != b.Primary.File {
		return a.Primary.File < b.Primary.File
	}
	ao := a.Primary.Line*1_000_000 + a.Primary.Pos
	bo := b.Primary.Line*1_000_000 + b.Primary.Pos
	if ao != bo {
		return ao < bo
	}
	return a.Severity < b.Severity
}
