package diag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reporter is implemented by every diagnostic sink (spec.md §7: "Reporters
// implement report(batch) and register(path, text)").
type Reporter interface {
	Register(path string, text string)
	Report(batch *Batch) error
}

// TerminalReporter writes ANSI-colored diagnostics to an io.Writer, grounded
// on the teacher's tabwriter-based pretty printers (frontend.TokenStream,
// util.printHelp): a fixed-width tag followed by the message.
type TerminalReporter struct {
	out   *strings.Builder
	files map[string]string
}

// NewTerminalReporter returns a TerminalReporter that accumulates output in
// memory; callers flush it to stdout/stderr themselves (mirrors the teacher's
// util.Writer: build a string, then hand it to the single output sink).
func NewTerminalReporter() *TerminalReporter {
	return &TerminalReporter{out: &strings.Builder{}, files: map[string]string{}}
}

func (r *TerminalReporter) Register(path string, text string) { r.files[path] = text }

func (r *TerminalReporter) Report(batch *Batch) error {
	for _, d := range batch.Sorted() {
		tag, color := tagFor(d.Severity)
		fmt.Fprintf(r.out, "%s%s\x1b[0m %s:%s: %s\n", color, tag, fileName(d.Primary.File), d.Primary, d.Message)
		for _, sec := range d.Secondary {
			fmt.Fprintf(r.out, "    \x1b[2mnote:\x1b[0m also declared at %s:%s\n", fileName(sec.File), sec)
		}
	}
	return nil
}

func (r *TerminalReporter) String() string { return r.out.String() }

func tagFor(sev Severity) (string, string) {
	switch sev {
	case Error:
		return "error:", "\x1b[31;1m"
	case Warning:
		return "warning:", "\x1b[33;1m"
	default:
		return "info:", "\x1b[36;1m"
	}
}

func fileName(id int) string { return fmt.Sprintf("<file %d>", id) }

// BufferReporter accumulates plain, uncolored text, for tests — mirroring the
// teacher's util.Writer channel-buffered design but without the channel
// plumbing, since tests run single-threaded.
type BufferReporter struct {
	sb strings.Builder
}

func (r *BufferReporter) Register(path string, text string) {}

func (r *BufferReporter) Report(batch *Batch) error {
	for _, d := range batch.Sorted() {
		fmt.Fprintf(&r.sb, "%s %s: %s\n", d.Severity, d.Primary, d.Message)
	}
	return nil
}

func (r *BufferReporter) String() string { return r.sb.String() }

// LSPReporter emits one Language-Server-Protocol-shaped diagnostics batch as
// JSON. The LSP server itself is out of scope (spec.md §1); only the wire
// shape of a single publishDiagnostics-style payload is produced here.
type LSPReporter struct {
	out *strings.Builder
}

func NewLSPReporter() *LSPReporter { return &LSPReporter{out: &strings.Builder{}} }

func (r *LSPReporter) Register(path string, text string) {}

type lspDiagnostic struct {
	Severity int    `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func (r *LSPReporter) Report(batch *Batch) error {
	out := make([]lspDiagnostic, 0, len(batch.items))
	for _, d := range batch.Sorted() {
		out = append(out, lspDiagnostic{
			Severity: int(d.Severity) + 1, // LSP severities are 1-indexed.
			Code:     string(d.Kind),
			Message:  d.Message,
			Line:     d.Primary.Line,
			Column:   d.Primary.Pos,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	r.out.Write(b)
	return nil
}

func (r *LSPReporter) String() string { return r.out.String() }
