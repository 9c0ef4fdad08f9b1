// label.go provides a thread safe way of generating LLVM basic block labels.

package util

import "fmt"

// Labels for control constructs (spec.md §3.1 statement kinds: If/For/While/
// Repeat/Case), generalized from the teacher's while/if-only set.
const (
	LabelIfThen = iota
	LabelIfElse
	LabelIfEnd
	LabelWhileHead
	LabelWhileEnd
	LabelForHead
	LabelForEnd
	LabelRepeatHead
	LabelRepeatEnd
	LabelCaseArm
	LabelCaseEnd
	LabelEntry
)

var cll chan string // Label channel; results.
var clr chan int    // Request channel.
var clc chan error  // Close channel.

// labelIndices stores the numerical suffix for generated labels of types.
var labelIndices [LabelEntry + 1]int

// labelPrefixes stores the string literal prefixes for labels of types.
var labelPrefixes = [LabelEntry + 1]string{
	"if.then",
	"if.else",
	"if.end",
	"while.head",
	"while.end",
	"for.head",
	"for.end",
	"repeat.head",
	"repeat.end",
	"case.arm",
	"case.end",
	"entry",
}

// ListenLabel listens for label requests and returns labels to requesting
// worker threads, serving as the process-wide thread-safe label allocator of
// spec.md §5's resource-model table.
func ListenLabel() {
	cll = make(chan string)
	clr = make(chan int)
	clc = make(chan error)

	defer close(clr)
	defer close(cll)
	defer close(clc)

	for {
		select {
		case <-clc:
			return
		case i := <-clr:
			if i >= 0 && i < len(labelIndices) {
				cll <- fmt.Sprintf("%s.%03d", labelPrefixes[i], labelIndices[i])
				labelIndices[i]++
			} else {
				cll <- "label.error"
			}
		}
	}
}

// NewLabel returns a new basic-block label of kind typ.
func NewLabel(typ int) string {
	clr <- typ
	s := <-cll
	return s
}

// CloseLabel sends the termination signal to the thread safe label
// generator. Must only be called once, after code generation has finished,
// successful or not.
func CloseLabel() {
	clc <- nil
}
