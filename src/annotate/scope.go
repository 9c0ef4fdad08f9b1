// Package annotate implements the resolver of spec.md §4.4: a three-pass
// bidirectional name-and-type analysis that decorates every AST node with a
// resolved meaning plus an actual type and a type hint, recorded in a
// project-wide annotation Map (spec.md §3.3).
package annotate

import "stc/src/util"

// Scope discriminates the flavour of a scope-stack frame (spec.md §4.4's
// "Each scope is one of: Types, POUs, GlobalVariables, LocalVariable(pou_name),
// Callable(qualifier), or a composite").
type Scope int

const (
	ScopeTypes Scope = iota
	ScopePOUs
	ScopeGlobalVariables
	ScopeLocalVariable
	ScopeCallable
	ScopeComposite
	ScopeStrict
)

// Frame is one scope-stack entry. Owner carries the POU/qualifier name for
// LocalVariable/Callable frames; Names, when non-nil, restricts lookup to
// exactly those keys (used by Strict frames: a call's named-argument scope
// must resolve only among the callee's own formal parameters).
type Frame struct {
	Kind  Scope
	Owner string
	Names map[string]bool
}

// ScopeStack is the resolver's lexical-scope stack, built directly on
// util.Stack (the teacher's generic linked-list stack, mutex-guarded for the
// same reason the teacher shares it across validate.go's parallel workers)
// generalized from a stack of untyped symbol-table frames into a stack of
// typed Frame values.
type ScopeStack struct {
	s *util.Stack
}

// NewScopeStack returns an empty stack.
func NewScopeStack() *ScopeStack {
	return &ScopeStack{s: &util.Stack{}}
}

// Push enters a new scope.
func (st *ScopeStack) Push(f Frame) { st.s.Push(f) }

// Pop exits the innermost scope.
func (st *ScopeStack) Pop() { st.s.Pop() }

// Top returns the innermost scope without removing it.
func (st *ScopeStack) Top() (Frame, bool) {
	v := st.s.Peek()
	if v == nil {
		return Frame{}, false
	}
	return v.(Frame), true
}

// Frames returns every frame from innermost to outermost, for hierarchical
// lookup (spec.md §4.4: "Scope lookup is hierarchical (inherits from
// enclosing) except when explicitly Strict").
func (st *ScopeStack) Frames() []Frame {
	n := st.s.Size()
	out := make([]Frame, 0, n)
	for i := 1; i <= n; i++ {
		if v := st.s.Get(i); v != nil {
			out = append(out, v.(Frame))
		}
	}
	return out
}

// InStrict reports whether the innermost frame is Strict — a call's
// named-argument list, which must not fall through to the enclosing scope
// on a lookup miss (spec.md §4.4).
func (st *ScopeStack) InStrict() bool {
	f, ok := st.Top()
	return ok && f.Kind == ScopeStrict
}
