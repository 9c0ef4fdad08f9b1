package codegen

import (
	"strings"
	"sync"

	"tinygo.org/x/go-llvm"
)

// symTab is a thread-safe name -> llvm.Value map, grounded directly on the
// teacher's ir/llvm.symTab (transform.go): a plain map plus a RWMutex, used
// both for the global table (functions, global variables, vtable globals)
// and, pushed one frame per lexical scope onto a util.Stack, for locals.
type symTab struct {
	mu sync.RWMutex
	m  map[string]llvm.Value
}

func newSymTab() symTab {
	return symTab{m: map[string]llvm.Value{}}
}

func (s *symTab) set(name string, v llvm.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[strings.ToUpper(name)] = v
}

func (s *symTab) get(name string) (llvm.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[strings.ToUpper(name)]
	return v, ok
}

// metaTab is symTab's counterpart for llvm.Metadata values — used to hand
// a POU's DISubprogram scope (built in the headers phase) across to the
// bodies phase, which runs on a separate goroutine set.
type metaTab struct {
	mu sync.RWMutex
	m  map[string]llvm.Metadata
}

func newMetaTab() metaTab {
	return metaTab{m: map[string]llvm.Metadata{}}
}

func (s *metaTab) set(name string, v llvm.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[strings.ToUpper(name)] = v
}

func (s *metaTab) get(name string) (llvm.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[strings.ToUpper(name)]
	return v, ok
}

// scopeStack is a chain of symTab frames, innermost last, mirroring the
// teacher's util.Stack of per-block symTabs: a BLOCK statement pushes one,
// a lookup walks from the top down, and a FOR/CASE arm gets the same
// treatment as any other nested block.
type scopeStack struct {
	frames []*symTab
}

func newScopeStack() *scopeStack { return &scopeStack{} }

func (s *scopeStack) push() *symTab {
	t := &symTab{m: map[string]llvm.Value{}}
	s.frames = append(s.frames, t)
	return t
}

func (s *scopeStack) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *scopeStack) lookup(name string) (llvm.Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].get(name); ok {
			return v, true
		}
	}
	return llvm.Value{}, false
}

func (s *scopeStack) declare(name string, v llvm.Value) {
	s.frames[len(s.frames)-1].set(name, v)
}
