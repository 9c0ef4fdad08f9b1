package validate

import (
	"strings"

	"stc/src/diag"
	"stc/src/index"
)

// checkRecursiveTypes validates spec.md §4.6's "Recursive data-structures"
// category: a struct or array type may not contain itself by value, directly
// or through a chain of other by-value struct/array members — that would
// require infinite storage. A POINTER TO member breaks the cycle legitimately
// (a pointer's size doesn't depend on what it points to), so only struct
// members and array elements are followed.
func checkRecursiveTypes(ix *index.Index, batch *diag.Batch) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := map[string]int{}
	var visit func(name string) bool
	visit = func(name string) bool {
		t, ok := ix.LookupType(name)
		if !ok {
			return false
		}
		key := strings.ToUpper(t.Name)
		switch state[key] {
		case gray:
			batch.Errorf(diag.ERecursiveDataStruct, t.Loc,
				"type %q is recursively defined through a by-value member or element", t.Name)
			return true
		case black:
			return false
		}
		state[key] = gray
		switch t.Kind {
		case index.KindStruct:
			for _, m := range t.Members {
				visit(m.TypeRef)
			}
		case index.KindArray:
			visit(t.Element)
		}
		state[key] = black
		return false
	}
	for name := range ix.Types {
		visit(name)
	}
}
