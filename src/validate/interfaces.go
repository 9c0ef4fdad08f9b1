package validate

import (
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// checkInterfaces validates spec.md §4.6's "Interfaces" check category: every
// name in a class/function-block's IMPLEMENTS clause must name a declared
// INTERFACE, and the implementing POU must supply a matching, non-abstract
// method for every one of that interface's method signatures (same name,
// same return type, same parameter count — ST has no interface default
// methods, so a miss is always an error, never a fallback).
func checkInterfaces(ix *index.Index, batch *diag.Batch) {
	for _, p := range ix.POUs {
		if p.IsInterface || len(p.Interfaces) == 0 {
			continue
		}
		for _, ifaceName := range p.Interfaces {
			iface, ok := ix.LookupPOU(ifaceName)
			if !ok || !iface.IsInterface {
				batch.Errorf(diag.EUnresolvedReference, p.Loc, "%q implements undeclared interface %q", p.Name, ifaceName)
				continue
			}
			checkImplementsInterface(ix, p, iface, batch)
		}
	}
}

func checkImplementsInterface(ix *index.Index, impl, iface *index.POU, batch *diag.Batch) {
	for _, m := range ix.POUs {
		if m.Kind != ast.POUMethod || m.Owner != iface.Name {
			continue
		}
		simple := strings.TrimPrefix(m.Name, iface.Name+".")
		own, ok := ix.LookupPOU(impl.Name + "." + simple)
		if !ok {
			batch.Errorf(diag.EOverriddenSignature, impl.Loc,
				"%q does not implement method %q required by interface %q", impl.Name, simple, iface.Name)
			continue
		}
		if !strings.EqualFold(own.ReturnType, m.ReturnType) {
			batch.Errorf(diag.EOverriddenSignature, own.Loc,
				"%q.%s return type %q does not match interface %q's %q", impl.Name, simple, own.ReturnType, iface.Name, m.ReturnType)
			continue
		}
		if countParams(ix, own.Name) != countParams(ix, m.Name) {
			batch.Errorf(diag.EOverriddenSignature, own.Loc,
				"%q.%s parameter count does not match interface %q's signature", impl.Name, simple, iface.Name)
		}
	}
}

func countParams(ix *index.Index, pouName string) int {
	n := 0
	for _, v := range ix.Variables {
		if v.Owner == pouName && v.IsParam() {
			n++
		}
	}
	return n
}
