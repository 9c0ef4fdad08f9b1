package validate

import (
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// checkProperties validates spec.md §4.6's "Properties" category: every
// declared property needs at least a GET accessor, may only live on a
// stateful POU (a property on a bare FUNCTION makes no sense — there's no
// instance to hold its backing state), and when it overrides an ancestor's
// property of the same name, the two GET accessors must agree on return
// type.
func checkProperties(ix *index.Index, batch *diag.Batch) {
	for _, p := range ix.Properties {
		if !p.HasGet {
			batch.Errorf(diag.EGetSetCountWrong, p.GetLoc, "property %q.%s has no GET accessor", p.Owner, p.Name)
			continue
		}
		owner, ok := ix.LookupPOU(p.Owner)
		if !ok {
			continue
		}
		if owner.Kind != ast.POUProgram && owner.Kind != ast.POUFunctionBlock && owner.Kind != ast.POUClass {
			batch.Errorf(diag.EPropertyInStateless, p.GetLoc,
				"property %q declared on %q, which has no instance state to back it", p.Name, p.Owner)
			continue
		}
		if owner.Super == "" {
			continue
		}
		if base, ok := findOverriddenProperty(ix, owner.Super, p.Name); ok {
			if !strings.EqualFold(base.ReturnType, p.ReturnType) {
				batch.Errorf(diag.EPropertyReturnMismatch, p.GetLoc,
					"property %q.%s return type %q does not match overridden %q's %q",
					p.Owner, p.Name, p.ReturnType, base.Owner, base.ReturnType)
			}
		}
	}
}

// findOverriddenProperty walks fromClass's ancestor chain looking for a
// property of the same name, mirroring src/lowering/inheritance.go's
// findOverriddenMethod (a different package and map, so reimplemented
// locally rather than exported cross-package for one shared helper).
func findOverriddenProperty(ix *index.Index, fromClass, name string) (*index.Property, bool) {
	cur := fromClass
	seen := map[string]bool{}
	for cur != "" && !seen[cur] {
		seen[cur] = true
		if p, ok := ix.Properties[strings.ToUpper(cur+"."+name)]; ok {
			return p, true
		}
		parent, ok := ix.LookupPOU(cur)
		if !ok {
			break
		}
		cur = parent.Super
	}
	return nil, false
}
