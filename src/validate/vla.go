package validate

import (
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// CheckVLAUsage validates spec.md §4.6's "VLA misuse" category: `ARRAY[*]
// OF T` may only appear on a by-reference parameter (VAR_INPUT/VAR_OUTPUT/
// VAR_IN_OUT passed REFERENCE), never as a local variable, a struct member,
// or a function's return type.
//
// This must run on the freshly built, pre-lowering index — the driver's
// mandatory VLALowering participant (spec.md §4.2 participant 7) rewrites
// every legally-declared VLA parameter's TypeRef to a plain pointer and
// forces its Passing to ByRef as part of lowering, which would erase both
// the VLA marker this check looks for and the very by-value/by-ref
// distinction it needs to catch a misdeclared parameter. Call this before
// the lowering.Driver's RunPostIndex, not as part of the main Validate
// pass that runs after annotation.
func CheckVLAUsage(ix *index.Index, batch *diag.Batch) {
	for _, v := range ix.Variables {
		t, ok := ix.EffectiveType(v.TypeRef)
		if !ok || t.Kind != index.KindArray || !t.VLA {
			continue
		}
		if !v.IsParam() {
			batch.Errorf(diag.EVLAMisuse, v.Loc,
				"%q: a variable-length array may only be declared as a parameter", v.Name)
			continue
		}
		if v.Passing != ast.ByRef {
			batch.Errorf(diag.EVLAMisuse, v.Loc,
				"%q: a variable-length array parameter must be passed by reference", v.Name)
		}
	}

	for _, t := range ix.Types {
		if t.Kind != index.KindStruct {
			continue
		}
		for _, mem := range t.Members {
			if et, ok := ix.EffectiveType(mem.TypeRef); ok && et.Kind == index.KindArray && et.VLA {
				batch.Errorf(diag.EVLAMisuse, t.Loc,
					"%q.%s: a variable-length array cannot be a struct member", t.Name, mem.Name)
			}
		}
	}

	for _, p := range ix.POUs {
		if p.ReturnType == "" {
			continue
		}
		if et, ok := ix.EffectiveType(p.ReturnType); ok && et.Kind == index.KindArray && et.VLA {
			batch.Errorf(diag.EVLAMisuse, p.Loc,
				"%q: a variable-length array cannot be a function return type", p.Name)
		}
	}
}
