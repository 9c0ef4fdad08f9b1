package lowering

import (
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// VTableGenerator is mandatory built-in participant 1 (spec.md §4.2): for
// each class/function-block with virtual methods, synthesizes a vtable
// type and a global vtable instance. A method is virtual here if its
// owning class has a super-class or declares interfaces — the minimal
// condition under which a call through a base-typed reference could need
// dynamic dispatch.
type VTableGenerator struct {
	BaseParticipant
	// VTables maps a class's qualified name to the ordered method names its
	// vtable carries, consumed by PolymorphicCallLowering and codegen.
	VTables map[string][]string
}

func (v *VTableGenerator) Name() string { return "vtable-generator" }

func (v *VTableGenerator) PostIndex(ix *index.Index, batch *diag.Batch) {
	v.VTables = map[string][]string{}
	for _, p := range ix.POUs {
		if p.Kind != ast.POUClass && p.Kind != ast.POUFunctionBlock {
			continue
		}
		if p.Super == "" && len(p.Interfaces) == 0 {
			continue
		}
		methods := virtualMethodsOf(ix, p.Name)
		if len(methods) == 0 {
			continue
		}
		v.VTables[p.Name] = methods

		members := make([]index.StructMember, len(methods))
		for i, m := range methods {
			members[i] = index.StructMember{Name: m, TypeRef: "__FUNCPTR", Offset: i}
		}
		vtName := p.Name + ".VTable"
		ix.Types[strings.ToUpper(vtName)] = &index.Type{Name: vtName, Kind: index.KindStruct, Members: members}

		// Reserve the instance struct's first slot for the vtable pointer;
		// codegen reads this back by name when building the struct body.
		ix.Variables[strings.ToUpper(p.Name+".__vtable")] = &index.Variable{
			Name: p.Name + ".__vtable", Simple: "__vtable", Owner: p.Name,
			TypeRef: vtName, Role: index.RoleMember, Offset: -1,
		}
	}
}

// virtualMethodsOf collects the qualified owner's own METHOD names plus
// every ancestor's, in ancestor-to-descendant declaration order, so a
// subclass's vtable layout is the superclass's layout with overrides
// replacing same-named slots and new methods appended — the layout
// polymorphic-call lowering relies on to index a vtable slot purely by
// position.
func virtualMethodsOf(ix *index.Index, owner string) []string {
	var chain []string
	for cur := owner; cur != ""; {
		p, ok := ix.LookupPOU(cur)
		if !ok {
			break
		}
		chain = append([]string{cur}, chain...)
		cur = p.Super
	}

	order := []string{}
	seen := map[string]int{}
	for _, cls := range chain {
		for _, p := range ix.POUs {
			if p.Kind != ast.POUMethod || p.Owner != cls {
				continue
			}
			name := strings.TrimPrefix(p.Name, cls+".")
			if i, ok := seen[name]; ok {
				order[i] = name // Override keeps its slot position.
				continue
			}
			seen[name] = len(order)
			order = append(order, name)
		}
	}
	return order
}
