package lowering

import (
	"fmt"
	"strings"

	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// VLALowering is mandatory built-in participant 7 (spec.md §4.2): rewrites
// a variable-length-array parameter (`ARRAY[*] OF T`) into a pair of a
// plain element-pointer parameter and a hidden dimension-descriptor
// sibling parameter carrying each dimension's runtime (lo, hi) bounds.
// Must run after AggregateReturnLowering, whose prepended result
// parameter shifts every other parameter's position by one.
type VLALowering struct {
	BaseParticipant

	// Descriptors maps a lowered VLA parameter's qualified name to its
	// hidden descriptor sibling's qualified name; codegen consults this
	// directly by variable name rather than through a per-node hint, since
	// the mapping only ever depends on which parameter is being indexed.
	Descriptors map[string]string
}

func (v *VLALowering) Name() string { return "vla-lowering" }

func (v *VLALowering) PostIndex(ix *index.Index, batch *diag.Batch) {
	v.Descriptors = map[string]string{}
	for _, vr := range ix.Variables {
		if !vr.IsParam() {
			continue
		}
		t, ok := ix.EffectiveType(vr.TypeRef)
		if !ok || t.Kind != index.KindArray || !t.VLA {
			continue
		}

		rank := len(t.Dims)
		if rank == 0 {
			rank = 1
		}
		dimsType := ensureDimsDescriptorType(ix, rank)

		descName := vr.Name + ".__dims"
		ix.Variables[strings.ToUpper(descName)] = &index.Variable{
			Name: descName, Simple: "__dims", Owner: vr.Owner,
			TypeRef: dimsType, Role: vr.Role, Passing: ast.ByRef, Offset: vr.Offset,
		}
		v.Descriptors[vr.Name] = descName

		// The parameter itself becomes a bare pointer to the element type;
		// every bound check and stride computation reads the descriptor
		// instead, since the static dimensions in t.Dims no longer hold.
		vr.TypeRef = t.Element
		vr.Passing = ast.ByRef
	}
}

// ensureDimsDescriptorType registers (once) the descriptor struct array
// type for a given rank: rank (lo, hi) pairs, one per dimension.
func ensureDimsDescriptorType(ix *index.Index, rank int) string {
	ensureDimPairType(ix)
	name := fmt.Sprintf("__VLA_DIMS_%d", rank)
	key := strings.ToUpper(name)
	if _, ok := ix.Types[key]; !ok {
		ix.Types[key] = &index.Type{
			Name: name, Kind: index.KindArray, Element: "__VLA_DIM",
			Dims: []index.ArrayDim{{Lo: 0, Hi: int64(rank - 1)}},
		}
	}
	return name
}

func ensureDimPairType(ix *index.Index) {
	const name = "__VLA_DIM"
	key := strings.ToUpper(name)
	if _, ok := ix.Types[key]; ok {
		return
	}
	ix.Types[key] = &index.Type{Name: name, Kind: index.KindStruct, Members: []index.StructMember{
		{Name: "lo", TypeRef: "DINT", Offset: 0},
		{Name: "hi", TypeRef: "DINT", Offset: 1},
	}}
}
