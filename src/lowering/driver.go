// Package lowering implements the pipeline driver and mandatory built-in
// participants of spec.md §4.2: an ordered list of hook-implementing passes
// that transform the representation between the parse/index/annotate/
// codegen phase boundaries, generalizing the teacher's ir.Optimise/
// ir.ValidateTree fan-out-then-collect dispatch into a registered-order
// hook pipeline.
package lowering

import (
	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/diag"
	"stc/src/index"
)

// Participant is a transformation pass that implements a subset of the
// pipeline's seven hooks (spec.md §4.2). BaseParticipant supplies a no-op
// for every hook, so a concrete participant only overrides the ones it
// cares about — the Go equivalent of the spec's "trait-object-like unit
// implementing a subset of the hooks."
type Participant interface {
	Name() string
	PreIndex(proj *ast.Project, batch *diag.Batch)
	PostIndex(ix *index.Index, batch *diag.Batch)
	PreAnnotate(ix *index.Index, batch *diag.Batch)
	PostAnnotate(m *annotate.Map, batch *diag.Batch)
	PreValidate(m *annotate.Map, batch *diag.Batch)
	PreCodegen(m *annotate.Map, batch *diag.Batch)
	PostCodegen(m *annotate.Map, batch *diag.Batch)
}

// BaseParticipant gives every hook a no-op body; embed it and override only
// the hooks a concrete participant needs.
type BaseParticipant struct{}

func (BaseParticipant) PreIndex(*ast.Project, *diag.Batch)      {}
func (BaseParticipant) PostIndex(*index.Index, *diag.Batch)     {}
func (BaseParticipant) PreAnnotate(*index.Index, *diag.Batch)   {}
func (BaseParticipant) PostAnnotate(*annotate.Map, *diag.Batch) {}
func (BaseParticipant) PreValidate(*annotate.Map, *diag.Batch)  {}
func (BaseParticipant) PreCodegen(*annotate.Map, *diag.Batch)   {}
func (BaseParticipant) PostCodegen(*annotate.Map, *diag.Batch)  {}

// Driver owns an ordered list of participants and invokes each hook across
// all of them, in registration order, at the matching phase boundary
// (spec.md §4.2: "the driver invokes them in registration order, folding
// the representation through them").
type Driver struct {
	participants []Participant
}

// ABIParticipants holds the concrete instances of the built-in participants
// that leave behind information codegen needs after the pipeline has run
// (spec.md §4.2's hook list; codegen.ABI is built straight from this struct
// by src/cmd/stc, rather than codegen reaching through the generic
// Participant interface to get back what it itself produced).
type ABIParticipants struct {
	VTables *VTableGenerator
	Poly    *PolymorphicCallLowering
	Agg     *AggregateReturnLowering
	VLA     *VLALowering
	Init    *InitializerSynthesis
}

// NewDriver returns a Driver with the seven mandatory built-in participants
// pre-registered in the exact order spec.md §4.2 requires: virtual-table
// generation before polymorphic-call lowering, inheritance lowering before
// initializer synthesis, aggregate-return lowering before VLA lowering and
// before codegen sees any call. The second return value exposes the five
// participants codegen consults post-pipeline.
func NewDriver() (*Driver, ABIParticipants) {
	vtables := &VTableGenerator{}
	polymorphic := &PolymorphicCallLowering{}
	polymorphic.Bind(vtables)
	agg := &AggregateReturnLowering{}
	vla := &VLALowering{}
	init := &InitializerSynthesis{}

	d := &Driver{}
	d.Register(
		vtables,
		polymorphic,
		&PropertyLowering{},
		&InheritanceLowering{},
		init,
		agg,
		vla,
	)
	return d, ABIParticipants{VTables: vtables, Poly: polymorphic, Agg: agg, VLA: vla, Init: init}
}

// Register appends participants to the driver's list, preserving call
// order. Used by NewDriver for the built-ins and by callers wanting to add
// project-specific participants after them.
func (d *Driver) Register(ps ...Participant) {
	d.participants = append(d.participants, ps...)
}

func (d *Driver) RunPreIndex(proj *ast.Project, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PreIndex(proj, batch)
	}
}

func (d *Driver) RunPostIndex(ix *index.Index, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PostIndex(ix, batch)
	}
}

func (d *Driver) RunPreAnnotate(ix *index.Index, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PreAnnotate(ix, batch)
	}
}

func (d *Driver) RunPostAnnotate(m *annotate.Map, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PostAnnotate(m, batch)
	}
}

func (d *Driver) RunPreValidate(m *annotate.Map, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PreValidate(m, batch)
	}
}

func (d *Driver) RunPreCodegen(m *annotate.Map, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PreCodegen(m, batch)
	}
}

func (d *Driver) RunPostCodegen(m *annotate.Map, batch *diag.Batch) {
	for _, p := range d.participants {
		p.PostCodegen(m, batch)
	}
}
