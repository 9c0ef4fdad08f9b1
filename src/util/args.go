package util

// MaxThreads bounds the file-level parallelism fan-out of spec.md §5,
// mirroring the teacher's ParseArgs thread-count clamp.
const MaxThreads = 64

// OutputKind selects which artifact kind codegen should finish with
// (spec.md §6's --ir/--bc/--shared/--relocatable flags).
type OutputKind int

const (
	OutputObject OutputKind = iota
	OutputIR
	OutputBitcode
	OutputShared
	OutputRelocatable
)

// OptLevel mirrors spec.md §6's -O{none,less,default,aggressive}.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptLess
	OptDefault
	OptAggressive
)

// HWConfFormat selects the hardware-binding report's serialization
// (spec.md §6.3).
type HWConfFormat int

const (
	HWConfNone HWConfFormat = iota
	HWConfJSON
	HWConfTOML
)

// Options carries every flag of spec.md §6's CLI surface through the
// pipeline, the same way the teacher threaded its flat Options struct
// through frontend/ir/backend. The CLI layer (src/cmd/stc, built on cobra)
// populates this struct; the pipeline itself never touches os.Args.
type Options struct {
	Src string // Positional input: a .st file or a plc.json project.
	Out string // -o

	Output OutputKind // --ir/--bc/--shared/--relocatable (default: OutputObject).
	PIC    bool       // --pic

	Target    string // --target <triple>
	Opt       OptLevel
	Debug     bool // -g
	CheckOnly bool // --check: parse/index/annotate/validate only, no object emitted.

	HWConf HWConfFormat // --hardware-conf {json,toml}

	LibPaths []string // -L
	Libs     []string // -l
	Sysroot  string   // --sysroot
	Linker   string   // --linker

	Threads int  // concurrency fan-out (teacher's -t, generalized to spec.md §5's file-level parallelism).
	Verbose bool // teacher's -vb.
}

// EffectiveThreads clamps Threads to [1, MaxThreads], mirroring the
// teacher's ParseArgs validation of -t.
func (o Options) EffectiveThreads() int {
	switch {
	case o.Threads < 1:
		return 1
	case o.Threads > MaxThreads:
		return MaxThreads
	default:
		return o.Threads
	}
}
