// Package cmd implements the stc CLI: the cobra root command exposing
// spec.md §6's flag table over a single positional input (a .st file or a
// plc.json project description). Grounded on CWBudde-go-dws's
// cmd/dwscript/cmd package shape (a package-level rootCmd, flags bound in
// init, a thin Execute entry point) rather than the teacher's hand-rolled
// flag.FlagSet-equivalent util.ParseArgs — the teacher predates this
// project's choice of cobra as its CLI library (SPEC_FULL.md §6.1).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stc/src/util"
)

var (
	flagOut          string
	flagIR           bool
	flagBC           bool
	flagStatic       bool
	flagShared       bool
	flagPIC          bool
	flagRelocatable  bool
	flagTarget       string
	flagOpt          string
	flagDebug        bool
	flagCheck        bool
	flagHWConf       string
	flagLibPaths     []string
	flagLibs         []string
	flagSysroot      string
	flagLinker       string
	flagThreads      int
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "stc [file|plc.json]",
	Short: "Ahead-of-time compiler for IEC 61131-3 Structured Text",
	Long: `stc compiles IEC 61131-3 Structured Text programs to native code via LLVM.

It accepts a single .st source file or a plc.json project description and
produces one artifact per target triple (the host default when none is
given, or every --target/project "target" entry listed).`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

// Execute runs the root command; main.go's only job is to call this and
// translate a non-nil error into a non-zero exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagOut, "out", "o", "", "output path")
	f.BoolVar(&flagIR, "ir", false, "emit LLVM textual IR")
	f.BoolVar(&flagBC, "bc", false, "emit LLVM bitcode")
	f.BoolVar(&flagStatic, "static", false, "emit a relocatable object")
	f.BoolVar(&flagShared, "shared", false, "emit a shared library")
	f.BoolVar(&flagPIC, "pic", false, "emit position-independent object code")
	f.BoolVar(&flagRelocatable, "relocatable", false, "emit a partially-linked relocatable object")
	f.StringVar(&flagTarget, "target", "", "override the target triple")
	f.StringVarP(&flagOpt, "opt", "O", "default", "optimization level: none|less|default|aggressive")
	f.BoolVarP(&flagDebug, "debug", "g", false, "emit debug info")
	f.BoolVar(&flagCheck, "check", false, "run only parse/index/annotate/validate, emit no object")
	f.StringVar(&flagHWConf, "hardware-conf", "", "emit a hardware-binding configuration file: json|toml")
	f.StringArrayVarP(&flagLibPaths, "L", "L", nil, "library search path")
	f.StringArrayVarP(&flagLibs, "l", "l", nil, "library to link")
	f.StringVar(&flagSysroot, "sysroot", "", "sysroot for linking")
	f.StringVar(&flagLinker, "linker", "", "override the linker")
	f.IntVar(&flagThreads, "threads", 1, "parallelism for file-level compilation fan-out")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

// optionsFromFlags builds the shared util.Options from the flags cobra has
// parsed, resolving the output-kind flags (--ir/--bc/--static/--shared/
// --relocatable, mutually exclusive per spec.md §6) into util.OutputKind.
func optionsFromFlags(src string) (util.Options, error) {
	opt := util.Options{
		Src:       src,
		Out:       flagOut,
		PIC:       flagPIC,
		Target:    flagTarget,
		Debug:     flagDebug,
		CheckOnly: flagCheck,
		LibPaths:  flagLibPaths,
		Libs:      flagLibs,
		Sysroot:   flagSysroot,
		Linker:    flagLinker,
		Threads:   flagThreads,
		Verbose:   flagVerbose,
	}

	set := 0
	pick := func(cond bool, kind util.OutputKind) {
		if cond {
			set++
			opt.Output = kind
		}
	}
	pick(flagIR, util.OutputIR)
	pick(flagBC, util.OutputBitcode)
	pick(flagShared, util.OutputShared)
	pick(flagRelocatable, util.OutputRelocatable)
	pick(flagStatic, util.OutputObject)
	if set > 1 {
		return opt, fmt.Errorf("stc: --ir/--bc/--static/--shared/--relocatable are mutually exclusive")
	}

	switch flagOpt {
	case "none":
		opt.Opt = util.OptNone
	case "less":
		opt.Opt = util.OptLess
	case "default", "":
		opt.Opt = util.OptDefault
	case "aggressive":
		opt.Opt = util.OptAggressive
	default:
		return opt, fmt.Errorf("stc: unknown optimization level %q", flagOpt)
	}

	switch flagHWConf {
	case "":
		opt.HWConf = util.HWConfNone
	case "json":
		opt.HWConf = util.HWConfJSON
	case "toml":
		opt.HWConf = util.HWConfTOML
	default:
		return opt, fmt.Errorf("stc: unknown --hardware-conf format %q", flagHWConf)
	}

	return opt, nil
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
