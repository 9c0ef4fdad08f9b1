package cmd

import (
	"testing"

	"stc/src/util"
)

// resetFlags restores every package-level flag var to its zero value, the
// same save/restore discipline CWBudde-go-dws's cmd tests use around global
// command state.
func resetFlags() {
	flagOut = ""
	flagIR = false
	flagBC = false
	flagStatic = false
	flagShared = false
	flagPIC = false
	flagRelocatable = false
	flagTarget = ""
	flagOpt = "default"
	flagDebug = false
	flagCheck = false
	flagHWConf = ""
	flagLibPaths = nil
	flagLibs = nil
	flagSysroot = ""
	flagLinker = ""
	flagThreads = 1
	flagVerbose = false
}

func TestOptionsFromFlagsDefaults(t *testing.T) {
	resetFlags()
	defer resetFlags()

	opt, err := optionsFromFlags("main.st")
	if err != nil {
		t.Fatalf("optionsFromFlags: %v", err)
	}
	if opt.Src != "main.st" {
		t.Errorf("Src = %q, want %q", opt.Src, "main.st")
	}
	if opt.Output != util.OutputObject {
		t.Errorf("Output = %v, want OutputObject", opt.Output)
	}
	if opt.Opt != util.OptDefault {
		t.Errorf("Opt = %v, want OptDefault", opt.Opt)
	}
	if opt.HWConf != util.HWConfNone {
		t.Errorf("HWConf = %v, want HWConfNone", opt.HWConf)
	}
}

func TestOptionsFromFlagsOutputKinds(t *testing.T) {
	cases := []struct {
		name string
		set  func()
		want util.OutputKind
	}{
		{"ir", func() { flagIR = true }, util.OutputIR},
		{"bc", func() { flagBC = true }, util.OutputBitcode},
		{"shared", func() { flagShared = true }, util.OutputShared},
		{"relocatable", func() { flagRelocatable = true }, util.OutputRelocatable},
		{"static", func() { flagStatic = true }, util.OutputObject},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resetFlags()
			defer resetFlags()
			c.set()
			opt, err := optionsFromFlags("main.st")
			if err != nil {
				t.Fatalf("optionsFromFlags: %v", err)
			}
			if opt.Output != c.want {
				t.Errorf("Output = %v, want %v", opt.Output, c.want)
			}
		})
	}
}

func TestOptionsFromFlagsRejectsMultipleOutputKinds(t *testing.T) {
	resetFlags()
	defer resetFlags()
	flagIR = true
	flagBC = true
	if _, err := optionsFromFlags("main.st"); err == nil {
		t.Fatal("expected error for --ir combined with --bc, got nil")
	}
}

func TestOptionsFromFlagsOptLevels(t *testing.T) {
	cases := map[string]util.OptLevel{
		"none":       util.OptNone,
		"less":       util.OptLess,
		"default":    util.OptDefault,
		"":           util.OptDefault,
		"aggressive": util.OptAggressive,
	}
	for in, want := range cases {
		resetFlags()
		flagOpt = in
		opt, err := optionsFromFlags("main.st")
		if err != nil {
			t.Fatalf("optionsFromFlags(%q): %v", in, err)
		}
		if opt.Opt != want {
			t.Errorf("opt level for %q = %v, want %v", in, opt.Opt, want)
		}
	}
	resetFlags()
}

func TestOptionsFromFlagsRejectsUnknownOptLevel(t *testing.T) {
	resetFlags()
	defer resetFlags()
	flagOpt = "ludicrous"
	if _, err := optionsFromFlags("main.st"); err == nil {
		t.Fatal("expected error for unknown optimization level, got nil")
	}
}

func TestOptionsFromFlagsHWConfFormats(t *testing.T) {
	cases := map[string]util.HWConfFormat{
		"":     util.HWConfNone,
		"json": util.HWConfJSON,
		"toml": util.HWConfTOML,
	}
	for in, want := range cases {
		resetFlags()
		flagHWConf = in
		opt, err := optionsFromFlags("main.st")
		if err != nil {
			t.Fatalf("optionsFromFlags hwconf=%q: %v", in, err)
		}
		if opt.HWConf != want {
			t.Errorf("HWConf for %q = %v, want %v", in, opt.HWConf, want)
		}
	}
	resetFlags()
}

func TestOptionsFromFlagsRejectsUnknownHWConfFormat(t *testing.T) {
	resetFlags()
	defer resetFlags()
	flagHWConf = "yaml"
	if _, err := optionsFromFlags("main.st"); err == nil {
		t.Fatal("expected error for unknown --hardware-conf format, got nil")
	}
}

func TestOptionsFromFlagsCarriesLibAndSysrootFields(t *testing.T) {
	resetFlags()
	defer resetFlags()
	flagLibPaths = []string{"/opt/lib"}
	flagLibs = []string{"m"}
	flagSysroot = "/opt/sysroot"
	flagLinker = "ld.lld"
	flagThreads = 4
	flagVerbose = true
	flagDebug = true
	flagCheck = true
	flagTarget = "x86_64-unknown-linux-gnu"

	opt, err := optionsFromFlags("main.st")
	if err != nil {
		t.Fatalf("optionsFromFlags: %v", err)
	}
	if len(opt.LibPaths) != 1 || opt.LibPaths[0] != "/opt/lib" {
		t.Errorf("LibPaths = %v", opt.LibPaths)
	}
	if len(opt.Libs) != 1 || opt.Libs[0] != "m" {
		t.Errorf("Libs = %v", opt.Libs)
	}
	if opt.Sysroot != "/opt/sysroot" {
		t.Errorf("Sysroot = %q", opt.Sysroot)
	}
	if opt.Linker != "ld.lld" {
		t.Errorf("Linker = %q", opt.Linker)
	}
	if opt.Threads != 4 {
		t.Errorf("Threads = %d", opt.Threads)
	}
	if !opt.Verbose || !opt.Debug || !opt.CheckOnly {
		t.Errorf("Verbose/Debug/CheckOnly not carried through: %+v", opt)
	}
	if opt.Target != "x86_64-unknown-linux-gnu" {
		t.Errorf("Target = %q", opt.Target)
	}
}
