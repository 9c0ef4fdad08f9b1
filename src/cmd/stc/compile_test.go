package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"stc/src/hwconf"
	"stc/src/index"
	"stc/src/util"
)

func TestOutputPathSingleTargetLeavesBaseAlone(t *testing.T) {
	if got := outputPath("out.o", "x86_64-unknown-linux-gnu", false); got != "out.o" {
		t.Errorf("outputPath = %q, want %q", got, "out.o")
	}
}

func TestOutputPathMultiTargetInsertsSuffix(t *testing.T) {
	got := outputPath("out.o", "x86_64-unknown-linux-gnu", true)
	want := "out.x86_64-unknown-linux-gnu.o"
	if got != want {
		t.Errorf("outputPath = %q, want %q", got, want)
	}
}

func TestOutputPathMultiTargetNoExtension(t *testing.T) {
	got := outputPath("out", "armv7-none-eabi", true)
	want := "out.armv7-none-eabi"
	if got != want {
		t.Errorf("outputPath = %q, want %q", got, want)
	}
}

func TestOutputPathMultiTargetEmptyBase(t *testing.T) {
	got := outputPath("", "armv7-none-eabi", true)
	if got != "armv7-none-eabi" {
		t.Errorf("outputPath = %q, want %q", got, "armv7-none-eabi")
	}
}

func TestOutputPathEmptyTargetLeavesBaseAlone(t *testing.T) {
	if got := outputPath("out.o", "", true); got != "out.o" {
		t.Errorf("outputPath = %q, want %q", got, "out.o")
	}
}

func TestEmitHWConfWritesSidecarFile(t *testing.T) {
	dir := t.TempDir()
	ix := index.New()
	ix.Variables["a"] = &index.Variable{Name: "a", Simple: "a", HWAddress: "%QW1"}

	opt := util.Options{Out: filepath.Join(dir, "main.o"), HWConf: util.HWConfJSON}
	if err := emitHWConf(ix, opt); err != nil {
		t.Fatalf("emitHWConf: %v", err)
	}

	want := filepath.Join(dir, "main.hwconf.json")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected hwconf sidecar at %s: %v", want, err)
	}
	recs, err := hwconf.Build(ix)
	if err != nil {
		t.Fatalf("hwconf.Build: %v", err)
	}
	wantData, err := hwconf.Emit(recs, hwconf.FormatJSON)
	if err != nil {
		t.Fatalf("hwconf.Emit: %v", err)
	}
	if string(data) != string(wantData) {
		t.Errorf("sidecar contents = %s, want %s", data, wantData)
	}
}

func TestEmitHWConfDefaultsOutputName(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	ix := index.New()
	opt := util.Options{HWConf: util.HWConfTOML}
	if err := emitHWConf(ix, opt); err != nil {
		t.Fatalf("emitHWConf: %v", err)
	}
	if _, err := os.Stat("stc-module.hwconf.toml"); err != nil {
		t.Errorf("expected default-named sidecar: %v", err)
	}
}
