package project

import (
	"os"
	"path/filepath"
	"testing"

	"stc/src/util"
)

// writeProjectFixture writes a plc.json plus the .st files it globs for,
// returning the project file's path.
func writeProjectFixture(t *testing.T, doc string, sources []string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range sources {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("PROGRAM p END_PROGRAM"), 0644); err != nil {
			t.Fatalf("failed to write fixture source %q: %s", name, err)
		}
	}
	path := filepath.Join(dir, "plc.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write plc.json: %s", err)
	}
	return path
}

func TestLoadDecodesSchema(t *testing.T) {
	doc := `{
		"name": "blinky",
		"files": ["*.st"],
		"libraries": [
			{"name": "iolib", "path": "../iolib", "package": "io", "architectures": ["x86_64"], "language": "st"}
		],
		"compile_type": "shared",
		"output": "blinky.so",
		"target": ["x86_64-linux-gnu", "aarch64-linux-gnu"],
		"sysroot": "/opt/sysroot",
		"package_commands": ["strip blinky.so"],
		"format_version": "1"
	}`
	path := writeProjectFixture(t, doc, []string{"main.st"})

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if p.Name != "blinky" {
		t.Errorf("Name = %q, want %q", p.Name, "blinky")
	}
	if p.CompileType != "shared" {
		t.Errorf("CompileType = %q, want %q", p.CompileType, "shared")
	}
	if len(p.Libraries) != 1 || p.Libraries[0].Name != "iolib" {
		t.Errorf("Libraries = %+v, want one entry named iolib", p.Libraries)
	}
	if len(p.Target) != 2 || p.Target[0] != "x86_64-linux-gnu" {
		t.Errorf("Target = %v, want two triples", p.Target)
	}
}

func TestLoadRejectsMissingFormatVersion(t *testing.T) {
	path := writeProjectFixture(t, `{"name": "noversion", "files": ["*.st"]}`, []string{"main.st"})
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for missing format_version, got nil")
	}
}

func TestResolveFilesExpandsGlobsRelativeToProject(t *testing.T) {
	path := writeProjectFixture(t, `{"files": ["*.st"], "format_version": "1"}`, []string{"a.st", "b.st"})
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	files, err := p.ResolveFiles()
	if err != nil {
		t.Fatalf("ResolveFiles: %s", err)
	}
	if len(files) != 2 {
		t.Fatalf("ResolveFiles: got %d files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		if filepath.Dir(f) != filepath.Dir(path) {
			t.Errorf("ResolveFiles: %q not resolved relative to project directory", f)
		}
	}
}

func TestResolveFilesErrorsOnEmptyGlob(t *testing.T) {
	path := writeProjectFixture(t, `{"files": ["nope-*.st"], "format_version": "1"}`, nil)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if _, err := p.ResolveFiles(); err == nil {
		t.Fatal("ResolveFiles: expected error for glob with no matches, got nil")
	}
}

func TestTargetsDefaultsToSingleEmptyEntry(t *testing.T) {
	p := &Project{}
	targets := p.Targets()
	if len(targets) != 1 || targets[0] != "" {
		t.Fatalf("Targets() = %v, want one empty entry", targets)
	}
}

func TestApplyToFillsUnsetFieldsOnly(t *testing.T) {
	p := &Project{
		CompileType: "shared",
		Output:      "proj-out.so",
		Sysroot:     "/proj/sysroot",
		Libraries:   []Library{{Name: "iolib", Path: "../iolib"}},
	}

	base := util.Options{Out: "cli-out.o", Sysroot: "/cli/sysroot"}
	out := p.ApplyTo(base, "aarch64-linux-gnu")

	if out.Target != "aarch64-linux-gnu" {
		t.Errorf("Target = %q, want %q", out.Target, "aarch64-linux-gnu")
	}
	if out.Output != util.OutputShared {
		t.Errorf("Output = %v, want OutputShared", out.Output)
	}
	// Out and Sysroot were already set on the incoming Options, so the
	// project's values must not override them.
	if out.Out != "cli-out.o" {
		t.Errorf("Out = %q, want unchanged %q", out.Out, "cli-out.o")
	}
	if out.Sysroot != "/cli/sysroot" {
		t.Errorf("Sysroot = %q, want unchanged %q", out.Sysroot, "/cli/sysroot")
	}
	if len(out.Libs) != 1 || out.Libs[0] != "iolib" {
		t.Errorf("Libs = %v, want [iolib]", out.Libs)
	}
}

func TestIsProjectFile(t *testing.T) {
	cases := map[string]bool{
		"plc.json": true,
		"main.st":  false,
		"a.ST":     false,
	}
	for path, want := range cases {
		if got := IsProjectFile(path); got != want {
			t.Errorf("IsProjectFile(%q) = %v, want %v", path, got, want)
		}
	}
}
