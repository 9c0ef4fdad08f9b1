// Package project loads the plc.json project-description format (spec.md
// §6): a thin, ambient schema decoder so a single driver invocation can fan
// out compilation over a named set of source globs, declared libraries, and
// one or more target triples ("compilation produces one artifact per listed
// target"). Grounded on spec.md §6 directly; this concern has no analogue in
// the teacher (a single-source-file compiler) or elsewhere in the pack, and
// SPEC_FULL.md §6.2 names it as one of the rare correctly-stdlib concerns:
// spec.md §1 lists "the TOML/JSON project-description loader" as an
// out-of-scope external collaborator, so decoding its schema needs nothing
// beyond encoding/json.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"stc/src/util"
)

// Library describes one entry in plc.json's "libraries" list: a named,
// versionless dependency resolved by path/package per target architecture.
type Library struct {
	Name          string   `json:"name"`
	Path          string   `json:"path"`
	Package       string   `json:"package"`
	Architectures []string `json:"architectures"`
	Language      string   `json:"language"`
}

// Project is the decoded shape of a plc.json file, field-for-field per
// spec.md §6. Target is a list: the spec's semantics are "one artifact per
// listed target", so a project with three targets drives three separate
// codegen.Generate runs over the same annotated index.
type Project struct {
	Name            string    `json:"name"`
	Files           []string  `json:"files"`
	Libraries       []Library `json:"libraries"`
	CompileType     string    `json:"compile_type"`
	Output          string    `json:"output"`
	Target          []string  `json:"target"`
	Sysroot         string    `json:"sysroot"`
	PackageCommands []string  `json:"package_commands"`
	FormatVersion   string    `json:"format_version"`

	// path is the project file's own location, recorded so ResolveFiles
	// can resolve Files' globs relative to it rather than the process's
	// working directory.
	path string
}

// Load reads and decodes the plc.json file at path.
func Load(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("project: %s: %w", path, err)
	}
	p.path = path
	if p.FormatVersion == "" {
		return nil, fmt.Errorf("project: %s: missing required field %q", path, "format_version")
	}
	return &p, nil
}

// IsProjectFile reports whether path names a plc.json-style project
// description rather than a bare .st source file, per spec.md §6's CLI
// surface ("a positional input (either a .st file or a project-description
// file plc.json)").
func IsProjectFile(path string) bool {
	return filepath.Ext(path) == ".json"
}

// ResolveFiles expands p.Files' glob patterns — resolved relative to the
// project file's own directory, matching how a plc.json author would write
// paths relative to the file they're editing — into a deduplicated, sorted
// list of concrete source paths.
func (p *Project) ResolveFiles() ([]string, error) {
	dir := filepath.Dir(p.path)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range p.Files {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(dir, pattern)
		}
		matches, err := filepath.Glob(full)
		if err != nil {
			return nil, fmt.Errorf("project: bad glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("project: glob %q matched no files", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Targets returns p.Target, or a single empty-string entry (meaning "the
// host default triple") when the project declares none — so callers can
// always range over Targets() to get the "one artifact per listed target"
// fan-out, even for a project that never names one explicitly.
func (p *Project) Targets() []string {
	if len(p.Target) == 0 {
		return []string{""}
	}
	return p.Target
}

// LibraryPaths and LibraryNames split p.Libraries into the -L/-l shaped
// lists util.Options already carries, for a driver that merges a project's
// declared libraries with any given on the command line.
func (p *Project) LibraryPaths() []string {
	out := make([]string, 0, len(p.Libraries))
	for _, l := range p.Libraries {
		if l.Path != "" {
			out = append(out, l.Path)
		}
	}
	return out
}

func (p *Project) LibraryNames() []string {
	out := make([]string, 0, len(p.Libraries))
	for _, l := range p.Libraries {
		out = append(out, l.Name)
	}
	return out
}

// compileTypeKind maps plc.json's "compile_type" string onto the same
// util.OutputKind the --ir/--bc/--static/--shared/--relocatable flags
// select, so a project file can request an artifact kind without a
// matching command-line flag.
func compileTypeKind(compileType string) (util.OutputKind, bool) {
	switch compileType {
	case "object":
		return util.OutputObject, true
	case "ir":
		return util.OutputIR, true
	case "bitcode":
		return util.OutputBitcode, true
	case "shared":
		return util.OutputShared, true
	case "relocatable":
		return util.OutputRelocatable, true
	default:
		return 0, false
	}
}

// ApplyTo merges the project's declared output/libraries/sysroot into opt,
// for one target. Fields the project doesn't set (empty strings, zero
// values, missing compile_type) leave opt's existing value untouched, so
// command-line -o and --sysroot still win when a project is loaded but a flag
// was also given explicitly. A recognized compile_type always replaces
// opt.Output, and target always replaces opt.Target.
func (p *Project) ApplyTo(opt util.Options, target string) util.Options {
	out := opt
	out.Target = target
	if p.Output != "" && out.Out == "" {
		out.Out = p.Output
	}
	if kind, ok := compileTypeKind(p.CompileType); ok {
		out.Output = kind
	}
	if p.Sysroot != "" && out.Sysroot == "" {
		out.Sysroot = p.Sysroot
	}
	out.LibPaths = append(append([]string{}, p.LibraryPaths()...), out.LibPaths...)
	out.Libs = append(append([]string{}, p.LibraryNames()...), out.Libs...)
	return out
}
