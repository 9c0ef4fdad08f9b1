package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stc/src/annotate"
	"stc/src/ast"
	"stc/src/codegen"
	"stc/src/diag"
	"stc/src/frontend"
	"stc/src/hwconf"
	"stc/src/index"
	"stc/src/lowering"
	"stc/src/project"
	"stc/src/util"
	"stc/src/validate"
)

// runCompile drives the full pipeline for one invocation: load input (a
// bare .st file or a plc.json project), parse, index, annotate, validate,
// lower, and — unless --check was given — generate one artifact per target
// and, if requested, a hardware-binding file.
func runCompile(_ *cobra.Command, args []string) error {
	input := args[0]

	var opt util.Options
	var proj *ast.Project
	var targets []string
	var proj2 *project.Project
	var err error

	if project.IsProjectFile(input) {
		proj2, err = project.Load(input)
		if err != nil {
			return err
		}
		opt, err = optionsFromFlags(input)
		if err != nil {
			return err
		}
		var files []string
		files, err = proj2.ResolveFiles()
		if err != nil {
			return err
		}
		proj, err = loadUnits(files)
		targets = proj2.Targets()
		if flagTarget != "" {
			// An explicit --target overrides the project's declared list,
			// matching project.ApplyTo's "flags win" rule for every other
			// field the project and command line can both set.
			targets = []string{flagTarget}
		}
	} else {
		opt, err = optionsFromFlags(input)
		if err != nil {
			return err
		}
		proj, err = loadUnits([]string{input})
		targets = []string{flagTarget}
	}
	if err != nil {
		return err
	}

	batch := diag.NewBatch()
	driver, participants := lowering.NewDriver()
	driver.RunPreIndex(proj, batch)

	ix := index.BuildProject(proj, batch, opt.EffectiveThreads())
	validate.CheckVLAUsage(ix, batch)
	driver.RunPostIndex(ix, batch)
	driver.RunPreAnnotate(ix, batch)

	m := annotate.NewResolver(ix, batch).Run(proj)
	driver.RunPostAnnotate(m, batch)
	driver.RunPreValidate(m, batch)
	validate.Validate(ix, m, batch, opt.EffectiveThreads())

	if report(batch) {
		return fmt.Errorf("stc: compilation failed")
	}
	if opt.CheckOnly {
		return nil
	}

	cgBatch := diag.NewBatch()
	driver.RunPreCodegen(m, cgBatch)
	abi := codegen.ABI{
		VTables: participants.VTables,
		Poly:    participants.Poly,
		Agg:     participants.Agg,
		VLA:     participants.VLA,
		Init:    participants.Init,
	}

	if proj2 != nil {
		opt = proj2.ApplyTo(opt, opt.Target)
	}
	if err := emitArtifacts(ix, m, abi, opt, targets, cgBatch); err != nil {
		return err
	}
	driver.RunPostCodegen(m, cgBatch)

	if report(cgBatch) {
		return fmt.Errorf("stc: code generation failed")
	}

	if opt.HWConf != util.HWConfNone {
		if err := emitHWConf(ix, opt); err != nil {
			return err
		}
	}
	return nil
}

// loadUnits parses every file in paths into one ast.Project, sharing a
// single ast.IDProvider across all of them so node IDs stay unique project-
// wide (the annotate.Map's node-keyed tables assume this).
func loadUnits(paths []string) (*ast.Project, error) {
	ids := ast.NewIDProvider()
	defer ids.Close()

	proj := &ast.Project{Files: paths}
	for i, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("stc: %w", err)
		}
		batch := diag.NewBatch()
		u := frontend.Parse(string(src), i, ids, batch)
		if report(batch) {
			return nil, fmt.Errorf("stc: parsing %s failed", path)
		}
		proj.Units = append(proj.Units, u)
	}
	return proj, nil
}

// report prints batch's diagnostics to stderr via a TerminalReporter and
// reports whether any were Error severity. Each pipeline stage calls this
// at most once on its way out, so a batch's contents are never printed
// twice.
func report(batch *diag.Batch) bool {
	r := diag.NewTerminalReporter()
	_ = r.Report(batch)
	if s := r.String(); s != "" {
		fmt.Fprint(os.Stderr, s)
	}
	return batch.HasErrors()
}

// emitArtifacts runs codegen once per target triple ("one artifact per
// listed target", spec.md §6), writing each to its own output path when
// more than one target is requested.
func emitArtifacts(ix *index.Index, m *annotate.Map, abi codegen.ABI, opt util.Options, targets []string, batch *diag.Batch) error {
	if len(targets) == 0 {
		targets = []string{opt.Target}
	}
	for _, target := range targets {
		targetOpt := opt
		targetOpt.Target = target
		data, err := codegen.Generate(ix, m, abi, targetOpt, batch)
		if err != nil {
			return fmt.Errorf("stc: %w", err)
		}
		if err := writeArtifact(targetOpt, outputPath(opt.Out, target, len(targets) > 1), data); err != nil {
			return err
		}
	}
	return nil
}

// outputPath appends a target-triple suffix to base when a build produces
// more than one artifact, so two targets from the same plc.json don't
// clobber each other's output file.
func outputPath(base, target string, multi bool) string {
	if !multi || target == "" {
		return base
	}
	if base == "" {
		return target
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + target + ext
}

// writeArtifact hands data to util's worker-thread output writer, exactly
// as the teacher's main/benchmarks do: open (or default to stdout), listen,
// write once, flush, close. codegen.Generate already serializes a whole
// module in one call, so there is exactly one writer and one write per
// artifact — the channel still does its job of decoupling "produce bytes"
// from "own the destination file".
func writeArtifact(opt util.Options, out string, data []byte) error {
	var f *os.File
	if out != "" {
		var err error
		f, err = os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("stc: %w", err)
		}
		defer f.Close()
	}

	var wg sync.WaitGroup
	util.ListenWrite(opt, f, &wg)
	w := util.NewWriter()
	w.WriteBytes(data)
	w.Close()
	wg.Wait()
	util.Close()
	return nil
}

// emitHWConf writes the hardware-binding file alongside the main artifact,
// named after it with a .hwconf.{json,toml} suffix (spec.md §6 names the
// flag and record shape but not a file-naming convention, so this package
// picks one consistent with the rest of the output-path handling).
func emitHWConf(ix *index.Index, opt util.Options) error {
	format := hwconf.FormatJSON
	ext := "json"
	if opt.HWConf == util.HWConfTOML {
		format = hwconf.FormatTOML
		ext = "toml"
	}

	recs, err := hwconf.Build(ix)
	if err != nil {
		return fmt.Errorf("stc: %w", err)
	}
	data, err := hwconf.Emit(recs, format)
	if err != nil {
		return fmt.Errorf("stc: %w", err)
	}

	out := opt.Out
	if out == "" {
		out = "stc-module"
	}
	path := strings.TrimSuffix(out, filepath.Ext(out)) + ".hwconf." + ext
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("stc: %w", err)
	}
	if opt.Verbose {
		warn("stc: wrote hardware-binding file %s", path)
	}
	return nil
}
