package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tebeka/atexit"
	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/cli"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/token"
	"github.com/xplshn/vmtranslator/pkg/translator"
	"github.com/xplshn/vmtranslator/pkg/util"
)

func main() {
	app := cli.NewApp("vmc")
	app.Synopsis = "[options] <file.vm | directory>"
	app.Description = "Translates stack VM bytecode into Hack assembly. A directory is compiled as one program behind a bootstrap that calls the entry function."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/vmtranslator>"
	app.Since = 2025

	var (
		outFile string
		backend string
		entry   string
		level   int
		wall    bool
		dumpIR  bool
		stats   bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.Int(&level, "optimize", "O", 2, "Optimisation level (0, 1, 2).", "level")
	fs.String(&backend, "backend", "b", "", "Code generation backend (direct, shared). Overrides -O; shared also enables after-push-compare.", "backend")
	fs.String(&entry, "entry", "e", "Sys.init", "Function called by the bootstrap.", "name")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump the fused instruction listing and exit.")
	fs.Bool(&stats, "stats", "s", false, "Print optimizer statistics and the output fingerprint.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		if len(inputs) != 1 {
			util.Error(token.Token{}, "expected exactly one input file or directory, got %d", len(inputs))
		}
		input := inputs[0]

		// Level first, explicit flags override it
		if err := cfg.ApplyLevel(level); err != nil {
			util.Error(token.Token{}, "%v", err)
		}
		if backend != "" {
			if err := cfg.SetBackend(backend); err != nil {
				util.Error(token.Token{}, "%v", err)
			}
		}
		if wall {
			cfg.ProcessFlags("-Wall")
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		cfg.EntryFunction = entry

		srcs, isDir, err := translator.Load(input)
		if err != nil {
			util.Error(token.Token{}, "could not read '%s': %v", input, err)
		}
		records := make([]util.SourceFileRecord, len(srcs))
		for i, s := range srcs {
			records[i] = util.SourceFileRecord{Name: s.Name, Content: []rune(s.Content)}
		}
		util.SetSourceFiles(records)

		t, err := translator.New(cfg)
		if err != nil {
			util.Error(token.Token{}, "%v", err)
		}

		if dumpIR {
			if err := t.DumpIR(os.Stdout, srcs); err != nil {
				util.Fatal(err)
			}
			return nil
		}

		fmt.Printf("Translating %d source file(s) with '%s' backend (-O%d)...\n", len(srcs), cfg.BackendName, cfg.Level)
		if !cfg.Optimize() {
			util.Info("dead-code removal and address cleanup are off")
		}
		var res *translator.Result
		if isDir {
			res, err = t.TranslateProgram(srcs)
		} else {
			res, err = t.TranslateFile(srcs[0])
		}
		if err != nil {
			util.Fatal(err)
		}
		for _, d := range res.Diagnostics {
			util.Warn(cfg, d.Warning, d.Tok, "%s", d.Msg)
		}

		if outFile == "" {
			outFile = translator.DefaultOutput(input, isDir)
		}
		fmt.Printf("Writing '%s'...\n", outFile)
		if err := writeOutput(outFile, res); err != nil {
			util.Error(token.Token{}, "%v", err)
		}

		if stats {
			s := res.Stats
			fmt.Printf("instructions: %d -> %d\n", s.Before, s.After)
			fmt.Printf("blocks:       %d (%d dropped)\n", s.Blocks, s.BlocksDropped)
			fmt.Printf("loads elided: %d\n", s.LoadsRemoved)
			fmt.Printf("fingerprint:  %016x\n", res.Fingerprint)
			util.Info("%d function(s): %s", len(res.Functions), strings.Join(res.Functions, ", "))
		}
		fmt.Println("Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// writeOutput writes through a temporary file in the destination directory
// and renames it into place. The temporary file is removed on any fatal exit.
func writeOutput(path string, res *translator.Result) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vmc-*.asm")
	if err != nil {
		return fmt.Errorf("failed to create temp file for output: %w", err)
	}
	atexit.Register(func() { os.Remove(tmp.Name()) })

	if err := asm.Write(tmp, res.Program); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
