// Package translator assembles whole programs: it parses every source,
// checks the program, lowers it with the selected backend, lays out the
// bootstrap and shared library, and runs the assembly optimizer.
package translator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/checker"
	"github.com/xplshn/vmtranslator/pkg/codegen"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/ir"
	"github.com/xplshn/vmtranslator/pkg/optimizer"
	"github.com/xplshn/vmtranslator/pkg/parser"
	"github.com/xplshn/vmtranslator/pkg/token"
	"github.com/xplshn/vmtranslator/pkg/util"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

var (
	ErrUndeclaredFunction = checker.ErrUndeclaredFunction
	ErrDuplicateFunction  = checker.ErrDuplicateFunction
	ErrNoSources          = errors.New("no .vm source files")
	ErrBadFileName        = errors.New("bad source file name")
)

// StartLabel is jumped to over the library when there is no bootstrap.
const StartLabel = "StartUp"

// Source is one VM source document.
type Source struct {
	Name    string
	Content string
}

type Result struct {
	Program     []asm.Instruction
	Stats       optimizer.Stats
	Diagnostics []checker.Diagnostic
	Functions   []string
	Fingerprint uint64
}

type Translator struct {
	cfg     *config.Config
	backend codegen.Backend
}

// New builds a translator for the backend named in cfg.
func New(cfg *config.Config) (*Translator, error) {
	backend, err := codegen.NewBackend(cfg.BackendName)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(cfg, backend), nil
}

func NewWithBackend(cfg *config.Config, backend codegen.Backend) *Translator {
	return &Translator{cfg: cfg, backend: backend}
}

func (t *Translator) Backend() codegen.Backend { return t.backend }

// TranslateFile translates one source on its own: a jump over the library,
// the library, then the file body.
func (t *Translator) TranslateFile(src Source) (*Result, error) {
	return t.translate([]Source{src}, false)
}

// TranslateProgram translates several sources as one program, in name order,
// behind a bootstrap that calls the entry function.
func (t *Translator) TranslateProgram(srcs []Source) (*Result, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}
	sorted := append([]Source(nil), srcs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return t.translate(sorted, true)
}

func parseAll(srcs []Source) ([]checker.Unit, error) {
	units := make([]checker.Unit, 0, len(srcs))
	for _, src := range srcs {
		// Statics are named after the file, so its stem must be a symbol.
		if stem := codegen.FileStem(src.Name); !parser.IsSymbol(stem) {
			return nil, util.Errorf(token.Token{File: src.Name}, "%w '%s': '%s' is not a valid symbol", ErrBadFileName, src.Name, stem)
		}
		insts, err := parser.ParseSource(src.Content, src.Name)
		if err != nil {
			return nil, err
		}
		units = append(units, checker.Unit{File: src.Name, Insts: insts})
	}
	return units, nil
}

// Lower applies fusion when it is enabled.
func (t *Translator) Lower(insts []vm.Instruction) []ir.Extended {
	if t.cfg.IsFeatureEnabled(config.FeatFusion) {
		return ir.Fuse(insts)
	}
	return ir.Lift(insts)
}

func (t *Translator) translate(srcs []Source, multiFile bool) (*Result, error) {
	units, err := parseAll(srcs)
	if err != nil {
		return nil, err
	}
	chk := checker.NewChecker(t.cfg, multiFile)
	diags, err := chk.Check(units)
	if err != nil {
		return nil, err
	}

	ctx := codegen.NewContext(t.cfg)
	bootstrap := multiFile && t.cfg.IsFeatureEnabled(config.FeatBootstrap)
	var prologue []asm.Instruction
	if bootstrap {
		prologue = t.backend.Bootstrap(ctx)
	}

	origins := make(map[string]token.Token)
	var body []asm.Instruction
	for _, u := range units {
		ctx.SetFile(u.File)
		for _, e := range t.Lower(u.Insts) {
			recordOrigin(ctx, origins, e)
			out, err := t.backend.Generate(ctx, e)
			if err != nil {
				return nil, err
			}
			body = append(body, out...)
		}
	}
	lib := t.backend.Library(ctx)

	prog := make([]asm.Instruction, 0, len(prologue)+len(lib)+len(body)+3)
	if bootstrap {
		prog = append(prog, prologue...)
		prog = append(prog, lib...)
	} else {
		prog = append(prog, asm.At(StartLabel), asm.Goto())
		prog = append(prog, lib...)
		prog = append(prog, asm.Label(StartLabel))
	}
	prog = append(prog, body...)

	res, err := optimizer.Optimize(prog, ctx.Linkage, optimizer.OptionsFromConfig(t.cfg))
	if err != nil {
		return nil, err
	}
	if t.cfg.IsFeatureEnabled(config.FeatDeadCode) {
		diags = append(diags, unreachable(res.Dropped, origins)...)
	}
	return &Result{
		Program:     res.Program,
		Stats:       res.Stats,
		Diagnostics: diags,
		Functions:   chk.Functions(),
		Fingerprint: Fingerprint(res.Program),
	}, nil
}

// recordOrigin remembers where user labels and functions were declared, to
// position warnings about blocks the optimizer removes.
func recordOrigin(ctx *codegen.Context, origins map[string]token.Token, e ir.Extended) {
	s, ok := e.(*ir.Single)
	if !ok {
		return
	}
	switch i := s.Inst.(type) {
	case *vm.FunctionDecl:
		origins[i.Name] = i.Tok
	case *vm.Branch:
		if i.Command == vm.CmdLabel {
			origins[ctx.QualifyLabel(i.Label)] = i.Tok
		}
	}
}

func unreachable(dropped []*optimizer.Block, origins map[string]token.Token) []checker.Diagnostic {
	var diags []checker.Diagnostic
	for _, b := range dropped {
		tok, ok := origins[b.Label]
		if !ok {
			continue
		}
		what := "function"
		name := b.Label
		if i := strings.LastIndexByte(name, '$'); i >= 0 {
			what, name = "label", name[i+1:]
		}
		diags = append(diags, checker.Diagnostic{
			Warning: config.WarnUnreachableCode,
			Tok:     tok,
			Msg:     fmt.Sprintf("%s '%s' is unreachable and was removed", what, name),
		})
	}
	return diags
}

// Fingerprint is a stable hash of the emitted listing.
func Fingerprint(prog []asm.Instruction) uint64 {
	d := xxhash.New()
	for _, inst := range prog {
		d.WriteString(inst.String())
		d.WriteString("\n")
	}
	return d.Sum64()
}

// DumpIR writes the extended instruction listing of every source.
func (t *Translator) DumpIR(w io.Writer, srcs []Source) error {
	units, err := parseAll(srcs)
	if err != nil {
		return err
	}
	for _, u := range units {
		fmt.Fprintf(w, "; %s\n", u.File)
		ir.Dump(w, t.Lower(u.Insts))
	}
	return nil
}

// Load reads a single .vm file, or every .vm file of a directory sorted by
// name. It reports whether the input was a directory.
func Load(path string) ([]Source, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, false, err
		}
		return []Source{{Name: path, Content: string(content)}}, false, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, true, err
	}
	var srcs []Source
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".vm" {
			continue
		}
		full := filepath.Join(path, e.Name())
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, true, err
		}
		srcs = append(srcs, Source{Name: full, Content: string(content)})
	}
	if len(srcs) == 0 {
		return nil, true, fmt.Errorf("%w in '%s'", ErrNoSources, path)
	}
	return srcs, true, nil
}

// DefaultOutput is <file>.asm for a file and <parent>/<dir>.asm for a
// directory.
func DefaultOutput(path string, isDir bool) string {
	if isDir {
		clean := filepath.Clean(path)
		return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+".asm")
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".asm"
}
