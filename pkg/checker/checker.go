// Package checker performs whole-program structural checks on parsed VM
// code: function declarations, call targets and code placement.
package checker

import (
	"errors"
	"sort"

	"github.com/xplshn/vmtranslator/pkg/codegen"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/token"
	"github.com/xplshn/vmtranslator/pkg/util"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

var (
	ErrDuplicateFunction  = errors.New("duplicate function")
	ErrUndeclaredFunction = errors.New("call to undeclared function")
	ErrReservedName       = errors.New("reserved name")
)

// Unit is one parsed source file.
type Unit struct {
	File  string
	Insts []vm.Instruction
}

// Diagnostic is a warning the driver may print, gated by Warning.
type Diagnostic struct {
	Warning config.Warning
	Tok     token.Token
	Msg     string
}

type Symbol struct {
	Name   string
	Decl   *vm.FunctionDecl
	Calls  int
	IsUsed bool
}

type Checker struct {
	cfg       *config.Config
	multiFile bool
	symbols   map[string]*Symbol
	calls     []*vm.Call
	diags     []Diagnostic
}

func NewChecker(cfg *config.Config, multiFile bool) *Checker {
	return &Checker{cfg: cfg, multiFile: multiFile, symbols: make(map[string]*Symbol)}
}

func (c *Checker) warn(w config.Warning, tok token.Token, msg string) {
	c.diags = append(c.diags, Diagnostic{Warning: w, Tok: tok, Msg: msg})
}

// Check runs every check over the whole program and stops at the first error.
func (c *Checker) Check(units []Unit) ([]Diagnostic, error) {
	for _, u := range units {
		if err := c.collect(u); err != nil {
			return nil, err
		}
	}
	for _, call := range c.calls {
		sym, ok := c.symbols[call.Name]
		if !ok {
			return nil, util.Errorf(call.Tok, "%w '%s'", ErrUndeclaredFunction, call.Name)
		}
		sym.Calls++
	}
	if c.multiFile && c.cfg.IsFeatureEnabled(config.FeatBootstrap) {
		entry, ok := c.symbols[c.cfg.EntryFunction]
		if !ok {
			return nil, util.Errorf(token.Token{}, "%w: entry function '%s' is not defined", ErrUndeclaredFunction, c.cfg.EntryFunction)
		}
		entry.IsUsed = true
	}
	if c.multiFile {
		c.checkUnused()
	}
	return c.diags, nil
}

func (c *Checker) collect(u Unit) error {
	inFunction := false
	var open *vm.FunctionDecl
	returns := false
	for _, inst := range u.Insts {
		switch i := inst.(type) {
		case *vm.FunctionDecl:
			if codegen.IsReserved(i.Name) {
				return util.Errorf(i.Tok, "%w: function name '%s' collides with a generated label", ErrReservedName, i.Name)
			}
			if prev, ok := c.symbols[i.Name]; ok {
				return util.Errorf(i.Tok, "%w '%s' (previously declared at %s:%d)", ErrDuplicateFunction, i.Name, prev.Decl.Tok.File, prev.Decl.Tok.Line)
			}
			c.checkReturn(open, returns)
			open, returns = i, false
			c.symbols[i.Name] = &Symbol{Name: i.Name, Decl: i}
			inFunction = true
			continue
		case *vm.Call:
			c.calls = append(c.calls, i)
		case *vm.Return:
			returns = true
		}
		if !inFunction && c.multiFile {
			c.warn(config.WarnOutsideFunction, inst.Pos(), "instruction outside of any function is never executed")
			inFunction = true
		}
	}
	c.checkReturn(open, returns)
	return nil
}

// checkReturn flags a function body that never returns. Entry loops do this
// on purpose, so the warning belongs to -Wextra.
func (c *Checker) checkReturn(fn *vm.FunctionDecl, returns bool) {
	if fn == nil || returns || !c.cfg.IsWarningEnabled(config.WarnExtra) {
		return
	}
	c.warn(config.WarnExtra, fn.Tok, "function '"+fn.Name+"' has no return")
}

func (c *Checker) checkUnused() {
	var unused []*Symbol
	for _, sym := range c.symbols {
		if sym.Calls == 0 && !sym.IsUsed {
			unused = append(unused, sym)
		}
	}
	sort.Slice(unused, func(i, j int) bool {
		a, b := unused[i].Decl.Tok, unused[j].Decl.Tok
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	for _, sym := range unused {
		c.warn(config.WarnUnusedFunction, sym.Decl.Tok, "function '"+sym.Name+"' is never called")
	}
}

// Functions lists the declared function names, sorted.
func (c *Checker) Functions() []string {
	names := make([]string, 0, len(c.symbols))
	for name := range c.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
