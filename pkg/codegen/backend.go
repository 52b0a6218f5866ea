package codegen

import (
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	Name() string
	// Generate lowers one extended instruction.
	Generate(ctx *Context, e ir.Extended) ([]asm.Instruction, error)
	// Bootstrap sets the stack pointer, calls the entry function and halts.
	Bootstrap(ctx *Context) []asm.Instruction
	// Library returns the shared routines used so far. It must be called
	// after every file has been translated.
	Library(ctx *Context) []asm.Instruction
}

// NewBackend selects a backend by name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case config.BackendDirect:
		return NewDirectBackend(), nil
	case config.BackendShared:
		return NewSharedBackend(), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'", name)
}
