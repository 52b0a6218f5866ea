// Package emulator runs assembled programs on a model of the target 16-bit
// machine: a ROM of instruction words, a 32K-word RAM and the A, D and PC
// registers.
package emulator

import (
	"errors"
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
)

const RAMSize = 1 << 15

var (
	ErrStepLimit  = errors.New("step limit reached")
	ErrBadAddress = errors.New("memory access out of range")
	ErrPCOutOfROM = errors.New("program counter outside ROM")
)

type CPU struct {
	ROM []uint16
	RAM [RAMSize]uint16

	A  uint16
	D  uint16
	PC uint16

	Steps  int
	Halted bool

	symbols *asm.SymbolTable
}

// New assembles prog and loads it into a fresh machine.
func New(prog []asm.Instruction) (*CPU, error) {
	rom, st, err := asm.Assemble(prog)
	if err != nil {
		return nil, err
	}
	return &CPU{ROM: rom, symbols: st}, nil
}

// Symbol returns the address assigned to a label or variable.
func (c *CPU) Symbol(name string) (uint16, bool) { return c.symbols.Lookup(name) }

func (c *CPU) Peek(addr uint16) int16       { return int16(c.RAM[addr]) }
func (c *CPU) Poke(addr uint16, val int16) { c.RAM[addr] = uint16(val) }

// PeekSymbol reads the RAM cell named by a variable symbol such as "Foo.0".
func (c *CPU) PeekSymbol(name string) (int16, bool) {
	addr, ok := c.Symbol(name)
	if !ok || addr >= RAMSize {
		return 0, false
	}
	return c.Peek(addr), true
}

// Stack returns RAM[base:SP].
func (c *CPU) Stack(base uint16) []int16 {
	sp := c.RAM[0]
	if sp < base || sp >= RAMSize {
		return nil
	}
	out := make([]int16, 0, sp-base)
	for a := base; a < sp; a++ {
		out = append(out, int16(c.RAM[a]))
	}
	return out
}

// alu evaluates a computation field (a-bit plus c1..c6) on x = D and
// y = A or M.
func alu(comp, x, y uint16) uint16 {
	if comp&0b100000 != 0 {
		x = 0
	}
	if comp&0b010000 != 0 {
		x = ^x
	}
	if comp&0b001000 != 0 {
		y = 0
	}
	if comp&0b000100 != 0 {
		y = ^y
	}
	var out uint16
	if comp&0b000010 != 0 {
		out = x + y
	} else {
		out = x & y
	}
	if comp&0b000001 != 0 {
		out = ^out
	}
	return out
}

func jumps(jump, out uint16) bool {
	v := int16(out)
	return (jump&0b100 != 0 && v < 0) ||
		(jump&0b010 != 0 && v == 0) ||
		(jump&0b001 != 0 && v > 0)
}

func (c *CPU) readM() (uint16, error) {
	if c.A >= RAMSize {
		return 0, fmt.Errorf("%w: read RAM[%d] at pc %d", ErrBadAddress, c.A, c.PC)
	}
	return c.RAM[c.A], nil
}

// Step executes one instruction. Reaching a two-instruction self loop
// ("@L" where L labels that load, then "0;JMP") marks the machine halted.
func (c *CPU) Step() error {
	if int(c.PC) >= len(c.ROM) {
		return fmt.Errorf("%w: pc %d", ErrPCOutOfROM, c.PC)
	}
	word := c.ROM[c.PC]
	c.Steps++

	if word&0x8000 == 0 {
		c.A = word
		c.PC++
		return nil
	}

	comp := word >> 6 & 0x7f
	dest := word >> 3 & 0b111
	jump := word & 0b111

	y := c.A
	if comp&0x40 != 0 {
		m, err := c.readM()
		if err != nil {
			return err
		}
		y = m
	}
	out := alu(comp&0x3f, c.D, y)

	addr := c.A
	if dest&uint16(asm.DestM) != 0 {
		if addr >= RAMSize {
			return fmt.Errorf("%w: write RAM[%d] at pc %d", ErrBadAddress, addr, c.PC)
		}
		c.RAM[addr] = out
	}
	if dest&uint16(asm.DestA) != 0 {
		c.A = out
	}
	if dest&uint16(asm.DestD) != 0 {
		c.D = out
	}

	if jump != 0 && jumps(jump, out) {
		if c.PC > 0 && addr == c.PC-1 && c.ROM[addr] == addr {
			c.Halted = true
		}
		c.PC = addr
		return nil
	}
	c.PC++
	return nil
}

// Run steps until the machine halts, runs off the end of ROM, or exceeds
// maxSteps.
func (c *CPU) Run(maxSteps int) error {
	for !c.Halted {
		if int(c.PC) == len(c.ROM) {
			return nil
		}
		if c.Steps >= maxSteps {
			return fmt.Errorf("%w (%d)", ErrStepLimit, maxSteps)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil steps until PC reaches the address of label.
func (c *CPU) RunUntil(label string, maxSteps int) error {
	target, ok := c.Symbol(label)
	if !ok {
		return fmt.Errorf("unknown label '%s'", label)
	}
	for c.PC != target {
		if c.Steps >= maxSteps {
			return fmt.Errorf("%w (%d) before reaching '%s'", ErrStepLimit, maxSteps, label)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
