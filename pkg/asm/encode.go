package asm

import (
	"fmt"
	"strconv"
)

// compTable maps each computation mnemonic to its a-bit and six c-bits.
var compTable = map[string]uint16{
	"0":   0b0101010,
	"1":   0b0111111,
	"-1":  0b0111010,
	"D":   0b0001100,
	"A":   0b0110000,
	"!D":  0b0001101,
	"!A":  0b0110001,
	"-D":  0b0001111,
	"-A":  0b0110011,
	"D+1": 0b0011111,
	"A+1": 0b0110111,
	"D-1": 0b0001110,
	"A-1": 0b0110010,
	"D+A": 0b0000010,
	"D-A": 0b0010011,
	"A-D": 0b0000111,
	"D&A": 0b0000000,
	"D|A": 0b0010101,
	"M":   0b1110000,
	"!M":  0b1110001,
	"-M":  0b1110011,
	"M+1": 0b1110111,
	"M-1": 0b1110010,
	"D+M": 0b1000010,
	"D-M": 0b1010011,
	"M-D": 0b1000111,
	"D&M": 0b1000000,
	"D|M": 0b1010101,
}

// IsComp reports whether s is one of the recognised computation mnemonics.
func IsComp(s string) bool {
	_, ok := compTable[s]
	return ok
}

// Memory map of the target machine.
const (
	VariableBase = 16
	Screen       = 16384
	Keyboard     = 24576
	MaxAddress   = 1<<15 - 1
)

// Predefined holds the registers and memory-mapped devices every program sees.
var Predefined = map[string]uint16{
	"SP": 0, "LCL": 1, "ARG": 2, "THIS": 3, "THAT": 4,
	"SCREEN": Screen, "KBD": Keyboard,
}

func init() {
	for i := 0; i < 16; i++ {
		Predefined["R"+strconv.Itoa(i)] = uint16(i)
	}
}

// SymbolTable resolves labels to ROM addresses and allocates variables.
type SymbolTable struct {
	symbols map[string]uint16
	next    uint16
}

// NewSymbolTable records every label of prog at the ROM address of the
// instruction that follows it.
func NewSymbolTable(prog []Instruction) (*SymbolTable, error) {
	st := &SymbolTable{symbols: make(map[string]uint16, len(Predefined)), next: VariableBase}
	for name, addr := range Predefined {
		st.symbols[name] = addr
	}
	var pc uint16
	for _, inst := range prog {
		if l, ok := inst.(*LabelDecl); ok {
			if _, dup := st.symbols[l.Name]; dup {
				return nil, fmt.Errorf("label '%s' redefined", l.Name)
			}
			st.symbols[l.Name] = pc
			continue
		}
		pc++
	}
	return st, nil
}

// Resolve returns the address of sym, allocating a variable when unknown.
func (st *SymbolTable) Resolve(sym string) (uint16, error) {
	if n, err := strconv.ParseUint(sym, 10, 16); err == nil {
		if n > MaxAddress {
			return 0, fmt.Errorf("address %d does not fit in 15 bits", n)
		}
		return uint16(n), nil
	}
	if addr, ok := st.symbols[sym]; ok {
		return addr, nil
	}
	if st.next >= Screen {
		return 0, fmt.Errorf("out of variable space allocating '%s'", sym)
	}
	addr := st.next
	st.symbols[sym] = addr
	st.next++
	return addr, nil
}

// Lookup returns the address of a known symbol without allocating.
func (st *SymbolTable) Lookup(sym string) (uint16, bool) {
	addr, ok := st.symbols[sym]
	return addr, ok
}

// Encode turns a single non-label instruction into its machine word.
func Encode(inst Instruction, st *SymbolTable) (uint16, error) {
	switch i := inst.(type) {
	case *AddressLoad:
		return st.Resolve(i.Symbol)
	case *Compute:
		comp, ok := compTable[i.Comp]
		if !ok {
			return 0, fmt.Errorf("unknown computation '%s'", i.Comp)
		}
		return 0b111<<13 | comp<<6 | uint16(i.Dest)<<3 | uint16(i.Jump), nil
	}
	return 0, fmt.Errorf("cannot encode %s", inst)
}

// Assemble produces the ROM image of prog.
func Assemble(prog []Instruction) ([]uint16, *SymbolTable, error) {
	st, err := NewSymbolTable(prog)
	if err != nil {
		return nil, nil, err
	}
	rom := make([]uint16, 0, len(prog))
	for _, inst := range prog {
		if _, ok := inst.(*LabelDecl); ok {
			continue
		}
		word, err := Encode(inst, st)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", inst, err)
		}
		rom = append(rom, word)
	}
	return rom, st, nil
}
