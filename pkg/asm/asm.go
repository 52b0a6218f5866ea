// Package asm models Hack assembly: address loads, computations and label
// declarations, with the textual form accepted by the downstream assembler.
package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type Instruction interface {
	isInstruction()
	String() string
}

// AddressLoad is "@symbol". The symbol is a decimal literal or a name.
type AddressLoad struct{ Symbol string }

// Compute is "dest=comp;jump" with dest and jump optional.
type Compute struct {
	Dest Dest
	Comp string
	Jump Jump
}

// LabelDecl is "(name)".
type LabelDecl struct{ Name string }

func (*AddressLoad) isInstruction() {}
func (*Compute) isInstruction()     {}
func (*LabelDecl) isInstruction()   {}

func (i *AddressLoad) String() string { return "@" + i.Symbol }
func (i *LabelDecl) String() string   { return "(" + i.Name + ")" }
func (i *Compute) String() string {
	var sb strings.Builder
	if i.Dest != 0 {
		sb.WriteString(i.Dest.String())
		sb.WriteByte('=')
	}
	sb.WriteString(i.Comp)
	if i.Jump != JumpNone {
		sb.WriteByte(';')
		sb.WriteString(i.Jump.String())
	}
	return sb.String()
}

// Numeric reports whether the load is a literal address.
func (i *AddressLoad) Numeric() bool {
	_, err := strconv.ParseUint(i.Symbol, 10, 16)
	return err == nil
}

// Dest is a subset of {A, M, D}, using the Hack d1 d2 d3 bit order.
type Dest uint8

const (
	DestM Dest = 1 << iota
	DestD
	DestA
)

const (
	DestMD  = DestM | DestD
	DestAM  = DestA | DestM
	DestAD  = DestA | DestD
	DestAMD = DestA | DestM | DestD
)

func (d Dest) Has(r Dest) bool { return d&r != 0 }

// String renders the registers in A, M, D order.
func (d Dest) String() string {
	var sb strings.Builder
	if d.Has(DestA) {
		sb.WriteByte('A')
	}
	if d.Has(DestM) {
		sb.WriteByte('M')
	}
	if d.Has(DestD) {
		sb.WriteByte('D')
	}
	return sb.String()
}

func ParseDest(s string) (Dest, error) {
	var d Dest
	for _, r := range s {
		var bit Dest
		switch r {
		case 'A':
			bit = DestA
		case 'M':
			bit = DestM
		case 'D':
			bit = DestD
		default:
			return 0, fmt.Errorf("invalid destination '%s'", s)
		}
		if d.Has(bit) {
			return 0, fmt.Errorf("repeated register in destination '%s'", s)
		}
		d |= bit
	}
	return d, nil
}

type Jump uint8

const (
	JumpNone Jump = iota
	JGT
	JEQ
	JGE
	JLT
	JNE
	JLE
	JMP
)

var jumpNames = [...]string{"", "JGT", "JEQ", "JGE", "JLT", "JNE", "JLE", "JMP"}

func (j Jump) String() string { return jumpNames[j] }

func ParseJump(s string) (Jump, error) {
	for i, name := range jumpNames {
		if name == s && s != "" {
			return Jump(i), nil
		}
	}
	return JumpNone, fmt.Errorf("invalid jump '%s'", s)
}

// --- Constructors ---

func At(symbol string) *AddressLoad { return &AddressLoad{Symbol: symbol} }
func AtInt(n int) *AddressLoad      { return &AddressLoad{Symbol: strconv.Itoa(n)} }
func Label(name string) *LabelDecl  { return &LabelDecl{Name: name} }

// Set is "dest=comp".
func Set(dest Dest, comp string) *Compute { return &Compute{Dest: dest, Comp: comp} }

// Branch is "comp;jump".
func Branch(comp string, jump Jump) *Compute { return &Compute{Comp: comp, Jump: jump} }

// Goto is the unconditional "0;JMP".
func Goto() *Compute { return &Compute{Comp: "0", Jump: JMP} }

// IsUnconditionalJump reports whether inst is a Compute with jump JMP.
func IsUnconditionalJump(inst Instruction) bool {
	c, ok := inst.(*Compute)
	return ok && c.Jump == JMP
}

// IsJump reports whether inst is a Compute with any jump.
func IsJump(inst Instruction) bool {
	c, ok := inst.(*Compute)
	return ok && c.Jump != JumpNone
}

// Parse reads one trimmed assembly line.
func Parse(line string) (Instruction, error) {
	switch {
	case line == "":
		return nil, fmt.Errorf("empty assembly line")
	case line[0] == '@':
		if len(line) == 1 {
			return nil, fmt.Errorf("missing symbol in '%s'", line)
		}
		return At(line[1:]), nil
	case line[0] == '(':
		if len(line) < 3 || line[len(line)-1] != ')' {
			return nil, fmt.Errorf("malformed label '%s'", line)
		}
		return Label(line[1 : len(line)-1]), nil
	}

	c := &Compute{}
	body, jump, hasJump := strings.Cut(line, ";")
	if hasJump {
		j, err := ParseJump(jump)
		if err != nil {
			return nil, err
		}
		c.Jump = j
	}
	if dest, comp, ok := strings.Cut(body, "="); ok {
		d, err := ParseDest(dest)
		if err != nil {
			return nil, err
		}
		c.Dest, body = d, comp
	}
	if !IsComp(body) {
		return nil, fmt.Errorf("unknown computation '%s'", body)
	}
	c.Comp = body
	return c, nil
}

// ParseProgram reads a listing, ignoring blank lines and // comments.
func ParseProgram(r io.Reader) ([]Instruction, error) {
	var prog []Instruction
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		inst, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		prog = append(prog, inst)
	}
	return prog, sc.Err()
}

// MustParse is ParseProgram over a string literal, for tests.
func MustParse(src string) []Instruction {
	prog, err := ParseProgram(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return prog
}

// Write prints one instruction per line.
func Write(w io.Writer, prog []Instruction) error {
	bw := bufio.NewWriter(w)
	for _, inst := range prog {
		bw.WriteString(inst.String())
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func Text(prog []Instruction) string {
	var sb strings.Builder
	Write(&sb, prog)
	return sb.String()
}

// Lines renders a listing as strings, mostly for comparisons.
func Lines(prog []Instruction) []string {
	out := make([]string, len(prog))
	for i, inst := range prog {
		out[i] = inst.String()
	}
	return out
}
