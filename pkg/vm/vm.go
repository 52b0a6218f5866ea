// Package vm defines the typed instructions of the stack-based VM language.
package vm

import (
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/token"
)

// Instruction is a closed union: Arithmetic, StackTransfer, Branch,
// FunctionDecl, Call and Return are its only members.
type Instruction interface {
	isInstruction()
	Pos() token.Token
	String() string
}

// Op is an arithmetic or logical command.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpNeg
	OpEq
	OpGt
	OpLt
	OpAnd
	OpOr
	OpNot
)

var opNames = [...]string{"add", "sub", "neg", "eq", "gt", "lt", "and", "or", "not"}

func (o Op) String() string { return opNames[o] }

// IsBinary reports whether the operator pops two operands and pushes one result.
func (o Op) IsBinary() bool { return o != OpNeg && o != OpNot }

// IsComparison reports whether the operator produces a boolean (-1 / 0).
func (o Op) IsComparison() bool { return o == OpEq || o == OpGt || o == OpLt }

// Segment is a named VM memory region.
type Segment int

const (
	SegLocal Segment = iota
	SegArgument
	SegThis
	SegThat
	SegConstant
	SegStatic
	SegTemp
	SegPointer
)

var segmentNames = [...]string{"local", "argument", "this", "that", "constant", "static", "temp", "pointer"}

var SegmentMap = map[string]Segment{
	"local":    SegLocal,
	"argument": SegArgument,
	"this":     SegThis,
	"that":     SegThat,
	"constant": SegConstant,
	"static":   SegStatic,
	"temp":     SegTemp,
	"pointer":  SegPointer,
}

func (s Segment) String() string { return segmentNames[s] }

// IsPointerBased reports whether the segment is addressed through a base
// register (LCL, ARG, THIS, THAT).
func (s Segment) IsPointerBased() bool { return s <= SegThat }

// Base returns the base-register symbol of a pointer-based segment.
func (s Segment) Base() string {
	switch s {
	case SegLocal:
		return "LCL"
	case SegArgument:
		return "ARG"
	case SegThis:
		return "THIS"
	case SegThat:
		return "THAT"
	}
	return ""
}

// Fixed RAM bases of the directly addressed segments.
const (
	PointerBase = 3
	TempBase    = 5
	TempSize    = 8
	PointerSize = 2
	MaxConstant = 1<<15 - 1
)

// Command distinguishes push/pop and the three branch forms.
type Command int

const (
	CmdPush Command = iota
	CmdPop
	CmdLabel
	CmdGoto
	CmdIfGoto
)

var commandNames = [...]string{"push", "pop", "label", "goto", "if-goto"}

func (c Command) String() string { return commandNames[c] }

type Arithmetic struct {
	Tok token.Token
	Op  Op
}

type StackTransfer struct {
	Tok     token.Token
	Command Command
	Segment Segment
	Index   int
}

type Branch struct {
	Tok     token.Token
	Command Command
	Label   string
}

type FunctionDecl struct {
	Tok     token.Token
	Name    string
	NLocals int
}

type Call struct {
	Tok   token.Token
	Name  string
	NArgs int
}

type Return struct {
	Tok token.Token
}

func (*Arithmetic) isInstruction()    {}
func (*StackTransfer) isInstruction() {}
func (*Branch) isInstruction()        {}
func (*FunctionDecl) isInstruction()  {}
func (*Call) isInstruction()          {}
func (*Return) isInstruction()        {}

func (i *Arithmetic) Pos() token.Token    { return i.Tok }
func (i *StackTransfer) Pos() token.Token { return i.Tok }
func (i *Branch) Pos() token.Token        { return i.Tok }
func (i *FunctionDecl) Pos() token.Token  { return i.Tok }
func (i *Call) Pos() token.Token          { return i.Tok }
func (i *Return) Pos() token.Token        { return i.Tok }

func (i *Arithmetic) String() string { return i.Op.String() }
func (i *StackTransfer) String() string {
	return fmt.Sprintf("%s %s %d", i.Command, i.Segment, i.Index)
}
func (i *Branch) String() string       { return fmt.Sprintf("%s %s", i.Command, i.Label) }
func (i *FunctionDecl) String() string { return fmt.Sprintf("function %s %d", i.Name, i.NLocals) }
func (i *Call) String() string         { return fmt.Sprintf("call %s %d", i.Name, i.NArgs) }
func (i *Return) String() string       { return "return" }

// IsPush reports whether inst is a push of any segment.
func IsPush(inst Instruction) (*StackTransfer, bool) {
	st, ok := inst.(*StackTransfer)
	if !ok || st.Command != CmdPush {
		return nil, false
	}
	return st, true
}

// --- Constructors ---

func NewArithmetic(tok token.Token, op Op) *Arithmetic {
	return &Arithmetic{Tok: tok, Op: op}
}
func NewPush(tok token.Token, seg Segment, index int) *StackTransfer {
	return &StackTransfer{Tok: tok, Command: CmdPush, Segment: seg, Index: index}
}
func NewPop(tok token.Token, seg Segment, index int) *StackTransfer {
	return &StackTransfer{Tok: tok, Command: CmdPop, Segment: seg, Index: index}
}
func NewBranch(tok token.Token, cmd Command, label string) *Branch {
	return &Branch{Tok: tok, Command: cmd, Label: label}
}
func NewFunctionDecl(tok token.Token, name string, nLocals int) *FunctionDecl {
	return &FunctionDecl{Tok: tok, Name: name, NLocals: nLocals}
}
func NewCall(tok token.Token, name string, nArgs int) *Call {
	return &Call{Tok: tok, Name: name, NArgs: nArgs}
}
func NewReturn(tok token.Token) *Return { return &Return{Tok: tok} }
