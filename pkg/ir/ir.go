// Package ir holds the extended instruction stream fed to code generation:
// plain VM instructions plus the fused composites produced by Fuse.
package ir

import (
	"fmt"
	"io"

	"github.com/xplshn/vmtranslator/pkg/token"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

type Extended interface {
	isExtended()
	Pos() token.Token
	String() string
}

// Single passes one VM instruction through unchanged.
type Single struct{ Inst vm.Instruction }

// CompareBranch is push X, eq|gt|lt, if-goto L. No boolean is materialised.
type CompareBranch struct {
	Push    *vm.StackTransfer
	Compare *vm.Arithmetic
	Branch  *vm.Branch
}

// BinaryAfterPush is push X followed by add, sub, and or or.
type BinaryAfterPush struct {
	Push *vm.StackTransfer
	Op   *vm.Arithmetic
}

// CompareAfterPush is push X followed by eq, gt or lt.
type CompareAfterPush struct {
	Push    *vm.StackTransfer
	Compare *vm.Arithmetic
}

// Move is push X followed by pop Y.
type Move struct {
	Push *vm.StackTransfer
	Pop  *vm.StackTransfer
}

// BranchAfterPush is push X followed by if-goto L.
type BranchAfterPush struct {
	Push   *vm.StackTransfer
	Branch *vm.Branch
}

func (*Single) isExtended()           {}
func (*CompareBranch) isExtended()    {}
func (*BinaryAfterPush) isExtended()  {}
func (*CompareAfterPush) isExtended() {}
func (*Move) isExtended()             {}
func (*BranchAfterPush) isExtended()  {}

func (e *Single) Pos() token.Token           { return e.Inst.Pos() }
func (e *CompareBranch) Pos() token.Token    { return e.Push.Tok }
func (e *BinaryAfterPush) Pos() token.Token  { return e.Push.Tok }
func (e *CompareAfterPush) Pos() token.Token { return e.Push.Tok }
func (e *Move) Pos() token.Token             { return e.Push.Tok }
func (e *BranchAfterPush) Pos() token.Token  { return e.Push.Tok }

func (e *Single) String() string { return e.Inst.String() }
func (e *CompareBranch) String() string {
	return fmt.Sprintf("if %s %s %d goto %s", e.Compare.Op, e.Push.Segment, e.Push.Index, e.Branch.Label)
}
func (e *BinaryAfterPush) String() string {
	return fmt.Sprintf("%s %s %d", e.Op.Op, e.Push.Segment, e.Push.Index)
}
func (e *CompareAfterPush) String() string {
	return fmt.Sprintf("%s after %s %d", e.Compare.Op, e.Push.Segment, e.Push.Index)
}
func (e *Move) String() string {
	return fmt.Sprintf("move %s %d to %s %d", e.Push.Segment, e.Push.Index, e.Pop.Segment, e.Pop.Index)
}
func (e *BranchAfterPush) String() string {
	return fmt.Sprintf("if-goto after %s %d to %s", e.Push.Segment, e.Push.Index, e.Branch.Label)
}

// Covered returns the VM instructions an extended instruction replaces.
func Covered(e Extended) []vm.Instruction {
	switch e := e.(type) {
	case *Single:
		return []vm.Instruction{e.Inst}
	case *CompareBranch:
		return []vm.Instruction{e.Push, e.Compare, e.Branch}
	case *BinaryAfterPush:
		return []vm.Instruction{e.Push, e.Op}
	case *CompareAfterPush:
		return []vm.Instruction{e.Push, e.Compare}
	case *Move:
		return []vm.Instruction{e.Push, e.Pop}
	case *BranchAfterPush:
		return []vm.Instruction{e.Push, e.Branch}
	}
	return nil
}

// Lift wraps every instruction in Single.
func Lift(insts []vm.Instruction) []Extended {
	out := make([]Extended, len(insts))
	for i, inst := range insts {
		out[i] = &Single{Inst: inst}
	}
	return out
}

// Dump writes one extended instruction per line, with its source line.
func Dump(w io.Writer, prog []Extended) {
	for _, e := range prog {
		pos := e.Pos()
		fmt.Fprintf(w, "%4d  %s\n", pos.Line, e.String())
	}
}
