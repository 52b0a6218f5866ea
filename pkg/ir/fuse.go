package ir

import "github.com/xplshn/vmtranslator/pkg/vm"

// Fuse rewrites adjacent push patterns in a single greedy left-to-right scan.
// At each push the longest pattern wins, in this order:
//
//	push X; eq|gt|lt; if-goto L
//	push X; add|sub|and|or
//	push X; eq|gt|lt
//	push X; pop Y
//	push X; if-goto L
//
// Matched instructions are consumed; nothing is revisited.
func Fuse(insts []vm.Instruction) []Extended {
	out := make([]Extended, 0, len(insts))
	for i := 0; i < len(insts); {
		e, n := fuseAt(insts, i)
		out = append(out, e)
		i += n
	}
	return out
}

func fuseAt(insts []vm.Instruction, i int) (Extended, int) {
	push, ok := vm.IsPush(insts[i])
	if !ok || i+1 >= len(insts) {
		return &Single{Inst: insts[i]}, 1
	}

	switch next := insts[i+1].(type) {
	case *vm.Arithmetic:
		if next.Op.IsComparison() {
			if i+2 < len(insts) {
				if br := ifGoto(insts[i+2]); br != nil {
					return &CompareBranch{Push: push, Compare: next, Branch: br}, 3
				}
			}
			return &CompareAfterPush{Push: push, Compare: next}, 2
		}
		if next.Op.IsBinary() {
			return &BinaryAfterPush{Push: push, Op: next}, 2
		}
	case *vm.StackTransfer:
		if next.Command == vm.CmdPop {
			return &Move{Push: push, Pop: next}, 2
		}
	case *vm.Branch:
		if next.Command == vm.CmdIfGoto {
			return &BranchAfterPush{Push: push, Branch: next}, 2
		}
	}
	return &Single{Inst: push}, 1
}

func ifGoto(inst vm.Instruction) *vm.Branch {
	if br, ok := inst.(*vm.Branch); ok && br.Command == vm.CmdIfGoto {
		return br
	}
	return nil
}
