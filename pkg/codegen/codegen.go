package codegen

import (
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/ir"
	"github.com/xplshn/vmtranslator/pkg/util"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

// convention is what distinguishes the backends: comparisons and the calling
// convention. Everything else lowers the same way in both.
type convention interface {
	compare(b *builder, ctx *Context, op vm.Op)
	compareAfterPush(b *builder, ctx *Context, st *vm.StackTransfer, op vm.Op)
	function(b *builder, ctx *Context, fn *vm.FunctionDecl)
	call(b *builder, ctx *Context, name string, nArgs int)
	ret(b *builder, ctx *Context)
}

func generate(conv convention, ctx *Context, e ir.Extended) ([]asm.Instruction, error) {
	b := &builder{}
	switch e := e.(type) {
	case *ir.Single:
		if err := lowerSingle(conv, b, ctx, e.Inst); err != nil {
			return nil, err
		}
	case *ir.CompareBranch:
		compareBranch(b, ctx, e.Push, e.Compare.Op, e.Branch.Label)
	case *ir.BinaryAfterPush:
		binaryAfterPush(b, ctx, e.Push, e.Op.Op)
	case *ir.CompareAfterPush:
		conv.compareAfterPush(b, ctx, e.Push, e.Compare.Op)
	case *ir.Move:
		move(b, ctx, e.Push, e.Pop)
	case *ir.BranchAfterPush:
		branchAfterPush(b, ctx, e.Push, e.Branch.Label)
	default:
		return nil, fmt.Errorf("codegen: unhandled extended instruction %T", e)
	}
	return b.out, nil
}

func lowerSingle(conv convention, b *builder, ctx *Context, inst vm.Instruction) error {
	switch i := inst.(type) {
	case *vm.Arithmetic:
		switch {
		case i.Op.IsComparison():
			conv.compare(b, ctx, i.Op)
		case i.Op.IsBinary():
			binary(b, i.Op)
		default:
			unary(b, i.Op)
		}
	case *vm.StackTransfer:
		if i.Command == vm.CmdPush {
			push(b, ctx, i)
		} else {
			pop(b, ctx, i)
		}
	case *vm.Branch:
		branch(b, ctx, i)
	case *vm.FunctionDecl:
		if IsReserved(i.Name) {
			return util.Errorf(i.Tok, "function name '%s' is reserved", i.Name)
		}
		ctx.EnterFunction(i.Name)
		conv.function(b, ctx, i)
	case *vm.Call:
		conv.call(b, ctx, i.Name, i.NArgs)
	case *vm.Return:
		conv.ret(b, ctx)
	default:
		return util.Errorf(inst.Pos(), "codegen: unhandled instruction %T", inst)
	}
	return nil
}

// bootstrap initialises SP, calls the entry function and parks in a loop in
// case it ever returns.
func bootstrap(conv convention, ctx *Context) []asm.Instruction {
	b := &builder{}
	ctx.EnterFunction("Bootstrap")
	b.atInt(ctx.cfg.StackBase)
	b.set(rD, "A")
	b.at("SP")
	b.set(rM, "D")
	conv.call(b, ctx, ctx.cfg.EntryFunction, 0)
	halt := ctx.QualifyLabel("halt")
	b.label(halt)
	b.jump(halt)
	ctx.function = ""
	return b.out
}
