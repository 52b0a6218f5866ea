package codegen

import (
	"strconv"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

const (
	rA   = asm.DestA
	rM   = asm.DestM
	rD   = asm.DestD
	rAM  = asm.DestAM
	rMD  = asm.DestMD
	rAMD = asm.DestAMD
)

// builder accumulates the output of one lowering.
type builder struct{ out []asm.Instruction }

func (b *builder) at(sym string)               { b.out = append(b.out, asm.At(sym)) }
func (b *builder) atInt(n int)                 { b.out = append(b.out, asm.AtInt(n)) }
func (b *builder) set(d asm.Dest, comp string) { b.out = append(b.out, asm.Set(d, comp)) }
func (b *builder) label(name string)           { b.out = append(b.out, asm.Label(name)) }
func (b *builder) branch(target, comp string, j asm.Jump) {
	b.at(target)
	b.out = append(b.out, asm.Branch(comp, j))
}
func (b *builder) jump(target string) { b.branch(target, "0", asm.JMP) }

// setBranch assigns comp to d and jumps on the same result.
func (b *builder) setBranch(d asm.Dest, comp string, j asm.Jump) {
	b.out = append(b.out, &asm.Compute{Dest: d, Comp: comp, Jump: j})
}

// jumpIndirect jumps to the address stored in register reg.
func (b *builder) jumpIndirect(reg string) {
	b.at(reg)
	b.set(rA, "M")
	b.out = append(b.out, asm.Goto())
}

// saveReturn stores the address of label in reg.
func (b *builder) saveReturn(label, reg string) {
	b.at(label)
	b.set(rD, "A")
	b.at(reg)
	b.set(rM, "D")
}

// pushD pushes D.
func (b *builder) pushD() {
	b.at("SP")
	b.set(rM, "M+1")
	b.set(rA, "M-1")
	b.set(rM, "D")
}

// popD pops the top of stack into D, leaving A at the popped slot.
func (b *builder) popD() {
	b.at("SP")
	b.set(rAM, "M-1")
	b.set(rD, "M")
}

// topOfStack points A at the current top element.
func (b *builder) topOfStack() {
	b.at("SP")
	b.set(rA, "M-1")
}

func zeroIndex(ctx *Context, st *vm.StackTransfer) bool {
	return st.Index == 0 && ctx.cfg.IsFeatureEnabled(config.FeatZeroIndex)
}

// fixedAddress names the cell of a static, temp or pointer operand.
func fixedAddress(ctx *Context, st *vm.StackTransfer) string {
	switch st.Segment {
	case vm.SegStatic:
		return ctx.StaticSymbol(st.Index)
	case vm.SegTemp:
		return strconv.Itoa(vm.TempBase + st.Index)
	case vm.SegPointer:
		return strconv.Itoa(vm.PointerBase + st.Index)
	}
	panic("fixedAddress: segment " + st.Segment.String() + " has no fixed address")
}

// loadOperand puts the value a push would push into D. Only A and D change.
func loadOperand(b *builder, ctx *Context, st *vm.StackTransfer) {
	switch {
	case st.Segment == vm.SegConstant:
		switch st.Index {
		case 0, 1:
			b.set(rD, strconv.Itoa(st.Index))
		default:
			b.atInt(st.Index)
			b.set(rD, "A")
		}
	case st.Segment.IsPointerBased():
		b.at(st.Segment.Base())
		if zeroIndex(ctx, st) {
			b.set(rA, "M")
		} else {
			b.set(rD, "M")
			b.atInt(st.Index)
			b.set(rA, "D+A")
		}
		b.set(rD, "M")
	default:
		b.at(fixedAddress(ctx, st))
		b.set(rD, "M")
	}
}

// stageTarget prepares a store into a pointer-based pop target by saving the
// address in R13. It reports whether R13 was used.
func stageTarget(b *builder, ctx *Context, st *vm.StackTransfer) bool {
	if !st.Segment.IsPointerBased() || zeroIndex(ctx, st) {
		return false
	}
	b.at(st.Segment.Base())
	b.set(rD, "M")
	b.atInt(st.Index)
	b.set(rD, "D+A")
	b.at("R13")
	b.set(rM, "D")
	return true
}

// storeD writes D into a pop target, after stageTarget.
func storeD(b *builder, ctx *Context, st *vm.StackTransfer, staged bool) {
	switch {
	case staged:
		b.at("R13")
		b.set(rA, "M")
	case st.Segment.IsPointerBased():
		b.at(st.Segment.Base())
		b.set(rA, "M")
	default:
		b.at(fixedAddress(ctx, st))
	}
	b.set(rM, "D")
}

func push(b *builder, ctx *Context, st *vm.StackTransfer) {
	loadOperand(b, ctx, st)
	b.pushD()
}

func pop(b *builder, ctx *Context, st *vm.StackTransfer) {
	staged := stageTarget(b, ctx, st)
	b.popD()
	storeD(b, ctx, st, staged)
}

// move copies a push operand straight into a pop target.
func move(b *builder, ctx *Context, src, dst *vm.StackTransfer) {
	staged := stageTarget(b, ctx, dst)
	loadOperand(b, ctx, src)
	storeD(b, ctx, dst, staged)
}

// binaryComp is the computation combining D (second operand) with M (first).
var binaryComp = map[vm.Op]string{
	vm.OpAdd: "D+M",
	vm.OpSub: "M-D",
	vm.OpAnd: "D&M",
	vm.OpOr:  "D|M",
}

var unaryComp = map[vm.Op]string{
	vm.OpNeg: "-M",
	vm.OpNot: "!M",
}

var compareJump = map[vm.Op]asm.Jump{
	vm.OpEq: asm.JEQ,
	vm.OpGt: asm.JGT,
	vm.OpLt: asm.JLT,
}

// compareName is the routine stem of a comparison: Eq, Gt or Lt.
var compareName = map[vm.Op]string{
	vm.OpEq: "Eq",
	vm.OpGt: "Gt",
	vm.OpLt: "Lt",
}

func binary(b *builder, op vm.Op) {
	b.popD()
	b.set(rA, "A-1")
	b.set(rM, binaryComp[op])
}

func unary(b *builder, op vm.Op) {
	b.topOfStack()
	b.set(rM, unaryComp[op])
}

func binaryAfterPush(b *builder, ctx *Context, st *vm.StackTransfer, op vm.Op) {
	loadOperand(b, ctx, st)
	b.topOfStack()
	b.set(rM, binaryComp[op])
}

// compareBranch pops the first operand and branches on (x - X) without
// materialising a boolean.
func compareBranch(b *builder, ctx *Context, st *vm.StackTransfer, op vm.Op, label string) {
	if st.Segment == vm.SegConstant && st.Index == 0 {
		b.popD()
	} else {
		loadOperand(b, ctx, st)
		b.at("SP")
		b.set(rAM, "M-1")
		b.set(rD, "M-D")
	}
	b.branch(ctx.QualifyLabel(label), "D", compareJump[op])
}

// branchAfterPush is if-goto on a pushed value. Constants decide statically.
func branchAfterPush(b *builder, ctx *Context, st *vm.StackTransfer, label string) {
	target := ctx.QualifyLabel(label)
	if st.Segment == vm.SegConstant {
		if st.Index != 0 {
			b.jump(target)
		}
		return
	}
	loadOperand(b, ctx, st)
	b.branch(target, "D", asm.JNE)
}

func branch(b *builder, ctx *Context, br *vm.Branch) {
	target := ctx.QualifyLabel(br.Label)
	switch br.Command {
	case vm.CmdLabel:
		b.label(target)
	case vm.CmdGoto:
		b.jump(target)
	case vm.CmdIfGoto:
		b.popD()
		b.branch(target, "D", asm.JNE)
	}
}
