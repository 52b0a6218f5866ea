package codegen

import (
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/ir"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

// DirectBackend inlines every comparison, call and return.
type DirectBackend struct{}

func NewDirectBackend() *DirectBackend { return &DirectBackend{} }

func (*DirectBackend) Name() string { return config.BackendDirect }

func (d *DirectBackend) Generate(ctx *Context, e ir.Extended) ([]asm.Instruction, error) {
	return generate(d, ctx, e)
}

func (d *DirectBackend) Bootstrap(ctx *Context) []asm.Instruction { return bootstrap(d, ctx) }

func (*DirectBackend) Library(*Context) []asm.Instruction { return nil }

// compareTail turns D (x - y) into -1 or 0 at the top of stack, using labels
// numbered per operator.
func (*DirectBackend) compareTail(b *builder, ctx *Context, op vm.Op) {
	stem := map[vm.Op]string{vm.OpEq: "EQ", vm.OpGt: "GT", vm.OpLt: "LT"}[op]
	n := ctx.nextSite(stem)
	isTrue := fmt.Sprintf("%s_TRUE.%d", stem, n)
	end := fmt.Sprintf("%s_END.%d", stem, n)

	b.branch(isTrue, "D", compareJump[op])
	b.topOfStack()
	b.set(rM, "0")
	b.jump(end)
	b.label(isTrue)
	b.topOfStack()
	b.set(rM, "-1")
	b.label(end)
}

func (d *DirectBackend) compare(b *builder, ctx *Context, op vm.Op) {
	b.popD()
	b.set(rA, "A-1")
	b.set(rD, "M-D")
	d.compareTail(b, ctx, op)
}

func (d *DirectBackend) compareAfterPush(b *builder, ctx *Context, st *vm.StackTransfer, op vm.Op) {
	loadOperand(b, ctx, st)
	b.topOfStack()
	b.set(rD, "M-D")
	d.compareTail(b, ctx, op)
}

func (*DirectBackend) function(b *builder, ctx *Context, fn *vm.FunctionDecl) {
	b.label(fn.Name)
	switch k := fn.NLocals; {
	case k == 0:
	case k == 1:
		b.set(rD, "0")
		b.pushD()
	default:
		b.at("SP")
		b.set(rA, "M")
		b.set(rM, "0")
		for i := 1; i < k; i++ {
			b.set(rA, "A+1")
			b.set(rM, "0")
		}
		b.atInt(k)
		b.set(rD, "A")
		b.at("SP")
		b.set(rM, "D+M")
	}
}

// call pushes the return address and the four segment bases, then sets
// ARG = SP - (nArgs + 5) and LCL = SP.
func (*DirectBackend) call(b *builder, ctx *Context, name string, nArgs int) {
	ret := ctx.ReturnLabel()
	pushWord := func() {
		b.at("SP")
		b.set(rAM, "M+1")
		b.set(rA, "A-1")
		b.set(rM, "D")
	}
	b.at(ret)
	b.set(rD, "A")
	pushWord()
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		b.at(reg)
		b.set(rD, "M")
		pushWord()
	}
	b.at("SP")
	b.set(rD, "M")
	b.atInt(nArgs + 5)
	b.set(rD, "D-A")
	b.at("ARG")
	b.set(rM, "D")
	b.at("SP")
	b.set(rD, "M")
	b.at("LCL")
	b.set(rM, "D")
	b.jump(name)
	b.label(ret)
}

func (*DirectBackend) ret(b *builder, ctx *Context) {
	emitReturn(b)
}

// emitReturn tears down the current frame: R13 holds the frame pointer and
// R14 the return address.
func emitReturn(b *builder) {
	b.at("LCL")
	b.set(rD, "M")
	b.at("R13")
	b.set(rM, "D")
	b.atInt(5)
	b.set(rA, "D-A")
	b.set(rD, "M")
	b.at("R14")
	b.set(rM, "D")

	b.popD()
	b.at("ARG")
	b.set(rA, "M")
	b.set(rM, "D")
	b.set(rD, "A+1")
	b.at("SP")
	b.set(rM, "D")

	for _, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		b.at("R13")
		b.set(rAM, "M-1")
		b.set(rD, "M")
		b.at(reg)
		b.set(rM, "D")
	}
	b.jumpIndirect("R14")
}
