package codegen

import (
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/ir"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

// SharedBackend factors comparisons, the call prologue, the return epilogue
// and local zeroing into routines emitted once per program. A call site puts
// its continuation address in R15 and jumps to the routine, which returns
// with "@R15 A=M 0;JMP".
type SharedBackend struct{}

func NewSharedBackend() *SharedBackend { return &SharedBackend{} }

func (*SharedBackend) Name() string { return config.BackendShared }

func (s *SharedBackend) Generate(ctx *Context, e ir.Extended) ([]asm.Instruction, error) {
	return generate(s, ctx, e)
}

func (s *SharedBackend) Bootstrap(ctx *Context) []asm.Instruction { return bootstrap(s, ctx) }

func (*SharedBackend) Library(ctx *Context) []asm.Instruction { return Library(ctx) }

// invoke dispatches to a shared routine through R15, continuing at a fresh
// site label named <stem>_<n>.
func invoke(b *builder, ctx *Context, stem, routine string) string {
	site := fmt.Sprintf("%s_%d", stem, ctx.nextSite(stem))
	b.saveReturn(site, "R15")
	b.jump(routine)
	b.label(site)
	return site
}

func (*SharedBackend) compare(b *builder, ctx *Context, op vm.Op) {
	stem := compareName[op]
	invoke(b, ctx, stem, stem+"_share")
}

func (s *SharedBackend) compareAfterPush(b *builder, ctx *Context, st *vm.StackTransfer, op vm.Op) {
	loadOperand(b, ctx, st)
	if !ctx.cfg.IsFeatureEnabled(config.FeatAfterPushCompare) {
		b.pushD()
		s.compare(b, ctx, op)
		return
	}
	b.at("R13")
	b.set(rM, "D")
	stem := compareName[op] + "AfterPush"
	invoke(b, ctx, stem, stem+"_share")
}

// function zeroes locals inline for one local and through a memoized
// routine for two or more.
func (*SharedBackend) function(b *builder, ctx *Context, fn *vm.FunctionDecl) {
	b.label(fn.Name)
	switch m := fn.NLocals; {
	case m == 0:
	case m == 1:
		b.at("SP")
		b.set(rM, "M+1")
		b.set(rA, "M-1")
		b.set(rM, "0")
	default:
		ctx.useLocals(m)
		invoke(b, ctx, "FunctionLocal_share", localRoutine(m))
	}
}

// call threads the return address through R13 and nArgs+4 through R14; the
// prologue stores the return address at *SP before pushing the four bases.
func (*SharedBackend) call(b *builder, ctx *Context, name string, nArgs int) {
	ret := ctx.ReturnLabel()
	b.saveReturn(ret, "R13")
	b.atInt(nArgs + 4)
	b.set(rD, "A")
	b.at("R14")
	b.set(rM, "D")
	trampoline := invoke(b, ctx, "Call", "Call_share")
	ctx.Linkage.Trampolines[trampoline] = true
	b.jump(name)
	b.label(ret)
}

func (*SharedBackend) ret(b *builder, ctx *Context) {
	b.jump("Return_share")
}
