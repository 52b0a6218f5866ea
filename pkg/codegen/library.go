package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

// compareRoutine pops y, compares it with the new top x and leaves -1 or 0
// in place of x. The after-push variant takes y from R13 and pops nothing.
func compareRoutine(b *builder, op vm.Op, afterPush bool) string {
	name := compareName[op]
	if afterPush {
		name += "AfterPush"
	}
	entry := name + "_share"
	truth := strings.ToUpper(name) + "_TRUE"

	b.label(entry)
	if afterPush {
		b.at("R13")
		b.set(rD, "M")
		b.topOfStack()
	} else {
		b.popD()
		b.set(rA, "A-1")
	}
	b.set(rD, "M-D")
	b.set(rM, "-1")
	b.branch(truth, "D", compareJump[op])
	b.topOfStack()
	b.set(rM, "0")
	b.label(truth)
	b.jumpIndirect("R15")
	return entry
}

// callShare expects R13 = return address, R14 = nArgs+4, R15 = continuation.
func callShare(b *builder) string {
	b.label("Call_share")
	b.at("R13")
	b.set(rD, "M")
	b.at("SP")
	b.set(rA, "M")
	b.set(rM, "D")
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		b.at(reg)
		b.set(rD, "M")
		b.at("SP")
		b.set(rAM, "M+1")
		b.set(rM, "D")
	}
	b.at("R14")
	b.set(rD, "M")
	b.at("SP")
	b.set(rD, "M-D")
	b.at("ARG")
	b.set(rM, "D")
	b.at("SP")
	b.set(rMD, "M+1")
	b.at("LCL")
	b.set(rM, "D")
	b.jumpIndirect("R15")
	return "Call_share"
}

func returnShare(b *builder) {
	b.label("Return_share")
	emitReturn(b)
}

func localRoutine(m int) string { return fmt.Sprintf("Function%dLocal_share", m) }

// localsRoutine pushes m zeros. Two are unrolled, more use a counted loop.
func localsRoutine(b *builder, m int) string {
	name := localRoutine(m)
	b.label(name)
	if m == 2 {
		for range 2 {
			b.at("SP")
			b.set(rM, "M+1")
			b.set(rA, "M-1")
			b.set(rM, "0")
		}
		b.jumpIndirect("R15")
		return name
	}
	loop, end := name+"InitLoop", name+"InitLoopEnd"
	b.atInt(m)
	b.set(rD, "A")
	b.label(loop)
	b.at(end)
	b.setBranch(rD, "D-1", asm.JLT)
	b.at("SP")
	b.set(rAM, "M+1")
	b.set(rA, "A-1")
	b.set(rM, "0")
	b.jump(loop)
	b.label(end)
	b.jumpIndirect("R15")
	return name
}

// Library returns the shared routines and records their entry labels in the
// context's linkage. Comparison routines are always present and left for the
// optimizer to prune; local routines only exist for counts seen so far.
func Library(ctx *Context) []asm.Instruction {
	b := &builder{}
	var entries []string
	afterPush := ctx.cfg.IsFeatureEnabled(config.FeatAfterPushCompare)
	for _, op := range []vm.Op{vm.OpEq, vm.OpGt, vm.OpLt} {
		entries = append(entries, compareRoutine(b, op, false))
		if afterPush {
			entries = append(entries, compareRoutine(b, op, true))
		}
	}
	entries = append(entries, callShare(b))
	returnShare(b)
	for _, m := range ctx.LocalCounts() {
		entries = append(entries, localsRoutine(b, m))
	}

	for _, e := range entries {
		ctx.Linkage.Entries[e] = true
	}
	return b.out
}
