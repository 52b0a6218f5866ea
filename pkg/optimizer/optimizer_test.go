package optimizer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/codegen"
	"github.com/xplshn/vmtranslator/pkg/optimizer"
)

func blockLabels(blocks []*optimizer.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Label
	}
	return out
}

var _ = Describe("Partition", func() {
	It("should start blocks at labels and end them after unconditional jumps", func() {
		prog := asm.MustParse(`@1
D=A
@A
D;JGT
(A)
@A
0;JMP
@2
(B)
(C)
M=D
`)
		blocks := optimizer.Partition(prog)

		Expect(blockLabels(blocks)).To(Equal([]string{"", "A", "", "B", "C"}))
		Expect(asm.Lines(blocks[0].Insts)).To(Equal([]string{"@1", "D=A", "@A", "D;JGT"}))
		Expect(asm.Lines(blocks[1].Insts)).To(Equal([]string{"(A)", "@A", "0;JMP"}))
		Expect(asm.Lines(blocks[2].Insts)).To(Equal([]string{"@2"}))
		Expect(blocks[3].Insts).To(HaveLen(1))
		Expect(blocks[4].Last().String()).To(Equal("M=D"))
		for i, b := range blocks {
			Expect(b.Index).To(Equal(i))
		}
	})

	It("should return no blocks for an empty program", func() {
		Expect(optimizer.Partition(nil)).To(BeEmpty())
	})
})

var _ = Describe("Reachable", func() {
	var link *codegen.Linkage

	BeforeEach(func() {
		link = codegen.NewLinkage()
	})

	It("should follow fallthrough and static jumps", func() {
		blocks := optimizer.Partition(asm.MustParse(`@X
D;JEQ
(Y)
@Z
0;JMP
(X)
@X
0;JMP
(Z)
@Z
0;JMP
`))
		live, err := optimizer.Reachable(blocks, link)

		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal([]bool{true, true, true, true}))
	})

	It("should not fall through an unconditional jump", func() {
		blocks := optimizer.Partition(asm.MustParse(`@END
0;JMP
(DEAD)
D=0
(END)
@END
0;JMP
`))
		live, err := optimizer.Reachable(blocks, link)

		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal([]bool{true, false, true}))
	})

	It("should report jumps to undefined labels, even from dead blocks", func() {
		blocks := optimizer.Partition(asm.MustParse(`@END
0;JMP
(DEAD)
@NOWHERE
0;JMP
(END)
@END
0;JMP
`))
		_, err := optimizer.Reachable(blocks, link)

		Expect(err).To(MatchError(optimizer.ErrUnresolvedLabel))
		Expect(err.Error()).To(ContainSubstring("NOWHERE"))
	})

	It("should reject duplicate labels", func() {
		blocks := optimizer.Partition(asm.MustParse("(A)\n0;JMP\n(A)\n0;JMP\n"))
		_, err := optimizer.Reachable(blocks, link)

		Expect(err).To(MatchError(optimizer.ErrDuplicateLabel))
	})

	It("should treat the entry label as the name of an unlabelled first block", func() {
		blocks := optimizer.Partition(asm.MustParse("D=0\n@Start\n0;JMP\n"))
		live, err := optimizer.Reachable(blocks, link)

		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal([]bool{true}))
	})

	It("should ignore predefined and numeric jump targets", func() {
		blocks := optimizer.Partition(asm.MustParse("@R14\nA=M\n0;JMP\n@100\n0;JMP\n@SP\nD;JEQ\n"))
		_, err := optimizer.Reachable(blocks, link)

		Expect(err).NotTo(HaveOccurred())
	})

	Context("with shared routines", func() {
		prog := asm.MustParse(`@Eq_0
D=A
@R15
M=D
@Eq_share
0;JMP
(Eq_0)
@DONE
0;JMP
(Eq_share)
@R15
A=M
0;JMP
(DONE)
@DONE
0;JMP
`)

		It("should continue after a call to a recorded entry", func() {
			link.Entries["Eq_share"] = true
			live, err := optimizer.Reachable(optimizer.Partition(prog), link)

			Expect(err).NotTo(HaveOccurred())
			Expect(live).To(Equal([]bool{true, true, true, true}))
		})

		It("should not see the continuation without the entry", func() {
			live, err := optimizer.Reachable(optimizer.Partition(prog), link)

			Expect(err).NotTo(HaveOccurred())
			Expect(live).To(Equal([]bool{true, false, true, false}))
		})
	})

	It("should continue after trampolines and at return sites", func() {
		prog := asm.MustParse(`@Call_share
0;JMP
(Call_0)
@F
0;JMP
(M$ret.0)
@M$ret.1
0;JMP
(F)
@F
0;JMP
(M$ret.1)
@M$ret.1
0;JMP
(Call_share)
@R15
A=M
0;JMP
`)
		link.Entries["Call_share"] = true
		blocks := optimizer.Partition(prog)

		live, err := optimizer.Reachable(blocks, link)
		Expect(err).NotTo(HaveOccurred())
		Expect(live[2]).To(BeFalse(), "no linkage for the block after Call_0")

		link.Trampolines["Call_0"] = true
		live, err = optimizer.Reachable(blocks, link)
		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal([]bool{true, true, true, true, true, true}))

		delete(link.Trampolines, "Call_0")
		link.ReturnSites["M$ret.0"] = true
		live, err = optimizer.Reachable(blocks, link)
		Expect(err).NotTo(HaveOccurred())
		Expect(live[2]).To(BeTrue())
	})

	It("should accept a nil linkage", func() {
		blocks := optimizer.Partition(asm.MustParse("@L\n0;JMP\n(L)\n@L\n0;JMP\n"))
		live, err := optimizer.Reachable(blocks, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal([]bool{true, true}))
	})
})

var _ = Describe("Cleanup", func() {
	It("should drop loads of the symbol A already holds", func() {
		out, removed := optimizer.Cleanup(asm.MustParse(`@SP
M=M+1
@SP
A=M-1
M=D
@SP
D=M
`))
		Expect(asm.Lines(out)).To(Equal([]string{"@SP", "M=M+1", "A=M-1", "M=D", "@SP", "D=M"}))
		Expect(removed).To(Equal(1))
	})

	It("should forget the held symbol when A is written", func() {
		prog := asm.MustParse("@SP\nAM=M-1\n@SP\nAMD=M\n@SP\n")
		out, removed := optimizer.Cleanup(prog)

		Expect(removed).To(BeZero())
		Expect(out).To(HaveLen(len(prog)))
	})

	It("should forget the held symbol at a label", func() {
		_, removed := optimizer.Cleanup(asm.MustParse("@X\n(L)\n@X\nD=M\n"))
		Expect(removed).To(BeZero())
	})

	It("should keep a load after a not-taken conditional jump", func() {
		out, removed := optimizer.Cleanup(asm.MustParse("@T\nD;JEQ\n@T\nD;JLT\n"))

		Expect(removed).To(Equal(1))
		Expect(asm.Lines(out)).To(Equal([]string{"@T", "D;JEQ", "D;JLT"}))
	})
})

var _ = Describe("Optimize", func() {
	prog := asm.MustParse(`@MAIN
0;JMP
(UNUSED)
@R13
M=D
@R13
M=D
(MAIN)
@SP
M=M+1
@SP
A=M-1
(HALT)
@HALT
0;JMP
`)

	It("should prune unreachable blocks and count the work", func() {
		res, err := optimizer.Optimize(prog, nil, optimizer.Options{DeadCode: true, AddrCleanup: true})

		Expect(err).NotTo(HaveOccurred())
		Expect(asm.Lines(res.Program)).To(Equal([]string{
			"@MAIN", "0;JMP", "(MAIN)", "@SP", "M=M+1", "A=M-1", "(HALT)", "@HALT", "0;JMP",
		}))
		Expect(res.Stats.Before).To(Equal(len(prog)))
		Expect(res.Stats.After).To(Equal(len(res.Program)))
		Expect(res.Stats.Blocks).To(Equal(4))
		Expect(res.Stats.BlocksDropped).To(Equal(1))
		Expect(res.Stats.LoadsRemoved).To(Equal(1))
		Expect(res.Dropped).To(HaveLen(1))
		Expect(res.Dropped[0].Label).To(Equal("UNUSED"))
	})

	It("should keep dead blocks when dead code removal is off", func() {
		res, err := optimizer.Optimize(prog, nil, optimizer.Options{AddrCleanup: true})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Stats.BlocksDropped).To(BeZero())
		Expect(res.Dropped).To(HaveLen(1))
		Expect(asm.Lines(res.Program)).To(ContainElement("(UNUSED)"))
		Expect(res.Stats.LoadsRemoved).To(Equal(2))
	})

	It("should leave the program untouched with every pass off", func() {
		res, err := optimizer.Optimize(prog, nil, optimizer.Options{})

		Expect(err).NotTo(HaveOccurred())
		Expect(asm.Lines(res.Program)).To(Equal(asm.Lines(prog)))
	})

	It("should be idempotent", func() {
		opts := optimizer.Options{DeadCode: true, AddrCleanup: true}
		once, err := optimizer.Optimize(prog, nil, opts)
		Expect(err).NotTo(HaveOccurred())
		twice, err := optimizer.Optimize(once.Program, nil, opts)
		Expect(err).NotTo(HaveOccurred())

		Expect(asm.Lines(twice.Program)).To(Equal(asm.Lines(once.Program)))
		Expect(twice.Stats.LoadsRemoved).To(BeZero())
		Expect(twice.Dropped).To(BeEmpty())
	})

	It("should fail on unresolved targets", func() {
		_, err := optimizer.Optimize(asm.MustParse("@GONE\n0;JMP\n"), nil, optimizer.Options{})
		Expect(err).To(MatchError(optimizer.ErrUnresolvedLabel))
	})
})
