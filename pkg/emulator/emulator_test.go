package emulator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/emulator"
)

func load(src string) *emulator.CPU {
	cpu, err := emulator.New(asm.MustParse(src))
	Expect(err).NotTo(HaveOccurred())
	return cpu
}

var _ = Describe("CPU", func() {
	It("should add two numbers and halt", func() {
		cpu := load(`@2
D=A
@3
D=D+A
@0
M=D
(END)
@END
0;JMP
`)
		Expect(cpu.Run(100)).To(Succeed())
		Expect(cpu.Halted).To(BeTrue())
		Expect(cpu.Peek(0)).To(Equal(int16(5)))
		Expect(cpu.PC).To(Equal(uint16(6)))
	})

	DescribeTable("ALU computations",
		func(comp string, d, a, want int16) {
			cpu := load("D=" + comp + "\n")
			cpu.D, cpu.A = uint16(d), uint16(a)
			Expect(cpu.Step()).To(Succeed())
			Expect(int16(cpu.D)).To(Equal(want))
		},
		Entry("0", "0", int16(9), int16(9), int16(0)),
		Entry("1", "1", int16(9), int16(9), int16(1)),
		Entry("-1", "-1", int16(9), int16(9), int16(-1)),
		Entry("!D", "!D", int16(0), int16(0), int16(-1)),
		Entry("-A", "-A", int16(0), int16(12), int16(-12)),
		Entry("D+1", "D+1", int16(41), int16(0), int16(42)),
		Entry("A-1", "A-1", int16(0), int16(0), int16(-1)),
		Entry("D-A", "D-A", int16(5), int16(3), int16(2)),
		Entry("A-D", "A-D", int16(5), int16(3), int16(-2)),
		Entry("D&A", "D&A", int16(12), int16(10), int16(8)),
		Entry("D|A", "D|A", int16(12), int16(10), int16(14)),
		Entry("D+A wraps", "D+A", int16(32767), int16(1), int16(-32768)),
	)

	It("should read and write memory through M", func() {
		cpu := load("@100\nM=-1\nD=M+1\nMD=D+1\n")
		Expect(cpu.Run(10)).To(Succeed())
		Expect(cpu.Peek(100)).To(Equal(int16(1)))
		Expect(cpu.D).To(Equal(uint16(1)))
	})

	It("should branch on the sign of the result", func() {
		cpu := load(`@7
D=-A
@NEG
D;JLT
@1
M=1
(NEG)
@2
M=1
`)
		Expect(cpu.Run(100)).To(Succeed())
		Expect(cpu.Peek(1)).To(BeZero())
		Expect(cpu.Peek(2)).To(Equal(int16(1)))
		Expect(cpu.Halted).To(BeFalse())
	})

	It("should stop at the step limit", func() {
		cpu := load("(L)\nD=D+1\n@L\n0;JMP\n")
		Expect(cpu.Run(50)).To(MatchError(emulator.ErrStepLimit))
		Expect(cpu.Steps).To(Equal(50))
	})

	It("should reject memory access outside RAM", func() {
		cpu := load("A=-1\nD=M\n")
		Expect(cpu.Run(10)).To(MatchError(emulator.ErrBadAddress))

		cpu = load("A=-1\nM=0\n")
		Expect(cpu.Run(10)).To(MatchError(emulator.ErrBadAddress))
	})

	It("should reject jumps outside ROM", func() {
		cpu := load("@1000\n0;JMP\n")
		Expect(cpu.Run(10)).To(MatchError(emulator.ErrPCOutOfROM))
	})

	It("should run until a label is reached", func() {
		cpu := load("@1\nD=A\n(MID)\n@2\nD=D+A\n")
		Expect(cpu.RunUntil("MID", 10)).To(Succeed())
		Expect(cpu.PC).To(Equal(uint16(2)))
		Expect(cpu.D).To(Equal(uint16(1)))

		Expect(cpu.RunUntil("NOPE", 10)).NotTo(Succeed())
	})

	It("should expose variables and the stack", func() {
		cpu := load("@7\nD=A\n@counter\nM=D\n")
		Expect(cpu.Run(10)).To(Succeed())
		v, ok := cpu.PeekSymbol("counter")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(int16(7)))
		_, ok = cpu.PeekSymbol("missing")
		Expect(ok).To(BeFalse())

		cpu.Poke(0, 259)
		cpu.Poke(256, -4)
		cpu.Poke(257, 5)
		cpu.Poke(258, 6)
		Expect(cpu.Stack(256)).To(Equal([]int16{-4, 5, 6}))
		Expect(cpu.Stack(300)).To(BeNil())
	})
})
