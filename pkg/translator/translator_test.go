package translator_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/checker"
	"github.com/xplshn/vmtranslator/pkg/codegen"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/ir"
	"github.com/xplshn/vmtranslator/pkg/parser"
	"github.com/xplshn/vmtranslator/pkg/translator"
	"github.com/xplshn/vmtranslator/pkg/util"
)

func configAt(level int) *config.Config {
	cfg := config.NewConfig()
	Expect(cfg.ApplyLevel(level)).To(Succeed())
	return cfg
}

func messages(diags []checker.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Msg
	}
	return out
}

const loopingSys = "function Sys.init 0\nlabel END\ngoto END\n"

var _ = Describe("Translator with a mock backend", func() {
	var (
		mockCtrl    *gomock.Controller
		mockBackend *MockBackend
		t           *translator.Translator
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockBackend = NewMockBackend(mockCtrl)
		t = translator.NewWithBackend(configAt(0), mockBackend)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should bootstrap, lower every instruction, then emit the library", func() {
		var files []string
		gomock.InOrder(
			mockBackend.EXPECT().
				Bootstrap(gomock.Any()).
				Return(asm.MustParse("@256\nD=A\n@SP\nM=D\n(Halt)\n@Halt\n0;JMP\n")),
			mockBackend.EXPECT().
				Generate(gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx *codegen.Context, e ir.Extended) ([]asm.Instruction, error) {
					files = append(files, ctx.File())
					return nil, nil
				}).
				Times(4),
			mockBackend.EXPECT().
				Library(gomock.Any()).
				Return(nil),
		)

		res, err := t.TranslateProgram([]translator.Source{
			{Name: "dir/Sys.vm", Content: loopingSys},
			{Name: "dir/Main.vm", Content: "function Main.main 0\n"},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(Equal([]string{"Main", "Sys", "Sys", "Sys"}))
		Expect(asm.Lines(res.Program)).To(Equal([]string{"@256", "D=A", "@SP", "M=D", "(Halt)", "@Halt", "0;JMP"}))
	})

	It("should jump over the library in single-file mode", func() {
		mockBackend.EXPECT().
			Generate(gomock.Any(), gomock.Any()).
			Return(asm.MustParse("D=0\n"), nil).
			Times(2)
		mockBackend.EXPECT().
			Library(gomock.Any()).
			Return(asm.MustParse("(Lib)\n@R15\nA=M\n0;JMP\n"))

		res, err := t.TranslateFile(translator.Source{Name: "Two.vm", Content: "push constant 0\npop temp 0\n"})

		Expect(err).NotTo(HaveOccurred())
		Expect(asm.Lines(res.Program)).To(Equal([]string{
			"@StartUp", "0;JMP", "(Lib)", "@R15", "A=M", "0;JMP", "(StartUp)", "D=0", "D=0",
		}))
	})

	It("should stop at the first backend error", func() {
		boom := errors.New("boom")
		mockBackend.EXPECT().
			Generate(gomock.Any(), gomock.Any()).
			Return(nil, boom)

		_, err := t.TranslateFile(translator.Source{Name: "E.vm", Content: "push constant 1\npush constant 2\n"})

		Expect(err).To(MatchError(boom))
	})

	It("should not call the backend when checking fails", func() {
		_, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: "function Sys.init 0\ncall Nope.nope 0\n"}})

		Expect(err).To(MatchError(translator.ErrUndeclaredFunction))
	})
})

var _ = Describe("Translator", func() {
	It("should reject an unknown backend", func() {
		cfg := config.NewConfig()
		cfg.BackendName = "qbe"
		_, err := translator.New(cfg)
		Expect(err).To(HaveOccurred())
	})

	It("should pick the backend of the level", func() {
		for level, name := range map[int]string{0: "direct", 1: "direct", 2: "shared"} {
			t, err := translator.New(configAt(level))
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Backend().Name()).To(Equal(name))
		}
	})

	Describe("diagnostics", func() {
		const src = `function Sys.init 0
goto END
label SKIP
push constant 1
pop temp 0
label END
goto END
function Sys.unused 0
push constant 1
return
`

		It("should report unused functions and removed code", func() {
			t, _ := translator.New(configAt(2))
			res, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: src}})

			Expect(err).NotTo(HaveOccurred())
			Expect(messages(res.Diagnostics)).To(ConsistOf(
				"function 'Sys.unused' is never called",
				"label 'SKIP' is unreachable and was removed",
				"function 'Sys.unused' is unreachable and was removed",
			))
			for _, d := range res.Diagnostics {
				Expect(d.Tok.File).To(Equal("Sys.vm"))
				if d.Warning == config.WarnUnreachableCode {
					Expect(d.Tok.Line).To(BeElementOf(3, 8))
				}
			}
			Expect(asm.Lines(res.Program)).NotTo(ContainElement("(Sys.unused)"))
		})

		It("should keep the code and stay quiet about it without dead code removal", func() {
			t, _ := translator.New(configAt(0))
			res, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: src}})

			Expect(err).NotTo(HaveOccurred())
			Expect(messages(res.Diagnostics)).To(Equal([]string{"function 'Sys.unused' is never called"}))
			Expect(asm.Lines(res.Program)).To(ContainElement("(Sys.unused)"))
			Expect(res.Stats.BlocksDropped).To(BeZero())
		})

		It("should report missing returns under -Wextra", func() {
			cfg := configAt(2)
			cfg.ProcessFlags("-Wextra")
			t, _ := translator.New(cfg)
			res, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: src}})

			Expect(err).NotTo(HaveOccurred())
			Expect(messages(res.Diagnostics)).To(ContainElement("function 'Sys.init' has no return"))
			Expect(messages(res.Diagnostics)).NotTo(ContainElement("function 'Sys.unused' has no return"))
			Expect(res.Functions).To(Equal([]string{"Sys.init", "Sys.unused"}))
		})

		It("should warn about code outside functions in a program only", func() {
			t, _ := translator.New(configAt(2))
			srcs := []translator.Source{
				{Name: "Main.vm", Content: "push constant 1\npop temp 0\nfunction Main.main 0\nreturn\n"},
				{Name: "Sys.vm", Content: "function Sys.init 0\ncall Main.main 0\nlabel END\ngoto END\n"},
			}
			res, err := t.TranslateProgram(srcs)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Diagnostics).To(HaveLen(1))
			Expect(res.Diagnostics[0].Warning).To(Equal(config.WarnOutsideFunction))

			res, err = t.TranslateFile(srcs[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Diagnostics).To(BeEmpty())
		})
	})

	Describe("errors", func() {
		var t *translator.Translator

		BeforeEach(func() {
			t, _ = translator.New(configAt(2))
		})

		It("should reject an empty program", func() {
			_, err := t.TranslateProgram(nil)
			Expect(err).To(MatchError(translator.ErrNoSources))
		})

		It("should reject duplicate functions", func() {
			_, err := t.TranslateProgram([]translator.Source{
				{Name: "A.vm", Content: loopingSys},
				{Name: "B.vm", Content: "function Sys.init 0\nreturn\n"},
			})
			Expect(err).To(MatchError(translator.ErrDuplicateFunction))
		})

		It("should reject calls to undeclared functions in a single file", func() {
			_, err := t.TranslateFile(translator.Source{Name: "F.vm", Content: "call Math.multiply 2\n"})
			Expect(err).To(MatchError(translator.ErrUndeclaredFunction))
		})

		It("should require the entry function behind a bootstrap", func() {
			_, err := t.TranslateProgram([]translator.Source{{Name: "Main.vm", Content: "function Main.main 0\nreturn\n"}})
			Expect(err).To(MatchError(ContainSubstring("Sys.init")))
		})

		It("should reject user labels that look like return sites", func() {
			src := "function Main.main 0\ncall Main.f 0\nlabel ret.0\ngoto ret.0\nfunction Main.f 0\npush constant 1\nreturn\n"
			_, err := t.TranslateFile(translator.Source{Name: "Main.vm", Content: src})
			Expect(err).To(MatchError(parser.ErrReservedLabel))

			var ce *util.CompileError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Tok.File).To(Equal("Main.vm"))
			Expect(ce.Tok.Line).To(Equal(3))
		})

		It("should reject files whose name is not a symbol", func() {
			for _, name := range []string{"my-prog.vm", "dir/2fast.vm", "a b.vm"} {
				_, err := t.TranslateFile(translator.Source{Name: name, Content: "push constant 1\npop static 0\n"})
				Expect(err).To(MatchError(translator.ErrBadFileName), name)
				Expect(err).To(MatchError(ContainSubstring(name)))
			}
			_, err := t.TranslateFile(translator.Source{Name: "dir/my_prog.v2.vm", Content: "push constant 1\npop static 0\n"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should position parse errors", func() {
			_, err := t.TranslateFile(translator.Source{Name: "Bad.vm", Content: "push constant 1\npush nowhere 3\n"})

			var ce *util.CompileError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Tok.File).To(Equal("Bad.vm"))
			Expect(ce.Tok.Line).To(Equal(2))
		})
	})

	Describe("layout", func() {
		It("should start a program with the bootstrap", func() {
			t, _ := translator.New(configAt(2))
			res, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: loopingSys}})

			Expect(err).NotTo(HaveOccurred())
			Expect(asm.Lines(res.Program)[:4]).To(Equal([]string{"@256", "D=A", "@SP", "M=D"}))
			Expect(asm.Lines(res.Program)).To(ContainElement("(Bootstrap$halt)"))
		})

		It("should jump to StartUp without a bootstrap", func() {
			cfg := configAt(2)
			cfg.SetFeature(config.FeatBootstrap, false)
			t, _ := translator.New(cfg)
			res, err := t.TranslateProgram([]translator.Source{{Name: "Sys.vm", Content: loopingSys}})

			Expect(err).NotTo(HaveOccurred())
			Expect(asm.Lines(res.Program)[:2]).To(Equal([]string{"@" + translator.StartLabel, "0;JMP"}))
			Expect(asm.Lines(res.Program)).To(ContainElement("(StartUp)"))
		})

		It("should use the configured stack base and entry", func() {
			cfg := configAt(0)
			cfg.StackBase, cfg.EntryFunction = 300, "Main.main"
			t, _ := translator.New(cfg)
			res, err := t.TranslateProgram([]translator.Source{{Name: "Main.vm", Content: "function Main.main 0\nlabel L\ngoto L\n"}})

			Expect(err).NotTo(HaveOccurred())
			Expect(asm.Lines(res.Program)[0]).To(Equal("@300"))
			Expect(asm.Lines(res.Program)).To(ContainElement("@Main.main"))
		})
	})

	Describe("Fingerprint", func() {
		srcs := []translator.Source{
			{Name: "p/Main.vm", Content: "function Main.main 0\npush constant 0\nreturn\n"},
			{Name: "p/Sys.vm", Content: "function Sys.init 0\ncall Main.main 0\nlabel END\ngoto END\n"},
		}

		It("should not depend on source order", func() {
			t, _ := translator.New(configAt(2))
			a, err := t.TranslateProgram(srcs)
			Expect(err).NotTo(HaveOccurred())
			b, err := t.TranslateProgram([]translator.Source{srcs[1], srcs[0]})
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Fingerprint).To(Equal(b.Fingerprint))
			Expect(a.Fingerprint).To(Equal(translator.Fingerprint(a.Program)))
		})

		It("should differ between backends", func() {
			direct, _ := translator.New(configAt(1))
			shared, _ := translator.New(configAt(2))
			a, _ := direct.TranslateProgram(srcs)
			b, _ := shared.TranslateProgram(srcs)

			Expect(a.Fingerprint).NotTo(Equal(b.Fingerprint))
		})
	})

	Describe("DumpIR", func() {
		It("should list fused instructions per file", func() {
			t, _ := translator.New(configAt(2))
			var buf bytes.Buffer
			Expect(t.DumpIR(&buf, []translator.Source{{Name: "F.vm", Content: "push constant 1\npop temp 0\n"}})).To(Succeed())

			Expect(buf.String()).To(HavePrefix("; F.vm\n"))
			Expect(buf.String()).To(ContainSubstring("move constant 1 to temp 0"))
		})

		It("should list plain instructions without fusion", func() {
			t, _ := translator.New(configAt(0))
			var buf bytes.Buffer
			Expect(t.DumpIR(&buf, []translator.Source{{Name: "F.vm", Content: "push constant 1\npop temp 0\n"}})).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("push constant 1"))
			Expect(buf.String()).NotTo(ContainSubstring("move"))
		})

		It("should fail on bad input", func() {
			t, _ := translator.New(configAt(2))
			Expect(t.DumpIR(&bytes.Buffer{}, []translator.Source{{Name: "F.vm", Content: "jump\n"}})).NotTo(Succeed())
		})
	})
})

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	It("should read every .vm file of a directory in name order", func() {
		write("Sys.vm", loopingSys)
		write("Main.vm", "function Main.main 0\n")
		write("notes.txt", "ignored")
		write("sub/Other.vm", "ignored")

		srcs, isDir, err := translator.Load(dir)

		Expect(err).NotTo(HaveOccurred())
		Expect(isDir).To(BeTrue())
		Expect(srcs).To(HaveLen(2))
		Expect(srcs[0].Name).To(Equal(filepath.Join(dir, "Main.vm")))
		Expect(srcs[1].Content).To(Equal(loopingSys))
	})

	It("should read a single file", func() {
		path := write("One.vm", "push constant 1\n")

		srcs, isDir, err := translator.Load(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(isDir).To(BeFalse())
		Expect(srcs).To(Equal([]translator.Source{{Name: path, Content: "push constant 1\n"}}))
	})

	It("should fail on a directory without sources", func() {
		write("README", "nothing here")
		_, _, err := translator.Load(dir)
		Expect(err).To(MatchError(translator.ErrNoSources))
	})

	It("should fail on a missing path", func() {
		_, _, err := translator.Load(filepath.Join(dir, "missing.vm"))
		Expect(err).To(HaveOccurred())
	})

	It("should derive the output name", func() {
		Expect(translator.DefaultOutput("prog/Main.vm", false)).To(Equal("prog/Main.asm"))
		Expect(translator.DefaultOutput("prog/Fib/", true)).To(Equal("prog/Fib.asm"))
		Expect(translator.DefaultOutput("Fib", true)).To(Equal("Fib.asm"))
	})
})
