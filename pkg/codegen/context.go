package codegen

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
)

// Linkage records control transfers that return through an indirect jump,
// so that reachability can follow them without a visible static edge.
type Linkage struct {
	// Entries are shared routines that jump back through R15 to the block
	// following their invocation.
	Entries map[string]bool
	// Trampolines are per-call-site blocks re-entered after Call_share;
	// the callee later returns to the block after them.
	Trampolines map[string]bool
	// ReturnSites are labels a callee's return jumps back to.
	ReturnSites map[string]bool
}

func NewLinkage() *Linkage {
	return &Linkage{
		Entries:     make(map[string]bool),
		Trampolines: make(map[string]bool),
		ReturnSites: make(map[string]bool),
	}
}

// Context is the state of one compilation run. A fresh Context must be used
// for every independent program.
type Context struct {
	cfg      *config.Config
	file     string
	function string

	sites      map[string]int
	retCount   int
	localSet   map[int]bool
	localOrder []int

	Linkage *Linkage
}

func NewContext(cfg *config.Config) *Context {
	return &Context{
		cfg:      cfg,
		sites:    make(map[string]int),
		localSet: make(map[int]bool),
		Linkage:  NewLinkage(),
	}
}

func (ctx *Context) Config() *config.Config { return ctx.cfg }

// SetFile switches to a new source file. Static variables are named after the
// file's base name without extension; the function scope is cleared.
func (ctx *Context) SetFile(path string) {
	ctx.file = FileStem(path)
	ctx.function = ""
	ctx.retCount = 0
}

// FileStem is the base name of path without its extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (ctx *Context) File() string     { return ctx.file }
func (ctx *Context) Function() string { return ctx.function }

// EnterFunction starts a new label scope and restarts its return counter.
func (ctx *Context) EnterFunction(name string) {
	ctx.function = name
	ctx.retCount = 0
}

func (ctx *Context) scope() string {
	if ctx.function != "" {
		return ctx.function
	}
	return ctx.file
}

// QualifyLabel returns the global name of a user label.
func (ctx *Context) QualifyLabel(label string) string { return ctx.scope() + "$" + label }

func (ctx *Context) StaticSymbol(index int) string { return fmt.Sprintf("%s.%d", ctx.file, index) }

// ReturnLabel allocates the next <function>$ret.<i> label and records it as
// a return site.
func (ctx *Context) ReturnLabel() string {
	l := fmt.Sprintf("%s$ret.%d", ctx.scope(), ctx.retCount)
	ctx.retCount++
	ctx.Linkage.ReturnSites[l] = true
	return l
}

// nextSite returns the next per-kind numeric suffix, starting at 0.
func (ctx *Context) nextSite(kind string) int {
	n := ctx.sites[kind]
	ctx.sites[kind] = n + 1
	return n
}

// useLocals memoizes a local-zeroing routine for m locals.
func (ctx *Context) useLocals(m int) {
	if !ctx.localSet[m] {
		ctx.localSet[m] = true
		ctx.localOrder = append(ctx.localOrder, m)
	}
}

// LocalCounts lists the memoized local counts in first-use order.
func (ctx *Context) LocalCounts() []int { return append([]int(nil), ctx.localOrder...) }

var reservedPattern = regexp.MustCompile(`^(` +
	`(Eq|Gt|Lt)(AfterPush)?_(share|\d+)` +
	`|(EQ|GT|LT)(AFTERPUSH)?_(TRUE|END)(\.\d+)?` +
	`|Call_(share|\d+)|Return_share` +
	`|Function\d+Local_share(InitLoop(End)?)?|FunctionLocal_share_\d+` +
	`|StartUp|Bootstrap(\$.*)?)$`)

// IsReserved reports whether name collides with a generated label or a
// predefined symbol.
func IsReserved(name string) bool {
	if _, ok := asm.Predefined[name]; ok {
		return true
	}
	return reservedPattern.MatchString(name)
}
