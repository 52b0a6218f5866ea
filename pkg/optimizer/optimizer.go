// Package optimizer prunes unreachable basic blocks from generated assembly
// and removes redundant A-register loads inside each block.
package optimizer

import (
	"errors"
	"fmt"

	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/codegen"
	"github.com/xplshn/vmtranslator/pkg/config"
)

var (
	ErrUnresolvedLabel = errors.New("unresolved label")
	ErrDuplicateLabel  = errors.New("label declared twice")
)

// EntryLabel names block 0 when the program does not start with a label.
const EntryLabel = "Start"

// Block is a maximal straight-line run: it starts at a label or at program
// start and ends after an unconditional jump or at end of program.
type Block struct {
	Index int
	Label string
	Insts []asm.Instruction
}

// Last returns the final instruction of the block.
func (b *Block) Last() asm.Instruction { return b.Insts[len(b.Insts)-1] }

type Options struct {
	DeadCode    bool
	AddrCleanup bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeadCode:    cfg.IsFeatureEnabled(config.FeatDeadCode),
		AddrCleanup: cfg.IsFeatureEnabled(config.FeatAddrCleanup),
	}
}

type Stats struct {
	Before        int
	After         int
	Blocks        int
	BlocksDropped int
	LoadsRemoved  int
}

type Result struct {
	Program []asm.Instruction
	Dropped []*Block
	Stats   Stats
}

// Partition splits prog into basic blocks.
func Partition(prog []asm.Instruction) []*Block {
	var blocks []*Block
	var cur *Block
	closeBlock := func() {
		if cur != nil && len(cur.Insts) > 0 {
			cur.Index = len(blocks)
			blocks = append(blocks, cur)
		}
		cur = nil
	}
	for _, inst := range prog {
		if l, ok := inst.(*asm.LabelDecl); ok {
			closeBlock()
			cur = &Block{Label: l.Name}
		}
		if cur == nil {
			cur = &Block{}
		}
		cur.Insts = append(cur.Insts, inst)
		if asm.IsUnconditionalJump(inst) {
			closeBlock()
		}
	}
	closeBlock()
	return blocks
}

// labelTable maps every label to its block. Block 0 is also reachable as
// EntryLabel when it has no label of its own.
func labelTable(blocks []*Block) (map[string]int, error) {
	table := make(map[string]int, len(blocks)+1)
	if len(blocks) > 0 && blocks[0].Label == "" {
		table[EntryLabel] = 0
	}
	for _, b := range blocks {
		if b.Label == "" {
			continue
		}
		if _, dup := table[b.Label]; dup {
			return nil, fmt.Errorf("%w: (%s)", ErrDuplicateLabel, b.Label)
		}
		table[b.Label] = b.Index
	}
	return table, nil
}

// staticTargets lists the symbols loaded immediately before a jump.
func staticTargets(b *Block) []string {
	var targets []string
	for i := 1; i < len(b.Insts); i++ {
		if !asm.IsJump(b.Insts[i]) {
			continue
		}
		if load, ok := b.Insts[i-1].(*asm.AddressLoad); ok && !load.Numeric() {
			if _, predefined := asm.Predefined[load.Symbol]; !predefined {
				targets = append(targets, load.Symbol)
			}
		}
	}
	return targets
}

// Reachable walks the control-flow graph from block 0. Besides fallthrough
// and static jumps it follows the continuation of shared-routine calls,
// call trampolines and return sites recorded in link.
func Reachable(blocks []*Block, link *codegen.Linkage) ([]bool, error) {
	table, err := labelTable(blocks)
	if err != nil {
		return nil, err
	}
	if link == nil {
		link = codegen.NewLinkage()
	}

	edges := make([][]int, len(blocks))
	for _, b := range blocks {
		next := b.Index + 1
		hasNext := next < len(blocks)
		for _, target := range staticTargets(b) {
			idx, ok := table[target]
			if !ok {
				return nil, fmt.Errorf("%w '%s'", ErrUnresolvedLabel, target)
			}
			edges[b.Index] = append(edges[b.Index], idx)
			if link.Entries[target] && hasNext {
				edges[b.Index] = append(edges[b.Index], next)
			}
		}
		if !hasNext {
			continue
		}
		switch {
		case !asm.IsUnconditionalJump(b.Last()):
			edges[b.Index] = append(edges[b.Index], next)
		case link.Trampolines[b.Label], link.ReturnSites[blocks[next].Label]:
			edges[b.Index] = append(edges[b.Index], next)
		}
	}

	visited := make([]bool, len(blocks))
	if len(blocks) == 0 {
		return visited, nil
	}
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[idx] {
			continue
		}
		visited[idx] = true
		stack = append(stack, edges[idx]...)
	}
	return visited, nil
}

// Cleanup drops an address load of the symbol A already holds. Any
// computation storing into A forgets the tracked symbol. It returns the new
// block and the number of loads removed.
func Cleanup(insts []asm.Instruction) ([]asm.Instruction, int) {
	out := make([]asm.Instruction, 0, len(insts))
	held, valid := "", false
	for _, inst := range insts {
		switch i := inst.(type) {
		case *asm.AddressLoad:
			if valid && i.Symbol == held {
				continue
			}
			held, valid = i.Symbol, true
		case *asm.Compute:
			if i.Dest.Has(asm.DestA) {
				valid = false
			}
		case *asm.LabelDecl:
			valid = false
		}
		out = append(out, inst)
	}
	return out, len(insts) - len(out)
}

// Optimize runs partition, reachability and cleanup. Reachability is always
// computed so unresolved jump targets are reported even when dead code is
// kept.
func Optimize(prog []asm.Instruction, link *codegen.Linkage, opts Options) (*Result, error) {
	blocks := Partition(prog)
	live, err := Reachable(blocks, link)
	if err != nil {
		return nil, err
	}

	res := &Result{Stats: Stats{Before: len(prog), Blocks: len(blocks)}}
	out := make([]asm.Instruction, 0, len(prog))
	for _, b := range blocks {
		if !live[b.Index] {
			res.Dropped = append(res.Dropped, b)
			if opts.DeadCode {
				continue
			}
		}
		insts := b.Insts
		if opts.AddrCleanup {
			var removed int
			insts, removed = Cleanup(insts)
			res.Stats.LoadsRemoved += removed
		}
		out = append(out, insts...)
	}
	if opts.DeadCode {
		res.Stats.BlocksDropped = len(res.Dropped)
	}
	res.Program = out
	res.Stats.After = len(out)
	return res, nil
}
