package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/xplshn/vmtranslator/pkg/lexer"
	"github.com/xplshn/vmtranslator/pkg/token"
	"github.com/xplshn/vmtranslator/pkg/util"
	"github.com/xplshn/vmtranslator/pkg/vm"
)

var (
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrOperands           = errors.New("wrong number of operands")
	ErrBadNumber          = errors.New("malformed integer")
	ErrUnknownSegment     = errors.New("unknown segment")
	ErrIndexRange         = errors.New("index out of range")
	ErrConstantPop        = errors.New("cannot pop to the constant segment")
	ErrBadSymbol          = errors.New("malformed symbol")
	ErrDuplicateLabel     = errors.New("duplicate label")
	ErrReservedLabel      = errors.New("reserved label")
)

// returnLabel is the form of the labels generated for call return sites.
var returnLabel = regexp.MustCompile(`^ret\.\d+$`)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	function string
	labels   map[string]token.Token
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens, labels: make(map[string]token.Token)}
}

// Parse classifies every token. The first malformed instruction aborts the
// whole unit.
func (p *Parser) Parse() ([]vm.Instruction, error) {
	insts := make([]vm.Instruction, 0, len(p.tokens))
	for ; p.pos < len(p.tokens); p.pos++ {
		tok := p.tokens[p.pos]
		inst, err := ParseInstruction(tok)
		if err != nil {
			return nil, err
		}
		if err := p.track(inst); err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// track enforces label uniqueness per function scope. Code before the first
// function forms its own scope.
func (p *Parser) track(inst vm.Instruction) error {
	switch i := inst.(type) {
	case *vm.FunctionDecl:
		p.function = i.Name
	case *vm.Branch:
		if i.Command != vm.CmdLabel {
			return nil
		}
		if returnLabel.MatchString(i.Label) {
			return util.Errorf(i.Tok, "%w '%s': names of the form ret.<n> mark call return sites", ErrReservedLabel, i.Label)
		}
		key := p.function + "$" + i.Label
		if prev, ok := p.labels[key]; ok {
			return util.Errorf(i.Tok, "%w '%s' (first declared on line %d)", ErrDuplicateLabel, i.Label, prev.Line)
		}
		p.labels[key] = i.Tok
	}
	return nil
}

// ParseSource cuts and parses one source text.
func ParseSource(source, file string) ([]vm.Instruction, error) {
	return NewParser(lexer.Cut(source, file)).Parse()
}

// ParseInstruction classifies one comment-stripped, trimmed instruction.
func ParseInstruction(tok token.Token) (vm.Instruction, error) {
	fields := strings.Fields(tok.Value)
	if len(fields) == 0 {
		return nil, util.Errorf(tok, "%w: empty instruction", ErrUnknownInstruction)
	}
	kind := token.Lookup(fields[0])
	operands := fields[1:]

	switch {
	case kind.IsArithmetic():
		if len(operands) != 0 {
			return nil, operandError(tok, kind, 0, len(operands))
		}
		return vm.NewArithmetic(tok, arithmeticOps[kind]), nil

	case kind == token.Push || kind == token.Pop:
		return parseStackTransfer(tok, kind, operands)

	case kind == token.Label || kind == token.Goto || kind == token.IfGoto:
		if len(operands) != 1 {
			return nil, operandError(tok, kind, 1, len(operands))
		}
		if !IsSymbol(operands[0]) {
			return nil, util.Errorf(tok, "%w: invalid label name '%s'", ErrBadSymbol, operands[0])
		}
		return vm.NewBranch(tok, branchCommands[kind], operands[0]), nil

	case kind == token.Function || kind == token.Call:
		if len(operands) != 2 {
			return nil, operandError(tok, kind, 2, len(operands))
		}
		if !IsSymbol(operands[0]) {
			return nil, util.Errorf(tok, "%w: invalid function name '%s'", ErrBadSymbol, operands[0])
		}
		n, err := parseNumber(tok, operands[1])
		if err != nil {
			return nil, err
		}
		if kind == token.Function {
			return vm.NewFunctionDecl(tok, operands[0], n), nil
		}
		return vm.NewCall(tok, operands[0], n), nil

	case kind == token.Return:
		if len(operands) != 0 {
			return nil, operandError(tok, kind, 0, len(operands))
		}
		return vm.NewReturn(tok), nil
	}

	return nil, util.Errorf(tok, "%w '%s' in %s", ErrUnknownInstruction, fields[0], tok.File)
}

var arithmeticOps = map[token.Type]vm.Op{
	token.Add: vm.OpAdd, token.Sub: vm.OpSub, token.Neg: vm.OpNeg,
	token.Eq: vm.OpEq, token.Gt: vm.OpGt, token.Lt: vm.OpLt,
	token.And: vm.OpAnd, token.Or: vm.OpOr, token.Not: vm.OpNot,
}

var branchCommands = map[token.Type]vm.Command{
	token.Label: vm.CmdLabel, token.Goto: vm.CmdGoto, token.IfGoto: vm.CmdIfGoto,
}

func parseStackTransfer(tok token.Token, kind token.Type, operands []string) (vm.Instruction, error) {
	if len(operands) != 2 {
		return nil, operandError(tok, kind, 2, len(operands))
	}
	seg, ok := vm.SegmentMap[operands[0]]
	if !ok {
		return nil, util.Errorf(tok, "%w '%s'", ErrUnknownSegment, operands[0])
	}
	index, err := parseNumber(tok, operands[1])
	if err != nil {
		return nil, err
	}

	limit := vm.MaxConstant
	switch seg {
	case vm.SegTemp:
		limit = vm.TempSize - 1
	case vm.SegPointer:
		limit = vm.PointerSize - 1
	}
	if index > limit {
		return nil, util.Errorf(tok, "%w: %s %d (max %d)", ErrIndexRange, seg, index, limit)
	}

	if kind == token.Pop {
		if seg == vm.SegConstant {
			return nil, util.Errorf(tok, "%w", ErrConstantPop)
		}
		return vm.NewPop(tok, seg, index), nil
	}
	return vm.NewPush(tok, seg, index), nil
}

func parseNumber(tok token.Token, s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, util.Errorf(tok, "%w: %s exceeds %d", ErrIndexRange, s, vm.MaxConstant)
		}
		return 0, util.Errorf(tok, "%w '%s'", ErrBadNumber, s)
	}
	if n > vm.MaxConstant {
		return 0, util.Errorf(tok, "%w: %s exceeds %d", ErrIndexRange, s, vm.MaxConstant)
	}
	return int(n), nil
}

func operandError(tok token.Token, kind token.Type, want, got int) error {
	return util.Errorf(tok, "%w: '%s' takes %d, got %d", ErrOperands, kind, want, got)
}

// IsSymbol reports whether s is usable as an assembly symbol: letters, digits,
// '_', '.', '$' and ':', not starting with a digit.
func IsSymbol(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.', r == '$', r == ':':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
