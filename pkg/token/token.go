package token

type Type int

const (
	Illegal Type = iota

	// Arithmetic and logical commands
	Add
	Sub
	Neg
	Eq
	Gt
	Lt
	And
	Or
	Not

	// Stack transfer
	Push
	Pop

	// Branching
	Label
	Goto
	IfGoto

	// Functions
	Function
	Call
	Return
)

var KeywordMap = map[string]Type{
	"add":      Add,
	"sub":      Sub,
	"neg":      Neg,
	"eq":       Eq,
	"gt":       Gt,
	"lt":       Lt,
	"and":      And,
	"or":       Or,
	"not":      Not,
	"push":     Push,
	"pop":      Pop,
	"label":    Label,
	"goto":     Goto,
	"if-goto":  IfGoto,
	"function": Function,
	"call":     Call,
	"return":   Return,
}

// Reverse mapping from Type to the mnemonic string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "illegal"
}

// IsArithmetic reports whether t is one of the nine operand-less stack operators.
func (t Type) IsArithmetic() bool { return t >= Add && t <= Not }

// Lookup classifies the leading word of an instruction.
func Lookup(word string) Type {
	if t, ok := KeywordMap[word]; ok {
		return t
	}
	return Illegal
}

// Token is one comment-stripped, trimmed instruction line.
type Token struct {
	Value  string
	File   string
	Line   int
	Column int
	Len    int
}
