package lexer

import (
	"strings"
	"unicode"

	"github.com/xplshn/vmtranslator/pkg/token"
)

// Lexer cuts VM source text into instruction tokens. A token is everything on a
// line before a "//" comment, with surrounding whitespace removed.
type Lexer struct {
	source []rune
	file   string
	pos    int
	line   int
	column int
}

func NewLexer(source []rune, file string) *Lexer {
	return &Lexer{source: source, file: file, line: 1, column: 1}
}

// Next returns the next instruction token and false once the input is exhausted.
func (l *Lexer) Next() (token.Token, bool) {
	for !l.isAtEnd() {
		lineStart, startLine := l.pos, l.line
		end := l.skipLine()

		text := l.source[lineStart:end]
		if idx := commentStart(text); idx >= 0 {
			text = text[:idx]
		}

		lead := 0
		for lead < len(text) && unicode.IsSpace(text[lead]) {
			lead++
		}
		trimmed := strings.TrimRightFunc(string(text[lead:]), unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		return token.Token{
			Value:  trimmed,
			File:   l.file,
			Line:   startLine,
			Column: lead + 1,
			Len:    len([]rune(trimmed)),
		}, true
	}
	return token.Token{File: l.file, Line: l.line, Column: l.column}, false
}

// All drains the lexer.
func (l *Lexer) All() []token.Token {
	var toks []token.Token
	for {
		tok, ok := l.Next()
		if !ok {
			return toks
		}
		toks = append(toks, tok)
	}
}

// Cut is a convenience wrapper returning the tokens of a whole source text.
func Cut(source, file string) []token.Token {
	return NewLexer([]rune(source), file).All()
}

// skipLine advances past the current line and returns the index one past its
// last content rune (the newline, or a preceding '\r', is excluded).
func (l *Lexer) skipLine() int {
	for !l.isAtEnd() {
		ch := l.advance()
		if ch == '\n' {
			end := l.pos - 1
			if end > 0 && l.source[end-1] == '\r' {
				end--
			}
			l.line++
			l.column = 1
			return end
		}
	}
	return l.pos
}

func (l *Lexer) advance() rune {
	ch := l.source[l.pos]
	l.pos++
	l.column++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func commentStart(text []rune) int {
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '/' && text[i+1] == '/' {
			return i
		}
	}
	return -1
}
