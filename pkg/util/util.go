package util

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tebeka/atexit"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/token"
	"golang.org/x/term"
)

// CompileError is a diagnostic anchored at a source position.
type CompileError struct {
	Tok token.Token
	Msg string
	Err error
}

func (e *CompileError) Error() string {
	file := e.Tok.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Tok.Line, e.Tok.Column, e.Msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Errorf builds a CompileError. The format follows fmt.Errorf, so %w keeps
// the wrapped sentinel visible to errors.Is.
func Errorf(tok token.Token, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	return &CompileError{Tok: tok, Msg: err.Error(), Err: err}
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles = make(map[string][]rune)

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = make(map[string][]rune, len(files))
	for _, f := range files {
		sourceFiles[f.Name] = f.Content
	}
}

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorReset  = "\033[0m"
)

func paint(stream *os.File, color, s string) string {
	if !term.IsTerminal(int(stream.Fd())) {
		return s
	}
	return color + s + colorReset
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(stream *os.File, tok token.Token) {
	content, ok := sourceFiles[tok.File]
	if !ok || tok.Line == 0 {
		return
	}

	lineNum, lineStart := tok.Line, 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' || content[i] == '\r' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(stream, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(stream, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), paint(stream, colorGreen, caret))
}

func location(tok token.Token) string {
	if tok.File == "" {
		return "vmc"
	}
	return fmt.Sprintf("%s:%d:%d", tok.File, tok.Line, tok.Column)
}

// Error prints a formatted error message and exits the program through
// atexit so registered cleanups still run.
func Error(tok token.Token, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s ", location(tok), paint(os.Stderr, colorRed, "error:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printErrorLine(os.Stderr, tok)
	atexit.Exit(1)
}

// Fatal reports err, positioned when it carries a CompileError, and exits.
func Fatal(err error) {
	var ce *CompileError
	if errors.As(err, &ce) {
		Error(ce.Tok, "%s", ce.Msg)
		return
	}
	Error(token.Token{}, "%v", err)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s ", location(tok), paint(os.Stderr, colorYellow, "warning:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(os.Stderr, tok)
}

func Info(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "vmc: %s ", paint(os.Stderr, colorCyan, "info:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
}
