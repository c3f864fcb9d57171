// Package parser turns a submitted command line into a program: an
// ordered list of statements chained by ";" (run regardless) or "&&"
// (run only if the previous statement succeeded).
//
// Tokenisation is a character-by-character scan. Single and double
// quotes group; backslash takes the next byte literally in any state;
// ";" and "&&" separate statements only at top level. No other shell
// metacharacters are interpreted.
package parser

import (
	"strings"

	"github.com/agentjido/jido-shell/shellerr"
)

// Operator gates a statement's execution relative to the previous one.
type Operator string

const (
	// OpAlways runs the statement unconditionally (first statement,
	// or after ";").
	OpAlways Operator = "always"

	// OpAndIf runs the statement only if the previous one succeeded
	// (after "&&").
	OpAndIf Operator = "and_if"
)

// Statement is one command plus its arguments, tagged with the
// operator that gates it.
type Statement struct {
	Operator Operator
	Command  string
	Args     []string
}

// Line reassembles the statement into a runnable single line.
func (s Statement) Line() string {
	return Quote(append([]string{s.Command}, s.Args...))
}

type itemKind int

const (
	itemWord itemKind = iota
	itemSemicolon
	itemAndIf
)

type item struct {
	kind  itemKind
	value string
}

// lexer scans the input one byte at a time. State is carried by the
// current state function plus the pending token buffer and the open
// quote character; a backslash consumes the byte after it on the spot.
type lexer struct {
	input    string
	pos      int
	items    []item
	current  strings.Builder
	haveWord bool // a token is pending even if current is empty (e.g. "")
	terminal byte // open quote character while inside a quote
}

type stateFn func(*lexer) (stateFn, error)

func (l *lexer) run() error {
	for state := lexOutside; state != nil; {
		next, err := state(l)
		if err != nil {
			return err
		}
		state = next
	}
	return nil
}

func (l *lexer) flush() {
	if l.haveWord {
		l.items = append(l.items, item{kind: itemWord, value: l.current.String()})
		l.current.Reset()
		l.haveWord = false
	}
}

// lexOutside scans top-level input: whitespace separates tokens, quote
// characters enter lexQuote, ";" and "&&" emit separators.
func lexOutside(l *lexer) (stateFn, error) {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\\':
			l.pos++
			if l.pos >= len(l.input) {
				return nil, shellerr.New(shellerr.ShellDanglingEscape, "trailing backslash")
			}
			l.current.WriteByte(l.input[l.pos])
			l.haveWord = true
			l.pos++

		case c == '\'' || c == '"':
			l.terminal = c
			l.haveWord = true
			l.pos++
			return lexQuote, nil

		case c == ' ' || c == '\t':
			l.flush()
			l.pos++

		case c == ';':
			l.flush()
			l.items = append(l.items, item{kind: itemSemicolon})
			l.pos++

		case c == '&' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '&':
			l.flush()
			l.items = append(l.items, item{kind: itemAndIf})
			l.pos += 2

		default:
			l.current.WriteByte(c)
			l.haveWord = true
			l.pos++
		}
	}

	l.flush()
	return nil, nil
}

// lexQuote scans inside a quoted region until the opening quote
// character recurs. Whitespace, separators and the other quote
// character are literal here.
func lexQuote(l *lexer) (stateFn, error) {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\\':
			l.pos++
			if l.pos >= len(l.input) {
				return nil, shellerr.New(shellerr.ShellDanglingEscape, "trailing backslash")
			}
			l.current.WriteByte(l.input[l.pos])
			l.pos++

		case c == l.terminal:
			l.terminal = 0
			l.pos++
			// The token may continue: "a b"c is one word.
			return lexOutside, nil

		default:
			l.current.WriteByte(c)
			l.pos++
		}
	}

	return nil, shellerr.Newf(shellerr.ShellUnclosedQuote, "unclosed %c quote", l.terminal)
}

func scan(input string) ([]item, error) {
	l := &lexer{input: input}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.items, nil
}

// Tokenize returns the words of input, skipping statement separators.
func Tokenize(input string) ([]string, error) {
	items, err := scan(input)
	if err != nil {
		return nil, err
	}

	var words []string
	for _, it := range items {
		if it.kind == itemWord {
			words = append(words, it.value)
		}
	}
	return words, nil
}

// Parse builds the program for one submitted line.
//
// The first statement and statements after ";" carry OpAlways;
// statements after "&&" carry OpAndIf. A separator with no statement
// before it fails invalid_operator_position; a separator with nothing
// after it fails trailing_operator; a line with no words at all fails
// empty_command.
func Parse(input string) ([]Statement, error) {
	items, err := scan(input)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, shellerr.New(shellerr.ShellEmptyCommand, "empty command")
	}

	var (
		program []Statement
		words   []string
		op      = OpAlways
	)

	emit := func() {
		program = append(program, Statement{
			Operator: op,
			Command:  words[0],
			Args:     words[1:],
		})
		words = nil
	}

	for _, it := range items {
		switch it.kind {
		case itemWord:
			words = append(words, it.value)

		default:
			if len(words) == 0 {
				return nil, shellerr.New(shellerr.ShellBadOperatorPos, "operator with no command before it")
			}
			emit()
			if it.kind == itemAndIf {
				op = OpAndIf
			} else {
				op = OpAlways
			}
		}
	}

	if len(words) == 0 {
		return nil, shellerr.New(shellerr.ShellTrailingOperator, "operator with no command after it")
	}
	emit()

	return program, nil
}

// Quote reassembles tokens into a line that tokenises back to the same
// list. Words containing no special characters pass through bare;
// everything else is double-quoted with embedded quotes and
// backslashes escaped.
func Quote(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = quoteWord(tok)
	}
	return strings.Join(parts, " ")
}

func quoteWord(w string) string {
	if w != "" && !strings.ContainsAny(w, " \t;&'\"\\") {
		return w
	}

	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(w); i++ {
		if w[i] == '"' || w[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(w[i])
	}
	b.WriteByte('"')
	return b.String()
}
