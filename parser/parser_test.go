package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agentjido/jido-shell/shellerr"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"plain words", "echo hello world", []string{"echo", "hello", "world"}},
		{"double quotes", `echo "a b"`, []string{"echo", "a b"}},
		{"single quotes", `echo 'a b'`, []string{"echo", "a b"}},
		{"empty quoted string", `echo ""`, []string{"echo", ""}},
		{"quote joins word", `echo "a b"c`, []string{"echo", "a bc"}},
		{"escape joins quoted and bare", `echo "a b"\ c ';' d`, []string{"echo", "a b c", ";", "d"}},
		{"escaped space", `a\ b`, []string{"a b"}},
		{"escaped quote", `\"x`, []string{`"x`}},
		{"other quote literal inside", `"it's"`, []string{"it's"}},
		{"tabs separate", "a\tb", []string{"a", "b"}},
		{"quoted and_if is a word", `'&&'`, []string{"&&"}},
		{"single ampersand literal", "a&b", []string{"a&b"}},
		{"escaped backslash", `a\\b`, []string{`a\b`}},
		{"empty input", "", nil},
		{"only whitespace", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize(%q) failed: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  shellerr.Code
	}{
		{"unclosed double quote", `echo "abc`, shellerr.ShellUnclosedQuote},
		{"unclosed single quote", `echo 'abc`, shellerr.ShellUnclosedQuote},
		{"dangling escape", `echo abc\`, shellerr.ShellDanglingEscape},
		{"dangling escape in quote", `echo "abc\`, shellerr.ShellDanglingEscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			if !shellerr.HasCode(err, tt.code) {
				t.Errorf("Tokenize(%q) err = %v, want %v", tt.input, err, tt.code)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Statement
	}{
		{
			name:  "single statement",
			input: "echo hello",
			expected: []Statement{
				{Operator: OpAlways, Command: "echo", Args: []string{"hello"}},
			},
		},
		{
			name:  "semicolon chain",
			input: "mkdir /a; cd /a",
			expected: []Statement{
				{Operator: OpAlways, Command: "mkdir", Args: []string{"/a"}},
				{Operator: OpAlways, Command: "cd", Args: []string{"/a"}},
			},
		},
		{
			name:  "and_if chain",
			input: "cd /a && pwd",
			expected: []Statement{
				{Operator: OpAlways, Command: "cd", Args: []string{"/a"}},
				{Operator: OpAndIf, Command: "pwd", Args: []string{}},
			},
		},
		{
			name:  "mixed chain",
			input: "mkdir /a; cd /a && pwd",
			expected: []Statement{
				{Operator: OpAlways, Command: "mkdir", Args: []string{"/a"}},
				{Operator: OpAlways, Command: "cd", Args: []string{"/a"}},
				{Operator: OpAndIf, Command: "pwd", Args: []string{}},
			},
		},
		{
			name:  "no args",
			input: "pwd",
			expected: []Statement{
				{Operator: OpAlways, Command: "pwd", Args: []string{}},
			},
		},
		{
			name:  "quoted separator stays in statement",
			input: `echo ';'`,
			expected: []Statement{
				{Operator: OpAlways, Command: "echo", Args: []string{";"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  shellerr.Code
	}{
		{"empty", "", shellerr.ShellEmptyCommand},
		{"whitespace only", "  \t ", shellerr.ShellEmptyCommand},
		{"leading semicolon", "; echo a", shellerr.ShellBadOperatorPos},
		{"leading and_if", "&& echo a", shellerr.ShellBadOperatorPos},
		{"double separator", "a ;; b", shellerr.ShellBadOperatorPos},
		{"trailing semicolon", "echo a;", shellerr.ShellTrailingOperator},
		{"trailing and_if", "echo a &&", shellerr.ShellTrailingOperator},
		{"unclosed quote", `"a`, shellerr.ShellUnclosedQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !shellerr.HasCode(err, tt.code) {
				t.Errorf("Parse(%q) err = %v, want %v", tt.input, err, tt.code)
			}
		})
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	tokenLists := [][]string{
		{"echo", "hello"},
		{"echo", "a b", "c"},
		{"echo", ""},
		{"echo", ";", "&&"},
		{"echo", `with"quote`},
		{"echo", `back\slash`},
		{"echo", "it's"},
		{"a b c", "d\te"},
	}

	for _, tokens := range tokenLists {
		line := Quote(tokens)
		got, err := Tokenize(line)
		if err != nil {
			t.Errorf("Tokenize(Quote(%q)) failed: %v", tokens, err)
			continue
		}
		if diff := cmp.Diff(tokens, got); diff != "" {
			t.Errorf("round trip of %q via %q mismatch (-want +got):\n%s", tokens, line, diff)
		}
	}
}

func TestStatementLine(t *testing.T) {
	s := Statement{Operator: OpAlways, Command: "echo", Args: []string{"a b"}}
	if got := s.Line(); got != `echo "a b"` {
		t.Errorf("Line() = %q, want %q", got, `echo "a b"`)
	}
}
