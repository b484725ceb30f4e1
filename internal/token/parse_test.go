package token

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Token
	}{
		{
			name:  "plain text",
			input: "ab",
			want:  []Token{Literal("a"), Literal("b")},
		},
		{
			name:  "named keys",
			input: "[enter][tab][esc][backspace]",
			want:  []Token{Literal{'\r'}, Literal{'\t'}, Literal{0x1b}, Literal{0x7f}},
		},
		{
			name:  "arrows and delete",
			input: "[up][down][right][left][delete]",
			want: []Token{
				Literal("\x1b[A"), Literal("\x1b[B"), Literal("\x1b[C"), Literal("\x1b[D"),
				Literal("\x1b[3~"),
			},
		},
		{
			name:  "keywords are case insensitive",
			input: "[ENTER][Ctrl-Q]",
			want:  []Token{Literal{'\r'}, Literal{0x11}},
		},
		{
			name:  "ctrl keys",
			input: "[ctrl-a][ctrl-c][ctrl-z]",
			want:  []Token{Literal{0x01}, Literal{0x03}, Literal{0x1a}},
		},
		{
			name:  "sleep",
			input: "[sleep:250]",
			want:  []Token{Sleep(250 * time.Millisecond)},
		},
		{
			name:  "expect screen keeps name case",
			input: "[EXPECT_SCREEN:Snapshot001.txt]",
			want:  []Token{ExpectScreen("Snapshot001.txt")},
		},
		{
			name:  "unclosed bracket is literal",
			input: "a[b",
			want:  []Token{Literal("a"), Literal("["), Literal("b")},
		},
		{
			name:  "closing bracket alone is literal",
			input: "]",
			want:  []Token{Literal("]")},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "mixed script",
			input: "ihi[esc]:wq[enter]",
			want: []Token{
				Literal("i"), Literal("h"), Literal("i"), Literal{0x1b},
				Literal(":"), Literal("w"), Literal("q"), Literal{'\r'},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q): got %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContent string
		wantOffset  int
	}{
		{name: "unknown key", input: "abc[foo]", wantContent: "foo", wantOffset: 3},
		{name: "ctrl with two chars", input: "[ctrl-ab]", wantContent: "ctrl-ab"},
		{name: "ctrl without char", input: "[ctrl-]", wantContent: "ctrl-"},
		{name: "sleep not a number", input: "[sleep:soon]", wantContent: "sleep:soon"},
		{name: "negative sleep", input: "[sleep:-5]", wantContent: "sleep:-5"},
		{name: "expect without name", input: "[expect_screen:]", wantContent: "expect_screen:"},
		{name: "empty brackets", input: "x[]", wantContent: "", wantOffset: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q): expected error, got %v", tt.input, got)
			}
			if got != nil {
				t.Errorf("Parse(%q): expected no tokens on error, got %v", tt.input, got)
			}
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("errors.Is(err, ErrMalformedToken) = false for %v", err)
			}
			var mte *MalformedTokenError
			if !errors.As(err, &mte) {
				t.Fatalf("error is not *MalformedTokenError: %T", err)
			}
			if mte.Content != tt.wantContent {
				t.Errorf("Content: got %q, want %q", mte.Content, tt.wantContent)
			}
			if mte.Offset != tt.wantOffset {
				t.Errorf("Offset: got %d, want %d", mte.Offset, tt.wantOffset)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		tokens []Token
		want   string
	}{
		{
			name:   "text and enter",
			tokens: []Token{Literal("h"), Literal("i"), Literal{'\r'}},
			want:   "hi[enter]",
		},
		{
			name:   "ctrl byte",
			tokens: []Token{Literal{0x11}},
			want:   "[ctrl-q]",
		},
		{
			name:   "arrow sequence",
			tokens: []Token{Literal("\x1b[A")},
			want:   "[up]",
		},
		{
			name:   "sleep and expectation",
			tokens: []Token{Sleep(1500 * time.Millisecond), ExpectScreen("snapshot001.txt")},
			want:   "[sleep:1500][EXPECT_SCREEN:snapshot001.txt]",
		},
		{
			name:   "non ascii is hex escaped",
			tokens: []Token{Literal{0xc3, 0xa9}},
			want:   `\xc3\xa9`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.tokens); got != tt.want {
				t.Errorf("Format: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatParse_RoundTrip(t *testing.T) {
	script := "vim[enter][sleep:300]ihello[esc][up][down][left][right][delete][ctrl-w][EXPECT_SCREEN:snapshot002.txt]:q![enter]"
	tokens, err := Parse(script)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := Format(tokens); got != script {
		t.Errorf("Format(Parse(s)): got %q, want %q", got, script)
	}
}
