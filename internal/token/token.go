// Package token implements the scripting language shared by the recorder and
// the player: literal keystrokes, timed pauses and screen assertions.
//
// The textual form is a string where plain characters stand for themselves
// and bracketed names stand for special keys or directives:
//
//	hello[enter][sleep:200][expect_screen:snapshot001.txt][ctrl-q]
package token

import (
	"fmt"
	"strings"
	"time"
)

// Token is one action in a session script. The concrete types are Literal,
// Sleep and ExpectScreen; consumers switch on the type.
type Token interface {
	// String returns the canonical bracketed form of the token.
	String() string
	isToken()
}

// Literal is a run of raw bytes written to the program's terminal.
type Literal []byte

// Sleep pauses the script for the given duration while output is collected.
type Sleep time.Duration

// ExpectScreen asserts that the rendered screen equals the named snapshot file.
type ExpectScreen string

func (Literal) isToken()      {}
func (Sleep) isToken()        {}
func (ExpectScreen) isToken() {}

// Named keys. Arrow keys use the normal cursor mode sequences.
var (
	keyEnter     = []byte{'\r'}
	keyTab       = []byte{'\t'}
	keyEsc       = []byte{0x1b}
	keyBackspace = []byte{0x7f}
	keyDelete    = []byte("\x1b[3~")
	keyUp        = []byte("\x1b[A")
	keyDown      = []byte("\x1b[B")
	keyRight     = []byte("\x1b[C")
	keyLeft      = []byte("\x1b[D")
)

// sequences maps multi-byte key sequences to their names.
var sequences = map[string]string{
	string(keyDelete): "delete",
	string(keyUp):     "up",
	string(keyDown):   "down",
	string(keyRight):  "right",
	string(keyLeft):   "left",
}

// String renders the literal in bracket syntax. Multi-byte key sequences
// become their key name; other bytes are rendered one at a time.
func (l Literal) String() string {
	if name, ok := sequences[string(l)]; ok {
		return "[" + name + "]"
	}
	var b strings.Builder
	for _, c := range l {
		b.WriteString(byteName(c))
	}
	return b.String()
}

// Duration returns the pause as a time.Duration.
func (s Sleep) Duration() time.Duration { return time.Duration(s) }

func (s Sleep) String() string {
	return fmt.Sprintf("[sleep:%d]", time.Duration(s).Milliseconds())
}

func (e ExpectScreen) String() string {
	return "[EXPECT_SCREEN:" + string(e) + "]"
}

// byteName returns the bracket-syntax name of a single input byte.
func byteName(c byte) string {
	switch {
	case c == 0x1b:
		return "[esc]"
	case c == '\r' || c == '\n':
		return "[enter]"
	case c == '\t':
		return "[tab]"
	case c == 0x7f:
		return "[backspace]"
	case c < 0x20:
		return "[ctrl-" + string(rune(c+'a'-1)) + "]"
	case c < 0x7f:
		return string(rune(c))
	default:
		return fmt.Sprintf("\\x%02x", c)
	}
}

// Format joins tokens into their textual form. Parsing the result of Format
// yields the same actions, except for bytes outside printable ASCII which are
// hex-escaped for readability.
func Format(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.String())
	}
	return b.String()
}

// Bytes concatenates the bytes of all literal tokens, ignoring the rest.
func Bytes(tokens []Token) []byte {
	var out []byte
	for _, t := range tokens {
		if l, ok := t.(Literal); ok {
			out = append(out, l...)
		}
	}
	return out
}

// IsEnter reports whether t is the Enter key.
func IsEnter(t Token) bool {
	l, ok := t.(Literal)
	return ok && len(l) == 1 && l[0] == '\r'
}
