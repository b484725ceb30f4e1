package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestClassify_ByteMapping(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"printable", []byte("hi there"), "hi there"},
		{"carriage return", []byte{'\r'}, "[enter]"},
		{"line feed", []byte{'\n'}, "[enter]"},
		{"tab", []byte{'\t'}, "[tab]"},
		{"escape", []byte{0x1b}, "[esc]"},
		{"delete key is backspace", []byte{0x7f}, "[backspace]"},
		{"ctrl-q", []byte{0x11}, "[ctrl-q]"},
		{"ctrl-a", []byte{0x01}, "[ctrl-a]"},
		{"high byte", []byte{0xff}, `\xff`},
		{"up arrow", []byte("\x1b[A"), "[up]"},
		{"down arrow", []byte("\x1b[B"), "[down]"},
		{"right arrow", []byte("\x1b[C"), "[right]"},
		{"left arrow", []byte("\x1b[D"), "[left]"},
		{"delete sequence", []byte("\x1b[3~"), "[delete]"},
		{"escape then text", []byte("\x1b:wq"), "[esc]:wq"},
		{"incomplete csi", []byte("\x1b["), "[esc]["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(0)
			got := Format(c.Classify(tt.in, t0))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_FiltersTerminalResponses(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"cursor position report", "\x1b[24;80R", ""},
		{"device attributes", "\x1b[?62;22c", ""},
		{"secondary device attributes", "\x1b[>0;276;0c", ""},
		{"report between keys", "a\x1b[12;1Rb", "ab"},
		{"arrow is kept", "\x1b[A\x1b[1;1R", "[up]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(0)
			assert.Equal(t, tt.want, Format(c.Classify([]byte(tt.in), t0)))
		})
	}
}

func TestClassify_SleepThreshold(t *testing.T) {
	c := NewClassifier(100 * time.Millisecond)

	got := c.Classify([]byte("a"), t0)
	require.Equal(t, []Token{Literal("a")}, got, "no sleep before the first byte")

	got = c.Classify([]byte("b"), t0.Add(99*time.Millisecond+900*time.Microsecond))
	require.Equal(t, []Token{Literal("b")}, got, "gap below threshold")

	last := t0.Add(99*time.Millisecond + 900*time.Microsecond)
	got = c.Classify([]byte("c"), last.Add(100*time.Millisecond))
	require.Equal(t, []Token{Sleep(100 * time.Millisecond), Literal("c")}, got, "gap equal to threshold")

	last = last.Add(100 * time.Millisecond)
	got = c.Classify([]byte("de"), last.Add(1234567*time.Microsecond))
	require.Equal(t, []Token{Sleep(1235 * time.Millisecond), Literal("d"), Literal("e")}, got,
		"one sleep per chunk, rounded to milliseconds")
}

func TestClassify_ResponsesDoNotResetTimer(t *testing.T) {
	c := NewClassifier(100 * time.Millisecond)
	c.Classify([]byte("a"), t0)
	c.Classify([]byte("\x1b[5;5R"), t0.Add(time.Second))
	got := c.Classify([]byte("b"), t0.Add(2*time.Second))
	assert.Equal(t, []Token{Sleep(2 * time.Second), Literal("b")}, got)
}

func TestClassifyParse_CtrlQ(t *testing.T) {
	c := NewClassifier(0)
	assert.Equal(t, "[ctrl-q]", Format(c.Classify([]byte{0x11}, t0)))

	tokens, err := Parse("[ctrl-q]")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11}, Bytes(tokens))
}

func TestClassifyParse_RoundTripASCII(t *testing.T) {
	for b := 0; b < 0x80; b++ {
		// '[' opens bracket syntax and LF is recorded as Enter (CR).
		if b == '[' || b == '\n' {
			continue
		}
		in := []byte{byte(b)}
		c := NewClassifier(0)
		text := Format(c.Classify(in, t0))

		tokens, err := Parse(text)
		require.NoError(t, err, "byte 0x%02x formatted as %q", b, text)
		assert.Equal(t, in, Bytes(tokens), "byte 0x%02x formatted as %q", b, text)
	}
}

func TestIsEnter(t *testing.T) {
	assert.True(t, IsEnter(Literal{'\r'}))
	assert.False(t, IsEnter(Literal("\r\r")))
	assert.False(t, IsEnter(Literal("a")))
	assert.False(t, IsEnter(ExpectScreen("x")))
}
