package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedToken is matched by every parse failure.
var ErrMalformedToken = errors.New("malformed token")

// MalformedTokenError describes bracket content that is not part of the grammar.
type MalformedTokenError struct {
	// Content is the text between the brackets.
	Content string
	// Offset is the byte offset of the opening bracket in the input.
	Offset int
	// Reason is set when the keyword was recognised but its argument was not.
	Reason string
}

func (e *MalformedTokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed token [%s] at offset %d: %s", e.Content, e.Offset, e.Reason)
	}
	return fmt.Sprintf("unknown token [%s] at offset %d", e.Content, e.Offset)
}

func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

var keys = map[string][]byte{
	"enter":     keyEnter,
	"tab":       keyTab,
	"esc":       keyEsc,
	"backspace": keyBackspace,
	"delete":    keyDelete,
	"up":        keyUp,
	"down":      keyDown,
	"right":     keyRight,
	"left":      keyLeft,
}

// Parse converts a token string into a list of tokens. Parsing stops at the
// first unknown bracket and returns no tokens, so nothing is executed from a
// partially valid script.
//
// A '[' without a closing ']' is taken literally.
func Parse(s string) ([]Token, error) {
	var tokens []Token
	for i := 0; i < len(s); {
		if s[i] != '[' {
			tokens = append(tokens, Literal{s[i]})
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], ']')
		if end < 0 {
			tokens = append(tokens, Literal{'['})
			i++
			continue
		}
		content := s[i+1 : i+1+end]
		t, err := parseBracket(content)
		if err != nil {
			err.Offset = i
			return nil, err
		}
		tokens = append(tokens, t)
		i += end + 2
	}
	return tokens, nil
}

func parseBracket(content string) (Token, *MalformedTokenError) {
	lower := strings.ToLower(content)
	if b, ok := keys[lower]; ok {
		return Literal(append([]byte(nil), b...)), nil
	}

	switch {
	case strings.HasPrefix(lower, "ctrl-"):
		key := content[len("ctrl-"):]
		if len(key) != 1 {
			return nil, &MalformedTokenError{Content: content, Reason: "ctrl takes a single character"}
		}
		c := key[0]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		return Literal{c & 0x1f}, nil

	case strings.HasPrefix(lower, "sleep:"):
		ms, err := strconv.Atoi(content[len("sleep:"):])
		if err != nil || ms < 0 {
			return nil, &MalformedTokenError{Content: content, Reason: "sleep takes a non-negative number of milliseconds"}
		}
		return Sleep(time.Duration(ms) * time.Millisecond), nil

	case strings.HasPrefix(lower, "expect_screen:"):
		name := content[len("expect_screen:"):]
		if name == "" {
			return nil, &MalformedTokenError{Content: content, Reason: "expect_screen needs a snapshot name"}
		}
		return ExpectScreen(name), nil
	}

	return nil, &MalformedTokenError{Content: content}
}
