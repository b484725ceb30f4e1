package token

import "time"

// DefaultSleepThreshold is the smallest input gap recorded as a Sleep token.
const DefaultSleepThreshold = 100 * time.Millisecond

// Classifier turns live keyboard input into tokens. Gaps between chunks of at
// least Threshold become Sleep tokens so a replay keeps the pace of the typing.
//
// A Classifier is not safe for concurrent use.
type Classifier struct {
	Threshold time.Duration

	last time.Time
	seen bool
}

// NewClassifier returns a classifier with the given sleep threshold. A
// non-positive threshold selects DefaultSleepThreshold.
func NewClassifier(threshold time.Duration) *Classifier {
	if threshold <= 0 {
		threshold = DefaultSleepThreshold
	}
	return &Classifier{Threshold: threshold}
}

// Classify converts one chunk of input received at time at. All bytes of a
// chunk share the timestamp, so only the first classified byte can be
// preceded by a Sleep. Terminal responses (cursor position and device
// attribute reports) are dropped.
func (c *Classifier) Classify(data []byte, at time.Time) []Token {
	var tokens []Token
	for i := 0; i < len(data); {
		if n := terminalResponse(data[i:]); n > 0 {
			i += n
			continue
		}

		if c.seen {
			if gap := at.Sub(c.last); gap >= c.Threshold {
				tokens = append(tokens, Sleep(gap.Round(time.Millisecond)))
			}
		}
		c.last = at
		c.seen = true

		if seq, ok := keySequence(data[i:]); ok {
			tokens = append(tokens, Literal(append([]byte(nil), seq...)))
			i += len(seq)
			continue
		}

		b := data[i]
		if b == '\n' {
			b = '\r'
		}
		tokens = append(tokens, Literal{b})
		i++
	}
	return tokens
}

// keySequence reports whether data starts with an arrow or delete sequence.
func keySequence(data []byte) ([]byte, bool) {
	if len(data) < 3 || data[0] != 0x1b || data[1] != '[' {
		return nil, false
	}
	switch data[2] {
	case 'A':
		return keyUp, true
	case 'B':
		return keyDown, true
	case 'C':
		return keyRight, true
	case 'D':
		return keyLeft, true
	case '3':
		if len(data) >= 4 && data[3] == '~' {
			return keyDelete, true
		}
	}
	return nil, false
}

// terminalResponse returns the length of a CSI report generated by the
// terminal itself (ending in R or c) at the start of data, or 0.
func terminalResponse(data []byte) int {
	if len(data) < 3 || data[0] != 0x1b || data[1] != '[' {
		return 0
	}
	for j := 2; j < len(data); j++ {
		switch b := data[j]; {
		case b >= '0' && b <= '9', b == ';', b == '?', b == '>':
			continue
		case b == 'R' || b == 'c':
			return j + 1
		default:
			return 0
		}
	}
	return 0
}
