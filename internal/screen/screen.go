// Package screen renders a terminal output byte stream into a fixed-size
// character grid.
//
// The emulator understands the small subset of VT100/ANSI that full-screen
// programs rely on for layout: cursor positioning and movement, erase in
// display and line, cursor save and restore. Colors, modes and every other
// control sequence are parsed so they stay out of the grid, but have no
// effect. There is no scrollback: a line feed on the last row stays on the
// last row and later output overwrites it.
package screen

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset selects how bytes outside ASCII are turned into characters.
type Charset string

const (
	// UTF8 decodes multi-byte UTF-8 sequences and drops invalid bytes.
	UTF8 Charset = "utf-8"
	// Latin1 maps every byte to one ISO-8859-1 character.
	Latin1 Charset = "latin1"
)

// ParseCharset returns the charset for a config value. The empty string
// selects UTF8.
func ParseCharset(s string) (Charset, bool) {
	switch strings.ToLower(s) {
	case "", "utf-8", "utf8":
		return UTF8, true
	case "latin1", "latin-1", "iso-8859-1":
		return Latin1, true
	}
	return "", false
}

// Option configures a Screen.
type Option func(*Screen)

// WithCharset sets the decoding of bytes outside ASCII.
func WithCharset(c Charset) Option {
	return func(s *Screen) {
		s.charset = c
	}
}

type state int

const (
	stateGround state = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEscape
)

// Screen is a terminal emulator with a fixed grid. The zero value is not
// usable; create one with New. Not safe for concurrent use.
type Screen struct {
	rows, cols int
	grid       [][]rune

	row, col           int
	savedRow, savedCol int

	charset Charset
	state   state
	params  []byte
	pending []byte // incomplete UTF-8 sequence
}

// New returns a blank screen of the given size. Dimensions below 1 are
// raised to 1.
func New(rows, cols int, opts ...Option) *Screen {
	rows = max(rows, 1)
	cols = max(cols, 1)
	s := &Screen{
		rows:    rows,
		cols:    cols,
		grid:    make([][]rune, rows),
		charset: UTF8,
	}
	for r := range s.grid {
		s.grid[r] = blankRow(cols)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func blankRow(cols int) []rune {
	row := make([]rune, cols)
	for i := range row {
		row[i] = ' '
	}
	return row
}

// Size returns the screen dimensions.
func (s *Screen) Size() (rows, cols int) { return s.rows, s.cols }

// Cursor returns the zero-based cursor position.
func (s *Screen) Cursor() (row, col int) { return s.row, s.col }

// Write feeds program output into the emulator. It always consumes all of p.
// Sequences cut off at the end of p are completed by the next Write.
func (s *Screen) Write(p []byte) (int, error) {
	for _, b := range p {
		s.feed(b)
	}
	return len(p), nil
}

func (s *Screen) feed(b byte) {
	switch s.state {
	case stateEscape:
		switch b {
		case '[':
			s.state = stateCSI
			s.params = s.params[:0]
		case ']':
			s.state = stateOSC
		default:
			s.state = stateGround
		}
		return

	case stateCSI:
		if (b >= '0' && b <= '9') || b == ';' || b == '?' {
			s.params = append(s.params, b)
			return
		}
		s.state = stateGround
		s.csi(b, parseParams(s.params))
		return

	case stateOSC:
		switch b {
		case 0x07:
			s.state = stateGround
		case 0x1b:
			s.state = stateOSCEscape
		}
		return

	case stateOSCEscape:
		if b == '\\' {
			s.state = stateGround
		} else {
			s.state = stateOSC
		}
		return
	}

	if len(s.pending) > 0 {
		s.decode(b)
		return
	}

	switch {
	case b == 0x1b:
		s.state = stateEscape
	case b == '\r':
		s.col = 0
	case b == '\n':
		s.row = min(s.row+1, s.rows-1)
	case b == '\t':
		s.col = min((s.col/8+1)*8, s.cols-1)
	case b == 0x08:
		s.col = max(s.col-1, 0)
	case b >= 0x20 && b < 0x7f:
		s.put(rune(b))
	case b >= 0x80:
		s.decode(b)
	}
}

// decode handles bytes outside ASCII according to the charset.
func (s *Screen) decode(b byte) {
	if s.charset == Latin1 {
		if r := charmap.ISO8859_1.DecodeByte(b); unicode.IsPrint(r) {
			s.put(r)
		}
		return
	}

	if len(s.pending) > 0 && (b < 0x80 || utf8.RuneStart(b)) {
		// ASCII or a new lead byte interrupted an incomplete sequence.
		s.pending = s.pending[:0]
		s.feed(b)
		return
	}

	s.pending = append(s.pending, b)
	if !utf8.FullRune(s.pending) {
		return
	}
	r, _ := utf8.DecodeRune(s.pending)
	s.pending = s.pending[:0]
	if r != utf8.RuneError && unicode.IsPrint(r) {
		s.put(r)
	}
}

// put writes r at the cursor and advances, wrapping to the next row at the
// right margin.
func (s *Screen) put(r rune) {
	s.grid[s.row][s.col] = r
	s.col++
	if s.col >= s.cols {
		s.col = 0
		s.row = min(s.row+1, s.rows-1)
	}
}

// maxParam caps CSI parameters so cursor arithmetic cannot overflow.
const maxParam = 1 << 16

// parseParams splits CSI parameters. Private mode parameters (leading '?')
// and malformed fields yield no parameters. Values above maxParam, including
// ones too large for an int, are capped.
func parseParams(raw []byte) []int {
	if len(raw) == 0 || raw[0] == '?' {
		return nil
	}
	fields := strings.Split(string(raw), ";")
	params := make([]int, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			params = append(params, 0)
			continue
		}
		n, err := strconv.Atoi(f)
		if errors.Is(err, strconv.ErrRange) {
			n = maxParam
		} else if err != nil {
			return nil
		}
		params = append(params, min(n, maxParam))
	}
	return params
}

// param returns the i-th parameter, or def when absent or zero.
func param(params []int, i, def int) int {
	if i < len(params) && params[i] > 0 {
		return params[i]
	}
	return def
}

// count returns the repeat count of a cursor movement, capped at limit. Only
// an absent parameter means 1; an explicit 0 does not move the cursor.
func count(params []int, limit int) int {
	if len(params) == 0 {
		return 1
	}
	return min(params[0], limit)
}

func (s *Screen) csi(final byte, params []int) {
	switch final {
	case 'H', 'f':
		s.row = min(param(params, 0, 1)-1, s.rows-1)
		s.col = min(param(params, 1, 1)-1, s.cols-1)
	case 'A':
		s.row = max(s.row-count(params, s.rows), 0)
	case 'B':
		s.row = min(s.row+count(params, s.rows), s.rows-1)
	case 'C':
		s.col = min(s.col+count(params, s.cols), s.cols-1)
	case 'D':
		s.col = max(s.col-count(params, s.cols), 0)
	case 'J':
		s.eraseDisplay(mode(params))
	case 'K':
		s.eraseLine(mode(params))
	case 's':
		s.savedRow, s.savedCol = s.row, s.col
	case 'u':
		s.row, s.col = s.savedRow, s.savedCol
	}
}

func mode(params []int) int {
	if len(params) == 0 {
		return 0
	}
	return params[0]
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.clear(s.row, s.col, s.cols)
		for r := s.row + 1; r < s.rows; r++ {
			s.clear(r, 0, s.cols)
		}
	case 1:
		for r := 0; r < s.row; r++ {
			s.clear(r, 0, s.cols)
		}
		s.clear(s.row, 0, s.col+1)
	case 2:
		for r := range s.grid {
			s.clear(r, 0, s.cols)
		}
	}
}

func (s *Screen) eraseLine(mode int) {
	switch mode {
	case 0:
		s.clear(s.row, s.col, s.cols)
	case 1:
		s.clear(s.row, 0, s.col+1)
	case 2:
		s.clear(s.row, 0, s.cols)
	}
}

// clear blanks columns [from, to) of a row.
func (s *Screen) clear(row, from, to int) {
	line := s.grid[row]
	for c := from; c < to && c < s.cols; c++ {
		line[c] = ' '
	}
}

// Line returns row i with trailing spaces removed, or "" when out of range.
func (s *Screen) Line(i int) string {
	if i < 0 || i >= s.rows {
		return ""
	}
	return strings.TrimRight(string(s.grid[i]), " ")
}

// Text returns the canonical rendering: rows with trailing spaces removed,
// trailing blank rows dropped, joined by newlines.
func (s *Screen) Text() string {
	lines := make([]string, s.rows)
	last := -1
	for i := range lines {
		lines[i] = s.Line(i)
		if lines[i] != "" {
			last = i
		}
	}
	return strings.Join(lines[:last+1], "\n")
}
