// Package session runs a program attached to a pseudoterminal and exchanges
// bytes with it from a single thread of control.
//
// Output from the program is kept as a raw log and rendered through a
// screen.Screen. Input comes either from a script (Send, Pump, Finish) or
// from the user's real terminal (Interact).
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/term"

	"github.com/timvw/testty/internal/screen"
)

// ErrUnsupportedPlatform is returned on platforms without pseudoterminals.
var ErrUnsupportedPlatform = errors.New("pseudoterminal sessions are not supported on this platform")

// ErrInputDropped is returned by Send when the program stopped reading its
// input and the write did not complete within Config.WriteTimeout.
var ErrInputDropped = errors.New("session: input dropped")

var errWriteStalled = errors.New("write stalled")

// Exit codes reported when the program could not be started, following
// shell conventions.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

const (
	DefaultRows         = 24
	DefaultCols         = 80
	DefaultPollInterval = 100 * time.Millisecond
	DefaultKillGrace    = 2 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	readSize = 4096
)

// Config describes the program to run.
type Config struct {
	// Command is the program and its arguments.
	Command []string
	Rows    int
	Cols    int
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is the program environment. Nil inherits the current environment.
	Env []string
	// Charset is passed to the screen emulator.
	Charset screen.Charset
	// PollInterval bounds each readiness wait.
	PollInterval time.Duration
	// KillGrace is how long a terminated program gets to exit after SIGTERM
	// before it is killed.
	KillGrace time.Duration
	// WriteTimeout bounds how long Send waits for the program to make room
	// for more input.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.Cols <= 0 {
		c.Cols = DefaultCols
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Charset == "" {
		c.Charset = screen.UTF8
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// ExitStatus describes how the program ended.
type ExitStatus struct {
	// Exited is true when the program ended before the session had to
	// terminate it.
	Exited bool
	// Code is the exit status of a normal exit. Nil when the program was
	// killed by a signal or its status could not be collected.
	Code *int
	// Signal is the name of the signal that killed the program.
	Signal string
	// Terminated is true when the session sent the termination signal.
	Terminated bool
}

// terminal is the host side of a pseudoterminal with a child attached.
type terminal interface {
	fd() int
	// read returns 0, nil when no data is available and io.EOF once the
	// child side is gone.
	read(p []byte) (int, error)
	// write returns the number of bytes written and errWriteStalled when the
	// child side stays full until the deadline.
	write(p []byte, deadline time.Time) (int, error)
	setSize(rows, cols int) error
	// reap checks for child exit without blocking.
	reap() (bool, ExitStatus)
	// terminate sends SIGTERM, waits up to grace, then kills and reaps.
	terminate(grace time.Duration) ExitStatus
	close() error
}

// Session is one program running on a pseudoterminal. It is driven from a
// single goroutine; no method is safe for concurrent use.
type Session struct {
	cfg    Config
	log    *slog.Logger
	term   terminal
	screen *screen.Screen
	raw    bytes.Buffer
	buf    []byte

	exited bool
	hangup bool
	closed bool
	status ExitStatus
}

// Start launches the program on a new pseudoterminal of the configured size.
//
// A program that cannot be found or executed is not an error: the session
// behaves as if the program printed a diagnostic and exited with status 127
// or 126. Errors are returned for an empty command and for failures to set
// up the pseudoterminal itself.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("session: empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ptySupported {
		return nil, ErrUnsupportedPlatform
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:    cfg,
		log:    cfg.Logger,
		screen: screen.New(cfg.Rows, cfg.Cols, screen.WithCharset(cfg.Charset)),
		buf:    make([]byte, readSize),
	}

	c := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	c.Dir = cfg.Dir
	c.Env = cfg.Env
	if c.Err != nil {
		s.spawnFailed(c.Err)
		return s, nil
	}

	t, err := startTerminal(c, cfg.Rows, cfg.Cols)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) && pe.Op == "fork/exec" {
			s.spawnFailed(err)
			return s, nil
		}
		return nil, fmt.Errorf("session: start %q: %w", cfg.Command[0], err)
	}
	s.term = t
	s.log.Debug("session started", "command", cfg.Command, "pid", c.Process.Pid, "rows", cfg.Rows, "cols", cfg.Cols)
	return s, nil
}

// spawnFailed records a program that never ran. The diagnostic goes through
// the emulator so it shows up in the rendered screen like shell output would.
func (s *Session) spawnFailed(err error) {
	code := ExitNotExecutable
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		code = ExitNotFound
	}
	msg := fmt.Sprintf("testty: %v\r\n", err)
	s.consume([]byte(msg))
	s.exited = true
	s.hangup = true
	s.status = ExitStatus{Exited: true, Code: &code}
	s.log.Debug("spawn failed", "command", s.cfg.Command, "err", err, "code", code)
}

// Screen returns the current emulator. Interactive resizes replace it.
func (s *Session) Screen() *screen.Screen { return s.screen }

// Text returns the rendered screen text.
func (s *Session) Text() string { return s.screen.Text() }

// Raw returns every byte read from the program so far.
func (s *Session) Raw() []byte { return s.raw.Bytes() }

// Status returns the exit status collected so far.
func (s *Session) Status() ExitStatus { return s.status }

// Exited reports whether the program has ended, checking without blocking.
func (s *Session) Exited() bool {
	s.checkExit()
	return s.exited
}

func (s *Session) checkExit() {
	if s.exited || s.term == nil {
		return
	}
	if done, st := s.term.reap(); done {
		s.exited = true
		s.status = st
		s.log.Debug("program exited", "code", st.Code, "signal", st.Signal)
	}
}

// consume appends program output to the raw log and the emulator.
func (s *Session) consume(p []byte) {
	s.raw.Write(p)
	s.screen.Write(p)
}

// readOnce reads one available chunk of output. The returned slice is only
// valid until the next read.
func (s *Session) readOnce() ([]byte, error) {
	if s.hangup || s.term == nil {
		return nil, nil
	}
	n, err := s.term.read(s.buf)
	if errors.Is(err, io.EOF) {
		s.hangup = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	chunk := s.buf[:n]
	s.consume(chunk)
	return chunk, nil
}

// waitOutput waits up to d for the program to produce output. After a hangup
// it only sleeps, since no more output can arrive.
func (s *Session) waitOutput(d time.Duration) (bool, error) {
	if s.hangup || s.term == nil {
		time.Sleep(d)
		return false, nil
	}
	ready, err := pollRead([]int{s.term.fd()}, d)
	if err != nil {
		return false, err
	}
	return ready[0], nil
}

// drain reads output until none is immediately available.
func (s *Session) drain() error {
	for !s.hangup && s.term != nil {
		ready, err := s.waitOutput(0)
		if err != nil || !ready {
			return err
		}
		if _, err := s.readOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Send writes input to the program. Input for a program that has already
// ended is dropped. If the program stops reading and the write does not
// finish within Config.WriteTimeout, the rest is dropped and Send returns
// ErrInputDropped.
func (s *Session) Send(p []byte) error {
	if s.exited || s.hangup || s.term == nil {
		return nil
	}
	n, err := s.term.write(p, time.Now().Add(s.cfg.WriteTimeout))
	switch {
	case err == nil:
		return nil
	case s.Exited():
		return nil
	case errors.Is(err, errWriteStalled):
		s.log.Warn("program is not reading input", "written", n, "dropped", len(p)-n)
		return fmt.Errorf("%w: %d of %d bytes not written", ErrInputDropped, len(p)-n, len(p))
	}
	return fmt.Errorf("session: write: %w", err)
}

// Pump collects output for d. It returns early once the program has ended
// and its remaining output has been read.
func (s *Session) Pump(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.checkExit()
		if s.exited {
			return s.drain()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.drain()
		}
		ready, err := s.waitOutput(min(remaining, s.cfg.PollInterval))
		if err != nil {
			return err
		}
		if ready {
			if _, err := s.readOnce(); err != nil {
				return err
			}
		}
	}
}

// Finish ends a scripted session. It waits settle for the program to react
// to its last input, then keeps reading until the program ends, output goes
// quiet for one poll interval, or timeout elapses. A program still running
// after that is terminated.
func (s *Session) Finish(ctx context.Context, settle, timeout time.Duration) (ExitStatus, error) {
	if err := s.Pump(ctx, settle); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Debug("settle", "err", err)
	}

	deadline := time.Now().Add(timeout)
	for ctx.Err() == nil {
		s.checkExit()
		if s.exited {
			if err := s.drain(); err != nil {
				s.log.Debug("final drain", "err", err)
			}
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.log.Debug("drain timeout elapsed", "timeout", timeout)
			break
		}
		if s.hangup {
			// No more output can arrive; give the program one interval to exit.
			time.Sleep(min(remaining, s.cfg.PollInterval))
			s.checkExit()
			break
		}
		ready, err := s.waitOutput(min(remaining, s.cfg.PollInterval))
		if err != nil {
			s.log.Debug("drain", "err", err)
			break
		}
		if !ready {
			break
		}
		if _, err := s.readOnce(); err != nil {
			s.log.Debug("drain", "err", err)
			break
		}
	}

	st := s.Close()
	return st, ctx.Err()
}

// Resize applies a new window size to the pseudoterminal and replaces the
// emulator with a blank one of that size. Screen contents are not reflowed.
func (s *Session) Resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("session: invalid size %dx%d", rows, cols)
	}
	if s.term != nil && !s.hangup {
		if err := s.term.setSize(rows, cols); err != nil {
			return fmt.Errorf("session: resize: %w", err)
		}
	}
	s.cfg.Rows, s.cfg.Cols = rows, cols
	s.screen = screen.New(rows, cols, screen.WithCharset(s.cfg.Charset))
	s.log.Debug("resized", "rows", rows, "cols", cols)
	return nil
}

// Close terminates the program if it is still running, releases the
// pseudoterminal and returns the final exit status. Close is idempotent.
func (s *Session) Close() ExitStatus {
	if s.closed {
		return s.status
	}
	s.closed = true
	if s.term == nil {
		return s.status
	}
	s.checkExit()
	if !s.exited {
		s.status = s.term.terminate(s.cfg.KillGrace)
		s.log.Debug("program terminated", "code", s.status.Code, "signal", s.status.Signal)
	}
	if err := s.term.close(); err != nil {
		s.log.Debug("close pty", "err", err)
	}
	return s.status
}

// TerminalSize returns the size of the terminal on f, or the default 24x80
// when f is not a terminal or reports no size.
func TerminalSize(f *os.File) (rows, cols int) {
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return DefaultRows, DefaultCols
	}
	return h, w
}

// Interactive connects a session to the user's terminal.
type Interactive struct {
	// In is the real terminal input. Nil means os.Stdin.
	In *os.File
	// Out receives program output unchanged. Nil means os.Stdout.
	Out io.Writer
	// Resize delivers window size change notifications. Nil installs a
	// SIGWINCH handler for the duration of Interact.
	Resize <-chan os.Signal
	// OnInput is called with each chunk of user input after it has been
	// forwarded to the program.
	OnInput func(data []byte, at time.Time)
	// OnOutput is called after each chunk of program output has been applied
	// to the emulator.
	OnOutput func(scr *screen.Screen)
}
