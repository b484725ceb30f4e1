//go:build unix

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Interact forwards the user's terminal to the program until the program
// ends, the context is cancelled, or the process receives SIGINT, SIGTERM
// or SIGHUP. The terminal on in is put into raw mode for the duration and
// always restored before Interact returns.
//
// Window size changes of the real terminal are applied to the
// pseudoterminal, and the emulator is replaced by a blank one of the new
// size.
func (s *Session) Interact(ctx context.Context, iv Interactive) error {
	if iv.In == nil {
		iv.In = os.Stdin
	}
	if iv.Out == nil {
		iv.Out = os.Stdout
	}
	if s.term == nil {
		// The program never started; show its diagnostic.
		_, err := iv.Out.Write(s.raw.Bytes())
		return err
	}
	inFd := int(iv.In.Fd())

	if term.IsTerminal(inFd) {
		old, err := term.MakeRaw(inFd)
		if err != nil {
			return fmt.Errorf("session: raw mode: %w", err)
		}
		defer func() {
			if err := term.Restore(inFd, old); err != nil {
				s.log.Warn("restore terminal", "err", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(stop)

	resize := iv.Resize
	if resize == nil {
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, unix.SIGWINCH)
		defer signal.Stop(winch)
		resize = winch
	}

	pollIn := inFd
	in := make([]byte, readSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-stop:
			s.log.Debug("interrupted", "signal", sig)
			return nil
		case <-resize:
			rows, cols := TerminalSize(iv.In)
			if err := s.Resize(rows, cols); err != nil {
				s.log.Warn("resize", "err", err)
			}
		default:
		}

		s.checkExit()
		if s.exited || s.hangup {
			if err := s.drainTo(iv); err != nil {
				return err
			}
			if s.hangup && !s.exited {
				// Output side closed while the program lives on.
				time.Sleep(s.cfg.PollInterval)
				s.checkExit()
			}
			return nil
		}

		ready, err := pollRead([]int{pollIn, s.term.fd()}, s.cfg.PollInterval)
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}

		if ready[0] {
			n, err := readInput(pollIn, in)
			switch {
			case errors.Is(err, io.EOF):
				// Input closed: keep relaying output until the program ends.
				pollIn = -1
			case err != nil:
				return fmt.Errorf("session: read input: %w", err)
			case n > 0:
				err := s.Send(in[:n])
				switch {
				case errors.Is(err, ErrInputDropped):
					// Already logged; keystrokes the program never saw are not reported.
				case err != nil:
					return err
				case iv.OnInput != nil:
					iv.OnInput(in[:n], time.Now())
				}
			}
		}

		if ready[1] {
			if err := s.relay(iv); err != nil {
				return err
			}
		}
	}
}

// relay reads one chunk of program output and passes it on.
func (s *Session) relay(iv Interactive) error {
	chunk, err := s.readOnce()
	if err != nil || len(chunk) == 0 {
		return err
	}
	if _, err := iv.Out.Write(chunk); err != nil {
		return fmt.Errorf("session: write output: %w", err)
	}
	if iv.OnOutput != nil {
		iv.OnOutput(s.screen)
	}
	return nil
}

func (s *Session) drainTo(iv Interactive) error {
	for !s.hangup {
		ready, err := s.waitOutput(0)
		if err != nil || !ready {
			return err
		}
		if err := s.relay(iv); err != nil {
			return err
		}
	}
	return nil
}
