//go:build unix

package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const ptySupported = true

type ptyTerminal struct {
	ptmx   *os.File
	master int
	proc   *os.Process
}

// startTerminal starts c with a new pseudoterminal as its controlling
// terminal and standard streams. The master descriptor is switched to
// non-blocking mode and only used through raw system calls from here on.
func startTerminal(c *exec.Cmd, rows, cols int) (terminal, error) {
	ptmx, err := pty.StartWithSize(c, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}
	master := int(ptmx.Fd())
	if err := unix.SetNonblock(master, true); err != nil {
		_ = c.Process.Kill()
		_ = ptmx.Close()
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	return &ptyTerminal{ptmx: ptmx, master: master, proc: c.Process}, nil
}

func (t *ptyTerminal) fd() int { return t.master }

func (t *ptyTerminal) read(p []byte) (int, error) {
	n, err := unix.Read(t.master, p)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, nil
	case errors.Is(err, unix.EIO):
		// Linux reports EIO once every slave descriptor is closed.
		return 0, io.EOF
	case err != nil:
		return 0, err
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (t *ptyTerminal) write(p []byte, deadline time.Time) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(t.master, p[written:])
		switch {
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return written, errWriteStalled
			}
			fds := []unix.PollFd{{Fd: int32(t.master), Events: unix.POLLOUT}}
			wait := min(remaining, DefaultPollInterval)
			if _, err := unix.Poll(fds, int(wait.Milliseconds())+1); err != nil && !errors.Is(err, unix.EINTR) {
				return written, err
			}
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

func (t *ptyTerminal) setSize(rows, cols int) error {
	return unix.IoctlSetWinsize(t.master, unix.TIOCSWINSZ, &unix.Winsize{Row: uint16(rows), Col: uint16(cols)})
}

func (t *ptyTerminal) reap() (bool, ExitStatus) {
	var ws unix.WaitStatus
	pid, err := unix.Wait4(t.proc.Pid, &ws, unix.WNOHANG, nil)
	switch {
	case errors.Is(err, unix.ECHILD):
		// Already collected elsewhere: the program is gone either way.
		return true, ExitStatus{Exited: true}
	case err != nil, pid == 0:
		return false, ExitStatus{}
	}
	st := statusOf(ws)
	st.Exited = true
	return true, st
}

func (t *ptyTerminal) terminate(grace time.Duration) ExitStatus {
	if err := unix.Kill(t.proc.Pid, unix.SIGTERM); errors.Is(err, unix.ESRCH) {
		done, st := t.reap()
		if done {
			return st
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if done, st := t.reap(); done {
			st.Exited = false
			st.Terminated = true
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = unix.Kill(t.proc.Pid, unix.SIGKILL)
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(t.proc.Pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return ExitStatus{Terminated: true}
		}
		break
	}
	st := statusOf(ws)
	st.Terminated = true
	return st
}

func (t *ptyTerminal) close() error {
	_ = t.proc.Release()
	return t.ptmx.Close()
}

func statusOf(ws unix.WaitStatus) ExitStatus {
	var st ExitStatus
	switch {
	case ws.Exited():
		code := ws.ExitStatus()
		st.Code = &code
	case ws.Signaled():
		st.Signal = unix.SignalName(ws.Signal())
	}
	return st
}

// pollRead waits up to timeout for any of fds to become readable. Negative
// descriptors are ignored. Hangups and errors count as readable so the next
// read reports them.
func pollRead(fds []int, timeout time.Duration) ([]bool, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	ms := int((timeout + time.Millisecond - 1) / time.Millisecond)
	ready := make([]bool, len(fds))
	if _, err := unix.Poll(pfds, ms); err != nil {
		if errors.Is(err, unix.EINTR) {
			return ready, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	for i, p := range pfds {
		ready[i] = fds[i] >= 0 && p.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	}
	return ready, nil
}

// readInput reads from a descriptor that pollRead reported readable.
func readInput(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}
