//go:build !unix

package session

import (
	"os/exec"
	"time"
)

const ptySupported = false

func startTerminal(*exec.Cmd, int, int) (terminal, error) {
	return nil, ErrUnsupportedPlatform
}

func pollRead([]int, time.Duration) ([]bool, error) {
	return nil, ErrUnsupportedPlatform
}

func readInput(int, []byte) (int, error) {
	return 0, ErrUnsupportedPlatform
}
