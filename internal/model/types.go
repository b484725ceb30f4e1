package model

import (
	"fmt"
	"strings"
)

// ExpectationResult is the outcome of one screen assertion during playback.
type ExpectationResult struct {
	// Snapshot is the snapshot file name as written in the script.
	Snapshot string `json:"snapshot"`
	// Actual is the rendered screen at the assertion point.
	Actual string `json:"actual"`
	// Expected is the snapshot file content. Empty when the file could not be read.
	Expected string `json:"expected,omitempty"`
	// Passed is true when Actual equals Expected exactly.
	Passed bool `json:"passed"`
	// Error describes why the snapshot could not be loaded.
	Error string `json:"error,omitempty"`
}

// SessionResult is the outcome of one playback.
type SessionResult struct {
	// Command is the program that was driven.
	Command []string `json:"command"`
	// Rows and Cols are the terminal dimensions used.
	Rows int `json:"rows"`
	Cols int `json:"cols"`

	// Output is the rendered screen text at the end of the session.
	Output string `json:"output"`
	// Raw is every byte the program wrote to the terminal.
	Raw []byte `json:"-"`

	// DidExit is true when the program exited on its own.
	DidExit bool `json:"did_exit"`
	// ExitCode is set when the program terminated normally, including
	// normal exits observed after a forced termination request.
	ExitCode *int `json:"exit_code"`
	// TimedOut is true when the program had to be terminated.
	TimedOut bool `json:"timed_out"`
	// Signal names the signal that killed the program, if any.
	Signal string `json:"signal,omitempty"`

	// Expectations holds one entry per screen assertion, in script order.
	Expectations []ExpectationResult `json:"expectations"`

	// DurationMs is the wall-clock time of the whole session.
	DurationMs int64 `json:"duration_ms"`
}

// Passed reports whether every expectation passed. A session without
// expectations passes.
func (r *SessionResult) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed expectations in script order.
func (r *SessionResult) Failures() []ExpectationResult {
	var failed []ExpectationResult
	for _, e := range r.Expectations {
		if !e.Passed {
			failed = append(failed, e)
		}
	}
	return failed
}

// RecordingResult is the outcome of one interactive recording.
type RecordingResult struct {
	// Command is the program that was recorded.
	Command []string `json:"command"`
	// Rows and Cols are the terminal dimensions when the recording started.
	Rows int `json:"rows"`
	Cols int `json:"cols"`
	// Input is the recorded script in token syntax.
	Input string `json:"input"`
	// OutputDir is the directory the snapshots were written to.
	OutputDir string `json:"output_dir"`
	// Snapshots lists the written snapshot file names in order.
	Snapshots []string `json:"snapshots"`
	// ExitCode is the program's exit status, when it exited normally.
	ExitCode *int `json:"exit_code"`
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ReplayCommand returns a shell command line that replays the recording
// with the given player program (e.g. "testty").
func (r *RecordingResult) ReplayCommand(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s play --run %s --rows %d --cols %d --input %s",
		program, ShellQuote(strings.Join(r.Command, " ")), r.Rows, r.Cols, ShellQuote(r.Input))
	if len(r.Snapshots) > 0 {
		dir := r.OutputDir
		if dir == "" {
			dir = "."
		}
		fmt.Fprintf(&b, " --snapshot-dir %s", ShellQuote(dir))
	}
	return b.String()
}
