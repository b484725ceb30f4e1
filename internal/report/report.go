// Package report renders human-readable summaries of recordings and
// playbacks. Colour is used only when the destination is a terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/timvw/testty/internal/model"
)

const ruleWidth = 60

// Reporter writes reports to one destination.
type Reporter struct {
	w  io.Writer
	st styles
}

// New returns a Reporter writing to w with the given theme.
func New(w io.Writer, theme Theme) *Reporter {
	return &Reporter{w: w, st: newStyles(lipgloss.NewRenderer(w), theme)}
}

// Recording writes the summary printed after a recording: terminal size,
// the snapshot files and the header for the replay command that follows on
// standard output.
func (r *Reporter) Recording(res *model.RecordingResult) {
	rule := r.st.rule.Render(strings.Repeat("=", ruleWidth))

	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, rule)
	fmt.Fprintln(r.w, r.st.title.Render("Recording complete!"))
	fmt.Fprintf(r.w, "Terminal size: %d rows x %d cols\n", res.Rows, res.Cols)
	if len(res.Snapshots) > 0 {
		fmt.Fprintf(r.w, "Saved %d snapshot(s) in %s:\n", len(res.Snapshots), res.OutputDir)
		for _, name := range res.Snapshots {
			fmt.Fprintf(r.w, "  - %s\n", name)
		}
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		fmt.Fprintln(r.w, r.st.warn.Render(fmt.Sprintf("Program exited with code %d", *res.ExitCode)))
	}
	fmt.Fprintln(r.w, rule)
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "Replay command:")
}

// Play writes one line per expectation, a diff for every mismatch, how the
// program ended and a pass/fail total.
func (r *Reporter) Play(res *model.SessionResult) {
	for _, e := range res.Expectations {
		if e.Passed {
			fmt.Fprintf(r.w, "%s %s\n", r.st.pass.Render("PASS"), e.Snapshot)
			continue
		}
		fmt.Fprintf(r.w, "%s %s\n", r.st.fail.Render("FAIL"), e.Snapshot)
		if e.Error != "" {
			fmt.Fprintf(r.w, "  %s\n", r.st.dim.Render(e.Error))
			continue
		}
		r.diff(e)
	}

	fmt.Fprintln(r.w, r.st.dim.Render(exitLine(res)))

	failed := len(res.Failures())
	switch {
	case len(res.Expectations) == 0:
	case failed == 0:
		fmt.Fprintln(r.w, r.st.pass.Render(fmt.Sprintf("%d of %d expectations passed", len(res.Expectations), len(res.Expectations))))
	default:
		fmt.Fprintln(r.w, r.st.fail.Render(fmt.Sprintf("%d of %d expectations failed", failed, len(res.Expectations))))
	}
}

func (r *Reporter) diff(e model.ExpectationResult) {
	for _, line := range strings.SplitAfter(Diff(e.Snapshot, e.Expected, e.Actual), "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			text = r.st.dim.Render(text)
		case strings.HasPrefix(line, "-"):
			text = r.st.fail.UnsetBold().Render(text)
		case strings.HasPrefix(line, "+"):
			text = r.st.pass.UnsetBold().Render(text)
		}
		fmt.Fprintf(r.w, "  %s\n", text)
	}
}

// Diff returns a unified diff from the snapshot content to the screen.
func Diff(name, expected, actual string) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: name,
		ToFile:   "screen",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("diff failed: %v\n", err)
	}
	return out
}

func exitLine(res *model.SessionResult) string {
	switch {
	case res.TimedOut && res.Signal != "":
		return fmt.Sprintf("Program did not exit and was stopped with %s", res.Signal)
	case res.TimedOut && res.ExitCode != nil:
		return fmt.Sprintf("Program did not exit and was stopped (exit code %d)", *res.ExitCode)
	case res.TimedOut:
		return "Program did not exit and was stopped"
	case res.ExitCode != nil:
		return fmt.Sprintf("Program exited with code %d", *res.ExitCode)
	case res.Signal != "":
		return fmt.Sprintf("Program was killed by %s", res.Signal)
	default:
		return "Program exited"
	}
}
