package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/testty/internal/config"
	"github.com/timvw/testty/internal/model"
	"github.com/timvw/testty/internal/player"
	"github.com/timvw/testty/internal/report"
	"github.com/timvw/testty/internal/token"
)

var (
	flagRun         string
	flagInput       string
	flagInputFile   string
	flagRows        int
	flagCols        int
	flagDelay       int
	flagTimeout     float64
	flagSnapshotDir string
	flagOutput      string
	flagFormat      string
	flagPlayTheme   string
	flagUpdate      bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Replay an input script against a program",
	Long: `Run a program on a pseudoterminal, send it the input script and print
the final screen.

Every [expect_screen:FILE] token compares the screen at that point with
FILE in the snapshot directory. Mismatches are reported on stderr with a
diff and make the command exit with status 1; the remaining input still
runs. With --update the snapshot files are rewritten instead.

Examples:
  testty play --run "./dim test.txt" --input "hello[ctrl-s][ctrl-q]"
  testty play --run "vim" --input "iHello World[esc]:wq[enter]" --delay 50
  testty play --run "./app" --input-file session.txt --snapshot-dir golden`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd)
	},
}

func init() {
	playCmd.Flags().StringVar(&flagRun, "run", "", "command to run (split on whitespace)")
	playCmd.Flags().StringVar(&flagInput, "input", "", "input script")
	playCmd.Flags().StringVar(&flagInputFile, "input-file", "", "read the input script from a file")
	playCmd.Flags().IntVar(&flagRows, "rows", 24, "terminal rows")
	playCmd.Flags().IntVar(&flagCols, "cols", 80, "terminal columns")
	playCmd.Flags().IntVar(&flagDelay, "delay", 10, "delay in ms after each keystroke (0 sends without pause)")
	playCmd.Flags().Float64Var(&flagTimeout, "timeout", 5.0, "seconds to wait for the program after the last input (0 stops after the settle period)")
	playCmd.Flags().StringVar(&flagSnapshotDir, "snapshot-dir", "", "directory holding snapshot files (default: .)")
	playCmd.Flags().StringVar(&flagOutput, "output", "", "file to write the final screen to (default: stdout)")
	playCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, json")
	playCmd.Flags().StringVar(&flagPlayTheme, "theme", "", "report color theme: dark, light")
	playCmd.Flags().BoolVar(&flagUpdate, "update", false, "rewrite snapshot files with the current screen")
	_ = playCmd.MarkFlagRequired("run")
	playCmd.MarkFlagsMutuallyExclusive("input", "input-file")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command) error {
	if flagFormat != "text" && flagFormat != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", flagFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	input := flagInput
	if flagInputFile != "" {
		data, err := os.ReadFile(flagInputFile)
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}
		input = strings.TrimRight(string(data), "\r\n")
	}

	// Malformed input is rejected before anything is started.
	tokens, err := token.Parse(input)
	if err != nil {
		return fmt.Errorf("parsing input string: %w", err)
	}

	command := strings.Fields(flagRun)
	if len(command) == 0 {
		return fmt.Errorf("--run: empty command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := initTelemetry(ctx, cfg)
	defer tel.Shutdown(context.Background())

	pcfg := playConfig(cmd, cfg, command, tokens)
	pcfg.Logger = newLogger()
	pcfg.Telemetry = tel

	res, err := player.Play(ctx, pcfg)
	if err != nil {
		return err
	}

	if err := writeResult(res); err != nil {
		return err
	}

	theme := cfg.Theme
	if flagPlayTheme != "" {
		theme = flagPlayTheme
	}
	if len(res.Expectations) > 0 || flagVerbose {
		report.New(os.Stderr, report.ThemeByName(theme)).Play(res)
	}

	if !res.Passed() {
		return player.ErrExpectationFailed
	}
	return nil
}

// playConfig merges explicitly set flags over the loaded configuration.
func playConfig(cmd *cobra.Command, cfg *config.Config, command []string, tokens []token.Token) player.Config {
	pcfg := player.Config{
		Command:     command,
		Tokens:      tokens,
		Rows:        cfg.Rows,
		Cols:        cfg.Cols,
		Delay:       cfg.DelayDuration,
		Timeout:     cfg.TimeoutDuration,
		SnapshotDir: cfg.SnapshotDir,
		Charset:     cfg.CharsetValue,
		Update:      flagUpdate,
	}
	flags := cmd.Flags()
	if flags.Changed("rows") {
		pcfg.Rows = flagRows
	}
	if flags.Changed("cols") {
		pcfg.Cols = flagCols
	}
	if flags.Changed("delay") {
		pcfg.Delay = time.Duration(flagDelay) * time.Millisecond
	}
	if flags.Changed("timeout") {
		pcfg.Timeout = time.Duration(flagTimeout * float64(time.Second))
	}
	if flagSnapshotDir != "" {
		pcfg.SnapshotDir = flagSnapshotDir
	}
	return pcfg
}

// writeResult prints the final screen, or the whole result as JSON, to
// --output or stdout.
func writeResult(res *model.SessionResult) error {
	var w io.Writer = os.Stdout
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out := res.Output
	if flagOutput == "" || (out != "" && !strings.HasSuffix(out, "\n")) {
		out += "\n"
	}
	_, err := io.WriteString(w, out)
	return err
}
