package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/testty/internal/recorder"
	"github.com/timvw/testty/internal/report"
)

var (
	flagOutputDir      string
	flagSleepThreshold int
	flagProgram        string
	flagRecordTheme    string
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] -- command [args...]",
	Short: "Record an interactive session as a replayable script",
	Long: `Run a program on your terminal and record what you type.

Pauses of at least --sleep-threshold become [sleep:N] tokens. After every
Enter, the next screen the program draws is saved as snapshotNNN.txt in the
output directory and an [expect_screen:...] token is added to the script.

When the program exits, a summary is printed to stderr and a ready-to-run
"testty play" command to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd, args)
	},
}

func init() {
	recordCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory for snapshot files (default: .)")
	recordCmd.Flags().IntVar(&flagSleepThreshold, "sleep-threshold", 100, "shortest pause in ms recorded as a sleep token (0 records none)")
	recordCmd.Flags().StringVar(&flagProgram, "program", "testty", "program name used in the printed replay command")
	recordCmd.Flags().StringVar(&flagRecordTheme, "theme", "", "summary color theme: dark, light")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Signals are handled by the session while the terminal is in raw mode.
	ctx := context.Background()
	tel := initTelemetry(ctx, cfg)
	defer tel.Shutdown(ctx)

	outputDir := cfg.OutputDir
	if flagOutputDir != "" {
		outputDir = flagOutputDir
	}
	threshold := cfg.SleepDuration
	if cmd.Flags().Changed("sleep-threshold") {
		threshold = time.Duration(flagSleepThreshold) * time.Millisecond
	}
	if threshold == 0 {
		// Disabled: no pause is long enough.
		threshold = time.Duration(math.MaxInt64)
	}

	res, err := recorder.Record(ctx, recorder.Config{
		Command:        args,
		OutputDir:      outputDir,
		SleepThreshold: threshold,
		Charset:        cfg.CharsetValue,
		Logger:         newLogger(),
		Telemetry:      tel,
	})
	if err != nil && res == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	theme := cfg.Theme
	if flagRecordTheme != "" {
		theme = flagRecordTheme
	}
	report.New(os.Stderr, report.ThemeByName(theme)).Recording(res)
	fmt.Println(res.ReplayCommand(flagProgram))
	return nil
}
