package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/testty/internal/config"
	telem "github.com/timvw/testty/internal/otel"
	"github.com/timvw/testty/internal/player"
)

var (
	// Global flags.
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "testty",
	Short: "Test interactive terminal programs non-interactively",
	Long: `testty drives terminal programs through a pseudoterminal.

Use "testty record" to capture an interactive session as a replayable input
script plus golden screen snapshots, and "testty play" to replay a script
and compare the rendered screen against those snapshots.

Input scripts are plain text with bracketed keys:
  [enter] [tab] [esc] [backspace] [delete] [up] [down] [left] [right]
  [ctrl-X]              control key, e.g. [ctrl-c]
  [sleep:N]             wait N milliseconds
  [expect_screen:FILE]  compare the screen with a snapshot file`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, player.ErrExpectationFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log session activity to stderr")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("TESTTY_CONFIG", ""), "config file (default: .testty.yaml, .testty.toml or ~/.config/testty/config.*)")
}

// newLogger returns the logger handed to the library packages.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads configuration: defaults -> config file -> env vars.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ConfigFile != "" && flagVerbose {
		fmt.Fprintf(os.Stderr, "config: loaded %s\n", cfg.ConfigFile)
	}
	return cfg, nil
}

// initTelemetry starts OTEL export when an endpoint is configured. Failures
// degrade to disabled telemetry with a warning.
func initTelemetry(ctx context.Context, cfg *config.Config) *telem.Telemetry {
	// Wire build version into OTEL service metadata
	telem.Version = Version

	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
		return telem.Disabled()
	}
	return tel
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
