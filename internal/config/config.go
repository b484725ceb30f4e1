// Package config loads testty configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (TESTTY_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order, unless a path is given explicitly:
//  1. .testty.yaml, then .testty.toml in the current directory
//  2. ~/.config/testty/config.yaml, then ~/.config/testty/config.toml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/timvw/testty/internal/screen"
)

// Config holds all testty configuration.
type Config struct {
	// Terminal size used by play.
	Rows int `yaml:"rows" toml:"rows"`
	Cols int `yaml:"cols" toml:"cols"`

	// Playback timing, Go duration strings
	Delay   string `yaml:"delay" toml:"delay"`     // pause after each literal token, e.g. "10ms"
	Timeout string `yaml:"timeout" toml:"timeout"` // final drain bound, e.g. "5s"

	// Recording
	SleepThreshold string `yaml:"sleep_threshold" toml:"sleep_threshold"` // "off" records no sleeps
	OutputDir      string `yaml:"output_dir" toml:"output_dir"`

	SnapshotDir string `yaml:"snapshot_dir" toml:"snapshot_dir"`
	Charset     string `yaml:"charset" toml:"charset"` // "utf-8" (default) or "latin1"
	Theme       string `yaml:"theme" toml:"theme"`     // report theme: "dark" (default) or "light"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint" toml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers" toml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed values (not from file, set after loading)
	DelayDuration   time.Duration  `yaml:"-" toml:"-"`
	TimeoutDuration time.Duration  `yaml:"-" toml:"-"`
	SleepDuration   time.Duration  `yaml:"-" toml:"-"` // 0 means sleeps are not recorded
	CharsetValue    screen.Charset `yaml:"-" toml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-" toml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Rows:           24,
		Cols:           80,
		Delay:          "10ms",
		Timeout:        "5s",
		SleepThreshold: "100ms",
		OutputDir:      ".",
		SnapshotDir:    ".",
		Charset:        string(screen.UTF8),
		Theme:          "dark",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values. A non-empty path
// must exist; otherwise the default locations are searched.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		path, data, err = findConfigFile()
	}
	if err == nil {
		fileCfg, err := decode(path, data)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, fileCfg)
	}

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve parses the string settings into their typed counterparts.
func (c *Config) resolve() error {
	var err error
	c.DelayDuration, err = parseDurationOrDisable(c.Delay, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid delay %q: %w", c.Delay, err)
	}
	c.TimeoutDuration, err = parseDurationOrDisable(c.Timeout, 5*time.Second)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	c.SleepDuration, err = parseDurationOrDisable(c.SleepThreshold, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid sleep threshold %q: %w", c.SleepThreshold, err)
	}
	var ok bool
	if c.CharsetValue, ok = screen.ParseCharset(c.Charset); !ok {
		return fmt.Errorf("invalid charset %q: want utf-8 or latin1", c.Charset)
	}
	switch c.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("invalid theme %q: want dark or light", c.Theme)
	}
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", c.Rows, c.Cols)
	}
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	candidates := []string{".testty.yaml", ".testty.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "testty")
		candidates = append(candidates,
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "config.toml"))
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, errors.New("no config file found")
}

// decode parses data as TOML when path ends in .toml and as YAML otherwise.
func decode(path string, data []byte) (*Config, error) {
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Rows > 0 {
		cfg.Rows = file.Rows
	}
	if file.Cols > 0 {
		cfg.Cols = file.Cols
	}
	if file.Delay != "" {
		cfg.Delay = file.Delay
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.SleepThreshold != "" {
		cfg.SleepThreshold = file.SleepThreshold
	}
	if file.OutputDir != "" {
		cfg.OutputDir = file.OutputDir
	}
	if file.SnapshotDir != "" {
		cfg.SnapshotDir = file.SnapshotDir
	}
	if file.Charset != "" {
		cfg.Charset = file.Charset
	}
	if file.Theme != "" {
		cfg.Theme = file.Theme
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	for _, v := range []struct {
		key string
		dst *int
	}{
		{"TESTTY_ROWS", &cfg.Rows},
		{"TESTTY_COLS", &cfg.Cols},
	} {
		if s := os.Getenv(v.key); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", v.key, s, err)
			}
			*v.dst = n
		}
	}
	if v := os.Getenv("TESTTY_DELAY"); v != "" {
		cfg.Delay = v
	}
	if v := os.Getenv("TESTTY_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("TESTTY_SLEEP_THRESHOLD"); v != "" {
		cfg.SleepThreshold = v
	}
	if v := os.Getenv("TESTTY_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("TESTTY_SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := os.Getenv("TESTTY_CHARSET"); v != "" {
		cfg.Charset = v
	}
	if v := os.Getenv("TESTTY_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	return nil
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
