// Package recorder captures an interactive session as a replayable token
// script plus a snapshot file for every screen that followed an Enter.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/testty/internal/model"
	telem "github.com/timvw/testty/internal/otel"
	"github.com/timvw/testty/internal/screen"
	"github.com/timvw/testty/internal/session"
	"github.com/timvw/testty/internal/snapshot"
	"github.com/timvw/testty/internal/token"
)

// ErrDirLocked is returned when another recording holds the output directory.
var ErrDirLocked = errors.New("output directory is locked by another recording")

const lockName = ".testty.lock"

// Config describes one recording.
type Config struct {
	Command []string
	// OutputDir receives the snapshot files. Empty means the current directory.
	OutputDir string
	// SleepThreshold is the smallest input pause recorded as a sleep token.
	SleepThreshold time.Duration

	// In and Out are the user's terminal. Nil means os.Stdin and os.Stdout.
	In  *os.File
	Out io.Writer
	// Rows and Cols override the size read from In.
	Rows int
	Cols int
	// Resize signals a window size change of In. Nil means SIGWINCH.
	Resize <-chan os.Signal

	Dir     string
	Env     []string
	Charset screen.Charset

	Logger    *slog.Logger
	Telemetry *telem.Telemetry
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.SleepThreshold <= 0 {
		c.SleepThreshold = token.DefaultSleepThreshold
	}
	if c.In == nil {
		c.In = os.Stdin
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Rows <= 0 || c.Cols <= 0 {
		c.Rows, c.Cols = session.TerminalSize(c.In)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Telemetry == nil {
		c.Telemetry = telem.Disabled()
	}
}

// recording accumulates tokens while the session runs.
type recording struct {
	ctx context.Context
	cfg *Config
	log *slog.Logger

	classifier *token.Classifier
	tokens     []token.Token
	count      int
	// pending holds snapshot numbers whose Enter has been sent but whose
	// resulting output has not been seen yet.
	pending   []int
	snapshots []string
	err       error
}

// Record runs the program on the user's terminal until it exits or the user
// interrupts it. Every keystroke is classified into tokens; after each Enter
// the next screen update is saved as snapshotNNN.txt in the output
// directory and an ExpectScreen token for it follows the Enter in the
// script.
//
// An Enter that produces no further output gets no snapshot.
func Record(ctx context.Context, cfg Config) (*model.RecordingResult, error) {
	cfg.applyDefaults()
	log := cfg.Logger
	tel := cfg.Telemetry
	began := time.Now()

	ctx, span := tel.Tracer.Start(ctx, "testty.record", trace.WithAttributes(
		attribute.String("session.id", tel.SessionID),
		attribute.String("command", strings.Join(cfg.Command, " ")),
		attribute.String("output_dir", cfg.OutputDir),
	))
	defer span.End()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.OutputDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("recorder: lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("recorder: %s: %w", cfg.OutputDir, ErrDirLocked)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Debug("unlock output directory", "err", err)
		}
		_ = os.Remove(lock.Path())
	}()

	s, err := session.Start(ctx, session.Config{
		Command: cfg.Command,
		Rows:    cfg.Rows,
		Cols:    cfg.Cols,
		Dir:     cfg.Dir,
		Env:     cfg.Env,
		Charset: cfg.Charset,
		Logger:  log,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer s.Close()

	r := &recording{
		ctx:        ctx,
		cfg:        &cfg,
		log:        log,
		classifier: token.NewClassifier(cfg.SleepThreshold),
	}
	ierr := s.Interact(ctx, session.Interactive{
		In:       cfg.In,
		Out:      cfg.Out,
		Resize:   cfg.Resize,
		OnInput:  r.input,
		OnOutput: r.output,
	})
	st := s.Close()
	if len(r.pending) > 0 {
		log.Debug("dropping snapshots without output", "count", len(r.pending))
	}

	// The replay command uses the size the session ended with.
	rows, cols := s.Screen().Size()
	res := &model.RecordingResult{
		Command:   cfg.Command,
		Rows:      rows,
		Cols:      cols,
		Input:     token.Format(r.tokens),
		OutputDir: cfg.OutputDir,
		Snapshots: r.snapshots,
		ExitCode:  st.Code,
	}
	if res.Snapshots == nil {
		res.Snapshots = []string{}
	}

	outcome := "exited"
	if st.Terminated {
		outcome = "terminated"
	}
	tel.Metrics.RecordSession(ctx, "record", outcome, time.Since(began))
	span.SetAttributes(
		attribute.Int("tokens", len(r.tokens)),
		attribute.Int("snapshots", len(r.snapshots)),
	)

	if err := errors.Join(ierr, r.err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}

func (r *recording) input(data []byte, at time.Time) {
	for _, t := range r.classifier.Classify(data, at) {
		r.tokens = append(r.tokens, t)
		r.cfg.Telemetry.Metrics.RecordToken(r.ctx, kind(t))
		if token.IsEnter(t) {
			r.count++
			r.pending = append(r.pending, r.count)
		}
	}
}

func (r *recording) output(scr *screen.Screen) {
	if len(r.pending) == 0 {
		return
	}
	text := scr.Text()
	for _, n := range r.pending {
		name := snapshot.Name(n)
		if err := snapshot.Write(r.cfg.OutputDir, name, text); err != nil {
			r.log.Warn("write snapshot", "snapshot", name, "err", err)
			r.err = errors.Join(r.err, err)
			continue
		}
		r.log.Debug("snapshot written", "snapshot", name)
		r.cfg.Telemetry.Metrics.RecordSnapshot(r.ctx)
		r.snapshots = append(r.snapshots, name)
		r.tokens = append(r.tokens, token.ExpectScreen(name))
	}
	r.pending = r.pending[:0]
}

func kind(t token.Token) string {
	switch t.(type) {
	case token.Sleep:
		return "sleep"
	case token.ExpectScreen:
		return "expect"
	default:
		return "literal"
	}
}
