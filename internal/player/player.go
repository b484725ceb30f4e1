// Package player replays a token script against a program and verifies
// screen expectations along the way.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

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

// ErrExpectationFailed is returned by callers that turn a failed expectation
// into a command failure. Play itself reports failures in the result.
var ErrExpectationFailed = errors.New("screen expectation failed")

const (
	DefaultDelay   = 10 * time.Millisecond
	DefaultTimeout = 5 * time.Second

	// DefaultStartup gives the program time to draw its first screen.
	DefaultStartup = 100 * time.Millisecond
	// DefaultSettle gives the program time to react to the last token.
	DefaultSettle = 200 * time.Millisecond
)

// Config describes one playback.
type Config struct {
	Command []string
	Tokens  []token.Token

	// Delay is the pause after each literal token. Zero sends the next token
	// right away; a negative value selects DefaultDelay.
	Delay time.Duration
	// Timeout bounds the final drain after the last token. Zero ends the
	// drain after the settle period; a negative value selects DefaultTimeout.
	Timeout time.Duration
	Startup time.Duration
	Settle  time.Duration

	Rows int
	Cols int
	// SnapshotDir holds the files named by ExpectScreen tokens.
	SnapshotDir string
	// Update rewrites snapshot files with the current screen instead of
	// comparing against them.
	Update bool

	Dir     string
	Env     []string
	Charset screen.Charset

	Logger    *slog.Logger
	Telemetry *telem.Telemetry
}

func (c *Config) applyDefaults() {
	if c.Delay < 0 {
		c.Delay = DefaultDelay
	}
	if c.Timeout < 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Startup <= 0 {
		c.Startup = DefaultStartup
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Rows <= 0 {
		c.Rows = session.DefaultRows
	}
	if c.Cols <= 0 {
		c.Cols = session.DefaultCols
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "."
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Telemetry == nil {
		c.Telemetry = telem.Disabled()
	}
}

// Play runs the program, feeds it the tokens in order and returns the
// final screen together with the outcome of every ExpectScreen token.
//
// Failed expectations do not stop playback and are not errors. If the
// program exits early, the remaining tokens are dropped. An error is only
// returned when the session cannot be set up or the context ends.
//
// The screen is captured just before the last token is sent. When the
// final screen turns out blank (typically because the last token quit the
// program and it cleared the terminal), that capture becomes the output.
func Play(ctx context.Context, cfg Config) (*model.SessionResult, error) {
	cfg.applyDefaults()
	log := cfg.Logger
	tel := cfg.Telemetry
	began := time.Now()

	ctx, span := tel.Tracer.Start(ctx, "testty.play", trace.WithAttributes(
		attribute.String("session.id", tel.SessionID),
		attribute.String("command", strings.Join(cfg.Command, " ")),
		attribute.Int("tokens", len(cfg.Tokens)),
		attribute.Int("rows", cfg.Rows),
		attribute.Int("cols", cfg.Cols),
	))
	defer span.End()

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

	res := &model.SessionResult{
		Command:      cfg.Command,
		Rows:         cfg.Rows,
		Cols:         cfg.Cols,
		Expectations: []model.ExpectationResult{},
	}

	if err := s.Pump(ctx, cfg.Startup); err != nil {
		return nil, err
	}

	var beforeLast string
	for i, tok := range cfg.Tokens {
		if s.Exited() {
			log.Debug("program exited, dropping remaining tokens", "remaining", len(cfg.Tokens)-i)
			break
		}
		if i == len(cfg.Tokens)-1 {
			beforeLast = s.Text()
		}

		switch t := tok.(type) {
		case token.Literal:
			tel.Metrics.RecordToken(ctx, "literal")
			if err := s.Send(t); errors.Is(err, session.ErrInputDropped) {
				span.AddEvent("input_dropped")
			} else if err != nil {
				return nil, err
			}
			if err := s.Pump(ctx, cfg.Delay); err != nil {
				return nil, err
			}
		case token.Sleep:
			tel.Metrics.RecordToken(ctx, "sleep")
			if err := s.Pump(ctx, t.Duration()); err != nil {
				return nil, err
			}
		case token.ExpectScreen:
			tel.Metrics.RecordToken(ctx, "expect")
			exp := expect(cfg, string(t), s.Text(), log)
			tel.Metrics.RecordExpectation(ctx, exp.Passed)
			if cfg.Update {
				tel.Metrics.RecordSnapshot(ctx)
			}
			span.AddEvent("expect_screen", trace.WithAttributes(
				attribute.String("snapshot", exp.Snapshot),
				attribute.Bool("passed", exp.Passed),
			))
			res.Expectations = append(res.Expectations, exp)
		default:
			return nil, fmt.Errorf("player: unsupported token %T", tok)
		}
	}

	st, err := s.Finish(ctx, cfg.Settle, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	res.Output = s.Text()
	if strings.TrimSpace(res.Output) == "" && beforeLast != "" {
		log.Debug("final screen blank, using capture taken before the last token")
		res.Output = beforeLast
	}
	res.Raw = append([]byte(nil), s.Raw()...)
	res.DidExit = st.Exited
	res.ExitCode = st.Code
	res.TimedOut = st.Terminated
	res.Signal = st.Signal
	res.DurationMs = time.Since(began).Milliseconds()

	tel.Metrics.RecordSession(ctx, "play", outcome(st), time.Since(began))
	span.SetAttributes(
		attribute.Bool("did_exit", res.DidExit),
		attribute.Bool("passed", res.Passed()),
	)
	if !res.Passed() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d expectations failed", len(res.Failures()), len(res.Expectations)))
	}
	return res, nil
}

func expect(cfg Config, name, actual string, log *slog.Logger) model.ExpectationResult {
	if cfg.Update {
		exp, err := snapshot.Update(cfg.SnapshotDir, name, actual)
		if err != nil {
			log.Warn("update snapshot", "snapshot", name, "err", err)
		}
		return exp
	}
	exp := snapshot.Check(cfg.SnapshotDir, name, actual)
	log.Debug("expectation", "snapshot", name, "passed", exp.Passed)
	return exp
}

func outcome(st session.ExitStatus) string {
	switch {
	case st.Terminated:
		return "terminated"
	case st.Code != nil && (*st.Code == session.ExitNotFound || *st.Code == session.ExitNotExecutable):
		return "exited_" + fmt.Sprint(*st.Code)
	default:
		return "exited"
	}
}
