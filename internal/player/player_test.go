//go:build unix

package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/testty/internal/session"
	"github.com/timvw/testty/internal/token"
)

// testBinary is the bubbletea fixture built in TestMain.
var (
	testBinary   string
	testBuildErr error
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "testty-testbin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	binPath := filepath.Join(dir, "testbin")
	cmd := exec.Command("go", "build", "-o", binPath, "github.com/timvw/testty/internal/testbin")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if testBuildErr = cmd.Run(); testBuildErr == nil {
		testBinary = binPath
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func requireTestBinary(t *testing.T) {
	t.Helper()
	if testBinary == "" {
		t.Skipf("testbin not built: %v", testBuildErr)
	}
}

func requireProgram(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func parse(t *testing.T, s string) []token.Token {
	t.Helper()
	tokens, err := token.Parse(s)
	require.NoError(t, err)
	return tokens
}

func TestPlay_CatEchoesFirstRow(t *testing.T) {
	requireProgram(t, "cat")
	res, err := Play(context.Background(), Config{
		Command: []string{"cat"},
		Tokens:  []token.Token{token.Literal("hello"), token.Literal("\r")},
		Rows:    24,
		Cols:    80,
	})
	require.NoError(t, err)

	rows := strings.Split(res.Output, "\n")
	assert.Equal(t, "hello", rows[0])
	assert.False(t, res.DidExit)
	assert.True(t, res.TimedOut)
	assert.Nil(t, res.ExitCode)
	assert.Empty(t, res.Expectations)
	assert.True(t, res.Passed())
}

func TestPlay_TwoMatchingSnapshots(t *testing.T) {
	requireProgram(t, "cat")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("hello\nhello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("hello\nhello\nworld\nworld\n"), 0o644))

	res, err := Play(context.Background(), Config{
		Command:     []string{"cat"},
		Tokens:      parse(t, "hello[enter][sleep:300][expect_screen:one.txt]world[enter][sleep:300][expect_screen:two.txt][ctrl-d]"),
		SnapshotDir: dir,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)

	require.Len(t, res.Expectations, 2)
	for _, e := range res.Expectations {
		assert.True(t, e.Passed, "%s: actual %q, expected %q", e.Snapshot, e.Actual, e.Expected)
	}
	assert.Equal(t, "one.txt", res.Expectations[0].Snapshot)
	assert.Equal(t, "two.txt", res.Expectations[1].Snapshot)
	assert.True(t, res.DidExit, "ctrl-d ends cat")
}

func TestPlay_MissingSnapshotIsNonFatal(t *testing.T) {
	requireProgram(t, "cat")
	res, err := Play(context.Background(), Config{
		Command:     []string{"cat"},
		Tokens:      parse(t, "[expect_screen:missing.txt]after"),
		SnapshotDir: t.TempDir(),
	})
	require.NoError(t, err)

	require.Len(t, res.Expectations, 1)
	assert.False(t, res.Expectations[0].Passed)
	assert.Contains(t, res.Expectations[0].Error, "not found")
	assert.Contains(t, res.Output, "after", "tokens after a failed expectation still run")
	assert.False(t, res.Passed())
}

func TestPlay_MismatchRecordsActual(t *testing.T) {
	requireProgram(t, "cat")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.txt"), []byte("something else\n"), 0o644))

	res, err := Play(context.Background(), Config{
		Command:     []string{"cat"},
		Tokens:      parse(t, "abc[sleep:200][expect_screen:wrong.txt]"),
		SnapshotDir: dir,
	})
	require.NoError(t, err)

	require.Len(t, res.Expectations, 1)
	e := res.Expectations[0]
	assert.False(t, e.Passed)
	assert.Equal(t, "abc", e.Actual)
	assert.Equal(t, "something else", e.Expected)
}

func TestPlay_ExitCode(t *testing.T) {
	requireProgram(t, "sh")
	res, err := Play(context.Background(), Config{
		Command: []string{"sh", "-c", "printf ok; exit 7"},
	})
	require.NoError(t, err)

	assert.True(t, res.DidExit)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 7, *res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, []byte("ok"), res.Raw)
}

func TestPlay_SpawnFailure(t *testing.T) {
	res, err := Play(context.Background(), Config{
		Command: []string{"testty-no-such-program"},
		Tokens:  parse(t, "ignored[enter]"),
	})
	require.NoError(t, err)

	assert.True(t, res.DidExit)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, session.ExitNotFound, *res.ExitCode)
	assert.Contains(t, res.Output, "testty-no-such-program")
}

func TestPlay_CaptureBeforeLastToken(t *testing.T) {
	requireProgram(t, "sh")
	// Clears the screen and exits once Enter is pressed.
	script := `printf 'main menu'; read x; printf '\033[2J'`
	res, err := Play(context.Background(), Config{
		Command: []string{"sh", "-c", script},
		Tokens:  parse(t, "[sleep:200][enter]"),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.True(t, res.DidExit)
	assert.Equal(t, "main menu", res.Output)
	assert.Contains(t, string(res.Raw), "\x1b[2J", "program did clear its screen")
}

func TestPlay_EarlyExitDropsTokens(t *testing.T) {
	requireProgram(t, "sh")
	res, err := Play(context.Background(), Config{
		Command:     []string{"sh", "-c", "read x"},
		Tokens:      parse(t, "[enter][sleep:500]more[expect_screen:never.txt]"),
		SnapshotDir: t.TempDir(),
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)

	assert.True(t, res.DidExit)
	assert.Empty(t, res.Expectations)
	assert.NotContains(t, res.Output, "more")
}

func TestPlay_UpdateWritesSnapshots(t *testing.T) {
	requireProgram(t, "cat")
	dir := t.TempDir()
	res, err := Play(context.Background(), Config{
		Command:     []string{"cat"},
		Tokens:      parse(t, "golden[sleep:200][expect_screen:new.txt]"),
		SnapshotDir: dir,
		Update:      true,
	})
	require.NoError(t, err)
	require.Len(t, res.Expectations, 1)
	assert.True(t, res.Expectations[0].Passed)

	data, err := os.ReadFile(filepath.Join(dir, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "golden\n", string(data))
}

func TestConfig_NegativeSelectsDefaults(t *testing.T) {
	cfg := Config{Delay: -1, Timeout: -1}
	cfg.applyDefaults()
	assert.Equal(t, DefaultDelay, cfg.Delay)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)

	zero := Config{}
	zero.applyDefaults()
	assert.Zero(t, zero.Delay)
	assert.Zero(t, zero.Timeout)
}

func TestPlay_ZeroDelayAndTimeout(t *testing.T) {
	requireProgram(t, "sh")
	tokens := make([]token.Token, 200)
	for i := range tokens {
		tokens[i] = token.Literal("x")
	}

	began := time.Now()
	// Keeps printing so only the timeout can end the drain.
	res, err := Play(context.Background(), Config{
		Command: []string{"sh", "-c", "while :; do echo tick; sleep 0.05; done"},
		Tokens:  tokens,
		Delay:   0,
		Timeout: 0,
	})
	require.NoError(t, err)

	// The defaults alone would take 2s of delays and a 5s drain.
	assert.Less(t, time.Since(began), 1500*time.Millisecond)
	assert.True(t, res.TimedOut)
}

func TestPlay_ContextCancelled(t *testing.T) {
	requireProgram(t, "cat")
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := Play(ctx, Config{
		Command: []string{"cat"},
		Tokens:  parse(t, "[sleep:5000]"),
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlay_BubbleteaEcho(t *testing.T) {
	requireTestBinary(t)
	res, err := Play(context.Background(), Config{
		Command: []string{testBinary},
		Tokens:  parse(t, "[sleep:300]hello[enter][sleep:300]quit[enter]"),
		Rows:    15,
		Cols:    60,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.Contains(t, res.Output, "ready>")
	assert.Contains(t, res.Output, "echo: hello")
	assert.Contains(t, res.Output, "size: 60x15")
	assert.True(t, res.DidExit)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
}

func TestPlay_BubbleteaExitStatus(t *testing.T) {
	requireTestBinary(t)
	res, err := Play(context.Background(), Config{
		Command: []string{testBinary},
		Tokens:  parse(t, "[sleep:300]fail[enter]"),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.True(t, res.DidExit)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
}
