// pkg/execute/execute.go

package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Package execute is the single place attest spawns external tools. Every
// call site passes an explicit argument list (never a shell string), gets a
// typed Result back, and shares one timeout/retry policy. Timeouts kill the
// child rather than orphaning it.

const (
	// DefaultTimeout bounds commands that did not ask for one.
	DefaultTimeout = 3 * time.Minute

	// DefaultMaxOutputBytes caps captured output. Benchmark runs override
	// this: their reports can reach tens of megabytes.
	DefaultMaxOutputBytes = 10 << 20
)

// Options describes a single external command invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the inherited environment

	Timeout time.Duration
	Retries int           // total attempts; 0 and 1 both mean one attempt
	Delay   time.Duration // fixed delay between attempts

	// Stream mirrors child output to the process stderr while capturing,
	// for long-lived installs where the user needs live feedback.
	Stream bool

	// MaxOutputBytes bounds each captured stream; 0 means the default cap.
	MaxOutputBytes int

	Logger *zap.Logger
}

// Result is the typed outcome of a command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout and stderr joined, for matchers that do not care
// which stream a tool printed to.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner abstracts command execution so lifecycle managers can be unit
// tested with fakes.
type Runner interface {
	Run(ctx context.Context, opts Options) (*Result, error)
}

// ExecRunner runs commands on the host. The zero value is usable.
type ExecRunner struct{}

// Run executes a command with retries, a hard timeout per attempt, and
// structured logging. The returned Result is non-nil whenever the child
// actually ran, including on non-zero exit, so callers can inspect output
// from failed commands.
func (ExecRunner) Run(ctx context.Context, opts Options) (*Result, error) {
	return Run(ctx, opts)
}

// Run is the package-level equivalent of ExecRunner.Run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}

	ctx, span := telemetry.Start(ctx, "execute.Run",
		attribute.String("command", opts.Command),
		attribute.String("args", telemetry.TruncateArgs(opts.Args)),
	)
	defer span.End()

	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var result *Result
	var err error
	for i := 1; i <= attempts; i++ {
		result, err = runOnce(ctx, opts, timeout, logger)
		if err == nil {
			return result, nil
		}

		span.RecordError(err)
		logger.Warn("Command failed",
			zap.String("command", opts.Command),
			zap.Strings("args", opts.Args),
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.String("summary", summarize(result)),
			zap.Error(err),
		)

		// Timeouts are not transient: retrying a command that just burned
		// its full budget only doubles the wait.
		if attest_err.IsTimeout(err) {
			break
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return result, cerr.Wrap(ctx.Err(), "command aborted")
			case <-time.After(opts.Delay):
			}
		}
	}

	if attempts > 1 && !attest_err.IsTimeout(err) {
		err = cerr.Wrapf(err, "command failed after %d attempts", attempts)
	}
	return result, err
}

func runOnce(ctx context.Context, opts Options, timeout time.Duration, logger *zap.Logger) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// Give the child a moment to exit after the kill signal before Wait
	// gives up on its I/O pipes.
	cmd.WaitDelay = 5 * time.Second

	maxBytes := opts.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}

	stdout := newBoundedBuffer(maxBytes)
	stderr := newBoundedBuffer(maxBytes)
	if opts.Stream {
		cmd.Stdout = io.MultiWriter(os.Stderr, stdout)
		cmd.Stderr = io.MultiWriter(os.Stderr, stderr)
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	logger.Debug("Executing command",
		zap.String("command", opts.Command),
		zap.Strings("args", opts.Args),
		zap.Duration("timeout", timeout),
	)

	runErr := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, attest_err.Wrap(attest_err.CategoryTimeout, runErr,
			"%s timed out after %s and was killed", opts.Command, timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, cerr.Wrapf(runErr, "%s exited with status %d", opts.Command, result.ExitCode)
	}

	result.ExitCode = -1
	return result, cerr.Wrapf(runErr, "failed to start %s", opts.Command)
}

func summarize(result *Result) string {
	if result == nil {
		return ""
	}
	return attest_err.ExtractSummary(result.Combined(), 2)
}

// boundedBuffer captures at most max bytes and drops the rest, so a
// runaway child cannot exhaust memory.
type boundedBuffer struct {
	buf bytes.Buffer
	max int
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	// Report full write so the child never sees a pipe error.
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return strings.TrimRight(b.buf.String(), "\n")
}
