// Package caliper reads profiling files into profile.Documents.
//
// Two readers exist: the external cali-query tool, invoked as a separate
// process that prints JSON on standard output, and a native reader for
// files that already hold the JSON document form. Client picks one by file
// extension and also exposes the raw tool queries the summary commands use.
package caliper

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	spoterrors "github.com/spot-perf/spot/internal/errors"
)

// Runner executes the profiling tool with the given arguments and returns
// its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, args ...string) ([]byte, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, args ...string) ([]byte, error) {
	return f(ctx, args...)
}

// waitDelay bounds how long Run waits for output pipes after the tool was
// killed, in case it left children holding them.
const waitDelay = 5 * time.Second

// ExecRunner runs the tool as a child process.
type ExecRunner struct {
	path    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecRunner creates a runner for the tool binary at path. A positive
// timeout bounds every invocation.
func NewExecRunner(path string, timeout time.Duration, logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		path:    path,
		timeout: timeout,
		logger:  logger.With().Str("component", "cali-query").Logger(),
	}
}

// Run implements Runner. Failures are reported as
// *errors.ToolInvocationError carrying the exit code and stderr.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	command := append([]string{r.path}, args...)
	// #nosec G204 - the tool path comes from configuration, arguments are fixed queries and file paths.
	cmd := exec.CommandContext(ctx, r.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug().
		Strs("args", args).
		Dur("duration", time.Since(start)).
		Int("bytes", stdout.Len()).
		Msg("Tool invocation finished")

	if err != nil {
		invocationErr := &spoterrors.ToolInvocationError{
			Command: command,
			Stderr:  stderr.String(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			invocationErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			invocationErr.Err = ctxErr
		}
		return nil, invocationErr
	}

	return stdout.Bytes(), nil
}
