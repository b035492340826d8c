package doctext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// stderrTail is how much of a failed tool's stderr ends up in errors and logs.
const stderrTail = 2 << 10

// Runner executes pdftotext and the docling wrapper.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// CommandError is a tool that could not start or exited non-zero. ExitCode is -1 when
// the tool never ran.
type CommandError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited %d", e.Tool, e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// toolEnv forces UTF-8 output from python and poppler regardless of the host locale.
var toolEnv = []string{"PYTHONIOENCODING=utf-8", "PYTHONUTF8=1", "LC_ALL=C.UTF-8"}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), toolEnv...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		r.logger.Debug("doctext.exec.ok", "cmd", name, "elapsed_ms", elapsed, "stdout_bytes", out.Len())
		return out.Bytes(), errb.Bytes(), nil
	}

	cerr := &CommandError{Tool: name, ExitCode: -1, Stderr: tail(strings.TrimSpace(errb.String()), stderrTail), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		cerr.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		cerr.Err = ctx.Err()
	}
	r.logger.Error("doctext.exec.failed",
		"cmd", name,
		"args", strings.Join(args, " "),
		"exit_code", cerr.ExitCode,
		"stderr", cerr.Stderr,
		"error", err,
		"elapsed_ms", elapsed,
	)
	return out.Bytes(), errb.Bytes(), cerr
}

// withStderr attaches stderr to errors from runners that do not build a CommandError.
func withStderr(err error, stderr []byte) error {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return err
	}
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return fmt.Errorf("%w: %s", err, tail(s, stderrTail))
	}
	return err
}

// tail keeps the last max bytes of s, where tracebacks put the actual error.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
