package scenarios

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/roach88/bman/internal/enrich"
)

// Invocation is a single process run of the target binary.
type Invocation struct {
	ScenarioID string
	Binary     string
	Argv       []string
	Env        map[string]string

	// SeedDir is an absolute directory copied into the working directory
	// before Seed entries are applied. Empty means no seed directory.
	SeedDir string
	Seed    []SeedEntry

	// Cwd is relative to the materialized working directory.
	Cwd       string
	Timeout   time.Duration
	NetMode   string
	NoSandbox bool
}

// Outcome is what a run observed.
type Outcome struct {
	ExitCode *int
	Signal   int
	TimedOut bool
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner executes scenario invocations. An error means the process could
// not be run at all; a process that ran and failed is a normal Outcome.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Outcome, error)
}

// ProcessRunner runs the binary as a subprocess in a fresh temporary
// directory, killing it when the timeout expires.
type ProcessRunner struct {
	// TempDir is the parent of per-run working directories; empty uses
	// the system default.
	TempDir string
	Logger  *slog.Logger
}

// NewProcessRunner creates a ProcessRunner. A nil logger discards logs.
func NewProcessRunner(logger *slog.Logger) *ProcessRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessRunner{Logger: logger}
}

// Run implements Runner.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	work, err := os.MkdirTemp(r.TempDir, "bman-scenario-")
	if err != nil {
		return Outcome{}, fmt.Errorf("create scenario workdir: %w", err)
	}
	defer os.RemoveAll(work)

	if err := Materialize(work, inv.SeedDir, inv.Seed); err != nil {
		return Outcome{}, fmt.Errorf("materialize seed for %s: %w", inv.ScenarioID, err)
	}

	dir := work
	if inv.Cwd != "" {
		dir = filepath.Join(work, filepath.FromSlash(path.Clean("/"+inv.Cwd)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Outcome{}, fmt.Errorf("create cwd %s: %w", inv.Cwd, err)
		}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = enrich.DefaultTimeoutSeconds * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, inv.Binary, inv.Argv...)
	cmd.Dir = dir
	cmd.Env = processEnv(work, inv)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond

	logger.Debug("running scenario", "scenario_id", inv.ScenarioID, "binary", inv.Binary, "argv", inv.Argv)

	start := time.Now()
	runErr := cmd.Run()
	out := Outcome{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) && !out.TimedOut {
			return Outcome{}, fmt.Errorf("run %s: %w", inv.Binary, runErr)
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, fmt.Errorf("run %s: %w", inv.Binary, ctxErr)
	}

	if ps := cmd.ProcessState; ps != nil {
		if code := ps.ExitCode(); code >= 0 {
			out.ExitCode = &code
		}
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			out.Signal = int(ws.Signal())
		}
	}

	logger.Debug("scenario finished", "scenario_id", inv.ScenarioID,
		"timed_out", out.TimedOut, "elapsed_ms", out.Duration.Milliseconds())
	return out, nil
}

// processEnv builds a small, deterministic environment. Unless NoSandbox
// is set the host environment is not inherited beyond PATH.
func processEnv(work string, inv Invocation) []string {
	env := map[string]string{
		"HOME":   work,
		"TMPDIR": work,
		"LC_ALL": "C",
		"TZ":     "UTC",
		"PATH":   os.Getenv("PATH"),
	}
	if inv.NoSandbox {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
	}
	for k, v := range inv.Env {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
