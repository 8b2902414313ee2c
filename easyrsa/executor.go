// Package easyrsa drives the EasyRSA and OpenVPN command-line tools for one
// issuer directory: provisioning the directory, rendering its vars file and
// running the PKI commands.
package easyrsa

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command is one external invocation. Name is executed directly (no shell);
// Env is appended to the server's environment.
type Command struct {
	Dir     string
	Name    string
	Args    []string
	Env     []string
	LogPath string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result captures the outcome of a Command.
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exitCode"`
	Err      error         `json:"-"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the command ran and exited zero.
func (r *Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Output is stdout for a successful run and stderr otherwise, falling back to
// whichever stream is non-empty.
func (r *Result) Output() string {
	primary, secondary := r.Stdout, r.Stderr
	if !r.OK() {
		primary, secondary = r.Stderr, r.Stdout
	}
	out := primary
	if strings.TrimSpace(out) == "" {
		out = secondary
	}
	if strings.TrimSpace(out) == "" && r.Err != nil {
		out = r.Err.Error()
	}
	return strings.TrimRight(out, "\n")
}

const waitDelay = 2 * time.Second

// Runner executes commands. *Executor is the production implementation.
type Runner interface {
	Run(ctx context.Context, cmd Command) *Result
}

// Executor runs commands as child processes and appends each result to the
// command's log file.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

var _ Runner = (*Executor)(nil)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout bounds every command. Zero disables the limit.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithExecutorLogger sets the process logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// Run executes cmd and blocks until it exits, the timeout fires or ctx is
// cancelled. Failures are reported in the Result, never as a panic.
func (e *Executor) Run(ctx context.Context, cmd Command) *Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	// Grandchildren may keep the pipes open after the process is killed.
	c.WaitDelay = waitDelay

	res := &Result{Command: cmd.String(), Started: e.now()}
	err := c.Run()
	res.Duration = e.now().Sub(res.Started)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err != nil {
		res.Err = err
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		e.logger.Warn("command failed",
			"command", res.Command,
			"exit_code", res.ExitCode,
			"error", err)
	} else {
		e.logger.Debug("command finished",
			"command", res.Command,
			"duration", res.Duration)
	}

	if cmd.LogPath != "" {
		if err := AppendLog(cmd.LogPath, res.Output(), e.now()); err != nil {
			e.logger.Warn("appending issuer log failed", "path", cmd.LogPath, "error", err)
		}
	}
	return res
}
