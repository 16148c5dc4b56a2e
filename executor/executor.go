// Package executor runs external commands (docker, helm, git) with output
// capture, bounded retries with exponential backoff, per-attempt timeouts and
// context cancellation.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Result is the outcome of the last attempt of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Attempts int
	Err      error
}

// Runner runs a fixed program with varying arguments. Consumers depend on
// Runner so tests can substitute a fake.
type Runner interface {
	Execute(ctx context.Context, args []string, opts ...Option) (*Result, error)
}

// Options configures a command run.
type Options struct {
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	// MaxRetries is the number of extra attempts after the first. RetryDelay
	// is the first wait; each further wait is multiplied by BackoffFactor.
	MaxRetries    int
	RetryDelay    time.Duration
	BackoffFactor float64
	// RetryOn decides whether a failed attempt is retried. Nil retries every
	// failure.
	RetryOn func(*Result, error) bool

	// Timeout bounds a single attempt. Zero means no per-attempt limit.
	Timeout time.Duration

	WorkingDir string

	// Stdin is fed to the command when no explicit input is given. Secrets
	// go here, never into args.
	Stdin string

	// Env is appended to the current process environment.
	Env map[string]string

	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions captures stdout and stderr and runs a single attempt.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		BackoffFactor: 2,
		Env:           map[string]string{},
	}
}

func (o *Options) clone(opts ...Option) *Options {
	c := *o
	c.Env = make(map[string]string, len(o.Env))
	for k, v := range o.Env {
		c.Env[k] = v
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return &c
}

// Command is a single program invocation.
type Command struct {
	program string
	args    []string
	options *Options
}

// New returns a Command for program with args and default options.
func New(program string, args ...string) *Command {
	return &Command{program: program, args: args, options: DefaultOptions()}
}

// Execute runs the command, retrying per the options.
func (c *Command) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	return c.ExecuteWithInput(ctx, "", opts...)
}

// ExecuteWithInput runs the command with input on stdin.
func (c *Command) ExecuteWithInput(ctx context.Context, input string, opts ...Option) (*Result, error) {
	o := c.options.clone(opts...)
	if input == "" {
		input = o.Stdin
	}

	attempts := o.MaxRetries + 1
	delay := o.RetryDelay
	for attempt := 1; ; attempt++ {
		result, err := c.once(ctx, input, o)
		result.Attempts = attempt
		if err == nil || attempt >= attempts || ctx.Err() != nil {
			return result, err
		}
		if o.RetryOn != nil && !o.RetryOn(result, err) {
			return result, err
		}

		o.Logger.WarnContext(ctx, "command failed, retrying",
			"program", c.program,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"exit_code", result.ExitCode)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
		delay = nextDelay(delay, o.BackoffFactor)
	}
}

func nextDelay(current time.Duration, factor float64) time.Duration {
	if factor <= 1 {
		return current
	}
	return time.Duration(float64(current) * factor)
}

func (c *Command) once(ctx context.Context, input string, o *Options) (*Result, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.program, c.args...)
	cmd.Dir = o.WorkingDir
	if len(o.Env) > 0 {
		cmd.Env = append(os.Environ(), environ(o.Env)...)
	}
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var out capture
	out.attach(cmd, o)

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}

	result := &Result{
		Stdout:   out.stdout.String(),
		Stderr:   out.stderr.String(),
		Combined: out.combined.String(),
		ExitCode: exitCode(err),
		Err:      err,
	}
	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

func environ(env map[string]string) []string {
	vars := make([]string, 0, len(env))
	for k, v := range env {
		vars = append(vars, k+"="+v)
	}
	sort.Strings(vars)
	return vars
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type capture struct {
	stdout, stderr, combined bytes.Buffer
}

func (c *capture) attach(cmd *exec.Cmd, o *Options) {
	var stdout, stderr []io.Writer
	if o.CaptureStdout {
		stdout = append(stdout, &c.stdout)
	}
	if o.CaptureStderr {
		stderr = append(stderr, &c.stderr)
	}
	if o.CaptureCombined {
		stdout = append(stdout, &c.combined)
		stderr = append(stderr, &c.combined)
	}
	if len(stdout) > 0 {
		cmd.Stdout = io.MultiWriter(stdout...)
	}
	if len(stderr) > 0 {
		cmd.Stderr = io.MultiWriter(stderr...)
	}
}

// WrappedExecutor runs one program with per-call arguments. Base options
// apply to every call.
type WrappedExecutor struct {
	program string
	options *Options
}

var _ Runner = (*WrappedExecutor)(nil)

// NewWrappedExecutor returns a Runner for program.
func NewWrappedExecutor(program string, base ...Option) *WrappedExecutor {
	return &WrappedExecutor{program: program, options: DefaultOptions().clone(base...)}
}

// Execute runs the program with args. Errors are prefixed with the program
// and its subcommand.
func (w *WrappedExecutor) Execute(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	cmd := &Command{program: w.program, args: args, options: w.options}
	result, err := cmd.Execute(ctx, opts...)
	if err != nil {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		return result, fmt.Errorf("%s %s: %w", w.program, sub, err)
	}
	return result, nil
}

// WithCapture selects which streams are captured.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithRetry allows maxRetries extra attempts, the first after delay.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithBackoff sets the multiplier applied to the retry delay after each attempt.
func WithBackoff(factor float64) Option {
	return func(o *Options) { o.BackoffFactor = factor }
}

// WithRetryCondition limits retries to failures fn accepts.
func WithRetryCondition(fn func(*Result, error) bool) Option {
	return func(o *Options) { o.RetryOn = fn }
}

// WithStdin sets the standard input of the command.
func WithStdin(input string) Option {
	return func(o *Options) { o.Stdin = input }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithWorkingDir sets the directory the command runs in.
func WithWorkingDir(dir string) Option {
	return func(o *Options) { o.WorkingDir = dir }
}

// WithEnvVar adds one environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = map[string]string{}
		}
		o.Env[key] = value
	}
}
