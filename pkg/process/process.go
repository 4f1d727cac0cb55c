// Package process runs external tools for the bundle pipeline.
//
// Every external program (the conda installer, conda itself, the
// environment's interpreter, tar) is described by a [Command]: an explicit
// program name plus an argument list. Nothing is ever passed through a
// shell, so package specifications and paths need no quoting.
//
// Callers depend on the [Executor] interface so tests can substitute a
// [Func] or a [Recorder] instead of spawning processes.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultOutputLimit is how many trailing bytes of a command's combined
// output are kept for error reports.
const DefaultOutputLimit = 16 << 10

// Command describes a single external process invocation.
type Command struct {
	Name string   // Program name or path
	Args []string // Arguments, excluding the program name
	Dir  string   // Working directory (empty means the current directory)
	Env  []string // Extra KEY=VALUE entries appended to the inherited environment

	// Stdout, when set, receives standard output instead of the capture and
	// stream. Standard error is still captured.
	Stdout io.Writer
}

// String renders the command for logs. Arguments containing whitespace or
// quotes are quoted; the result is not meant to be fed back to a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'`$\\") {
		return strconv.Quote(s)
	}
	return s
}

// Executor runs a command to completion and reports a non-zero exit as an
// *ExitError.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, cmd Command) error

// Run calls f(ctx, cmd).
func (f Func) Run(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// ExitError reports a command that could not be started or exited non-zero.
type ExitError struct {
	Command  Command
	ExitCode int    // -1 when the process never started
	Output   string // Tail of the combined stdout/stderr
	Err      error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	var sb strings.Builder
	if e.ExitCode < 0 {
		fmt.Fprintf(&sb, "%s: %v", e.Command, e.Err)
	} else {
		fmt.Fprintf(&sb, "%s exited with status %d", e.Command, e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		sb.WriteString("\n")
		sb.WriteString(out)
	}
	return sb.String()
}

// Unwrap returns the underlying exec error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// CommandOutput returns the captured output tail without surrounding
// whitespace.
func (e *ExitError) CommandOutput() string {
	return strings.TrimSpace(e.Output)
}

// Exec is the Executor backed by os/exec.
//
// Commands run synchronously and are never interrupted once started: the
// context is only consulted before the process is spawned.
type Exec struct {
	// Stream receives a live copy of the combined output (may be nil).
	Stream io.Writer
	// Logger receives the command line at debug level.
	Logger *log.Logger
	// OutputLimit bounds the captured output kept for ExitError.
	OutputLimit int
}

// NewExec creates an Exec that mirrors command output to stream.
func NewExec(stream io.Writer, logger *log.Logger) *Exec {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Exec{
		Stream:      stream,
		Logger:      logger,
		OutputLimit: DefaultOutputLimit,
	}
}

// Run executes cmd and waits for it to exit.
func (e *Exec) Run(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	limit := e.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	capture := &tailBuffer{max: limit}

	//nolint:noctx // a started step runs to completion; see Exec
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var out io.Writer = capture
	if e.Stream != nil {
		out = io.MultiWriter(capture, e.Stream)
	}
	c.Stdout = out
	c.Stderr = out
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	}

	if e.Logger != nil {
		e.Logger.Debug("running", "cmd", cmd.String(), "dir", cmd.Dir)
	}

	if err := c.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ExitError{
			Command:  cmd,
			ExitCode: code,
			Output:   capture.String(),
			Err:      err,
		}
	}
	return nil
}

// Ensure Exec implements Executor.
var _ Executor = (*Exec)(nil)

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > 2*t.max {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if len(t.buf) > t.max {
		return string(t.buf[len(t.buf)-t.max:])
	}
	return string(t.buf)
}
