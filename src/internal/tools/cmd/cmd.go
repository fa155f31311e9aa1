package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a command when the caller sets none.
const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long output is still copied after the process is
// killed. A grandchild holding the pipes open would otherwise block Run
// until it exits.
const waitDelay = 2 * time.Second

// Command describes a single process invocation. Args are passed as argv,
// never through a shell, so compound strings such as "C(=O)O" reach the
// script untouched.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Stdin   io.Reader
	Timeout time.Duration
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

func Execute(ctx context.Context, c Command) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	stdoutB := &bytes.Buffer{}
	stderrB := &bytes.Buffer{}
	cmd.Stdout = stdoutB
	cmd.Stderr = stderrB

	err := cmd.Run()

	res := Result{
		Stdout: stdoutB.String(),
		Stderr: stderrB.String(),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	return res, err
}

// Shell runs command through "sh -c". Only used for operator-provided probe
// commands, never for compound identifiers.
func Shell(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	return Execute(ctx, Command{Name: "sh", Args: []string{"-c", command}, Timeout: timeout})
}
