// Package chain runs a sequence of processes where the standard output of
// each stage is the standard input of the next.
//
// Unlike a shell pipeline, every stage is waited on and its exit status is
// kept: the chain fails when any stage fails, even if the last stage
// succeeded and already wrote its output.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

type Stage struct {
	Name string
	Path string
	Args []string
	Dir  string
	Env  []string
}

func (s Stage) String() string {
	return strings.TrimSpace(s.Path + " " + strings.Join(s.Args, " "))
}

type StageResult struct {
	Name     string `json:"name"`
	ExitCode int    `json:"exit_code"`
	Err      error  `json:"-"`
}

type Result struct {
	Stages []StageResult `json:"stages"`
}

// ExitCode is the first non-zero stage exit code, or 0.
func (r *Result) ExitCode() int {
	for _, s := range r.Stages {
		if s.ExitCode != 0 {
			return s.ExitCode
		}
	}
	return 0
}

// StageError reports the first failing stage. Results holds every stage.
type StageError struct {
	Index    int
	Stage    string
	ExitCode int
	Err      error
	Results  []StageResult
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d/%d (%s) failed with exit code %d: %v", e.Index+1, len(e.Results), e.Stage, e.ExitCode, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IO wires the ends of the chain. Nil readers/writers are treated as empty
// input and discarded output.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var ErrNoStages = errors.New("chain: no stages")

// waitDelay bounds how long Wait blocks on output held open by orphaned
// grandchildren after a stage is killed.
const waitDelay = 2 * time.Second

// Run starts all stages connected by OS pipes and waits for every one of
// them. Cancelling ctx kills stages that are still running.
func Run(ctx context.Context, stages []Stage, stdio IO) (*Result, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if stdio.Stdout == nil {
		stdio.Stdout = io.Discard
	}
	if stdio.Stderr == nil {
		stdio.Stderr = io.Discard
	}

	cmds := make([]*exec.Cmd, len(stages))
	for i, s := range stages {
		c := exec.CommandContext(ctx, s.Path, s.Args...)
		c.Dir = s.Dir
		c.WaitDelay = waitDelay
		if len(s.Env) > 0 {
			c.Env = append(os.Environ(), s.Env...)
		}
		c.Stderr = stdio.Stderr
		cmds[i] = c
	}
	cmds[0].Stdin = stdio.Stdin
	cmds[len(cmds)-1].Stdout = stdio.Stdout

	// parent copies of the pipe ends; closed once the children hold them
	var pipes []*os.File
	closePipes := func() {
		for _, f := range pipes {
			_ = f.Close()
		}
		pipes = nil
	}
	for i := 0; i < len(cmds)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes()
			return nil, fmt.Errorf("chain: pipe between %s and %s: %w", stages[i].Name, stages[i+1].Name, err)
		}
		cmds[i].Stdout = w
		cmds[i+1].Stdin = r
		pipes = append(pipes, r, w)
	}

	res := &Result{Stages: make([]StageResult, len(stages))}
	for i := range stages {
		res.Stages[i].Name = stages[i].Name
	}

	for i, c := range cmds {
		slog.Debug("starting chain stage", "stage", stages[i].Name, "command", stages[i].String())
		if err := c.Start(); err != nil {
			closePipes()
			for j := 0; j < i; j++ {
				_ = cmds[j].Process.Kill()
				_ = cmds[j].Wait()
				res.Stages[j].ExitCode = exitCode(cmds[j].ProcessState)
			}
			res.Stages[i].ExitCode = -1
			res.Stages[i].Err = err
			return res, &StageError{Index: i, Stage: stages[i].Name, ExitCode: -1, Err: err, Results: res.Stages}
		}
	}
	closePipes()

	for i, c := range cmds {
		err := c.Wait()
		res.Stages[i].Err = err
		res.Stages[i].ExitCode = exitCode(c.ProcessState)
		if err != nil && res.Stages[i].ExitCode == 0 {
			// e.g. a failed copy into a non-file writer
			res.Stages[i].ExitCode = -1
		}
		slog.Debug("chain stage finished", "stage", stages[i].Name, "exit_code", res.Stages[i].ExitCode)
	}

	for i, s := range res.Stages {
		if s.ExitCode != 0 {
			err := s.Err
			if err == nil {
				err = fmt.Errorf("exit status %d", s.ExitCode)
			}
			return res, &StageError{Index: i, Stage: s.Name, ExitCode: s.ExitCode, Err: err, Results: res.Stages}
		}
	}
	return res, nil
}

func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}
