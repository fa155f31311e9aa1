// Package scripts runs skill scripts with the resolved interpreter and
// normalises their output into JSON objects.
package scripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pharmaclaw/src/internal/tools/cmd"
)

var ErrScriptNotFound = errors.New("script not found")

// Output is the decoded JSON object printed by a script, or the synthetic
// status object built when the script failed.
type Output map[string]any

func (o Output) Status() string {
	s, _ := o["status"].(string)
	return s
}

func (o Output) IsError() bool {
	return o.Status() == "error"
}

func (o Output) Error() string {
	s, _ := o["error"].(string)
	return s
}

func errorOutput(msg string) Output {
	return Output{"status": "error", "error": msg}
}

type executor func(ctx context.Context, c cmd.Command) (cmd.Result, error)

type Runner struct {
	Python  string
	Timeout time.Duration
	exec    executor
}

func NewRunner(python string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = cmd.DefaultTimeout
	}
	return &Runner{Python: python, Timeout: timeout, exec: cmd.Execute}
}

// Command builds the argv for script, choosing the interpreter from the
// file extension.
func (r *Runner) Command(script string, args []string) cmd.Command {
	var name string
	var argv []string
	switch filepath.Ext(script) {
	case ".py":
		name, argv = r.Python, append([]string{script}, args...)
	case ".sh":
		name, argv = "sh", append([]string{script}, args...)
	case ".js":
		name, argv = "node", append([]string{script}, args...)
	default:
		name, argv = script, args
	}
	return cmd.Command{Name: name, Args: argv, Dir: filepath.Dir(script), Timeout: r.Timeout}
}

// Run executes script and returns the raw process result.
func (r *Runner) Run(ctx context.Context, script string, args []string) (cmd.Result, error) {
	if _, err := os.Stat(script); err != nil {
		return cmd.Result{}, fmt.Errorf("%w: %s", ErrScriptNotFound, filepath.Base(script))
	}
	c := r.Command(script, args)
	slog.Debug("running script", "script", script, "args", args)
	return r.exec(ctx, c)
}

// RunJSON executes script and decodes its stdout. Process failures are
// reported inside the returned Output; only a missing script is an error.
func (r *Runner) RunJSON(ctx context.Context, script string, args []string) (Output, error) {
	res, err := r.Run(ctx, script, args)
	if errors.Is(err, ErrScriptNotFound) {
		return nil, err
	}
	if res.TimedOut {
		return errorOutput(fmt.Sprintf("Request timed out (%ds)", int(r.Timeout.Seconds()))), nil
	}
	if err != nil {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			msg = "Unknown error"
		}
		slog.Warn("script failed", "script", filepath.Base(script), "exit_code", res.ExitCode, "error", msg)
		return errorOutput(msg), nil
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return errorOutput("No output from script"), nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		return Output{"status": "success", "raw": out}, nil
	}
	if m, ok := decoded.(map[string]any); ok {
		return Output(m), nil
	}
	return Output{"status": "success", "result": decoded}, nil
}
