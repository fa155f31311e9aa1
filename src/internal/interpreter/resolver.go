// Package interpreter selects the Python runtime used to execute skill
// scripts. Candidates are tried in a fixed order and the first one that
// qualifies wins:
//
//  1. a bundled virtualenv next to the skills (existence check),
//  2. the system python, only if it can import the required module,
//  3. a per-user virtualenv under the home directory (existence check).
package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"pharmaclaw/src/internal/tools/cmd"
)

type Source string

const (
	SourceBundled Source = "bundled"
	SourceSystem  Source = "system"
	SourceUser    Source = "user"
)

// DefaultModule is the library every chemistry script imports.
const DefaultModule = "rdkit"

// Interpreter is a selected runtime.
type Interpreter struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// Candidate is one location the resolver will consider.
type Candidate struct {
	Source Source `json:"source"`
	Path   string `json:"path"`
	// Probe marks candidates that only qualify when the module imports.
	Probe bool `json:"probe"`
}

// Rejection records why a candidate did not qualify.
type Rejection struct {
	Candidate Candidate `json:"candidate"`
	Reason    string    `json:"reason"`
}

// Error is returned when no candidate qualifies.
type Error struct {
	Module     string
	Rejections []Rejection
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no python interpreter with %s available", e.Module)
	for _, r := range e.Rejections {
		fmt.Fprintf(&b, "\n  - %s %s: %s", r.Candidate.Source, r.Candidate.Path, r.Reason)
	}
	fmt.Fprintf(&b, "\ninstall %s into one of the locations above (e.g. pip install %s)", e.Module, e.Module)
	return b.String()
}

// Prober answers the two questions the resolver asks about a candidate.
type Prober interface {
	Executable(path string) bool
	CanImport(ctx context.Context, python, module string) bool
	LookPath(name string) (string, error)
}

type Options struct {
	BundledEnv   string
	SystemPython string
	UserEnv      string
	Module       string
	ProbeTimeout time.Duration
}

type Resolver struct {
	opts   Options
	prober Prober
}

func New(opts Options) *Resolver {
	return NewWithProber(opts, execProber{timeout: opts.ProbeTimeout})
}

func NewWithProber(opts Options, p Prober) *Resolver {
	if opts.Module == "" {
		opts.Module = DefaultModule
	}
	if opts.SystemPython == "" {
		opts.SystemPython = "python3"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 15 * time.Second
	}
	return &Resolver{opts: opts, prober: p}
}

// Module returns the module the system candidate must import.
func (r *Resolver) Module() string {
	return r.opts.Module
}

// Candidates lists the locations in the order they are tried. Empty
// environment directories are skipped.
func (r *Resolver) Candidates() []Candidate {
	var out []Candidate
	if r.opts.BundledEnv != "" {
		out = append(out, Candidate{Source: SourceBundled, Path: EnvPython(r.opts.BundledEnv)})
	}
	out = append(out, Candidate{Source: SourceSystem, Path: r.opts.SystemPython, Probe: true})
	if r.opts.UserEnv != "" {
		out = append(out, Candidate{Source: SourceUser, Path: EnvPython(r.opts.UserEnv)})
	}
	return out
}

// Resolve returns the first qualifying interpreter or an *Error describing
// every rejected candidate.
func (r *Resolver) Resolve(ctx context.Context) (*Interpreter, error) {
	var rejected []Rejection
	for _, c := range r.Candidates() {
		path, reason := r.check(ctx, c)
		if reason != "" {
			slog.Debug("interpreter candidate rejected", "source", c.Source, "path", c.Path, "reason", reason)
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		slog.Debug("interpreter selected", "source", c.Source, "path", path)
		return &Interpreter{Path: path, Source: c.Source}, nil
	}
	return nil, &Error{Module: r.opts.Module, Rejections: rejected}
}

func (r *Resolver) check(ctx context.Context, c Candidate) (string, string) {
	if !c.Probe {
		if !r.prober.Executable(c.Path) {
			return "", "not found"
		}
		return c.Path, ""
	}
	path, err := r.prober.LookPath(c.Path)
	if err != nil {
		return "", "not on PATH"
	}
	if !r.prober.CanImport(ctx, path, r.opts.Module) {
		return "", "cannot import " + r.opts.Module
	}
	return path, ""
}

// EnvPython returns the interpreter path inside a virtualenv directory.
func EnvPython(envDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envDir, "Scripts", "python.exe")
	}
	return filepath.Join(envDir, "bin", "python")
}

type execProber struct {
	timeout time.Duration
}

func (execProber) Executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

func (p execProber) CanImport(ctx context.Context, python, module string) bool {
	_, err := cmd.Execute(ctx, cmd.Command{
		Name:    python,
		Args:    []string{"-c", "import " + module},
		Timeout: p.timeout,
	})
	return err == nil
}

func (execProber) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
