// Package pipeline chains skill scripts into the compound workflows:
// comparison reports, chemistry lookups, pharmacology and catalyst
// profiles, and batch runs.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/scripts"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/storage"
)

// ErrBadRequest marks invalid caller input outside of command line parsing.
var ErrBadRequest = errors.New("bad request")

// Resolver selects the interpreter scripts run with.
type Resolver interface {
	Resolve(ctx context.Context) (*interpreter.Interpreter, error)
}

type Pipeline struct {
	cfg      config.PipelineConfig
	skills   *skills.SkillLoader
	resolver Resolver
	history  *storage.History // optional
	now      func() time.Time

	mu     sync.Mutex
	interp *interpreter.Interpreter
}

// New builds a pipeline. history may be nil.
func New(cfg config.PipelineConfig, loader *skills.SkillLoader, resolver Resolver, history *storage.History) *Pipeline {
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = "comparison_report"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Pipeline{
		cfg:      cfg,
		skills:   loader,
		resolver: resolver,
		history:  history,
		now:      time.Now,
	}
}

// Interpreter resolves the interpreter once and reuses it afterwards.
// A failed resolution is not cached.
func (p *Pipeline) Interpreter(ctx context.Context) (*interpreter.Interpreter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interp != nil {
		return p.interp, nil
	}
	interp, err := p.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	p.interp = interp
	return interp, nil
}

// ResetInterpreter forgets the cached interpreter so the next run
// resolves again.
func (p *Pipeline) ResetInterpreter() {
	p.mu.Lock()
	p.interp = nil
	p.mu.Unlock()
}

// Runner returns a script runner bound to the resolved interpreter.
func (p *Pipeline) Runner(ctx context.Context) (*scripts.Runner, error) {
	interp, err := p.Interpreter(ctx)
	if err != nil {
		return nil, err
	}
	return scripts.NewRunner(interp.Path, p.cfg.ScriptTimeout), nil
}

// RunScript runs one script of an installed skill and decodes its output.
func (p *Pipeline) RunScript(ctx context.Context, skill, script string, args []string) (scripts.Output, error) {
	path, err := p.skills.ResolveScript(skill, script)
	if err != nil {
		return nil, err
	}
	r, err := p.Runner(ctx)
	if err != nil {
		return nil, err
	}

	run := p.startRun(ctx, storage.KindScript, skill+"/"+script, nil, "")
	out, err := r.RunJSON(ctx, path, args)
	code := 0
	switch {
	case err != nil:
		code = 1
	case out.IsError():
		code = 1
		err = errors.New(out.Error())
	}
	p.finishRun(ctx, run, code, err)
	if out == nil {
		return nil, err
	}
	return out, nil
}

// LooksLikeSMILES reports whether s contains characters that only occur
// in SMILES strings, as opposed to drug names or CIDs.
func LooksLikeSMILES(s string) bool {
	return strings.ContainsAny(s, "()=#[]@")
}
