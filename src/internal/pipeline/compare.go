package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/storage"
)

type CompareRequest struct {
	Compounds []string `json:"compounds"`
	Names     []string `json:"names,omitempty"`
	Output    string   `json:"output,omitempty"` // explicit report path
	OutputDir string   `json:"-"`                // directory for the dated default
	Format    string   `json:"format,omitempty"`
}

type CompareResult struct {
	RunID       string                   `json:"run_id,omitempty"`
	OutputPath  string                   `json:"output_path"`
	Format      string                   `json:"format"`
	Interpreter *interpreter.Interpreter `json:"interpreter"`
	Stages      []chain.StageResult      `json:"stages"`
}

func (r CompareRequest) validate() error {
	if len(r.Compounds) < args.CompareSpec.MinPositional {
		return &args.UsageError{
			Command: "compare",
			Usage:   args.CompareSpec.Usage,
			Reason:  fmt.Sprintf("compare requires at least %d compound identifiers, got %d", args.CompareSpec.MinPositional, len(r.Compounds)),
		}
	}
	switch r.Format {
	case "pdf", "json":
	default:
		return &args.UsageError{Command: "compare", Usage: args.CompareSpec.Usage, Reason: fmt.Sprintf("unsupported format %q", r.Format)}
	}
	if len(r.Names) > 0 && len(r.Names) != len(r.Compounds) {
		slog.Warn("Display names do not match compound count", "names", len(r.Names), "compounds", len(r.Compounds))
	}
	return nil
}

// CompareStages builds the two-stage chain: the comparison script prints
// its JSON result on stdout and the report script reads it from stdin.
func (p *Pipeline) CompareStages(python string, req CompareRequest, outputPath string) ([]chain.Stage, error) {
	compareScript, err := p.skills.ResolveScript(p.cfg.CompareSkill, p.cfg.CompareScript)
	if err != nil {
		return nil, err
	}
	reportScript, err := p.skills.ResolveScript(p.cfg.CompareSkill, p.cfg.ReportScript)
	if err != nil {
		return nil, err
	}

	compareArgs := append([]string{compareScript}, req.Compounds...)
	if len(req.Names) > 0 {
		compareArgs = append(compareArgs, "--names", strings.Join(req.Names, ","))
	}
	reportArgs := []string{reportScript, "--output", outputPath, "--format", req.Format}

	return []chain.Stage{
		{Name: "compare", Path: python, Args: compareArgs, Dir: filepath.Dir(compareScript)},
		{Name: "report", Path: python, Args: reportArgs, Dir: filepath.Dir(reportScript)},
	}, nil
}

// Compare validates the request, resolves the interpreter and runs the
// comparison chain. Nothing runs when validation or resolution fails.
func (p *Pipeline) Compare(ctx context.Context, req CompareRequest, stdio chain.IO) (*CompareResult, error) {
	if req.Format == "" {
		req.Format = "pdf"
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	interp, err := p.Interpreter(ctx)
	if err != nil {
		return nil, err
	}

	outputPath := chain.OutputPath(req.Output, req.OutputDir, p.cfg.OutputPrefix, req.Format, p.now())
	if abs, err := filepath.Abs(outputPath); err == nil {
		outputPath = abs
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, err
	}

	stages, err := p.CompareStages(interp.Path, req, outputPath)
	if err != nil {
		return nil, err
	}

	run := p.startRun(ctx, storage.KindCompare, strings.Join(req.Compounds, " "), req.Compounds, outputPath)
	slog.Info("Running comparison", "compounds", len(req.Compounds), "output", outputPath, "interpreter", interp.Path)

	res, err := chain.Run(ctx, stages, stdio)
	result := &CompareResult{
		RunID:       runID(run),
		OutputPath:  outputPath,
		Format:      req.Format,
		Interpreter: interp,
	}
	if res != nil {
		result.Stages = res.Stages
	}

	code := 0
	if res != nil {
		code = res.ExitCode()
	}
	if err != nil && code == 0 {
		code = 1
	}
	p.finishRun(ctx, run, code, err)
	if err != nil {
		return result, err
	}
	return result, nil
}
