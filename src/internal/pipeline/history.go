package pipeline

import (
	"context"
	"log/slog"

	"pharmaclaw/src/internal/storage"
)

func (p *Pipeline) startRun(ctx context.Context, kind, subject string, compounds []string, output string) *storage.Run {
	if p.history == nil {
		return nil
	}
	run, err := p.history.Start(ctx, kind, subject, compounds, output)
	if err != nil {
		slog.Warn("Failed to record run", "kind", kind, "error", err)
		return nil
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run *storage.Run, exitCode int, runErr error) {
	if run == nil {
		return
	}
	// record the outcome even when ctx was cancelled
	if err := p.history.Finish(context.WithoutCancel(ctx), run, exitCode, runErr); err != nil {
		slog.Warn("Failed to finish run record", "id", run.ID, "error", err)
	}
}

func runID(run *storage.Run) string {
	if run == nil {
		return ""
	}
	return run.ID
}
