package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"pharmaclaw/src/internal/storage"
)

type BatchItem struct {
	Compound string         `json:"compound"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type BatchResult struct {
	RunID  string      `json:"run_id,omitempty"`
	Items  []BatchItem `json:"items"`
	Failed int         `json:"failed"`
}

// Batch runs Chemistry for every compound with at most concurrency
// lookups in flight. A failing compound is recorded in its item and does
// not stop the others. Items keep the input order.
func (p *Pipeline) Batch(ctx context.Context, compounds []string, concurrency int, includeRetro bool) (*BatchResult, error) {
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}
	// resolve up front so a missing interpreter fails the whole batch
	if _, err := p.Interpreter(ctx); err != nil {
		return nil, err
	}

	run := p.startRun(ctx, storage.KindBatch, strings.Join(compounds, " "), compounds, "")
	res := &BatchResult{RunID: runID(run), Items: make([]BatchItem, len(compounds))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, compound := range compounds {
		res.Items[i].Compound = compound
		i, compound := i, compound // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			out, err := p.Chemistry(gctx, ChemistryRequest{Compound: compound, IncludeRetro: &includeRetro})
			if err != nil {
				res.Items[i].Error = err.Error()
				slog.Warn("Batch lookup failed", "compound", compound, "error", err)
				return nil
			}
			res.Items[i].Result = out
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range res.Items {
		if item.Error != "" {
			res.Failed++
		}
	}
	code := 0
	if res.Failed > 0 {
		code = 1
	}
	p.finishRun(ctx, run, code, ctx.Err())
	return res, ctx.Err()
}
