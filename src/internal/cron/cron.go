package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/exitcode"
	"pharmaclaw/src/internal/pipeline"
	"pharmaclaw/src/internal/scripts"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/watchlist"
)

// Pipeline is the part of the compound pipeline tasks run.
type Pipeline interface {
	Compare(ctx context.Context, req pipeline.CompareRequest, stdio chain.IO) (*pipeline.CompareResult, error)
	RunScript(ctx context.Context, skill, script string, args []string) (scripts.Output, error)
}

// Report is the outcome of one task execution.
type Report struct {
	TaskID     string    `json:"task_id"`
	TaskName   string    `json:"task_name"`
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id,omitempty"`
	ExitCode   int       `json:"exit_code"`
	OutputPath string    `json:"output_path,omitempty"`
	Summary    string    `json:"summary"`
	Error      string    `json:"error,omitempty"`
	Finished   time.Time `json:"finished"`
}

type CronManager struct {
	st       *storage.Storage
	pipe     Pipeline
	reportFn func(task *tasks.Task, report *Report)
	timeout  time.Duration
	c        *cron.Cron
	jobs     map[string]cron.EntryID
	mu       sync.RWMutex
}

// NewCronManager schedules tasks with a seconds field. reportFn may be nil.
func NewCronManager(st *storage.Storage, pipe Pipeline, reportFn func(*tasks.Task, *Report)) *CronManager {
	return &CronManager{
		st:       st,
		pipe:     pipe,
		reportFn: reportFn,
		timeout:  30 * time.Minute,
		c:        cron.New(cron.WithSeconds()),
		jobs:     make(map[string]cron.EntryID),
	}
}

func (m *CronManager) Start() {
	legacyJobs, err := m.st.LoadCronTxt()
	if err != nil {
		slog.Warn("failed to load cron.txt on startup", "error", err)
	}
	for n, job := range legacyJobs {
		t := &tasks.Task{
			ID:             fmt.Sprintf("crontxt-%d", n+1),
			Name:           job.Skill + "/" + job.Script,
			CronExpression: job.Spec,
			Kind:           tasks.KindScript,
			Skill:          job.Skill,
			Script:         job.Script,
			Args:           job.Args,
			Active:         true,
			Silent:         true,
		}
		if err := m.schedule(t, false); err != nil {
			slog.Error("failed to schedule cron.txt job", "job_id", t.ID, "spec", job.Spec, "error", err)
		}
	}

	stored, err := m.st.ListTasks()
	if err != nil {
		slog.Warn("failed to load tasks on startup", "error", err)
	}
	for _, t := range stored {
		if !t.Active {
			continue
		}
		if err := m.AddTask(t); err != nil {
			slog.Error("failed to schedule task on startup", "task_id", t.ID, "error", err)
		}
	}

	m.c.Start()
}

// Stop halts scheduling and waits for running tasks.
func (m *CronManager) Stop() {
	<-m.c.Stop().Done()
}

// AddTask (re)schedules a stored task.
func (m *CronManager) AddTask(t *tasks.Task) error {
	return m.schedule(t, true)
}

func (m *CronManager) schedule(t *tasks.Task, persist bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[t.ID]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, t.ID)
	}

	entryID, err := m.c.AddFunc(t.CronExpression, func() {
		m.RunTask(context.Background(), t, persist)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", t.ID, err)
	}
	m.jobs[t.ID] = entryID
	return nil
}

func (m *CronManager) RemoveTask(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[id]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, id)
	}
}

// Next returns the next scheduled run of a task.
func (m *CronManager) Next(id string) (time.Time, bool) {
	m.mu.RLock()
	entryID, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	e := m.c.Entry(entryID)
	if e.Next.IsZero() && e.Schedule != nil {
		// not computed until the scheduler runs
		return e.Schedule.Next(time.Now()), true
	}
	return e.Next, true
}

// ValidateSpec checks a cron expression with the scheduler's parser.
func ValidateSpec(spec string) error {
	_, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(spec)
	return err
}

// RunTask executes t once, updates its last-run fields when persist is
// set and hands the report to the report function.
func (m *CronManager) RunTask(ctx context.Context, t *tasks.Task, persist bool) *Report {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	slog.Info("running task", "task_id", t.ID, "name", t.Name, "kind", t.Kind)
	report := m.execute(ctx, t)
	report.Finished = time.Now()

	if report.ExitCode != 0 {
		slog.Error("task failed", "task_id", t.ID, "exit_code", report.ExitCode, "error", report.Error)
	} else {
		slog.Info("task finished", "task_id", t.ID, "summary", report.Summary)
	}

	if persist {
		t.LastRun = report.Finished
		t.LastExitCode = report.ExitCode
		t.LastRunID = report.RunID
		if err := m.st.SaveTask(t); err != nil {
			slog.Warn("failed to update task last_run", "task_id", t.ID, "error", err)
		}
	}

	if m.reportFn != nil && !t.Silent {
		m.reportFn(t, report)
	}
	return report
}

func (m *CronManager) execute(ctx context.Context, t *tasks.Task) *Report {
	report := &Report{TaskID: t.ID, TaskName: t.Name, Kind: t.Kind}
	fail := func(err error) *Report {
		report.ExitCode = exitcode.For(err)
		report.Error = err.Error()
		report.Summary = fmt.Sprintf("%s failed: %v", t.Name, err)
		return report
	}

	switch t.Kind {
	case tasks.KindWatchlistReport:
		entries, err := m.st.ListWatchlist()
		if err != nil {
			return fail(err)
		}
		ids, names := watchlist.Compounds(entries)
		format := t.Format
		if format == "" {
			format = "pdf"
		}
		var stderr strings.Builder
		res, err := m.pipe.Compare(ctx, pipeline.CompareRequest{
			Compounds: ids,
			Names:     names,
			OutputDir: m.st.ReportsDir(),
			Format:    format,
		}, chain.IO{Stderr: &stderr})
		if res != nil {
			report.RunID = res.RunID
			report.OutputPath = res.OutputPath
		}
		if err != nil {
			if s := strings.TrimSpace(stderr.String()); s != "" {
				slog.Warn("comparison stderr", "task_id", t.ID, "stderr", s)
			}
			return fail(err)
		}
		report.Summary = fmt.Sprintf("%s: compared %d compounds, report %s", t.Name, len(ids), res.OutputPath)

	case tasks.KindScript:
		out, err := m.pipe.RunScript(ctx, t.Skill, t.Script, t.Args)
		if err == nil {
			err = exitcode.CheckOutput(t.Script, out)
		}
		if err != nil {
			return fail(err)
		}
		report.Summary = fmt.Sprintf("%s: %s/%s succeeded", t.Name, t.Skill, t.Script)

	default:
		return fail(fmt.Errorf("unknown task kind %q", t.Kind))
	}
	return report
}
