package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/channels"
	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/cron"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/pipeline"
	"pharmaclaw/src/internal/scripts"
	"pharmaclaw/src/internal/skills"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/tools/clawhub"
	"pharmaclaw/src/internal/watchlist"
)

type Gateway struct {
	Storage  *storage.Storage
	History  *storage.History
	Skills   *skills.SkillLoader
	Channels map[string]channels.Channel

	cronMgr *cron.CronManager

	// guarded by mu; swapped together by UpdateConfig
	mu            sync.RWMutex
	cfg           *config.Config
	resolver      *interpreter.Resolver
	pipeline      *pipeline.Pipeline
	hub           *clawhub.Client
	reportHandler func(*tasks.Task, *cron.Report)
}

// NewResolver builds the interpreter resolver from the runtime section.
func NewResolver(cfg *config.Config) *interpreter.Resolver {
	return interpreter.New(interpreter.Options{
		BundledEnv:   cfg.Runtime.BundledEnv,
		SystemPython: cfg.Runtime.SystemPython,
		UserEnv:      cfg.Runtime.UserEnv,
		Module:       cfg.Runtime.Module,
		ProbeTimeout: cfg.Runtime.ProbeTimeout,
	})
}

// New wires storage, history, skills, the pipeline and the scheduler.
// Nothing runs until Start.
func New(cfg *config.Config, st *storage.Storage) (*Gateway, error) {
	history, err := storage.OpenHistory(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		Storage:  st,
		History:  history,
		Channels: make(map[string]channels.Channel),
		cfg:      cfg,
		resolver: NewResolver(cfg),
		hub:      clawhub.NewClient(cfg.ClawHub.BaseURL),
	}
	// script tools resolve the interpreter through the current pipeline on every call
	gw.Skills = skills.NewSkillLoader(cfg.SkillsDir, func(ctx context.Context) (*scripts.Runner, error) {
		return gw.Pipe().Runner(ctx)
	})
	if err := gw.Skills.Load(); err != nil {
		slog.Warn("failed to load skills", "dir", cfg.SkillsDir, "error", err)
	}
	gw.pipeline = pipeline.New(cfg.Pipeline, gw.Skills, gw.resolver, history)
	// tasks go through the gateway so they pick up config updates
	gw.cronMgr = cron.NewCronManager(st, gw, gw.reportTask)

	if cfg.Channels.IRC.Enabled {
		irc := channels.NewIRC(cfg.Channels.IRC)
		irc.SetCommandHandler(gw.HandleCommand)
		gw.Channels["irc"] = irc
		slog.Info("irc channel initialized", "server", cfg.Channels.IRC.Server)
	}
	return gw, nil
}

// Start launches the scheduler, connects channels and, when watch is set,
// reloads skills on change until ctx is done.
func (gw *Gateway) Start(ctx context.Context, watch bool) {
	gw.cronMgr.Start()
	for name, ch := range gw.Channels {
		if err := ch.Connect(ctx); err != nil {
			slog.Error("failed to connect channel", "channel", name, "error", err)
		}
	}
	if watch {
		go func() {
			if err := gw.Skills.Watch(ctx, nil); err != nil {
				slog.Error("skills watcher stopped", "error", err)
			}
		}()
	}
}

func (gw *Gateway) Close() error {
	gw.cronMgr.Stop()
	return gw.History.Close()
}

// SetTaskReportHandler registers the receiver of task reports, in
// addition to the configured report channels.
func (gw *Gateway) SetTaskReportHandler(h func(*tasks.Task, *cron.Report)) {
	gw.mu.Lock()
	gw.reportHandler = h
	gw.mu.Unlock()
}

func (gw *Gateway) reportTask(t *tasks.Task, r *cron.Report) {
	gw.mu.RLock()
	h := gw.reportHandler
	gw.mu.RUnlock()
	if h != nil {
		h(t, r)
	}

	for _, target := range t.ReportChannels {
		channel, device, err := channels.ParseTarget(target)
		if err != nil {
			slog.Warn("skipping report channel", "task_id", t.ID, "error", err)
			continue
		}
		if err := gw.ChannelSend(channel, device, r.Summary); err != nil {
			slog.Error("failed to report task result to channel", "task_id", t.ID, "channel", channel, "device", device, "error", err)
		}
	}
}

func (gw *Gateway) ChannelStatus(channel string) map[string]any {
	if ch, ok := gw.Channels[channel]; ok {
		return ch.Status()
	}
	return map[string]any{"error": fmt.Sprintf("channel %q not found", channel)}
}

func (gw *Gateway) ChannelSend(channel, device, msg string) error {
	if ch, ok := gw.Channels[channel]; ok {
		return ch.Send(context.Background(), device, msg)
	}
	return fmt.Errorf("channel %q not found", channel)
}

// UpdateConfig saves newCfg and rebuilds the parts derived from it.
// Running tasks keep the old pipeline until they finish.
func (gw *Gateway) UpdateConfig(newCfg *config.Config) error {
	if err := config.Save(newCfg); err != nil {
		return err
	}
	resolver := NewResolver(newCfg)
	pipe := pipeline.New(newCfg.Pipeline, gw.Skills, resolver, gw.History)
	hub := clawhub.NewClient(newCfg.ClawHub.BaseURL)

	gw.mu.Lock()
	gw.cfg = newCfg
	gw.resolver = resolver
	gw.pipeline = pipe
	gw.hub = hub
	gw.mu.Unlock()
	slog.Info("configuration updated")
	return nil
}

// Config returns the current configuration. Callers must not modify it;
// use UpdateConfig with a copy.
func (gw *Gateway) Config() *config.Config {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.cfg
}

// Resolver returns the current interpreter resolver.
func (gw *Gateway) Resolver() *interpreter.Resolver {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.resolver
}

// Pipe returns the current pipeline.
func (gw *Gateway) Pipe() *pipeline.Pipeline {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.pipeline
}

// ClawHub returns the client for the configured skill registry.
func (gw *Gateway) ClawHub() *clawhub.Client {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.hub
}

func (gw *Gateway) Compare(ctx context.Context, req pipeline.CompareRequest, stdio chain.IO) (*pipeline.CompareResult, error) {
	return gw.Pipe().Compare(ctx, req, stdio)
}

func (gw *Gateway) RunScript(ctx context.Context, skill, script string, args []string) (scripts.Output, error) {
	return gw.Pipe().RunScript(ctx, skill, script, args)
}

func (gw *Gateway) ReloadSkills() ([]*skills.Skill, error) {
	if err := gw.Skills.Load(); err != nil {
		return nil, err
	}
	return gw.Skills.GetSkills(), nil
}

func (gw *Gateway) RemoveSkill(name string) error {
	if err := skills.RemoveSkill(gw.Config().SkillsDir, name); err != nil {
		return err
	}
	_, err := gw.ReloadSkills()
	return err
}

// InstallSkill fetches a SKILL.md from rawURL. When rawURL is empty the
// skill is looked up on ClawHub by name.
func (gw *Gateway) InstallSkill(ctx context.Context, name, rawURL string) (*skills.Skill, error) {
	if rawURL == "" {
		if name == "" {
			return nil, fmt.Errorf("%w: name or url is required", pipeline.ErrBadRequest)
		}
		hub := gw.ClawHub()
		if _, err := hub.GetSkill(ctx, name); err != nil {
			return nil, err
		}
		rawURL = hub.FileURL(name, "")
	}
	s, err := skills.InstallSkill(ctx, gw.Config().SkillsDir, name, rawURL)
	if err != nil {
		return nil, err
	}
	if _, err := gw.ReloadSkills(); err != nil {
		return nil, err
	}
	return s, nil
}

// InterpreterStatus reports the candidates and the current selection.
func (gw *Gateway) InterpreterStatus(ctx context.Context) map[string]any {
	gw.mu.RLock()
	resolver, pipe := gw.resolver, gw.pipeline
	gw.mu.RUnlock()

	status := map[string]any{
		"module":     resolver.Module(),
		"candidates": resolver.Candidates(),
	}
	pipe.ResetInterpreter()
	interp, err := pipe.Interpreter(ctx)
	if err != nil {
		status["error"] = err.Error()
	} else {
		status["selected"] = interp
	}
	return status
}

func (gw *Gateway) AddWatch(e *watchlist.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if e.ID == "" {
		e.ID = uuid.New().String()
		e.Created = now
	}
	e.Updated = now
	return gw.Storage.SaveWatch(e)
}

func (gw *Gateway) AddTask(t *tasks.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := cron.ValidateSpec(t.CronExpression); err != nil {
		return fmt.Errorf("invalid cron_expression %q: %w", t.CronExpression, err)
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.New().String()
		t.Created = now
	}
	t.Updated = now
	if err := gw.Storage.SaveTask(t); err != nil {
		return err
	}
	if !t.Active {
		gw.cronMgr.RemoveTask(t.ID)
		return nil
	}
	return gw.cronMgr.AddTask(t)
}

func (gw *Gateway) GetTask(id string) (*tasks.Task, error) {
	return gw.Storage.LoadTask(id)
}

func (gw *Gateway) DeleteTask(id string) error {
	if err := gw.Storage.DeleteTask(id); err != nil {
		return err
	}
	gw.cronMgr.RemoveTask(id)
	return nil
}

// TaskView is a stored task with its next scheduled run.
type TaskView struct {
	*tasks.Task
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (gw *Gateway) ListTasks() ([]TaskView, error) {
	list, err := gw.Storage.ListTasks()
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(list))
	for _, t := range list {
		v := TaskView{Task: t}
		if next, ok := gw.cronMgr.Next(t.ID); ok && !next.IsZero() {
			v.NextRun = &next
		}
		views = append(views, v)
	}
	return views, nil
}

// RunTask runs a stored task immediately.
func (gw *Gateway) RunTask(ctx context.Context, id string) (*cron.Report, error) {
	t, err := gw.Storage.LoadTask(id)
	if err != nil {
		return nil, err
	}
	return gw.cronMgr.RunTask(ctx, t, true), nil
}

// HandleCommand answers chat commands: runs [n], watchlist, skills.
func (gw *Gateway) HandleCommand(args []string) string {
	if len(args) == 0 {
		return "commands: runs [n], watchlist, skills"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "runs":
		limit := 5
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
				limit = n
			}
		}
		runs, err := gw.History.List(ctx, "", limit)
		if err != nil {
			return "error: " + err.Error()
		}
		if len(runs) == 0 {
			return "no runs recorded"
		}
		var lines []string
		for _, r := range runs {
			lines = append(lines, fmt.Sprintf("%s %s %q exit=%d", r.StartedAt.Format(time.RFC3339), r.Kind, r.Subject, r.ExitCode))
		}
		return strings.Join(lines, "\n")
	case "watchlist":
		entries, err := gw.Storage.ListWatchlist()
		if err != nil {
			return "error: " + err.Error()
		}
		if len(entries) == 0 {
			return "watchlist is empty"
		}
		var labels []string
		for _, e := range entries {
			labels = append(labels, e.Label())
		}
		return strings.Join(labels, ", ")
	case "skills":
		var names []string
		for _, s := range gw.Skills.GetSkills() {
			names = append(names, s.Name)
		}
		if len(names) == 0 {
			return "no skills installed"
		}
		return strings.Join(names, ", ")
	default:
		return fmt.Sprintf("unknown command %q", args[0])
	}
}
