package tasks

import (
	"fmt"
	"time"
)

const (
	KindWatchlistReport = "watchlist-report"
	KindScript          = "script"
)

type Task struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CronExpression string    `json:"cron_expression"`
	Kind           string    `json:"kind"`
	Skill          string    `json:"skill,omitempty"`
	Script         string    `json:"script,omitempty"`
	Args           []string  `json:"args,omitempty"`
	Format         string    `json:"format,omitempty"` // watchlist-report only: pdf or json
	Active         bool      `json:"active"`
	LastRun        time.Time `json:"last_run,omitempty"`
	LastExitCode   int       `json:"last_exit_code"`
	LastRunID      string    `json:"last_run_id,omitempty"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
	ReportChannels []string  `json:"report_channels,omitempty"` // e.g. "irc:#channel"
	Silent         bool      `json:"silent,omitempty"`          // no websocket or channel reports
}

func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.CronExpression == "" {
		return fmt.Errorf("task %q: cron_expression is required", t.Name)
	}
	switch t.Kind {
	case KindWatchlistReport:
		if t.Format != "" && t.Format != "pdf" && t.Format != "json" {
			return fmt.Errorf("task %q: format must be pdf or json", t.Name)
		}
	case KindScript:
		if t.Skill == "" || t.Script == "" {
			return fmt.Errorf("task %q: script tasks need skill and script", t.Name)
		}
	default:
		return fmt.Errorf("task %q: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}
