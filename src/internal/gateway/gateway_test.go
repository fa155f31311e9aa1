package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/cron"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/tasks"
	"pharmaclaw/src/internal/watchlist"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StorageDir: dir,
		SkillsDir:  filepath.Join(dir, "skills"),
		Runtime: config.RuntimeConfig{
			SystemPython: "/nonexistent/python3",
			Module:       "rdkit",
			ProbeTimeout: time.Second,
		},
		Pipeline: config.PipelineConfig{
			CompareSkill:  "pharmaclaw-compound-comparator",
			CompareScript: "compare_compounds.py",
			ReportScript:  "generate_report.py",
			ScriptTimeout: 5 * time.Second,
		},
	}
	skillDir := filepath.Join(cfg.SkillsDir, "chemistry-query")
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, "scripts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: chemistry-query\n---\n"), 0644))

	st, err := storage.New(dir)
	require.NoError(t, err)
	gw, err := New(cfg, st)
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestHandleCommand(t *testing.T) {
	gw := newTestGateway(t)

	assert.Equal(t, "no runs recorded", gw.HandleCommand([]string{"runs"}))
	assert.Equal(t, "watchlist is empty", gw.HandleCommand([]string{"watchlist"}))
	assert.Equal(t, "chemistry-query", gw.HandleCommand([]string{"skills"}))
	assert.Contains(t, gw.HandleCommand(nil), "commands:")
	assert.Contains(t, gw.HandleCommand([]string{"dance"}), "unknown command")

	require.NoError(t, gw.AddWatch(&watchlist.Entry{Compound: "CCO", Name: "Ethanol"}))
	require.NoError(t, gw.AddWatch(&watchlist.Entry{Compound: "2244"}))
	assert.Equal(t, "Ethanol, 2244", gw.HandleCommand([]string{"watchlist"}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		run, err := gw.History.Start(ctx, storage.KindScript, "chemistry-query/query_pubchem.py", nil, "")
		require.NoError(t, err)
		require.NoError(t, gw.History.Finish(ctx, run, 0, nil))
	}
	lines := strings.Split(gw.HandleCommand([]string{"runs", "2"}), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "exit=0")
}

func TestAddTask(t *testing.T) {
	gw := newTestGateway(t)

	bad := &tasks.Task{Name: "x", CronExpression: "whenever", Kind: tasks.KindWatchlistReport}
	assert.ErrorContains(t, gw.AddTask(bad), "invalid cron_expression")

	task := &tasks.Task{Name: "nightly", CronExpression: "0 0 2 * * *", Kind: tasks.KindWatchlistReport, Active: true}
	require.NoError(t, gw.AddTask(task))
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.Created.IsZero())

	views, err := gw.ListTasks()
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].NextRun)

	task.Active = false
	require.NoError(t, gw.AddTask(task))
	views, err = gw.ListTasks()
	require.NoError(t, err)
	assert.Nil(t, views[0].NextRun, "inactive tasks are unscheduled")

	require.NoError(t, gw.DeleteTask(task.ID))
	_, err = gw.GetTask(task.ID)
	assert.Error(t, err)
}

func TestRunTaskReports(t *testing.T) {
	gw := newTestGateway(t)

	var got []*cron.Report
	gw.SetTaskReportHandler(func(_ *tasks.Task, r *cron.Report) { got = append(got, r) })

	require.NoError(t, gw.AddTask(&tasks.Task{ID: "w", Name: "weekly", CronExpression: "@weekly", Kind: tasks.KindWatchlistReport}))
	report, err := gw.RunTask(context.Background(), "w")
	require.NoError(t, err)

	// an empty watchlist is fewer than two compounds
	assert.Equal(t, 2, report.ExitCode)
	require.Len(t, got, 1)
	assert.Equal(t, "w", got[0].TaskID)

	_, err = gw.RunTask(context.Background(), "missing")
	assert.Error(t, err)
}

func TestUpdateConfigSwapsPipeline(t *testing.T) {
	gw := newTestGateway(t)
	before := gw.Pipe()

	newCfg := *gw.Config()
	newCfg.Pipeline.Concurrency = 9
	require.NoError(t, gw.UpdateConfig(&newCfg))

	assert.NotSame(t, before, gw.Pipe())
	assert.Equal(t, 9, gw.Config().Pipeline.Concurrency)
	assert.FileExists(t, filepath.Join(gw.Config().StorageDir, "config.yaml"))
}

func TestInterpreterStatus(t *testing.T) {
	gw := newTestGateway(t)
	status := gw.InterpreterStatus(context.Background())
	assert.Equal(t, "rdkit", status["module"])
	assert.Contains(t, status["error"], "no python interpreter")
	assert.NotContains(t, status, "selected")
}

func TestInterpreterStatusDuringConfigUpdate(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			newCfg := *gw.Config()
			newCfg.Pipeline.Concurrency = i + 1
			assert.NoError(t, gw.UpdateConfig(&newCfg))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			status := gw.InterpreterStatus(ctx)
			assert.Equal(t, "rdkit", status["module"])
		}
	}()
	wg.Wait()
	assert.Equal(t, 5, gw.Config().Pipeline.Concurrency)
}

func writeToolScript(t *testing.T, gw *Gateway) {
	t.Helper()
	script := filepath.Join(gw.Config().SkillsDir, "chemistry-query", "scripts", "query_pubchem.py")
	require.NoError(t, os.WriteFile(script, []byte("print('{}')"), 0644))
	_, err := gw.ReloadSkills()
	require.NoError(t, err)
}

func TestScriptToolUsesResolvedInterpreter(t *testing.T) {
	gw := newTestGateway(t)
	writeToolScript(t, gw)

	// only the user env qualifies; the system python does not exist
	userEnv := filepath.Join(t.TempDir(), "env")
	python := interpreter.EnvPython(userEnv)
	require.NoError(t, os.MkdirAll(filepath.Dir(python), 0755))
	require.NoError(t, os.WriteFile(python, []byte("#!/bin/sh\necho '{\"status\":\"success\",\"via\":\"user-env\"}'\n"), 0755))

	newCfg := *gw.Config()
	newCfg.Runtime.UserEnv = userEnv
	require.NoError(t, gw.UpdateConfig(&newCfg))

	ctx := context.Background()
	tl, ok := gw.Skills.FindTool(ctx, "chemistry_query__query_pubchem")
	require.True(t, ok)
	out, err := tl.InvokableRun(ctx, `{"args":["--compound","aspirin"]}`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "user-env", decoded["via"])
}

func TestScriptToolWithoutInterpreter(t *testing.T) {
	gw := newTestGateway(t)
	writeToolScript(t, gw)

	ctx := context.Background()
	tl, ok := gw.Skills.FindTool(ctx, "chemistry_query__query_pubchem")
	require.True(t, ok)
	_, err := tl.InvokableRun(ctx, `{}`)

	var envErr *interpreter.Error
	assert.True(t, errors.As(err, &envErr), "got %v", err)
}
