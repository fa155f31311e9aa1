package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/exitcode"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/tasks"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage scheduled tasks",
	Long: `Tasks run on a cron schedule (with seconds) while the server is up.
A watchlist-report task compares the whole watchlist; a script task runs
one skill script.`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			views, err := gw.ListTasks()
			if err != nil {
				return err
			}
			if len(views) == 0 {
				cmd.Println("No tasks.")
				return nil
			}
			for _, v := range views {
				state := "inactive"
				if v.Active {
					state = "active"
				}
				cmd.Printf("%s  %s  %q  %s  %s\n", v.ID, v.Name, v.CronExpression, v.Kind, state)
				if !v.LastRun.IsZero() {
					cmd.Printf("  last run %s exit=%d\n", v.LastRun.Format(time.RFC3339), v.LastExitCode)
				}
				if v.NextRun != nil {
					cmd.Printf("  next run %s\n", v.NextRun.Format(time.RFC3339))
				}
			}
			return nil
		})
	},
}

var (
	newTask      tasks.Task
	taskInactive bool
)

var tasksAddCmd = &cobra.Command{
	Use:   "add --name <name> --cron <expr> [--kind script --skill s --script f] [-- script args...]",
	Short: "Create a scheduled task",
	Example: `  pharmaclaw tasks add --name nightly --cron "0 0 2 * * *"
  pharmaclaw tasks add --name ping --cron "@hourly" --kind script --skill chemistry-query --script query_pubchem.py -- --compound aspirin`,
	RunE: func(cmd *cobra.Command, argv []string) error {
		t := newTask
		t.Args = append([]string(nil), argv...)
		t.Active = !taskInactive
		return withGateway(func(gw *gateway.Gateway) error {
			if err := gw.AddTask(&t); err != nil {
				return err
			}
			cmd.Printf("Created task %s (%s)\n", t.Name, t.ID)
			return nil
		})
	},
}

var tasksRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a task",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			if err := gw.DeleteTask(argv[0]); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("task %s not found", argv[0])
				}
				return err
			}
			cmd.Printf("Removed task %s\n", argv[0])
			return nil
		})
	},
}

var tasksRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a task now and print its report",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			report, err := gw.RunTask(cmd.Context(), argv[0])
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("task %s not found", argv[0])
				}
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if report.ExitCode != exitcode.OK {
				return &exitcode.CodedError{Code: report.ExitCode, Message: report.Summary}
			}
			return nil
		})
	},
}

var (
	historyKind  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs, newest first",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			runs, err := gw.History.List(cmd.Context(), historyKind, historyLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("No runs recorded.")
				return nil
			}
			for _, r := range runs {
				cmd.Printf("%s  %s  %-7s exit=%d  %s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Kind, r.ExitCode, r.Subject)
			}
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one run as JSON",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			run, err := gw.History.Get(cmd.Context(), argv[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, run)
		})
	},
}

func init() {
	f := tasksAddCmd.Flags()
	f.StringVar(&newTask.Name, "name", "", "task name")
	f.StringVar(&newTask.CronExpression, "cron", "", "cron expression with seconds, or a descriptor such as @hourly")
	f.StringVar(&newTask.Kind, "kind", tasks.KindWatchlistReport, "watchlist-report or script")
	f.StringVar(&newTask.Skill, "skill", "", "skill name (script tasks)")
	f.StringVar(&newTask.Script, "script", "", "script file name (script tasks)")
	f.StringVar(&newTask.Format, "format", "", "report format for watchlist reports: pdf or json")
	f.StringSliceVar(&newTask.ReportChannels, "channel", nil, "report target such as irc:#lab (repeatable)")
	f.BoolVar(&newTask.Silent, "silent", false, "do not report results")
	f.BoolVar(&taskInactive, "inactive", false, "store the task without scheduling it")
	_ = tasksAddCmd.MarkFlagRequired("name")
	_ = tasksAddCmd.MarkFlagRequired("cron")

	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only runs of this kind: compare, script, batch or task")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksRemoveCmd, tasksRunCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(tasksCmd, historyCmd)
}
