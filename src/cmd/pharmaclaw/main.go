package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/exitcode"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/storage"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pharmaclaw",
	Short: "Run chemistry and pharmacology skill scripts",
	Long: `pharmaclaw locates a Python environment able to import the chemistry
toolkit, runs skill scripts with it and chains their output into reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &args.UsageError{Command: cmd.Name(), Usage: cmd.UseLine(), Reason: err.Error()}
	})
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// usageArgs turns a positional argument check failure into a usage error.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, argv []string) error {
		if err := check(cmd, argv); err != nil {
			return &args.UsageError{Command: cmd.Name(), Usage: cmd.UseLine(), Reason: err.Error()}
		}
		return nil
	}
}

func openGateway() (*gateway.Gateway, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := storage.New(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return gateway.New(cfg, st)
}

// withGateway opens the gateway for the duration of fn.
func withGateway(fn func(gw *gateway.Gateway) error) error {
	gw, err := openGateway()
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Warn("failed to close gateway", "error", err)
		}
	}()
	return fn(gw)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitcode.For(err))
	}
}
