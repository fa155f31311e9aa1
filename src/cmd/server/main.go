//go:build !test

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"pharmaclaw/src/internal/api"
	"pharmaclaw/src/internal/config"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/storage"
	"pharmaclaw/src/internal/system"
)

func main() {
	var (
		configFile string
		seedSkills string
		noWatch    bool
	)
	flag.StringVar(&configFile, "config", "", "path to config file to load first")
	flag.StringVar(&seedSkills, "seed-skills", "", "directory of bundled skills copied into the skills dir on start")
	flag.BoolVar(&noWatch, "no-watch", false, "do not reload skills when the skills dir changes")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	s, err := storage.New(cfg.StorageDir)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// PID file management
	pidPath := filepath.Join(cfg.StorageDir, "pharmaclaw.pid")

	// Check if already running
	if pidBytes, err := os.ReadFile(pidPath); err == nil {
		pidStr := strings.TrimSpace(string(pidBytes))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 {
			if syscall.Kill(pid, 0) == nil {
				slog.Error("pharmaclaw server already running", "pid", pid, "pidfile", pidPath)
				os.Exit(1)
			}
			// Stale PID: clean up
			if err := os.Remove(pidPath); err != nil {
				slog.Warn("failed to remove stale pidfile", "path", pidPath, "error", err)
			} else {
				slog.Info("cleaned stale pidfile", "pid", pid)
			}
		}
	}

	pidFile, err := os.OpenFile(pidPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		slog.Error("failed to create pidfile", "path", pidPath, "error", err)
		os.Exit(1)
	}
	defer pidFile.Close()

	if _, err := fmt.Fprintf(pidFile, "%d\n", os.Getpid()); err != nil {
		slog.Error("failed to write pidfile", "path", pidPath, "error", err)
		os.Exit(1)
	}

	defer func(name string) {
		err := os.Remove(name)
		if err != nil {
			slog.Error("failed to remove pidfile", "path", name, "error", err)
		}
	}(pidPath)

	// Warn if non-loopback bind without key
	isLoopback := cfg.Server.EffectiveHost == "127.0.0.1" || cfg.Server.EffectiveHost == "localhost" || cfg.Server.EffectiveHost == "::1" || cfg.Server.EffectiveHost == "[::1]"
	if !isLoopback && cfg.Server.Key == "" {
		slog.Warn("binding to non-loopback address without server key; recommend setting config.server.key", "host", cfg.Server.EffectiveHost)
	}
	if cfg.Server.AdminPass == "" {
		slog.Warn("admin API disabled; set config.server.admin_pass to enable it")
	}

	if seedSkills != "" {
		if err := s.CopySkills(seedSkills); err != nil {
			slog.Warn("failed to copy bundled skills", "from", seedSkills, "error", err)
		} else {
			slog.Info("copied bundled skills", "from", seedSkills)
		}
	}

	gw, err := gateway.New(cfg, s)
	if err != nil {
		slog.Error("failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interp, err := gw.Pipe().Interpreter(ctx); err != nil {
		slog.Warn("no interpreter available yet; script endpoints will fail until one is installed", "error", err)
	} else {
		slog.Info("interpreter selected", "path", interp.Path, "source", interp.Source)
	}

	gw.Start(ctx, !noWatch)

	server := api.NewServer(gw)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	slog.Info("starting pharmaclaw server", "addr", cfg.Server.Addr, "version", api.Version, "system", system.GetInfo().String(), "skills", len(gw.Skills.GetSkills()))
	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		slog.Error("server ListenAndServe failed", "error", err)
		os.Exit(1)
	}
	system.LogMemoryUsage("shutdown")
}
