package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"smart-watchdog/internal/admin"
	watchdog "smart-watchdog/internal/core"
	"smart-watchdog/internal/logging"
)

func main() {
	level := new(slog.LevelVar)
	logger, closeLogger := logging.Setup(logging.Options{Name: "watchdogd", Level: level})
	defer closeLogger()

	adminCfg := admin.LoadAdminConfig()
	if err := adminCfg.ValidateForEnable(); err != nil {
		logger.Error("admin_config_invalid", "err", err)
		os.Exit(2)
	}

	cfg, configSource, configPath, err := watchdog.LoadConfigWithSource(logger)
	if err != nil {
		logger.Error("config_load_failed", "path", configPath, "err", err)
		os.Exit(2)
	}
	if cfg.VerboseLogging {
		level.Set(slog.LevelDebug)
	}

	runtime, err := initializeWatchdogRuntime(cfg, WatchdogConfigMeta{
		Source: configSource,
		Path:   configPath,
	}, logger)
	if err != nil {
		var dockerInitErr *DockerClientInitError
		if errors.As(err, &dockerInitErr) {
			logger.Error("docker_client_init_failed", "host", dockerInitErr.Host, "err", dockerInitErr.Err)
			os.Exit(2)
		}
		var fatalInitErr *FatalActionInitError
		if errors.As(err, &fatalInitErr) {
			logger.Error("fatal_action_init_failed", "action", fatalInitErr.Action, "err", fatalInitErr.Err)
			os.Exit(2)
		}
		logger.Error("init_failed", "err", err)
		os.Exit(2)
	}

	logger.Info("watchdog_start",
		"admin_enabled", adminCfg.Enabled,
		"config_source", configSource,
		"config_path", configPath,
		"identity", cfg.Identity,
		"socket", cfg.SocketPath,
		"timeout", time.Duration(cfg.TimeoutSec)*time.Second,
		"close_policy", runtime.Handler.Policy().String(),
		"fatal_action", cfg.FatalAction,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if adminCfg.Enabled {
		g.Go(func() error {
			return admin.RunServer(gctx, adminCfg, runtime.Watchdog, logger)
		})
	}
	g.Go(func() error {
		return runtime.Server.Serve(gctx)
	})

	err = g.Wait()
	runtime.Close(logger)
	if err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown")
}
