//go:build wireinject
// +build wireinject

package main

import (
	"log/slog"

	"github.com/google/wire"

	watchdog "smart-watchdog/internal/core"
)

func initializeWatchdogRuntime(cfg watchdog.Config, meta WatchdogConfigMeta, logger *slog.Logger) (*WatchdogRuntime, error) {
	wire.Build(
		newDockerHost,
		newDockerClient,
		newFatalAction,
		newWatchdog,
		newClosePolicy,
		newHandler,
		newDeviceServer,
		wire.Struct(new(WatchdogRuntime), "*"),
	)
	return nil, nil
}
