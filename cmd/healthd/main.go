package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"smart-watchdog/internal/healthd"
	"smart-watchdog/internal/logging"
)

// healthd 는 인자를 받지 않고 HEALTHD_* 환경 변수로만 설정한다.
func main() {
	cfg := healthd.LoadConfigFromEnv()

	logger, closeLogger := logging.Setup(logging.Options{Name: "healthd", Verbose: cfg.Verbose})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := healthd.New(cfg, nil, nil, logger).Run(ctx)
	stop()
	if err != nil {
		logger.Error("healthd_failed", "err", err)
		closeLogger()
		os.Exit(1)
	}
	closeLogger()
}
