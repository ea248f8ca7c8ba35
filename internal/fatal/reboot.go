package fatal

import (
	"context"
	"log/slog"

	watchdog "smart-watchdog/internal/core"
)

// Reboot 은 파일시스템을 sync 하고 머신을 재시작한다. reboot 시스템 콜이
// 거부되면 fallback 을 실행한다.
type Reboot struct {
	logger   *slog.Logger
	reboot   func() error
	fallback watchdog.FatalAction
}

// NewReboot 는 시스템 재부팅 액션을 만든다.
func NewReboot(fallback watchdog.FatalAction, logger *slog.Logger) *Reboot {
	return &Reboot{logger: logger, reboot: systemReboot, fallback: fallback}
}

func (r *Reboot) Halt(ctx context.Context, cause error) {
	r.logger.Error("fatal_reboot", "err", cause)
	if err := r.reboot(); err != nil {
		r.logger.Error("fatal_reboot_failed", "err", err)
		r.fallback.Halt(ctx, cause)
	}
}
