package fatal

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/moby/moby/client"

	watchdog "smart-watchdog/internal/core"
)

const (
	containerStopTimeoutSec = 10
	containerRestartRetries = 3
	containerHaltBudget     = 90 * time.Second
)

// RestartFunc 는 이름으로 컨테이너를 재시작한다.
type RestartFunc func(ctx context.Context, name string, stopTimeoutSec int) error

// DockerRestart 는 Docker engine API 로 컨테이너를 재시작한다.
func DockerRestart(cli *client.Client) RestartFunc {
	return func(ctx context.Context, name string, stopTimeoutSec int) error {
		_, err := cli.ContainerRestart(ctx, name, client.ContainerRestartOptions{
			Timeout: &stopTimeoutSec,
		})
		return err
	}
}

// ContainerRestart 는 감시 대상 워크로드의 컨테이너를 재시작한다. 모든 시도가
// 실패하면 fallback 이 호스트 프로세스를 멈춘다.
type ContainerRestart struct {
	name       string
	restart    RestartFunc
	fallback   watchdog.FatalAction
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// NewContainerRestart 는 컨테이너 재시작 액션을 만든다.
func NewContainerRestart(name string, restart RestartFunc, fallback watchdog.FatalAction, logger *slog.Logger) *ContainerRestart {
	return &ContainerRestart{
		name:       name,
		restart:    restart,
		fallback:   fallback,
		logger:     logger,
		newBackOff: defaultRestartBackOff,
	}
}

func defaultRestartBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	return b
}

func (c *ContainerRestart) Halt(ctx context.Context, cause error) {
	ctx, cancel := context.WithTimeout(ctx, containerHaltBudget)
	defer cancel()

	c.logger.Error("fatal_container_restart", "container", c.name, "err", cause)

	attempt := 0
	operation := func() error {
		attempt++
		return c.restart(ctx, c.name, containerStopTimeoutSec)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("fatal_container_restart_retry",
			"container", c.name,
			"attempt", attempt,
			"err", err,
			"retry_in", wait.Round(time.Millisecond),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), containerRestartRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		c.logger.Error("fatal_container_restart_failed", "container", c.name, "attempts", attempt, "err", err)
		c.fallback.Halt(ctx, cause)
		return
	}
	c.logger.Warn("fatal_container_restarted", "container", c.name, "attempts", attempt)
}
