// Package healthd 는 keepalive 클라이언트다. 워치독 장치를 연 채로 일정 간격으로
// ping 하고 종료 시 close 절차를 수행한다.
package healthd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	watchdog "smart-watchdog/internal/core"
	"smart-watchdog/internal/device"
)

// ErrChannelUnavailable 은 워치독 장치를 열 수 없음을 뜻한다.
var ErrChannelUnavailable = errors.New("watchdog channel unavailable")

// Channel 은 열린 워치독 장치 핸들이다.
type Channel interface {
	GetTimeout(ctx context.Context) (int, error)
	KeepAlive(ctx context.Context) error
	Write(ctx context.Context, p []byte) (int, error)
	Close() error
}

// OpenFunc 는 데몬이 사용할 채널을 연다.
type OpenFunc func(ctx context.Context) (Channel, error)

// DefaultInterval 은 keepalive 주기다.
const DefaultInterval = 2 * time.Second

// closeTimeout 은 취소 후 close 절차의 시간 제한이다.
const closeTimeout = 5 * time.Second

// Daemon 은 ctx 가 취소될 때까지 Channel 에 ping 한다.
type Daemon struct {
	cfg    Config
	open   OpenFunc
	clk    clock.Clock
	logger *slog.Logger
}

// New 는 데몬을 만든다. open 이 nil 이면 cfg.Device 에 맞는 채널을 연다.
func New(cfg Config, open OpenFunc, clk clock.Clock, logger *slog.Logger) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if open == nil {
		open = OpenDevice(cfg.Device)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Daemon{cfg: cfg, open: open, clk: clk, logger: logger}
}

// OpenDevice 는 path 에 맞는 채널을 고른다. /dev/ 아래 문자 장치는 커널 워치독
// ioctl 을 쓰고 그 밖에는 제어 소켓으로 본다.
func OpenDevice(path string) OpenFunc {
	if strings.HasPrefix(path, "/dev/") {
		return func(context.Context) (Channel, error) {
			hw, err := OpenHardware(path)
			if err != nil {
				return nil, err
			}
			return hw, nil
		}
	}
	return func(ctx context.Context) (Channel, error) {
		client, err := device.Dial(ctx, path)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Run 은 채널을 열고 ctx 가 취소될 때까지 ping 한 뒤 닫는다. 채널을 열지 못하면
// 루프에 들어가지 않고 ErrChannelUnavailable 을 반환한다. 워치독이 만료되면
// ErrTripped 로 루프를 끝낸다.
func (d *Daemon) Run(ctx context.Context) error {
	ch, err := d.open(ctx)
	if err != nil {
		d.logger.Error("healthd_open_failed", "device", d.cfg.Device, "err", err)
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	timeoutSec, err := ch.GetTimeout(ctx)
	if err != nil {
		d.logger.Warn("healthd_get_timeout_failed", "err", err)
		timeoutSec = 0
	}
	interval := d.pingInterval(timeoutSec)
	d.logger.Info("healthd_started", "device", d.cfg.Device, "timeout_sec", timeoutSec, "interval", interval.String())

	ticker := d.clk.Ticker(interval)
	defer ticker.Stop()

	loopErr := d.ping(ctx, ch)
	for loopErr == nil {
		select {
		case <-ctx.Done():
			return d.shutdown(ch)
		case <-ticker.C:
			loopErr = d.ping(ctx, ch)
		}
	}

	if closeErr := ch.Close(); closeErr != nil {
		d.logger.Warn("healthd_close_failed", "err", closeErr)
	}
	return loopErr
}

// pingInterval 은 간격을 타임아웃보다 항상 짧게 유지한다.
func (d *Daemon) pingInterval(timeoutSec int) time.Duration {
	interval := d.cfg.Interval
	if timeoutSec <= 0 {
		return interval
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if interval < timeout {
		return interval
	}
	clamped := timeout / 2
	d.logger.Warn("healthd_interval_clamped",
		"configured", interval.String(),
		"timeout_sec", timeoutSec,
		"interval", clamped.String(),
	)
	return clamped
}

// ping 은 루프를 끝내야 할 때만 에러를 반환한다.
func (d *Daemon) ping(ctx context.Context, ch Channel) error {
	err := ch.KeepAlive(ctx)
	switch {
	case err == nil:
		if d.cfg.Verbose {
			d.logger.Debug("keepalive")
		}
		return nil
	case errors.Is(err, watchdog.ErrTripped):
		d.logger.Error("healthd_watchdog_tripped", "err", err)
		return err
	case ctx.Err() != nil:
		return nil
	default:
		d.logger.Warn("keepalive_failed", "err", err)
		return nil
	}
}

func (d *Daemon) shutdown(ch Channel) error {
	d.logger.Info("healthd_stopping")

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if d.cfg.MagicClose {
		if _, err := ch.Write(ctx, []byte("V")); err != nil {
			d.logger.Warn("healthd_magic_close_failed", "err", err)
		}
	}
	if err := ch.Close(); err != nil {
		d.logger.Warn("healthd_close_failed", "err", err)
	}
	d.logger.Info("healthd_stopped", "magic_close", d.cfg.MagicClose)
	return nil
}
