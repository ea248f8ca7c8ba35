package watchdog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"smart-watchdog/internal/bootstatus"
	"smart-watchdog/internal/deadline"
)

// pingEventInterval 은 이벤트 버퍼에 keepalive 를 기록하는 최소 간격이다.
const pingEventInterval = 10 * time.Second

// Attach 는 새로 바인딩된 장치의 코어를 만든다. 타임아웃은 설정에서 읽고
// 제어 채널 범위의 양의 정수가 아니면 DefaultTimeoutSec 을 쓴다.
// 코어는 무장되지 않은 상태로 시작한다.
func Attach(cfg Config, opts Options) (*Watchdog, error) {
	if opts.Fatal == nil {
		return nil, errors.New("watchdog attach: fatal action is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg.TimeoutSec = NormalizeTimeoutSec(cfg.TimeoutSec)
	cfg.Identity = strings.TrimSpace(cfg.Identity)
	if cfg.Identity == "" {
		cfg.Identity = DefaultIdentity
	}

	w := &Watchdog{
		clk:              clk,
		fatal:            opts.Fatal,
		logger:           logger,
		cfg:              cfg,
		state:            StateUnarmed,
		attachedAt:       clk.Now(),
		pingEventLimiter: rate.NewLimiter(rate.Every(pingEventInterval), 1),
	}
	w.timer = deadline.New(clk, w.onExpire)

	if cfg.BootStatusPath != "" {
		record, found, err := bootstatus.Take(cfg.BootStatusPath)
		switch {
		case err != nil:
			logger.Warn("boot_status_read_failed", "path", cfg.BootStatusPath, "err", err)
		case found:
			w.bootStatus = &record
			logger.Warn("previous_reset_by_watchdog",
				"tripped_at", record.TrippedAt,
				"timeout_sec", record.TimeoutSec,
				"cause", record.Cause,
			)
		}
	}

	logger.Info("watchdog_attached", "identity", cfg.Identity, "timeout_sec", cfg.TimeoutSec)
	w.appendEvent(Event{Action: "attach", TimeoutSec: cfg.TimeoutSec, Result: "ok"})
	return w, nil
}

// Detach 는 타이머를 멈추고 코어를 해제한다. 여러 번 호출해도 안전하며
// 만료된 코어는 만료 상태로 남는다.
func Detach(w *Watchdog) {
	if w == nil {
		return
	}

	w.mu.Lock()
	if w.detached {
		w.mu.Unlock()
		return
	}
	w.detached = true
	w.timer.Cancel()
	if w.state == StateArmed {
		w.state = StateUnarmed
		w.deadline = time.Time{}
	}
	state := w.state
	w.mu.Unlock()

	w.logger.Info("watchdog_detached", "state", state.String())
	w.appendEvent(Event{Action: "detach", Result: "ok"})
}

// Start 는 데드라인을 now+timeout 으로 예약한다. 이미 무장된 코어는 지금부터
// 다시 예약한다.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	if err := w.usableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	wasArmed := w.state == StateArmed
	armErr := w.armLocked("start")
	timeoutSec := w.cfg.TimeoutSec
	w.mu.Unlock()

	if armErr != nil {
		w.escalate(armErr)
		return ErrTripped
	}

	if !wasArmed {
		w.logger.Info("watchdog_start", "timeout_sec", timeoutSec)
	}
	w.appendEvent(Event{Action: "start", TimeoutSec: timeoutSec, Result: "ok"})
	return nil
}

// Stop 은 데드라인을 취소한다. 무장되지 않은 코어에는 영향이 없다.
func (w *Watchdog) Stop() error {
	w.mu.Lock()
	if w.state == StateTripped {
		w.mu.Unlock()
		return ErrTripped
	}
	wasArmed := w.state == StateArmed
	w.timer.Cancel()
	w.state = StateUnarmed
	w.deadline = time.Time{}
	w.mu.Unlock()

	if wasArmed {
		w.logger.Info("watchdog_stop")
		w.appendEvent(Event{Action: "stop", Result: "ok"})
	}
	return nil
}

// Ping 은 무장된 코어를 지금부터 다시 예약한다. 무장되지 않았으면 무시한다.
func (w *Watchdog) Ping() error {
	w.mu.Lock()
	if err := w.usableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.state != StateArmed {
		w.mu.Unlock()
		return nil
	}
	armErr := w.armLocked("ping")
	now := w.clk.Now()
	if armErr == nil {
		w.lastPing = now
		w.pings++
	}
	pings := w.pings
	verbose := w.cfg.VerboseLogging
	w.mu.Unlock()

	if armErr != nil {
		w.escalate(armErr)
		return ErrTripped
	}

	if verbose {
		w.logger.Debug("keepalive", "count", pings)
	}
	if w.pingEventLimiter.AllowN(now, 1) {
		w.appendEvent(Event{At: now, Action: "ping", Count: pings, Result: "ok"})
	}
	return nil
}

// SetTimeout 은 타임아웃을 교체한다. 무장 중이면 즉시 적용되어 데드라인이
// now+value 가 된다.
func (w *Watchdog) SetTimeout(value int) error {
	if value <= 0 || value > MaxTimeoutSec {
		w.appendEvent(Event{Action: "set_timeout", TimeoutSec: value, Result: "rejected", Error: ErrInvalidTimeout.Error()})
		return ErrInvalidTimeout
	}

	w.mu.Lock()
	if err := w.usableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	previous := w.cfg.TimeoutSec
	w.cfg.TimeoutSec = value
	var armErr *ArmError
	armed := w.state == StateArmed
	if armed {
		armErr = w.armLocked("set_timeout")
	}
	w.mu.Unlock()

	if armErr != nil {
		w.escalate(armErr)
		return ErrTripped
	}

	w.logger.Info("watchdog_timeout_set", "previous_sec", previous, "timeout_sec", value, "rearmed", armed)
	w.appendEvent(Event{Action: "set_timeout", TimeoutSec: value, Result: "ok"})
	return nil
}

// Timeout 은 설정된 타임아웃(초)을 반환한다.
func (w *Watchdog) Timeout() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg.TimeoutSec
}

// TimeLeft 는 무장 중일 때 만료까지 남은 시간을 반환한다.
func (w *Watchdog) TimeLeft() (time.Duration, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != StateArmed {
		return 0, false
	}
	return max(w.deadline.Sub(w.clk.Now()), 0), true
}

// State 는 현재 생명주기 상태를 반환한다.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Identity 는 장치 이름을 반환한다.
func (w *Watchdog) Identity() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg.Identity
}

// BootStatus 는 직전 실행이 남긴 만료 기록을 반환한다.
func (w *Watchdog) BootStatus() (bootstatus.Record, bool) {
	if w.bootStatus == nil {
		return bootstatus.Record{}, false
	}
	return *w.bootStatus, true
}

func (w *Watchdog) usableLocked() error {
	if w.state == StateTripped {
		return ErrTripped
	}
	if w.detached {
		return ErrDetached
	}
	return nil
}

// armLocked 는 now+timeout 을 예약한다. 실패하면 잠금 안에서 StateTripped 로
// 옮기며 호출자는 잠금을 푼 뒤 escalate 해야 한다.
func (w *Watchdog) armLocked(op string) *ArmError {
	timeout := time.Duration(w.cfg.TimeoutSec) * time.Second
	gen, err := w.timer.Arm(timeout)
	if err != nil {
		armErr := &ArmError{Op: op, Err: err}
		w.markTrippedLocked(w.clk.Now(), armErr)
		return armErr
	}
	w.state = StateArmed
	w.armGen = gen
	if dl, ok := w.timer.Deadline(); ok {
		w.deadline = dl
	} else {
		w.deadline = w.clk.Now().Add(timeout)
	}
	return nil
}

func (w *Watchdog) markTrippedLocked(now time.Time, cause error) {
	w.timer.Cancel()
	w.state = StateTripped
	w.trip = &TripRecord{
		At:       now,
		Deadline: w.deadline,
		Timeout:  w.cfg.TimeoutSec,
		Cause:    cause.Error(),
	}
}

func (w *Watchdog) onExpire(gen uint64) {
	w.mu.Lock()
	if w.state != StateArmed || gen != w.armGen {
		w.mu.Unlock()
		return
	}
	now := w.clk.Now()
	cause := &ExpiredError{
		Identity: w.cfg.Identity,
		Timeout:  time.Duration(w.cfg.TimeoutSec) * time.Second,
		Deadline: w.deadline,
		LastPing: w.lastPing,
	}
	w.markTrippedLocked(now, cause)
	w.mu.Unlock()

	w.invokeFatal(cause)
}

// escalate 는 내부 실패를 만료와 똑같이 처리한다.
func (w *Watchdog) escalate(cause error) {
	w.logger.Error("watchdog_internal_failure", "err", cause)
	w.invokeFatal(cause)
}

func (w *Watchdog) invokeFatal(cause error) {
	if !w.tripped.CompareAndSwap(false, true) {
		return
	}

	w.mu.RLock()
	identity := w.cfg.Identity
	timeoutSec := w.cfg.TimeoutSec
	bootStatusPath := w.cfg.BootStatusPath
	trippedAt := w.clk.Now()
	if w.trip != nil {
		trippedAt = w.trip.At
	}
	w.mu.RUnlock()

	w.logger.Error("watchdog_expired", "identity", identity, "timeout_sec", timeoutSec, "err", cause)
	w.appendEvent(Event{At: trippedAt, Action: "expired", TimeoutSec: timeoutSec, Result: "tripped", Error: cause.Error()})

	if bootStatusPath != "" {
		record := bootstatus.Record{
			Identity:   identity,
			TimeoutSec: timeoutSec,
			Cause:      cause.Error(),
			TrippedAt:  trippedAt,
		}
		if err := bootstatus.Write(bootStatusPath, record); err != nil {
			w.logger.Error("boot_status_write_failed", "path", bootStatusPath, "err", err)
		}
	}

	w.fatal.Halt(context.Background(), cause)

	// fatal action 이 스텁일 때만 도달한다.
	w.logger.Error("fatal_action_returned", "state", StateTripped.String())
}
