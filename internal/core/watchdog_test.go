package watchdog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fatalRecorder struct {
	calls  atomic.Int32
	causes chan error
}

func newFatalRecorder() *fatalRecorder {
	return &fatalRecorder{causes: make(chan error, 8)}
}

func (r *fatalRecorder) Halt(_ context.Context, cause error) {
	r.calls.Add(1)
	r.causes <- cause
}

func (r *fatalRecorder) waitTrip(t *testing.T) error {
	t.Helper()
	select {
	case cause := <-r.causes:
		return cause
	case <-time.After(time.Second):
		t.Fatalf("expected the fatal action to run")
		return nil
	}
}

func (r *fatalRecorder) expectNoTrip(t *testing.T) {
	t.Helper()
	select {
	case cause := <-r.causes:
		t.Fatalf("unexpected trip: %v", cause)
	case <-time.After(30 * time.Millisecond):
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatchdog(t *testing.T, cfg Config) (*Watchdog, *clock.Mock, *fatalRecorder) {
	t.Helper()
	mock := clock.NewMock()
	fatal := newFatalRecorder()
	w, err := Attach(cfg, Options{Clock: mock, Fatal: fatal, Logger: testLogger()})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(func() { Detach(w) })
	return w, mock, fatal
}

func TestAttach_TimeoutDefaults(t *testing.T) {
	t.Parallel()

	for _, in := range []int{0, -5} {
		w, _, _ := newTestWatchdog(t, Config{TimeoutSec: in})
		if got := w.Timeout(); got != DefaultTimeoutSec {
			t.Fatalf("timeout for %d = %d, want %d", in, got, DefaultTimeoutSec)
		}
		if w.State() != StateUnarmed {
			t.Fatalf("attach should leave the core unarmed, got %s", w.State())
		}
		if w.Identity() != DefaultIdentity {
			t.Fatalf("identity = %q", w.Identity())
		}
	}
}

func TestAttach_RequiresFatalAction(t *testing.T) {
	t.Parallel()

	if _, err := Attach(Config{TimeoutSec: 10}, Options{}); err == nil {
		t.Fatalf("expected error without fatal action")
	}
}

func TestPing_BelowTimeoutNeverTrips(t *testing.T) {
	t.Parallel()

	cases := []struct {
		timeoutSec int
		interval   time.Duration
	}{
		{timeoutSec: 1, interval: 900 * time.Millisecond},
		{timeoutSec: 3, interval: 2 * time.Second},
		{timeoutSec: 10, interval: 9 * time.Second},
	}
	for _, tc := range cases {
		w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: tc.timeoutSec})
		if err := w.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		for i := 0; i < 20; i++ {
			mock.Add(tc.interval)
			if err := w.Ping(); err != nil {
				t.Fatalf("ping %d (timeout=%d): %v", i, tc.timeoutSec, err)
			}
		}
		fatal.expectNoTrip(t)
		if w.State() != StateArmed {
			t.Fatalf("state = %s, want armed", w.State())
		}
	}
}

func TestExpiry_TripsExactlyOnce(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	mock.Add(9 * time.Second)
	fatal.expectNoTrip(t)

	mock.Add(time.Second)
	cause := fatal.waitTrip(t)
	if !IsExpired(cause) {
		t.Fatalf("cause should be an expiry, got %T %v", cause, cause)
	}

	mock.Add(time.Hour)
	fatal.expectNoTrip(t)
	if got := fatal.calls.Load(); got != 1 {
		t.Fatalf("fatal action calls = %d, want 1", got)
	}

	if w.State() != StateTripped {
		t.Fatalf("state = %s, want tripped", w.State())
	}
	for name, op := range map[string]func() error{
		"start":       w.Start,
		"stop":        w.Stop,
		"ping":        w.Ping,
		"set_timeout": func() error { return w.SetTimeout(5) },
	} {
		if err := op(); !errors.Is(err, ErrTripped) {
			t.Fatalf("%s after trip: expected ErrTripped, got %v", name, err)
		}
	}
	if _, armed := w.TimeLeft(); armed {
		t.Fatalf("tripped core must not report a deadline")
	}
	if w.Snapshot().Trip == nil {
		t.Fatalf("snapshot should carry the trip record")
	}
}

func TestExpiry_ConcurrentDeliveryInvokesFatalOnce(t *testing.T) {
	t.Parallel()

	w, _, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	w.mu.RLock()
	gen := w.armGen
	w.mu.RUnlock()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.onExpire(gen)
		}()
	}
	wg.Wait()

	fatal.waitTrip(t)
	fatal.expectNoTrip(t)
	if got := fatal.calls.Load(); got != 1 {
		t.Fatalf("fatal action calls = %d, want 1", got)
	}
}

func TestExpiry_StaleGenerationIgnored(t *testing.T) {
	t.Parallel()

	w, _, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.mu.RLock()
	stale := w.armGen
	w.mu.RUnlock()

	if err := w.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	w.onExpire(stale)
	fatal.expectNoTrip(t)
	if w.State() != StateArmed {
		t.Fatalf("state = %s, want armed", w.State())
	}
}

func TestSetTimeout_InvalidLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mock.Add(3 * time.Second)
	before := w.Snapshot()

	for _, v := range []int{0, -1, MaxTimeoutSec + 1} {
		if err := w.SetTimeout(v); !errors.Is(err, ErrInvalidTimeout) {
			t.Fatalf("set_timeout(%d): expected ErrInvalidTimeout, got %v", v, err)
		}
	}

	after := w.Snapshot()
	if after.TimeoutSec != 10 || after.State != before.State || !after.Deadline.Equal(before.Deadline) {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
	left, armed := w.TimeLeft()
	if !armed || left != 7*time.Second {
		t.Fatalf("time left = %s armed=%v, want 7s armed", left, armed)
	}
	fatal.expectNoTrip(t)
}

func TestSetTimeout_RearmsImmediately(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 10초 중 9초가 남아 있다.
	mock.Add(time.Second)
	if err := w.SetTimeout(1); err != nil {
		t.Fatalf("set_timeout: %v", err)
	}

	mock.Add(900 * time.Millisecond)
	fatal.expectNoTrip(t)

	mock.Add(100 * time.Millisecond)
	fatal.waitTrip(t)

	trip := w.Snapshot().Trip
	if trip == nil || trip.Timeout != 1 {
		t.Fatalf("trip record = %+v, want timeout 1", trip)
	}
}

func TestSetTimeout_UnarmedDoesNotArm(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.SetTimeout(5); err != nil {
		t.Fatalf("set_timeout: %v", err)
	}
	if got := w.Timeout(); got != 5 {
		t.Fatalf("timeout = %d, want 5", got)
	}
	if w.State() != StateUnarmed {
		t.Fatalf("state = %s, want unarmed", w.State())
	}
	mock.Add(time.Minute)
	fatal.expectNoTrip(t)
}

func TestStop_NeverTripsAndStartRearmsFresh(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mock.Add(5 * time.Second)
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mock.Add(time.Hour)
	fatal.expectNoTrip(t)

	if err := w.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	left, armed := w.TimeLeft()
	if !armed || left != 10*time.Second {
		t.Fatalf("time left = %s armed=%v, want a fresh 10s", left, armed)
	}

	mock.Add(9 * time.Second)
	fatal.expectNoTrip(t)
	mock.Add(time.Second)
	fatal.waitTrip(t)
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	once := w.Snapshot()
	if err := w.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	twice := w.Snapshot()

	if once.State != twice.State || !once.Deadline.Equal(twice.Deadline) || once.TimeoutSec != twice.TimeoutSec {
		t.Fatalf("second stop changed state: %+v vs %+v", once, twice)
	}
	if twice.State != StateUnarmed.String() {
		t.Fatalf("state = %s, want unarmed", twice.State)
	}
}

func TestPing_UnarmedIsNoop(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 2})
	if err := w.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if w.State() != StateUnarmed {
		t.Fatalf("ping must not arm the core")
	}
	if got := w.Snapshot().Keepalives; got != 0 {
		t.Fatalf("keepalives = %d, want 0", got)
	}
	mock.Add(time.Minute)
	fatal.expectNoTrip(t)
}

func TestGetTimeoutAfterSetTimeout(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SetTimeout(5); err != nil {
		t.Fatalf("set_timeout: %v", err)
	}
	if got := w.Timeout(); got != 5 {
		t.Fatalf("timeout = %d, want 5", got)
	}
}

func TestConcurrentPingAndSetTimeout_ConsistentDeadline(t *testing.T) {
	t.Parallel()

	w, _, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(seed int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = w.SetTimeout(5 + (seed+j)%20)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = w.Ping()
			}
		}()
	}
	wg.Wait()

	// mock clock 이 움직이지 않았으므로 마지막 요청과 무관하게 데드라인은
	// 정확히 타임아웃 하나만큼 떨어져 있어야 한다.
	snap := w.Snapshot()
	if want := int64(snap.TimeoutSec) * 1000; snap.TimeLeftMs != want {
		t.Fatalf("time left = %dms, timeout = %ds", snap.TimeLeftMs, snap.TimeoutSec)
	}
	fatal.expectNoTrip(t)
}

func TestDetach_StopsTimer(t *testing.T) {
	t.Parallel()

	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	Detach(w)
	Detach(w)

	mock.Add(time.Hour)
	fatal.expectNoTrip(t)
	if err := w.Start(); !errors.Is(err, ErrDetached) {
		t.Fatalf("start after detach: expected ErrDetached, got %v", err)
	}
}

func TestBootStatus_RecordedOnTripAndReportedOnNextAttach(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstatus.json")
	w, mock, fatal := newTestWatchdog(t, Config{TimeoutSec: 4, BootStatusPath: path})
	if _, found := w.BootStatus(); found {
		t.Fatalf("fresh attach should not report a previous reset")
	}
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mock.Add(4 * time.Second)
	fatal.waitTrip(t)

	next, _, _ := newTestWatchdog(t, Config{TimeoutSec: 4, BootStatusPath: path})
	record, found := next.BootStatus()
	if !found {
		t.Fatalf("expected previous reset to be reported")
	}
	if record.TimeoutSec != 4 || record.Identity != DefaultIdentity {
		t.Fatalf("unexpected record: %+v", record)
	}

	third, _, _ := newTestWatchdog(t, Config{TimeoutSec: 4, BootStatusPath: path})
	if _, found := third.BootStatus(); found {
		t.Fatalf("boot status should be consumed by the previous attach")
	}
}

func TestEvents_BufferIsBounded(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatchdog(t, Config{TimeoutSec: 10})
	for i := 0; i < watchdogEventBufferSize+50; i++ {
		_ = w.SetTimeout(1 + i%30)
	}
	events := w.SnapshotEvents(0)
	if len(events) != watchdogEventBufferSize {
		t.Fatalf("events = %d, want %d", len(events), watchdogEventBufferSize)
	}
	if last := w.SnapshotEvents(1); len(last) != 1 || last[0].Action != "set_timeout" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestEvents_PingsAreCoalesced(t *testing.T) {
	t.Parallel()

	w, mock, _ := newTestWatchdog(t, Config{TimeoutSec: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := w.Ping(); err != nil {
			t.Fatalf("ping: %v", err)
		}
	}
	// 타임아웃 미만 유지: 반 간격, ping, 나머지 반 간격
	for step := 0; step < 2; step++ {
		mock.Add(pingEventInterval / 2)
		if err := w.Ping(); err != nil {
			t.Fatalf("ping after %d half intervals: %v", step+1, err)
		}
	}

	pings := 0
	for _, evt := range w.SnapshotEvents(0) {
		if evt.Action == "ping" {
			pings++
		}
	}
	if pings != 2 {
		t.Fatalf("ping events = %d, want 2", pings)
	}
	if got := w.Snapshot().Keepalives; got != 102 {
		t.Fatalf("keepalives = %d, want 102", got)
	}
}
