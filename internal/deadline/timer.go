// Package deadline 은 워치독 코어가 쓰는 단발성 카운트다운을 제공한다.
//
// Timer 는 대기 중인 만료를 최대 하나만 가진다. Arm 은 이전 예약을 대체하고
// 세대 번호를 올린다. 만료 콜백은 예약 당시의 세대 번호를 받으므로 소유자는
// 이후 Arm 이나 Cancel 과 경합한 알림을 버릴 수 있다.
package deadline

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrInvalidDuration 는 0 이하의 기간으로 Arm 을 호출했을 때 반환된다.
var ErrInvalidDuration = errors.New("deadline: duration must be positive")

// ExpireFunc 는 데드라인에 도달하면 Arm 한 번당 한 번 호출된다.
type ExpireFunc func(gen uint64)

// Timer 는 취소 가능한 단발성 카운트다운이다.
type Timer struct {
	clk      clock.Clock
	onExpire ExpireFunc

	mu       sync.Mutex
	gen      uint64
	pending  bool
	deadline time.Time
	timer    *clock.Timer
}

// New 는 만료를 onExpire 로 알리는 대기 상태의 Timer 를 만든다.
func New(clk clock.Clock, onExpire ExpireFunc) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{
		clk:      clk,
		onExpire: onExpire,
	}
}

// Arm 은 now+d 에 만료를 예약하고 새 세대 번호를 반환한다. 대기 중이던
// 만료는 먼저 취소된다.
func (t *Timer) Arm(d time.Duration) (uint64, error) {
	if d <= 0 {
		return 0, ErrInvalidDuration
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = true
	t.deadline = t.clk.Now().Add(d)
	t.timer = t.clk.AfterFunc(d, func() { t.fire(gen) })
	return gen, nil
}

// Rearm 은 Arm 과 같다. 새 데드라인은 이전 데드라인이 아니라 지금부터
// 계산한다.
func (t *Timer) Rearm(d time.Duration) (uint64, error) {
	return t.Arm(d)
}

// Cancel 은 대기 중인 만료를 버리고 대기 중이었는지 보고한다.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasPending := t.pending
	t.stopLocked()
	// 이미 clock 을 떠난 만료 고루틴은 이 값과 비교한다.
	t.gen++
	return wasPending
}

// Deadline 은 대기 중인 데드라인을 반환한다.
func (t *Timer) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Generation 은 마지막 Arm 또는 Cancel 의 세대 번호를 반환한다.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.deadline = time.Time{}
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if !t.pending || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(gen)
	}
}
