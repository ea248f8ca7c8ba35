package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"smart-watchdog/internal/bootstatus"
	"smart-watchdog/internal/deadline"
)

// State 는 코어의 생명주기 상태다.
type State int

const (
	// StateUnarmed 는 초기 상태이며 Stop 이후에도 돌아오는 상태다.
	StateUnarmed State = iota
	// StateArmed 는 데드라인이 예약된 상태다.
	StateArmed
	// StateTripped 는 만료 후의 종료 상태로, 빠져나올 수 없다.
	StateTripped
)

func (s State) String() string {
	switch s {
	case StateUnarmed:
		return "unarmed"
	case StateArmed:
		return "armed"
	case StateTripped:
		return "tripped"
	default:
		return "unknown"
	}
}

// FatalAction 은 만료 시 호출되는 복구 불가능한 halt/reset 동작이다.
type FatalAction interface {
	Halt(ctx context.Context, cause error)
}

// FatalFunc 는 함수를 FatalAction 으로 감싼다.
type FatalFunc func(ctx context.Context, cause error)

// Halt 는 f 를 호출한다.
func (f FatalFunc) Halt(ctx context.Context, cause error) {
	f(ctx, cause)
}

// Options 는 attach 시점에 주입되는 협력 객체다.
type Options struct {
	Clock  clock.Clock
	Fatal  FatalAction
	Logger *slog.Logger
}

// Watchdog 는 타임아웃 설정, 무장 상태, 데드라인 타이머를 소유한다.
// 모든 상태 전이는 mu 를 거친다.
type Watchdog struct {
	clk    clock.Clock
	fatal  FatalAction
	logger *slog.Logger

	mu       sync.RWMutex
	cfg      Config
	state    State
	deadline time.Time
	armGen   uint64
	lastPing time.Time
	pings    uint64
	trip     *TripRecord
	detached bool

	timer      *deadline.Timer
	tripped    atomic.Bool
	attachedAt time.Time
	bootStatus *bootstatus.Record

	pingEventLimiter *rate.Limiter
	eventsMu         sync.Mutex
	events           []Event
}

// TripRecord 는 코어를 StateTripped 로 옮긴 만료 정보다.
type TripRecord struct {
	At       time.Time `json:"at"`
	Deadline time.Time `json:"deadline"`
	Timeout  int       `json:"timeoutSec"`
	Cause    string    `json:"cause"`
}
