package watchdog

import (
	"time"

	"smart-watchdog/internal/bootstatus"
)

// Status 는 관리자 API 와 wdctl 에 보여주는 코어 스냅샷이다.
type Status struct {
	Identity        string             `json:"identity"`
	State           string             `json:"state"`
	TimeoutSec      int                `json:"timeoutSec"`
	Deadline        time.Time          `json:"deadline,omitempty"`
	TimeLeftMs      int64              `json:"timeLeftMs"`
	LastKeepaliveAt time.Time          `json:"lastKeepaliveAt,omitempty"`
	Keepalives      uint64             `json:"keepalives"`
	AttachedAt      time.Time          `json:"attachedAt"`
	Detached        bool               `json:"detached,omitempty"`
	Trip            *TripRecord        `json:"trip,omitempty"`
	PreviousReset   *bootstatus.Record `json:"previousReset,omitempty"`
}

// Snapshot 는 하나의 읽기 잠금 아래에서 상태를 복사한다.
func (w *Watchdog) Snapshot() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := Status{
		Identity:        w.cfg.Identity,
		State:           w.state.String(),
		TimeoutSec:      w.cfg.TimeoutSec,
		LastKeepaliveAt: w.lastPing,
		Keepalives:      w.pings,
		AttachedAt:      w.attachedAt,
		Detached:        w.detached,
	}
	if w.state == StateArmed {
		out.Deadline = w.deadline
		out.TimeLeftMs = max(w.deadline.Sub(w.clk.Now()), 0).Milliseconds()
	}
	if w.trip != nil {
		trip := *w.trip
		out.Trip = &trip
	}
	if w.bootStatus != nil {
		record := *w.bootStatus
		out.PreviousReset = &record
	}
	return out
}
