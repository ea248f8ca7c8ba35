package watchdog

import (
	"time"
)

// Event 는 워치독 상태 변경과 제어 요청을 기록한다.
type Event struct {
	At         time.Time `json:"at"`
	Action     string    `json:"action"` // attach | start | stop | ping | set_timeout | expired | detach
	TimeoutSec int       `json:"timeoutSec,omitempty"`
	Count      uint64    `json:"count,omitempty"`  // 누적 keepalive 수 (ping 전용)
	Result     string    `json:"result,omitempty"` // ok | rejected | tripped
	Error      string    `json:"error,omitempty"`
}

const watchdogEventBufferSize = 200

func (w *Watchdog) appendEvent(evt Event) {
	if evt.At.IsZero() {
		evt.At = w.clk.Now()
	}

	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	w.events = append(w.events, evt)
	if len(w.events) <= watchdogEventBufferSize {
		return
	}

	excess := len(w.events) - watchdogEventBufferSize
	copy(w.events, w.events[excess:])
	w.events = w.events[:watchdogEventBufferSize]
}

// SnapshotEvents 는 최근 이벤트를 오래된 순서로 최대 limit 개 반환한다.
func (w *Watchdog) SnapshotEvents(limit int) []Event {
	if limit <= 0 || limit > watchdogEventBufferSize {
		limit = watchdogEventBufferSize
	}

	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	if len(w.events) == 0 {
		return nil
	}

	if limit > len(w.events) {
		limit = len(w.events)
	}

	out := make([]Event, limit)
	start := len(w.events) - limit
	copy(out, w.events[start:])
	return out
}
