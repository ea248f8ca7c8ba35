package watchdog

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTimeout 는 0 이하이거나 제어 채널 정수 범위를 넘는 타임아웃 값이다.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrTripped 는 워치독이 이미 만료되어 더 이상 요청을 처리하지 않음을 뜻한다.
	ErrTripped = errors.New("watchdog tripped")
	// ErrDetached 는 Detach 이후에 들어온 요청이다.
	ErrDetached = errors.New("watchdog detached")
)

// ExpiredError 는 keepalive 없이 데드라인에 도달했을 때 FatalAction 에
// 전달되는 원인이다.
type ExpiredError struct {
	Identity string
	Timeout  time.Duration
	Deadline time.Time
	LastPing time.Time
}

func (e *ExpiredError) Error() string {
	if e.LastPing.IsZero() {
		return fmt.Sprintf("%s: timeout expired (timeout=%s, no keepalive since start)", e.Identity, e.Timeout)
	}
	return fmt.Sprintf("%s: timeout expired (timeout=%s, last_keepalive=%s)",
		e.Identity, e.Timeout, e.LastPing.Format(time.RFC3339))
}

// ArmError 는 데드라인 타이머를 예약하지 못했음을 뜻한다. 코어는 이를
// 치명적 오류로 취급한다.
type ArmError struct {
	Op  string
	Err error
}

func (e *ArmError) Error() string {
	return fmt.Sprintf("deadline arm failed during %s: %v", e.Op, e.Err)
}

func (e *ArmError) Unwrap() error {
	return e.Err
}

// IsExpired 는 err 가 데드라인 만료로 생긴 것인지 보고한다.
func IsExpired(err error) bool {
	var expired *ExpiredError
	return errors.As(err, &expired)
}
