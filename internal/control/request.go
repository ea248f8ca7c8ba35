package control

import (
	"errors"

	"smart-watchdog/internal/bootstatus"
	watchdog "smart-watchdog/internal/core"
)

// Op 는 제어 요청 이름이다.
type Op string

const (
	OpOpen          Op = "open"
	OpClose         Op = "close"
	OpWrite         Op = "write"
	OpKeepAlive     Op = "keepalive"
	OpGetTimeout    Op = "get_timeout"
	OpSetTimeout    Op = "set_timeout"
	OpGetTimeLeft   Op = "get_time_left"
	OpGetSupport    Op = "get_support"
	OpGetBootStatus Op = "get_boot_status"
)

// Request 는 세션에 대한 제어 요청 하나다.
type Request struct {
	Op    Op
	Value int
	Data  []byte
}

// Result 는 Request 에 대한 응답이다.
type Result struct {
	Value      int
	Info       *Info
	BootStatus *bootstatus.Record
}

// Do 는 req 를 해당 세션 동작으로 보낸다. 알 수 없는 요청은 상태를 바꾸지
// 않고 ErrNotSupported 를 반환한다.
func (s *Session) Do(req Request) (Result, error) {
	switch req.Op {
	case OpWrite:
		n, err := s.Write(req.Data)
		return Result{Value: n}, err
	case OpKeepAlive:
		return Result{}, s.KeepAlive()
	case OpGetTimeout:
		v, err := s.GetTimeout()
		return Result{Value: v}, err
	case OpSetTimeout:
		v, err := s.SetTimeout(req.Value)
		return Result{Value: v}, err
	case OpGetTimeLeft:
		v, err := s.TimeLeft()
		return Result{Value: v}, err
	case OpGetSupport:
		info, err := s.Support()
		if err != nil {
			return Result{}, err
		}
		return Result{Info: &info}, nil
	case OpGetBootStatus:
		flags, record, err := s.BootStatus()
		return Result{Value: int(flags), BootStatus: record}, err
	case OpClose:
		return Result{}, s.Close()
	case OpOpen:
		return Result{}, ErrBusy
	default:
		return Result{}, ErrNotSupported
	}
}

// 제어 에러의 와이어 코드
const (
	CodeInvalidTimeout = "invalid_timeout"
	CodeNotSupported   = "not_supported"
	CodeBusy           = "busy"
	CodeTripped        = "tripped"
	CodeClosed         = "closed"
	CodeInternal       = "internal"
)

// ErrorCode 는 err 를 와이어 코드로 바꾼다. nil 은 "" 이다.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, watchdog.ErrInvalidTimeout):
		return CodeInvalidTimeout
	case errors.Is(err, ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, watchdog.ErrTripped):
		return CodeTripped
	case errors.Is(err, ErrClosed):
		return CodeClosed
	default:
		return CodeInternal
	}
}

// ErrorFromCode 는 와이어 코드를 다시 센티널 에러로 바꾼다.
func ErrorFromCode(code string, message string) error {
	switch code {
	case "":
		return nil
	case CodeInvalidTimeout:
		return watchdog.ErrInvalidTimeout
	case CodeNotSupported:
		return ErrNotSupported
	case CodeBusy:
		return ErrBusy
	case CodeTripped:
		return watchdog.ErrTripped
	case CodeClosed:
		return ErrClosed
	default:
		if message == "" {
			message = code
		}
		return &RemoteError{Code: code, Message: message}
	}
}

// RemoteError 는 대응하는 센티널이 없는 원격 제어 에러다.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return "watchdog control: " + e.Message
}
