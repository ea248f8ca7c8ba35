// Package control 은 워치독 코어 앞단의 장치 핸들 프로토콜을 구현한다.
// 세션은 한 번에 하나만 열 수 있고, 쓰기는 keepalive 로 처리되며 닫을 때는
// close policy 를 따른다.
package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smart-watchdog/internal/bootstatus"
)

// Watchdog 는 제어 세션이 조작하는 코어 인터페이스다.
type Watchdog interface {
	Start() error
	Stop() error
	Ping() error
	SetTimeout(value int) error
	Timeout() int
	TimeLeft() (time.Duration, bool)
	Identity() string
	BootStatus() (bootstatus.Record, bool)
}

var (
	// ErrBusy 는 이미 열린 세션이 있을 때 반환된다.
	ErrBusy = errors.New("watchdog device busy")
	// ErrNotSupported 는 제어 프로토콜에 없는 요청에 반환된다.
	ErrNotSupported = errors.New("control request not supported")
	// ErrClosed 는 Close 이후의 세션 요청에 반환된다.
	ErrClosed = errors.New("control session closed")
)

// ClosePolicy 는 세션을 닫을 때 타이머를 멈출지 결정한다.
type ClosePolicy int

const (
	// CloseMagic 은 세션에서 'V' 를 쓴 경우에만 타이머를 멈춘다.
	CloseMagic ClosePolicy = iota
	// CloseAlways 는 닫을 때마다 타이머를 멈춘다.
	CloseAlways
	// CloseNoWayOut 은 한 번 시작된 타이머를 멈추지 않는다.
	CloseNoWayOut
)

func (p ClosePolicy) String() string {
	switch p {
	case CloseAlways:
		return "always"
	case CloseNoWayOut:
		return "nowayout"
	default:
		return "magic"
	}
}

// ParseClosePolicy 는 설정 문자열을 ClosePolicy 로 변환한다. 빈 값은 magic 이다.
func ParseClosePolicy(raw string) (ClosePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "magic":
		return CloseMagic, nil
	case "always":
		return CloseAlways, nil
	case "nowayout":
		return CloseNoWayOut, nil
	default:
		return CloseMagic, fmt.Errorf("unknown close policy %q", raw)
	}
}

// GetSupport 가 보고하는 옵션 플래그. 값은 Linux 워치독 ABI 를 따른다.
const (
	OptionCardReset     uint32 = 0x0020
	OptionSetTimeout    uint32 = 0x0080
	OptionMagicClose    uint32 = 0x0100
	OptionKeepalivePing uint32 = 0x8000
)

// FirmwareVersion 은 Info 에 실리는 펌웨어 버전이다.
const FirmwareVersion uint32 = 1

// Info 는 장치 정보다.
type Info struct {
	Identity        string `cbor:"identity" json:"identity"`
	Options         uint32 `cbor:"options" json:"options"`
	FirmwareVersion uint32 `cbor:"firmware_version" json:"firmwareVersion"`
	// ClosePolicy 값: always | magic | nowayout
	ClosePolicy     string `cbor:"close_policy,omitempty" json:"closePolicy,omitempty"`
}

// Handler 는 워치독 코어 하나에 대한 단일 장치 핸들을 관리한다.
type Handler struct {
	wd     Watchdog
	policy ClosePolicy
	logger *slog.Logger

	mu       sync.Mutex
	open     *Session
	sessions uint64
}

// NewHandler 는 코어 앞에 제어 핸들러를 만든다.
func NewHandler(wd Watchdog, policy ClosePolicy, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{wd: wd, policy: policy, logger: logger}
}

// Policy 는 설정된 close policy 를 반환한다.
func (h *Handler) Policy() ClosePolicy {
	return h.policy
}

// Open 은 장치를 점유하고 코어를 시작한다. 세션은 하나만 열 수 있다.
func (h *Handler) Open() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.open != nil {
		return nil, ErrBusy
	}
	if err := h.wd.Start(); err != nil {
		return nil, err
	}

	h.sessions++
	s := &Session{h: h, id: h.sessions}
	h.open = s
	h.logger.Info("control_open", "session", s.id, "timeout_sec", h.wd.Timeout(), "close_policy", h.policy.String())
	return s, nil
}

// Busy 는 세션이 장치를 점유 중인지 보고한다.
func (h *Handler) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open != nil
}

// Info 는 장치 정보를 반환한다.
func (h *Handler) Info() Info {
	return Info{
		Identity:        h.wd.Identity(),
		Options:         OptionKeepalivePing | OptionMagicClose | OptionSetTimeout | OptionCardReset,
		FirmwareVersion: FirmwareVersion,
		ClosePolicy:     h.policy.String(),
	}
}

// Session 은 열린 장치 핸들 하나다. 요청은 순서대로 처리되며 핸들러 잠금이
// 다른 호출자와 섞이지 않게 한다.
type Session struct {
	h           *Handler
	id          uint64
	expectClose bool
	closed      bool
}

// ID 는 세션 순번을 반환한다.
func (s *Session) ID() uint64 {
	return s.id
}

// Write 는 비어 있지 않은 쓰기를 keepalive 로 처리한다. 마지막 쓰기에 'V' 가
// 있으면 magic close 확인이 설정된다.
func (s *Session) Write(p []byte) (int, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	s.expectClose = bytes.IndexByte(p, 'V') >= 0
	if err := s.h.wd.Ping(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// KeepAlive 는 데드라인을 now+timeout 으로 되돌린다.
func (s *Session) KeepAlive() error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.h.wd.Ping()
}

// GetTimeout 은 설정된 타임아웃(초)을 반환한다.
func (s *Session) GetTimeout() (int, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.h.wd.Timeout(), nil
}

// SetTimeout 은 value 를 즉시 적용하고 적용된 타임아웃을 반환한다.
func (s *Session) SetTimeout(value int) (int, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if err := s.h.wd.SetTimeout(value); err != nil {
		return s.h.wd.Timeout(), err
	}
	return s.h.wd.Timeout(), nil
}

// TimeLeft 는 만료까지 남은 초를 반환한다. 무장되지 않았으면 0 이다.
func (s *Session) TimeLeft() (int, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	left, armed := s.h.wd.TimeLeft()
	if !armed {
		return 0, nil
	}
	return int(left / time.Second), nil
}

// Support 는 장치 정보를 반환한다.
func (s *Session) Support() (Info, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return Info{}, ErrClosed
	}
	return s.h.Info(), nil
}

// BootStatus 는 직전 실행이 만료로 끝났으면 OptionCardReset 을 반환한다.
func (s *Session) BootStatus() (uint32, *bootstatus.Record, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return 0, nil, ErrClosed
	}
	record, found := s.h.wd.BootStatus()
	if !found {
		return 0, nil, nil
	}
	return OptionCardReset, &record, nil
}

// Close 는 장치를 놓고 close policy 를 적용한다. 두 번 닫아도 아무 일도
// 일어나지 않는다.
func (s *Session) Close() error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.h.open == s {
		s.h.open = nil
	}

	logger := s.h.logger.With("session", s.id, "close_policy", s.h.policy.String())
	switch s.h.policy {
	case CloseAlways:
		return s.stopLocked(logger)
	case CloseNoWayOut:
		logger.Info("control_close_nowayout")
		return nil
	default:
		if s.expectClose {
			return s.stopLocked(logger)
		}
		logger.Warn("unexpected_close", "timeout_sec", s.h.wd.Timeout())
		return nil
	}
}

func (s *Session) stopLocked(logger *slog.Logger) error {
	if err := s.h.wd.Stop(); err != nil {
		logger.Warn("control_close_stop_failed", "err", err)
		return err
	}
	logger.Info("control_close_stopped")
	return nil
}
