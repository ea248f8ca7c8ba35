package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smart-watchdog/internal/control"
)

// writeTimeout 은 응답 하나를 쓰는 시간 제한이다.
const writeTimeout = 5 * time.Second

// openTimeout 은 새 연결이 open 프레임을 보내야 하는 시간 제한이다.
const openTimeout = 10 * time.Second

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server 는 control.Handler 를 유닉스 소켓으로 노출한다.
type Server struct {
	socketPath string
	handler    *control.Handler
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	activeConnections sync.WaitGroup
}

// NewServer 는 socketPath 에서 대기할 서버를 만든다.
func NewServer(socketPath string, handler *control.Handler, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Path 는 소켓 경로를 반환한다.
func (s *Server) Path() string {
	return s.socketPath
}

// Serve 는 ctx 가 취소될 때까지 대기한 뒤 모든 연결을 닫고 세션 종료를
// 기다린다. 남아 있던 소켓 파일은 교체하고 반환할 때 소켓 파일을 지운다.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		s.logger.Warn("device_socket_chmod_failed", "path", s.socketPath, "err", err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		s.closeAll()
	}()

	s.logger.Info("device_listening", "path", s.socketPath)

	s.acceptLoop(ctx, listener)

	s.activeConnections.Wait()
	s.logger.Info("device_stopped", "path", s.socketPath)
	return nil
}

// acceptLoop 는 리스너가 닫히거나 ctx 가 끝날 때까지 돈다. 연속된 accept
// 실패(EMFILE 등)는 maxAcceptDelay 까지 간격을 늘린다.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.logger.Error("device_accept_failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	frames := newFrameReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(openTimeout))
	var first Frame
	if err := frames.next(&first); err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("device_open_read_failed", "err", err)
		}
		return
	}
	if control.Op(first.Op) != control.OpOpen {
		s.writeError(conn, control.ErrNotSupported)
		return
	}

	session, err := s.handler.Open()
	if err != nil {
		s.logger.Warn("device_open_rejected", "err", err)
		s.writeError(conn, err)
		return
	}
	logger := s.logger.With("session", session.ID())
	logger.Info("device_session_open")

	timeout, _ := session.GetTimeout()
	if !s.write(conn, Response{OK: true, Value: timeout}) {
		s.closeSession(session, logger)
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	for {
		var frame Frame
		if err := frames.next(&frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("device_read_failed", "err", err)
			}
			s.closeSession(session, logger)
			return
		}

		op := control.Op(frame.Op)
		result, err := session.Do(control.Request{Op: op, Value: frame.Value, Data: frame.Data})
		if err != nil {
			logger.Debug("device_request_failed", "op", frame.Op, "err", err)
			resp := errorResponse(err)
			resp.Value = result.Value
			written := s.write(conn, resp)
			if op == control.OpClose {
				return
			}
			if !written {
				s.closeSession(session, logger)
				return
			}
			continue
		}

		if !s.write(conn, Response{OK: true, Value: result.Value, Info: result.Info, Status: result.BootStatus}) {
			s.closeSession(session, logger)
			return
		}
		if op == control.OpClose {
			logger.Info("device_session_closed")
			return
		}
	}
}

// closeSession 은 클라이언트가 닫지 않은 세션을 끝낸다. 타이머 유지 여부는
// 핸들러의 close policy 가 정한다.
func (s *Server) closeSession(session *control.Session, logger *slog.Logger) {
	if err := session.Close(); err != nil {
		logger.Warn("device_session_close_failed", "err", err)
		return
	}
	logger.Info("device_session_hangup")
}

func errorResponse(err error) Response {
	return Response{OK: false, Code: control.ErrorCode(err), Error: err.Error()}
}

func (s *Server) writeError(conn net.Conn, err error) {
	s.write(conn, errorResponse(err))
}

func (s *Server) write(conn net.Conn, resp Response) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := encMode.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("device_write_failed", "err", err)
		return false
	}
	return true
}
