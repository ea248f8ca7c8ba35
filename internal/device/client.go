package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"smart-watchdog/internal/bootstatus"
	"smart-watchdog/internal/control"
)

// dialTimeout 은 연결 단계에만 적용된다.
const dialTimeout = 5 * time.Second

// requestTimeout 은 호출자 ctx 에 데드라인이 없을 때 쓰인다.
const requestTimeout = 10 * time.Second

// ErrClientClosed 는 Close 이후에 반환된다.
var ErrClientClosed = errors.New("device client closed")

// Client 는 워치독 소켓 위의 열린 장치 핸들이다. 메서드는 동시에 호출해도
// 안전하며 요청은 하나씩 전송된다.
type Client struct {
	socketPath string

	mu      sync.Mutex
	conn    net.Conn
	frames  *frameReader
	closed  bool
	timeout int
}

// Dial 은 socketPath 에 연결해 장치를 연다. 다른 클라이언트가 점유 중이면
// control.ErrBusy 로 실패한다.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	c := &Client{socketPath: socketPath, conn: conn, frames: newFrameReader(conn)}
	resp, err := c.roundTrip(ctx, Frame{Op: string(control.OpOpen)})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening %s: %w", socketPath, err)
	}
	c.timeout = resp.Value
	return c, nil
}

// OpenTimeout 은 장치를 열 때 받은 타임아웃을 반환한다.
func (c *Client) OpenTimeout() int {
	return c.timeout
}

// KeepAlive 는 데드라인을 now+timeout 으로 미룬다.
func (c *Client) KeepAlive(ctx context.Context) error {
	_, err := c.call(ctx, Frame{Op: string(control.OpKeepAlive)})
	return err
}

// Write 는 장치에 바이트를 그대로 보낸다. 비어 있지 않은 쓰기는 keepalive 이며
// 'V' 는 다음 close 를 확인한다.
func (c *Client) Write(ctx context.Context, p []byte) (int, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpWrite), Data: p})
	return resp.Value, err
}

// GetTimeout 은 타임아웃(초)을 반환한다.
func (c *Client) GetTimeout(ctx context.Context) (int, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpGetTimeout)})
	return resp.Value, err
}

// SetTimeout 은 타임아웃을 바꾸고 적용된 값을 반환한다.
func (c *Client) SetTimeout(ctx context.Context, value int) (int, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpSetTimeout), Value: value})
	return resp.Value, err
}

// TimeLeft 는 만료까지 남은 초를 반환한다.
func (c *Client) TimeLeft(ctx context.Context) (int, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpGetTimeLeft)})
	return resp.Value, err
}

// Support 는 장치 이름과 옵션 플래그를 반환한다.
func (c *Client) Support(ctx context.Context) (control.Info, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpGetSupport)})
	if err != nil {
		return control.Info{}, err
	}
	if resp.Info == nil {
		return control.Info{}, errors.New("get_support: empty info")
	}
	return *resp.Info, nil
}

// BootStatus 는 부트 상태 플래그와 그 근거가 된 만료 기록을 반환한다.
func (c *Client) BootStatus(ctx context.Context) (uint32, *bootstatus.Record, error) {
	resp, err := c.call(ctx, Frame{Op: string(control.OpGetBootStatus)})
	if err != nil {
		return 0, nil, err
	}
	return uint32(resp.Value), resp.Status, nil
}

// Call 은 임의의 요청을 보낸다. 타입 메서드가 없는 요청을 다루는 도구용이다.
func (c *Client) Call(ctx context.Context, op string, value int) (Response, error) {
	return c.call(ctx, Frame{Op: op, Value: value})
}

// Close 는 close 요청을 보내고 연결을 끊는다. 서버가 close policy 를 적용하며
// 반환 에러는 서버 응답이다.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, err := c.roundTrip(ctx, Frame{Op: string(control.OpClose)})
	if closeErr := c.conn.Close(); err == nil && closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		err = closeErr
	}
	return err
}

func (c *Client) call(ctx context.Context, frame Frame) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClientClosed
	}
	return c.roundTrip(ctx, frame)
}

func (c *Client) roundTrip(ctx context.Context, frame Frame) (Response, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(requestTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Response{}, err
	}

	if err := encMode.NewEncoder(c.conn).Encode(frame); err != nil {
		return Response{}, fmt.Errorf("sending %s: %w", frame.Op, err)
	}
	var resp Response
	if err := c.frames.next(&resp); err != nil {
		return Response{}, fmt.Errorf("reading %s response: %w", frame.Op, err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %w", frame.Op, control.ErrorFromCode(resp.Code, resp.Error))
	}
	return resp, nil
}
