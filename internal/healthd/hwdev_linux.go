//go:build linux

package healthd

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Hardware 는 커널 워치독 문자 장치를 다룬다.
type Hardware struct {
	path string
	file *os.File
}

// OpenHardware 는 path 를 쓰기 전용으로 연다. 이때 커널 타이머가 시작된다.
func OpenHardware(path string) (*Hardware, error) {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog %s: %w", path, err)
	}
	return &Hardware{path: path, file: file}, nil
}

// GetTimeout 은 WDIOC_GETTIMEOUT 을 호출한다.
func (h *Hardware) GetTimeout(context.Context) (int, error) {
	timeout, err := unix.IoctlGetInt(int(h.file.Fd()), unix.WDIOC_GETTIMEOUT)
	if err != nil {
		return 0, fmt.Errorf("ioctl WDIOC_GETTIMEOUT on %s: %w", h.path, err)
	}
	return timeout, nil
}

// KeepAlive 는 WDIOC_KEEPALIVE 를 호출한다. ioctl 이 없는 드라이버에는 1바이트를
// 쓴다.
func (h *Hardware) KeepAlive(context.Context) error {
	if err := unix.IoctlWatchdogKeepalive(int(h.file.Fd())); err != nil {
		if _, werr := h.file.Write([]byte{0}); werr != nil {
			return fmt.Errorf("keepalive on %s: ioctl: %v, write: %w", h.path, err, werr)
		}
	}
	return nil
}

func (h *Hardware) Write(_ context.Context, p []byte) (int, error) {
	return h.file.Write(p)
}

// Close 는 장치를 닫는다. close policy 는 커널이 적용한다.
func (h *Hardware) Close() error {
	return h.file.Close()
}
