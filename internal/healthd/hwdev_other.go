//go:build !linux

package healthd

import (
	"context"
	"errors"
	"fmt"
)

var errHardwareUnsupported = errors.New("kernel watchdog devices are only supported on linux")

// Hardware 는 이 플랫폼에서 지원하지 않는다.
type Hardware struct{}

// OpenHardware 는 linux 가 아니면 항상 실패한다.
func OpenHardware(path string) (*Hardware, error) {
	return nil, fmt.Errorf("open watchdog %s: %w", path, errHardwareUnsupported)
}

func (*Hardware) GetTimeout(context.Context) (int, error) { return 0, errHardwareUnsupported }
func (*Hardware) KeepAlive(context.Context) error { return errHardwareUnsupported }
func (*Hardware) Write(context.Context, []byte) (int, error) { return 0, errHardwareUnsupported }
func (*Hardware) Close() error { return nil }
