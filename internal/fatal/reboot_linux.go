//go:build linux

package fatal

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func systemReboot() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot syscall: %w", err)
	}
	return nil
}
