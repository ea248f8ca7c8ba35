//go:build !linux

package fatal

import "errors"

func systemReboot() error {
	return errors.New("reboot is only supported on linux")
}
