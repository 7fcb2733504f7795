//go:build unix

package permission

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func checkAccess(path string) error {
	if path == "" {
		return nil
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("access %s: %w", path, err)
	}
	return nil
}
