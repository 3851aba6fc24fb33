//go:build !windows

package userpaths

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkReadWriteAccess verifies the daemon can read, write, and traverse
// path, beyond the permission bits MkdirAll's success already implies (a
// root-owned network mount can accept the mkdir yet still deny the process
// any later access).
func checkReadWriteAccess(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("insufficient permissions: %w", err)
	}
	return nil
}
