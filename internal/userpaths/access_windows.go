//go:build windows

package userpaths

// checkReadWriteAccess is a no-op on Windows: os.MkdirAll's success is
// treated as sufficient, mirroring Windows's ACL model where a separate
// POSIX-style access() probe has no direct analogue.
func checkReadWriteAccess(path string) error {
	return nil
}
