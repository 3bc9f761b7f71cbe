//go:build !windows

// Package privdrop switches the running process to an unprivileged uid/gid
// once a privileged operation (binding a low-numbered port, reading a
// root-owned TLS key) no longer needs to happen.
package privdrop

import (
	"fmt"
	"syscall"
)

// Drop switches the process to gid then uid, in that order: once uid is
// dropped the process typically no longer has permission to change its
// group. Either may be nil to leave that id unchanged.
func Drop(uid, gid *int) error {
	if gid != nil {
		if err := syscall.Setgid(*gid); err != nil {
			return fmt.Errorf("privdrop: setgid(%d): %w", *gid, err)
		}
	}
	if uid != nil {
		if err := syscall.Setuid(*uid); err != nil {
			return fmt.Errorf("privdrop: setuid(%d): %w", *uid, err)
		}
	}
	return nil
}
