//go:build windows

package privdrop

import "fmt"

// Drop is unsupported on Windows: uid/gid switching has no equivalent
// there, so a configured value is an error rather than a silent no-op.
func Drop(uid, gid *int) error {
	if uid != nil || gid != nil {
		return fmt.Errorf("privdrop: uid/gid is not supported on windows")
	}
	return nil
}
