// +build !windows

package filesystem

import "os"

// setPermissions applies POSIX permission bits directly via chmod.
func setPermissions(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}
