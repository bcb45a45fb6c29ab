package filesystem

import (
	"os"

	"github.com/hectane/go-acl"
)

// setPermissions applies POSIX-style permission bits on Windows by rewriting
// the file's ACL rather than relying on os.Chmod, which on Windows only ever
// toggles the read-only attribute and silently drops any 0600/0700 intent.
// This matters here specifically because record and control-record files
// carry secret key material and are meant to be unreadable by other local
// accounts, not just "not accidentally overwritten".
func setPermissions(path string, mode os.FileMode) error {
	return acl.Chmod(path, mode)
}
