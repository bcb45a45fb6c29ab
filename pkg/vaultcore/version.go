package vaultcore

import "fmt"

const (
	// VersionMajor represents the current major version of the vault core.
	VersionMajor = 1
	// VersionMinor represents the current minor version of the vault core.
	VersionMinor = 0
	// VersionPatch represents the current patch version of the vault core.
	VersionPatch = 0
)

// Version is the human-readable version string.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// DebugEnabled, when true, raises pkg/logging's effective level to at least
// LevelDebug so that Logger.Debug* calls produce output; when false, the
// level set through logging.SetLevel alone decides. It is toggled by
// cmd/vaultctl's --debug flag.
var DebugEnabled = false
