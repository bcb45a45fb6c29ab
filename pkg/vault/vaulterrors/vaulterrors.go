// Package vaulterrors defines the sentinel error taxonomy shared by every
// layer of the vault storage stack (plaindir, hasheddir, encrypteddir,
// replicateddir). Layers wrap these sentinels with github.com/pkg/errors so
// that callers can still recover the underlying kind via errors.Is while
// getting a contextual message via Error().
package vaulterrors

import "errors"

var (
	// ErrNotFound indicates that an operation targeted a record name the
	// directory does not know about.
	ErrNotFound = errors.New("record not found")

	// ErrIntegrity indicates that a decrypted payload's hash disagreed with
	// its stored digest, that an encrypted envelope's version byte is
	// unrecognized, or that an envelope is otherwise malformed.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrWrongKeyOrCorrupted indicates that a replica's DirectoryInfo control
	// record could not be decrypted and CRC-verified on open. The two causes
	// (wrong key, corrupted data) are intentionally conflated: reporting them
	// separately would leak whether a guessed key is structurally valid.
	ErrWrongKeyOrCorrupted = errors.New("wrong key or corrupted directory")
)
