package main

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/logging"
	"github.com/sealedbox/vaultcore/pkg/prompt"
	"github.com/sealedbox/vaultcore/pkg/vault/cipher"
	"github.com/sealedbox/vaultcore/pkg/vault/replicateddir"
)

var sessionLogger = logging.RootLogger.Sublogger("vaultctl")

// promptForPassphrase reads a passphrase via pkg/prompt, which selects
// between a secure TTY read and a plain redirected-stdin read depending on
// whether standard input is a terminal.
func promptForPassphrase(message string) (string, error) {
	return prompt.CommandLine(message)
}

// deriveLogicalKey turns an operator-supplied passphrase into the 32-byte
// logical key that pkg/vault/replicateddir derives per-replica keys from.
// This hashing step exists purely to accept human-typed passphrases of
// arbitrary length; it is not a memory-hard KDF, and key-derivation
// hardening (e.g. Argon2/scrypt) is intentionally out of scope for this
// vault implementation.
func deriveLogicalKey(passphrase string) [cipher.KeySize]byte {
	return sha256.Sum256([]byte(passphrase))
}

// openVault resolves configuration, derives the logical key, and opens a
// replicated directory across the configured replicas. Every invocation is
// tagged with its own correlation id purely for the duration of this
// process's log output; the id is never persisted to disk or otherwise tied
// to the vault's on-disk identity.
func openVault() (*replicateddir.Directory, error) {
	opLogger := sessionLogger.Correlated(uuid.New().String())

	replicas, err := resolveReplicas()
	if err != nil {
		return nil, err
	}
	passphrase, err := resolvePassphrase()
	if err != nil {
		return nil, errors.Wrap(err, "unable to obtain vault passphrase")
	}

	opLogger.Debugf("opening vault across %d replica(s)", len(replicas))

	vault, err := replicateddir.New(replicas, deriveLogicalKey(passphrase))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open vault")
	}

	opLogger.Debugf("vault ready")
	return vault, nil
}

// closeVault closes vault, logging (but not failing the command on) any
// error, since by the time a command is wrapping up its output the operator
// already has the information they asked for.
func closeVault(vault *replicateddir.Directory) {
	if err := vault.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: unable to cleanly close vault:", err)
	}
}
