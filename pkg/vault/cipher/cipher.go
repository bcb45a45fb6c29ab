// Package cipher implements the encrypted-record envelope shared by every
// on-disk encrypted value in the vault: a version byte, a 12-byte big-endian
// nonce, and a ChaCha20 ciphertext of matching length. It is a raw stream
// cipher with no authentication tag; integrity is the caller's
// responsibility (see pkg/vault/hasheddir).
//
// Grounded on original_source/src/data_encryption/cipher_helper.py.
package cipher

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"

	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

const (
	// KeySize is the required length, in bytes, of an encryption key.
	KeySize = chacha20.KeySize
	// NonceSize is the length, in bytes, of the envelope's nonce field.
	NonceSize = chacha20.NonceSize
	// Version is the only envelope version this package emits or accepts.
	Version = 1
	// versionSize is the length, in bytes, of the envelope's version field.
	versionSize = 1
	// headerSize is the combined length of the version and nonce fields.
	headerSize = versionSize + NonceSize
)

// EncryptAndPack encrypts data under key using the 12-byte big-endian
// encoding of nonce and returns version || nonce || ciphertext.
func EncryptAndPack(data []byte, key [KeySize]byte, nonce uint64) ([]byte, error) {
	var nonceBytes [NonceSize]byte
	putNonce(nonceBytes[:], nonce)

	ciphertext, err := xor(key, nonceBytes, data)
	if err != nil {
		return nil, err
	}

	packed := make([]byte, 0, headerSize+len(data))
	packed = append(packed, Version)
	packed = append(packed, nonceBytes[:]...)
	packed = append(packed, ciphertext...)
	return packed, nil
}

// UnpackAndDecrypt reverses EncryptAndPack. It fails with
// vaulterrors.ErrIntegrity if the envelope is too short to contain a header
// or carries an unrecognized version byte.
func UnpackAndDecrypt(packed []byte, key [KeySize]byte) ([]byte, error) {
	if len(packed) < headerSize {
		return nil, errors.Wrap(vaulterrors.ErrIntegrity, "encrypted envelope is too short")
	}
	if packed[0] != Version {
		return nil, errors.Wrapf(vaulterrors.ErrIntegrity, "unsupported envelope version %d", packed[0])
	}

	var nonceBytes [NonceSize]byte
	copy(nonceBytes[:], packed[versionSize:headerSize])

	return xor(key, nonceBytes, packed[headerSize:])
}

// xor runs the ChaCha20 keystream over data; ChaCha20 encryption and
// decryption are the same XOR operation.
func xor(key [KeySize]byte, nonce [NonceSize]byte, data []byte) ([]byte, error) {
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize stream cipher")
	}
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// putNonce writes nonce into buf as a 12-byte big-endian value. The
// counter-as-nonce scheme (pkg/vault/encrypteddir) keeps its counter in a
// uint64, so the leading 4 bytes are always zero.
func putNonce(buf []byte, nonce uint64) {
	binary.BigEndian.PutUint32(buf[0:4], 0)
	binary.BigEndian.PutUint64(buf[4:12], nonce)
}

// NonceUint64 decodes a 12-byte big-endian nonce back into a uint64,
// discarding the always-zero high 32 bits. It exists for tests that need to
// inspect raw on-disk nonces for monotonicity.
func NonceUint64(nonce [NonceSize]byte) uint64 {
	return binary.BigEndian.Uint64(nonce[4:12])
}
