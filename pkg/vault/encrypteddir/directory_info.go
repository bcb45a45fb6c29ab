package encrypteddir

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

const (
	// directoryInfoVersion is the only control-record version this package
	// emits or accepts.
	directoryInfoVersion = 1

	// directoryInfoSize is the serialized length of a directoryInfo record:
	// version(1) || modified(8) || nextNonce(12) || keyChanged(1) || crc32(4).
	directoryInfoSize = 1 + 8 + 12 + 1 + 4

	nonceFieldSize = 12
)

// directoryInfo is the control record stored (encrypted) alongside every
// replica: when it was last modified, the next nonce value to allocate, and
// whether a key rotation is in progress and needs recovery on open.
type directoryInfo struct {
	modified   time.Time
	nextNonce  uint64
	keyChanged bool
}

// serialize encodes the record as version || modified || nextNonce ||
// keyChanged || crc32(preceding bytes), all multi-byte fields big-endian.
func (info directoryInfo) serialize() []byte {
	buf := make([]byte, directoryInfoSize)
	buf[0] = directoryInfoVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(info.modified.Unix()))
	putUint96(buf[9:21], info.nextNonce)
	if info.keyChanged {
		buf[21] = 1
	}
	checksum := crc32.ChecksumIEEE(buf[:22])
	binary.BigEndian.PutUint32(buf[22:26], checksum)
	return buf
}

// deserializeDirectoryInfo reverses serialize, failing with
// vaulterrors.ErrIntegrity if the checksum disagrees or the version is
// unrecognized.
func deserializeDirectoryInfo(data []byte) (directoryInfo, error) {
	if len(data) != directoryInfoSize {
		return directoryInfo{}, errors.Wrap(vaulterrors.ErrIntegrity, "control record has unexpected length")
	}

	expected := binary.BigEndian.Uint32(data[22:26])
	actual := crc32.ChecksumIEEE(data[:22])
	if expected != actual {
		return directoryInfo{}, errors.Wrap(vaulterrors.ErrIntegrity, "control record checksum mismatch")
	}

	if data[0] != directoryInfoVersion {
		return directoryInfo{}, errors.Wrapf(vaulterrors.ErrIntegrity, "unsupported control record version %d", data[0])
	}

	modified := time.Unix(int64(binary.BigEndian.Uint64(data[1:9])), 0).UTC()
	nextNonce := uint96(data[9:21])
	keyChanged := data[21] != 0

	return directoryInfo{modified: modified, nextNonce: nextNonce, keyChanged: keyChanged}, nil
}

// putUint96 writes v into a 12-byte big-endian field. v never approaches the
// 96-bit range in practice; the upper 4 bytes are always zero.
func putUint96(buf []byte, v uint64) {
	binary.BigEndian.PutUint32(buf[0:4], 0)
	binary.BigEndian.PutUint64(buf[4:12], v)
}

// uint96 reads a 12-byte big-endian field back into a uint64, discarding the
// always-zero high 32 bits.
func uint96(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf[4:12])
}
