package cipher

import (
	"bytes"
	"testing"
)

func testKey() [KeySize]byte {
	var key [KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptAndPackRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("hello, vault")

	packed, err := EncryptAndPack(plaintext, key, 42)
	if err != nil {
		t.Fatal("unable to encrypt and pack:", err)
	}

	if packed[0] != Version {
		t.Errorf("unexpected version byte: %d", packed[0])
	}
	if len(packed) != headerSize+len(plaintext) {
		t.Errorf("unexpected packed length: %d", len(packed))
	}

	decrypted, err := UnpackAndDecrypt(packed, key)
	if err != nil {
		t.Fatal("unable to unpack and decrypt:", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted data %q did not match original %q", decrypted, plaintext)
	}
}

func TestUnpackAndDecryptWrongKeyProducesGarbage(t *testing.T) {
	key := testKey()
	var wrongKey [KeySize]byte
	copy(wrongKey[:], key[:])
	wrongKey[0] ^= 1

	plaintext := []byte("sensitive data")
	packed, err := EncryptAndPack(plaintext, key, 7)
	if err != nil {
		t.Fatal("unable to encrypt and pack:", err)
	}

	decrypted, err := UnpackAndDecrypt(packed, wrongKey)
	if err != nil {
		t.Fatal("unpacking under the wrong key should not itself fail:", err)
	}
	if bytes.Equal(decrypted, plaintext) {
		t.Error("decryption under the wrong key unexpectedly produced the original plaintext")
	}
}

func TestUnpackAndDecryptRejectsUnknownVersion(t *testing.T) {
	key := testKey()
	packed := []byte{0x02}
	packed = append(packed, make([]byte, NonceSize+4)...)

	if _, err := UnpackAndDecrypt(packed, key); err == nil {
		t.Error("expected failure for unrecognized version byte")
	}
}

func TestUnpackAndDecryptRejectsShortEnvelope(t *testing.T) {
	key := testKey()
	if _, err := UnpackAndDecrypt([]byte{0x01, 0x02}, key); err == nil {
		t.Error("expected failure for truncated envelope")
	}
}

func TestNonceDistinctPerCounterValue(t *testing.T) {
	key := testKey()
	plaintext := []byte("same plaintext")

	first, err := EncryptAndPack(plaintext, key, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := EncryptAndPack(plaintext, key, 1)
	if err != nil {
		t.Fatal(err)
	}

	firstNonce := first[versionSize:headerSize]
	secondNonce := second[versionSize:headerSize]
	if bytes.Equal(firstNonce, secondNonce) {
		t.Error("distinct counter values produced identical nonces")
	}
	if bytes.Equal(first[headerSize:], second[headerSize:]) {
		t.Error("distinct nonces produced identical ciphertext for identical plaintext")
	}
}
