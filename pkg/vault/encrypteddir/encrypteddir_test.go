package encrypteddir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sealedbox/vaultcore/pkg/filesystem"
	"github.com/sealedbox/vaultcore/pkg/vault/cipher"
	"github.com/sealedbox/vaultcore/pkg/vault/plaindir"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

func testKey(seed byte) [cipher.KeySize]byte {
	var key [cipher.KeySize]byte
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir, err := Open(t.TempDir(), testKey(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	data, err := dir.Read("a")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, expected %q", data, "hello")
	}
}

func TestRecordsAreEncryptedOnDisk(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path, testKey(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("secret", []byte("the quick brown fox")); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(path, "secret"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) == "the quick brown fox" {
		t.Error("record was stored in plaintext")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path, testKey(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, testKey(99)); !errors.Is(err, vaulterrors.ErrWrongKeyOrCorrupted) {
		t.Errorf("expected ErrWrongKeyOrCorrupted, got %v", err)
	}
}

func TestReopenPreservesRecords(t *testing.T) {
	path := t.TempDir()
	key := testKey(3)

	dir, err := Open(path, key)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, key)
	if err != nil {
		t.Fatal(err)
	}
	data, err := reopened.Read("a")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, expected %q", data, "hello")
	}
}

func TestChangeKeyReencryptsExistingRecords(t *testing.T) {
	path := t.TempDir()
	oldKey := testKey(4)
	newKey := testKey(40)

	dir, err := Open(path, oldKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("b", []byte("world")); err != nil {
		t.Fatal(err)
	}

	if err := dir.ChangeKey(newKey); err != nil {
		t.Fatal("unable to change key:", err)
	}

	if data, err := dir.Read("a"); err != nil || string(data) != "hello" {
		t.Errorf("read after key change failed: data=%q err=%v", data, err)
	}

	if _, err := Open(path, oldKey); !errors.Is(err, vaulterrors.ErrWrongKeyOrCorrupted) {
		t.Error("old key should no longer open the directory after rotation")
	}

	reopened, err := Open(path, newKey)
	if err != nil {
		t.Fatal("new key should open the directory after rotation:", err)
	}
	if data, err := reopened.Read("b"); err != nil || string(data) != "world" {
		t.Errorf("read after reopen with new key failed: data=%q err=%v", data, err)
	}
}

func TestRecoverFinishesInterruptedKeyRotation(t *testing.T) {
	path := t.TempDir()
	oldKey := testKey(5)
	newKey := testKey(50)

	dir, err := Open(path, oldKey)
	if err != nil {
		t.Fatal(err)
	}
	records := map[string]string{"a": "hello", "b": "world"}
	for name, data := range records {
		if err := dir.Write(name, []byte(data)); err != nil {
			t.Fatal(err)
		}
	}

	// Hand-drive the first phase of a key rotation -- stage every record
	// re-encrypted under newKey, then persist a control record marked
	// key_changed under newKey -- without running the second phase (renaming
	// staged files into place), simulating a crash between the two.
	stagingDir := filepath.Join(path, StagingSubdirectory)
	var nonce uint64
	for name, data := range records {
		packed, err := cipher.EncryptAndPack([]byte(data), newKey, nonce)
		if err != nil {
			t.Fatal(err)
		}
		if err := filesystem.WriteFileAtomic(filepath.Join(stagingDir, name), packed, stagedPermissions); err != nil {
			t.Fatal(err)
		}
		nonce++
	}
	info := directoryInfo{modified: time.Now().UTC(), nextNonce: nonce, keyChanged: true}
	packedInfo, err := cipher.EncryptAndPack(info.serialize(), newKey, nonce)
	if err != nil {
		t.Fatal(err)
	}
	controlPath := filepath.Join(path, plaindir.MetadataSubdirectory, ControlRecordName)
	if err := filesystem.WriteFileAtomic(controlPath, packedInfo, stagedPermissions); err != nil {
		t.Fatal(err)
	}

	// Reopening with the new key now looks exactly like reopening right
	// after a real crash in this window: recovery runs automatically and
	// finishes the commit.
	reopened, err := Open(path, newKey)
	if err != nil {
		t.Fatal("reopening after an interrupted rotation should succeed:", err)
	}
	for name, want := range records {
		got, err := reopened.Read(name)
		if err != nil {
			t.Errorf("read %q after recovery: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("record %q = %q, want %q", name, got, want)
		}
	}
	if reopened.info.keyChanged {
		t.Error("key_changed should be cleared once recovery completes")
	}

	entries, err := filesystem.DirectoryContentsByPath(stagingDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			t.Errorf("staging directory still contains %q after recovery", entry.Name())
		}
	}
}

func TestRecoverClearsStaleStagingWhenKeyUnchanged(t *testing.T) {
	path := t.TempDir()
	key := testKey(51)

	dir, err := Open(path, key)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash before the control record was ever marked
	// key_changed: a stray file is left behind in the staging directory, but
	// on-disk state otherwise shows no rotation underway.
	stagingDir := filepath.Join(path, StagingSubdirectory)
	stray := filepath.Join(stagingDir, "leftover")
	if err := os.WriteFile(stray, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}
	if dir.info.keyChanged {
		t.Fatal("test setup invariant violated: key_changed should be false")
	}

	if err := dir.recover(); err != nil {
		t.Fatal("recover should clear stale staging files:", err)
	}

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("stale staging file should have been removed")
	}
	if data, err := dir.Read("a"); err != nil || string(data) != "hello" {
		t.Errorf("unrelated record should survive stale-staging cleanup: data=%q err=%v", data, err)
	}
}

func TestNonceAllocationIsStrictlyMonotonic(t *testing.T) {
	dir, err := Open(t.TempDir(), testKey(8))
	if err != nil {
		t.Fatal(err)
	}

	const records = 100
	var previous uint64
	for i := 0; i < records; i++ {
		name := fmt.Sprintf("record-%03d", i)
		if err := dir.Write(name, []byte(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatal(err)
		}

		packed, err := dir.hashed.ReadRaw(name)
		if err != nil {
			t.Fatal(err)
		}
		// packed is version(1) || nonce(cipher.NonceSize) || ciphertext.
		var nonceBytes [cipher.NonceSize]byte
		copy(nonceBytes[:], packed[1:1+cipher.NonceSize])
		nonce := cipher.NonceUint64(nonceBytes)

		if i > 0 && nonce <= previous {
			t.Fatalf("record %d: nonce %d did not increase past previous nonce %d", i, nonce, previous)
		}
		previous = nonce
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	dir, err := Open(t.TempDir(), testKey(6))
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := dir.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if dir.Exists("a") {
		t.Error("record still reported as existing after delete")
	}
}

func TestModifiedAdvancesOnWrite(t *testing.T) {
	dir, err := Open(t.TempDir(), testKey(7))
	if err != nil {
		t.Fatal(err)
	}
	initial := dir.Modified()

	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if !dir.Modified().After(initial) {
		t.Error("expected Modified to advance after a write")
	}
}
