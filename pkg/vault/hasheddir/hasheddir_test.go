package hasheddir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir, err := Open(t.TempDir())
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

func TestReadDetectsTamperedRecord(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(path, "a"), []byte("tampered"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := dir.Read("a"); !errors.Is(err, vaulterrors.ErrIntegrity) {
		t.Errorf("expected ErrIntegrity, got %v", err)
	}
}

func TestDeleteRemovesDigest(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := dir.Delete("a"); err != nil {
		t.Fatal(err)
	}

	hashPath := filepath.Join(path, HashesSubdirectory, "a."+HashFileExtension)
	if _, err := os.Stat(hashPath); !os.IsNotExist(err) {
		t.Errorf("expected digest file to be removed, stat err: %v", err)
	}
}

func TestGetFileHashMatchesWrittenRecord(t *testing.T) {
	dir, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	digest, err := dir.GetFileHash("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(digest) != 32 {
		t.Errorf("expected 32-byte sha256 digest, got %d bytes", len(digest))
	}
}

func TestCleanupRemovesRecordMissingDigest(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Write("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(path, HashesSubdirectory, "a."+HashFileExtension)); err != nil {
		t.Fatal(err)
	}

	if err := dir.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if dir.Exists("a") {
		t.Error("expected undigested record to be removed by cleanup")
	}
}

func TestCleanupRemovesOrphanedDigest(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(path, HashesSubdirectory, "ghost."+HashFileExtension)
	if err := os.WriteFile(orphan, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := dir.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("expected orphaned digest to be removed, stat err: %v", err)
	}
}
