package replicateddir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealedbox/vaultcore/pkg/vault/cipher"
)

func testKey(seed byte) [cipher.KeySize]byte {
	var key [cipher.KeySize]byte
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func threeReplicaPaths(t *testing.T) []string {
	t.Helper()
	root := t.TempDir()
	return []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
		filepath.Join(root, "c"),
	}
}

func TestWriteReadAcrossReplicas(t *testing.T) {
	dir, err := New(threeReplicaPaths(t), testKey(0))
	require.NoError(t, err)

	require.NoError(t, dir.Write("a", []byte("hello")))
	data, err := dir.Read("a")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestReadSurvivesMissingReplica(t *testing.T) {
	paths := threeReplicaPaths(t)
	key := testKey(1)

	dir, err := New(paths, key)
	require.NoError(t, err)
	require.NoError(t, dir.Write("a", []byte("hello")))

	// Wipe one replica's directory entirely to simulate a lost disk, then
	// reopen: Recover should fill it back in from the others.
	require.NoError(t, os.RemoveAll(paths[1]))

	reopened, err := New(paths, key)
	require.NoError(t, err, "unable to reopen with one replica missing")

	data, err := reopened.Read("a")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.True(t, reopened.Exists("a"), "record not visible after recovery")
}

func TestDeletePropagatesToAllReplicas(t *testing.T) {
	dir, err := New(threeReplicaPaths(t), testKey(2))
	require.NoError(t, err)
	require.NoError(t, dir.Write("a", []byte("hello")))
	require.NoError(t, dir.Delete("a"))
	require.False(t, dir.Exists("a"), "record still reported as existing after delete")
}

func TestChangeKeyAcrossReplicas(t *testing.T) {
	paths := threeReplicaPaths(t)
	oldKey := testKey(3)
	newKey := testKey(30)

	dir, err := New(paths, oldKey)
	require.NoError(t, err)
	require.NoError(t, dir.Write("a", []byte("hello")))

	require.NoError(t, dir.ChangeKey(newKey), "unable to change key")

	_, err = New(paths, oldKey)
	require.Error(t, err, "old key should no longer open the replica set after rotation")

	reopened, err := New(paths, newKey)
	require.NoError(t, err, "new key should open the replica set after rotation")

	data, err := reopened.Read("a")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestDirectoriesReturnsConfiguredPaths(t *testing.T) {
	paths := threeReplicaPaths(t)
	dir, err := New(paths, testKey(4))
	require.NoError(t, err)

	require.Equal(t, paths, dir.Directories())
}

func TestSearchDelegatesToFreshestReplica(t *testing.T) {
	dir, err := New(threeReplicaPaths(t), testKey(5))
	require.NoError(t, err)
	require.NoError(t, dir.Write("alpha", []byte("x")))
	require.NoError(t, dir.Write("alphabet", []byte("x")))

	results := dir.Search("alph", 9)
	require.GreaterOrEqual(t, len(results), 2)
}

func TestModifiedReflectsFreshestReplica(t *testing.T) {
	dir, err := New(threeReplicaPaths(t), testKey(6))
	require.NoError(t, err)

	before := dir.Modified()
	require.NoError(t, dir.Write("a", []byte("hello")))
	require.True(t, dir.Modified().After(before))
}
