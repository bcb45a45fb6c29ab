package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sealedbox/vaultcore/pkg/logging"
	"github.com/sealedbox/vaultcore/pkg/must"
)

const (
	// atomicWriteTemporaryNamePrefix is the file name prefix to use for
	// intermediate temporary files used in atomic writes.
	atomicWriteTemporaryNamePrefix = TemporaryNamePrefix + "atomic-write"
)

// atomicLogger is used for best-effort cleanup reporting in this file, which
// exposes no logger parameter of its own.
var atomicLogger = logging.RootLogger.Sublogger("filesystem")

// Rename renames oldPath to newPath. If the two paths reside on different
// devices, os.Rename's EXDEV failure is masked by falling back to a
// copy-then-remove sequence that still swaps the destination into place with
// a same-device rename, so a crash mid-copy can never leave a partial file
// visible at newPath. If overwrite is false, the operation fails when newPath
// already exists.
func Rename(oldPath, newPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Lstat(newPath); err == nil {
			return fmt.Errorf("destination already exists: %s", newPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("unable to probe destination: %w", err)
		}
	}

	if err := os.Rename(oldPath, newPath); err == nil {
		return nil
	} else if !isCrossDeviceError(err) {
		return err
	}

	source, err := os.Open(oldPath)
	if err != nil {
		return fmt.Errorf("unable to open source file: %w", err)
	}
	defer must.Close(source, atomicLogger)

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("unable to stat source file: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(newPath), atomicWriteTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create intermediate temporary file: %w", err)
	}

	if _, err := io.Copy(temporary, source); err != nil {
		must.Close(temporary, atomicLogger)
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to copy file contents across devices: %w", err)
	}

	if err := temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to close intermediate temporary file: %w", err)
	}

	if err := setPermissions(temporary.Name(), info.Mode()); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to set intermediate file permissions: %w", err)
	}

	if err := os.Rename(temporary.Name(), newPath); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to rename intermediate file into place: %w", err)
	}

	must.OSRemove(oldPath, atomicLogger)
	return nil
}

// WriteFileAtomic writes a file to disk in an atomic fashion by using an
// intermediate temporary file that is swapped in place using a rename
// operation.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode) error {
	// Create a temporary file. The os package already uses secure permissions
	// for creating temporary files, so we don't need to change them.
	temporary, err := os.CreateTemp(filepath.Dir(path), atomicWriteTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	// Write data.
	if _, err = temporary.Write(data); err != nil {
		must.Close(temporary, atomicLogger)
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}

	// Close out the file.
	if err = temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	// Set the file's permissions.
	if err = setPermissions(temporary.Name(), permissions); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to change file permissions: %w", err)
	}

	// Rename the file.
	if err = Rename(temporary.Name(), path, true); err != nil {
		must.OSRemove(temporary.Name(), atomicLogger)
		return fmt.Errorf("unable to rename file: %w", err)
	}

	// Success.
	return nil
}
