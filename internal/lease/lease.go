// Package lease implements the filesystem markers that tie a working copy
// of a document source file to the job converting it. A lease is a
// liveness/debugging marker, not the admission lock: the authoritative
// guard against duplicate conversion is the status compare-and-swap in the
// document repository.
package lease

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extension is appended to a working file's path to name its lease file.
const Extension = ".lock"

// PathFor returns the lease file path for a working file.
func PathFor(workingFile string) string {
	return workingFile + Extension
}

// TryAcquire creates the lease for a working file, recording the start
// time. It does not block: if the lease already exists the caller gets
// false and should pick a different working-file name.
func TryAcquire(workingFile string) (bool, error) {
	f, err := os.OpenFile(PathFor(workingFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lease for %s: %w", workingFile, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "started %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("failed to write lease for %s: %w", workingFile, err)
	}
	return true, nil
}

// AppendPID records the worker process identity on an existing lease once
// it is known.
func AppendPID(workingFile string, pid int) error {
	f, err := os.OpenFile(PathFor(workingFile), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lease for %s: %w", workingFile, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "pid %d\n", pid)
	return err
}

// Release deletes the lease unconditionally. Releasing a lease that is
// already gone is not an error.
func Release(workingFile string) error {
	err := os.Remove(PathFor(workingFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// SweepOrphans removes lease files in dir whose working file has
// disappeared; such leases are reclaimable leftovers of crashed or
// manually cleaned jobs. Returns the number of leases removed.
func SweepOrphans(dir string) (int, error) {
	locks, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, lock := range locks {
		workingFile := strings.TrimSuffix(lock, Extension)
		if _, err := os.Stat(workingFile); errors.Is(err, fs.ErrNotExist) {
			if err := os.Remove(lock); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// WorkingFileName derives a collision-resistant working-file path for a
// document: the identity suffixed with a creation timestamp, so concurrent
// jobs never contend for the same path.
func WorkingFileName(dir, documentID, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", documentID, time.Now().UnixNano(), ext))
}
