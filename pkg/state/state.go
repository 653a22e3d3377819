package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// the provided state path. It verifies paths are not symlinks and have
// restrictive permissions, and that they are writable by the process.
func EnsureStateDirs(statePath string) error {
	localPath := filepath.Join(statePath, "local")
	hubPath := filepath.Join(statePath, "hub")
	tmpPath := filepath.Join(statePath, "tmp")

	paths := []string{localPath, hubPath, tmpPath}

	for _, p := range paths {
		// ensure parent exists
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", p, err)
		}

		// if path exists, reject symlinks and non-directories
		if fi, err := os.Lstat(p); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", p)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", p)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", p)
			}
		}

		// create directory if missing
		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", p, err)
		}

		// writability check: create and remove a temp file
		tmp, err := os.CreateTemp(p, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", p, err)
		}
		name := tmp.Name()
		tmp.Close()
		os.Remove(name)
	}
	return nil
}

// LocalDBPath returns the localstate database location under the state
// directory.
func LocalDBPath(statePath string) string {
	return filepath.Join(statePath, "local")
}

// HubDBPath returns the dev hub database location under the state
// directory.
func HubDBPath(statePath string) string {
	return filepath.Join(statePath, "hub")
}

// UploadsPath returns the dev hub upload spool under the state directory.
func UploadsPath(statePath string) string {
	return filepath.Join(statePath, "tmp")
}
