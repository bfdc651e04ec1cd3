package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// WritePIDFile writes the current process id, decimal with a trailing
// newline, to pidPath/filterName.pid, matching
// cmd/broker/core/spawn.go's PID bookkeeping convention.
func WritePIDFile(pidPath, filterName string) (string, error) {
	path := filepath.Join(pidPath, filterName+".pid")
	contents := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return "", fmt.Errorf("write pid file %q: %w", path, err)
	}
	return path, nil
}

// RemovePIDFile removes the PID file written by WritePIDFile, ignoring
// a not-exist error since clean shutdown may race a manual removal.
func RemovePIDFile(pidPath, filterName string) error {
	path := filepath.Join(pidPath, filterName+".pid")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %q: %w", path, err)
	}
	return nil
}
