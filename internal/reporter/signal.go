package reporter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteSignal writes the downstream signal artifact: the count on the first
// line followed by one identifier per line. The file is replaced atomically.
func WriteSignal(path string, ids []string) error {
	content := strconv.Itoa(len(ids)) + "\n" + strings.Join(ids, "\n")

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".signal-*")
	if err != nil {
		return fmt.Errorf("failed to create signal file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write signal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write signal file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write signal file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// RemoveSignal deletes a signal artifact left by an earlier run. A missing
// file is not an error.
func RemoveSignal(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale signal file: %w", err)
	}
	return nil
}
