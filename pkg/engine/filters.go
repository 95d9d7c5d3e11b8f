package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SyncFilters materializes a job's content selection as the engine's
// filters file under the source directory, where the engine reads it on
// the next backup. An empty selection means back up everything, so any
// stale filters file from a previous selection is removed.
func SyncFilters(sourcePath string, selection []string) error {
	path := filepath.Join(sourcePath, ".duplicacy", "filters")

	lines := FilterLines(selection)
	if lines == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove filters file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create engine directory: %w", err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write filters file: %w", err)
	}
	return nil
}
