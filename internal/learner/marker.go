package learner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// marker persists the last successful batch timestamp next to the rulebook,
// so a restart resumes from the same window instead of process start.
type marker struct {
	path string
}

func newMarker(path string) (*marker, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create marker directory: %w", err)
		}
	}
	return &marker{path: path}, nil
}

// read returns the persisted Unix timestamp, or fallback when the marker
// does not exist or is unreadable.
func (m *marker) read(fallback int64) int64 {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fallback
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return fallback
	}
	return ts
}

// write persists ts via temp file and rename.
func (m *marker) write(ts int64) error {
	data := []byte(strconv.FormatInt(ts, 10) + "\n")

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".last-run-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp marker: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp marker: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename marker: %w", err)
	}
	return nil
}
