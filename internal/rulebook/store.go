package rulebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/metrics"
)

func nowUTC() time.Time { return time.Now().UTC() }

// ErrInvalid marks rulebook content that failed validation. The previous
// snapshot stays in place when it is returned.
var ErrInvalid = errors.New("invalid rulebook")

// Store owns the rulebook file and the shared in-memory snapshot. Readers
// take cheap immutable snapshots; writers go through Publish. An fsnotify
// watcher (see watcher.go) keeps the snapshot in sync with external edits.
type Store struct {
	path string

	mu       sync.Mutex // serializes publish and reload
	snapshot atomic.Pointer[Rulebook]
	changes  chan *Rulebook
	watcher  *FileWatcher
}

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create rulebook directory: %w", err)
		}
	}

	return &Store{
		path:    path,
		changes: make(chan *Rulebook, 1),
	}, nil
}

// Load reads and validates the file, initializing an empty rulebook at
// version 1 when it does not exist yet.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		rb := Empty()
		if err := s.writeFile(rb); err != nil {
			return err
		}
		s.setSnapshot(rb)
		log.Info().Str("path", s.path).Msg("initialized empty rulebook")
		return nil
	}

	rb, err := s.readFile()
	if err != nil {
		return err
	}

	s.setSnapshot(rb)
	log.Info().Int64("version", rb.Version).Int("rules", len(rb.Rules)).Msg("rulebook loaded")
	return nil
}

func (s *Store) setSnapshot(rb *Rulebook) {
	s.snapshot.Store(rb)
	metrics.RulebookVersion.Set(float64(rb.Version))
}

// Snapshot returns the current immutable view. Callers must not mutate it;
// the Learner clones before applying changes.
func (s *Store) Snapshot() *Rulebook {
	return s.snapshot.Load()
}

// Loaded reports whether Load has succeeded at least once.
func (s *Store) Loaded() bool {
	return s.snapshot.Load() != nil
}

// Publish persists rb as the next version: version is bumped past the
// current snapshot's, updated_at is refreshed, the file is written atomically
// and the in-memory snapshot swapped. Subscribers are notified.
func (s *Store) Publish(rb *Rulebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := rb.Clone()
	if cur := s.snapshot.Load(); cur != nil {
		next.Version = cur.Version + 1
	}
	next.UpdatedAt = nowUTC()

	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := s.writeFile(next); err != nil {
		return err
	}

	s.setSnapshot(next)
	s.notify(next)

	log.Info().Int64("version", next.Version).Int("rules", len(next.Rules)).Msg("rulebook published")
	return nil
}

// Subscribe returns the single-consumer change stream. Notifications are
// coalesced; the consumer only ever needs the latest snapshot.
func (s *Store) Subscribe() <-chan *Rulebook {
	return s.changes
}

// Watch starts the file watcher so external edits are picked up.
func (s *Store) Watch() error {
	w, err := NewFileWatcher(s.path, s.handleFileChange)
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// handleFileChange reloads after a debounced filesystem event. Invalid
// content and version regressions keep the previous snapshot; readers never
// observe a torn or backwards rulebook.
func (s *Store) handleFileChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, err := s.readFile()
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("rulebook reload rejected, keeping previous snapshot")
		return
	}

	cur := s.snapshot.Load()
	if cur != nil {
		if rb.Version < cur.Version {
			log.Warn().Int64("file_version", rb.Version).Int64("current", cur.Version).
				Msg("rulebook file regressed, keeping previous snapshot")
			return
		}
		if rb.Version == cur.Version && rb.UpdatedAt.Equal(cur.UpdatedAt) {
			// Our own publish already swapped this version in.
			return
		}
	}

	s.setSnapshot(rb)
	s.notify(rb)
	log.Info().Int64("version", rb.Version).Int("rules", len(rb.Rules)).Msg("rulebook hot-reloaded")
}

func (s *Store) readFile() (*Rulebook, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}

	var rb Rulebook
	if err := json.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := rb.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &rb, nil
}

// writeFile writes pretty JSON with a trailing newline via temp file and
// rename, so concurrent readers of the path never see a partial write.
func (s *Store) writeFile(rb *Rulebook) error {
	data, err := json.MarshalIndent(rb, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize rulebook: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".rulebook-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp rulebook: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp rulebook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp rulebook: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename rulebook: %w", err)
	}
	return nil
}

func (s *Store) notify(rb *Rulebook) {
	for {
		select {
		case s.changes <- rb:
			return
		default:
		}
		// Channel full: drop the stale notification and try again.
		select {
		case <-s.changes:
		default:
		}
	}
}
