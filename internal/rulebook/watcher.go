package rulebook

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debouncePeriod coalesces the event bursts editors emit for a single save.
const debouncePeriod = 200 * time.Millisecond

type ChangeHandler func()

// FileWatcher watches one file for writes and invokes the handler after a
// quiet period. It watches the parent directory because atomic-rename
// writers replace the inode the file watch would be pinned to.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	fileName string
	handler  ChangeHandler
	done     chan struct{}
}

func NewFileWatcher(path string, handler ChangeHandler) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		fileName: filepath.Base(path),
		handler:  handler,
		done:     make(chan struct{}),
	}

	go fw.watch()

	return fw, nil
}

func (fw *FileWatcher) Close() error {
	close(fw.done)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watch() {
	debounce := time.NewTimer(debouncePeriod)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldHandle(event) {
				debounce.Reset(debouncePeriod)
				pending = true
			}

		case <-debounce.C:
			if pending {
				pending = false
				fw.handler()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("rulebook watcher error")

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Base(event.Name) == fw.fileName
}
