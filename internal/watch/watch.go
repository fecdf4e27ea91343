// Package watch reports when snapshot files change on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cjeanneret/LotCam/internal/debug"
	"github.com/fsnotify/fsnotify"
)

// minGap coalesces the Create+Write pair some writers produce for one update.
const minGap = 100 * time.Millisecond

// Event says that the snapshot registered under Name was replaced.
type Event struct {
	Name string
	Path string
	At   time.Time
}

// SnapshotWatcher watches the directories holding a set of snapshot files
// and emits an Event when one of them is created, written or renamed into
// place. Other files in those directories are ignored.
type SnapshotWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]string // cleaned absolute path -> name
	events  chan Event
	done    chan struct{}
	once    sync.Once
}

// New starts watching. snapshots maps a name (e.g. "update") to its path.
// Callers must call Close to clean up.
func New(snapshots map[string]string) (sw *SnapshotWatcher, rerr error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	sw = &SnapshotWatcher{
		watcher: w,
		names:   make(map[string]string, len(snapshots)),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}
	defer func() {
		if rerr != nil {
			w.Close()
		}
	}()

	dirs := make(map[string]bool)
	for name, path := range snapshots {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		sw.names[filepath.Clean(abs)] = name
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return nil, fmt.Errorf("registering file change watcher for %s: %w", dir, err)
		}
		debug.Verbose("Watching %s for snapshots", dir)
	}

	go sw.run()
	return sw, nil
}

func (sw *SnapshotWatcher) run() {
	defer close(sw.done)
	defer close(sw.events)
	last := make(map[string]time.Time)
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name, ok := sw.names[filepath.Clean(ev.Name)]
			if !ok {
				continue
			}
			now := time.Now()
			if now.Sub(last[name]) < minGap {
				continue
			}
			last[name] = now
			select {
			case sw.events <- Event{Name: name, Path: ev.Name, At: now}:
			default:
				debug.Verbose("dropping snapshot event for %s, consumer busy", name)
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			debug.Error(fmt.Errorf("watching for snapshot changes: %w", err))
		}
	}
}

// Events returns the channel of snapshot changes. It is closed by Close.
func (sw *SnapshotWatcher) Events() <-chan Event {
	return sw.events
}

// Close stops watching.
func (sw *SnapshotWatcher) Close() error {
	var err error
	sw.once.Do(func() {
		err = sw.watcher.Close()
		<-sw.done
	})
	return err
}
