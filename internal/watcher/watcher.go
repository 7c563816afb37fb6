// Package watcher is the background path-change watcher from spec §4.5: it
// observes renames/removals of entities' real paths and updates or deletes
// the corresponding rows.
//
// Adapted from rclone's backend/local ChangeNotify (changenotify_other.go):
// the same goroutine-plus-select loop over an fsnotify.Watcher's Events and
// Errors channels, the same "known" map of tracked paths, and the same
// tick-based coalescing of bursts into a single flush. Unlike ChangeNotify,
// which walks and watches an entire directory tree, this watcher only
// tracks the parent directories of paths the store actually references.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tagdir-project/tagdir/internal/store"
	"github.com/tagdir-project/tagdir/internal/tlog"
)

// flushInterval bounds how long a rename stays "pending" (waiting for a
// paired Create in the same directory) before being treated as a deletion.
const flushInterval = 500 * time.Millisecond

// tracked is what the watcher knows about one entity's real path.
type tracked struct {
	entityID int64
	dir      string
	base     string
}

// Watcher owns its own store session and runs as a single background
// goroutine, started before the handler set is bound and stopped/joined at
// unmount (spec §4.5/§5).
type Watcher struct {
	store *store.Store
	fsw   *fsnotify.Watcher

	// byPath and byID mirror the entities table for cheap event lookup.
	byPath map[string]tracked // dir/base -> tracked
	byID   map[int64]tracked

	// watchedDirs counts how many tracked entries share a watched parent
	// directory, so the last one to leave can Remove() the watch.
	watchedDirs map[string]int

	// pending holds renames awaiting a paired Create, keyed by the old
	// full path, until the next flush.
	pending map[string]tracked

	stop chan struct{}
	done chan struct{}
}

// New creates a watcher over s. Call Start to begin watching.
func New(s *store.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:       s,
		fsw:         fsw,
		byPath:      make(map[string]tracked),
		byID:        make(map[int64]tracked),
		watchedDirs: make(map[string]int),
		pending:     make(map[string]tracked),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Start seeds the watcher from every known entity and begins the
// background loop.
func (w *Watcher) Start(ctx context.Context) error {
	var paths map[int64]string
	err := w.store.WithSession(func(sess *store.Session) error {
		p, err := sess.AllEntityPaths()
		if err != nil {
			return err
		}
		paths = p
		return nil
	})
	if err != nil {
		return err
	}
	for id, path := range paths {
		w.track(id, path)
	}

	go w.loop()
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) track(entityID int64, path string) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	t := tracked{entityID: entityID, dir: dir, base: base}
	w.byPath[path] = t
	w.byID[entityID] = t
	if w.watchedDirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			tlog.Errorf("watcher", "failed to watch %s: %v", dir, err)
		}
	}
	w.watchedDirs[dir]++
}

func (w *Watcher) untrack(entityID int64) {
	t, ok := w.byID[entityID]
	if !ok {
		return
	}
	delete(w.byID, entityID)
	delete(w.byPath, filepath.Join(t.dir, t.base))
	w.watchedDirs[t.dir]--
	if w.watchedDirs[t.dir] <= 0 {
		delete(w.watchedDirs, t.dir)
		if err := w.fsw.Remove(t.dir); err != nil {
			tlog.Debugf("watcher", "stop watching %s: %v", t.dir, err)
		}
	}
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			_ = w.fsw.Close()
			return
		case <-ticker.C:
			w.flushPending()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Errors inside the watcher are logged and swallowed — the
			// filesystem stays up (spec §7).
			tlog.Errorf("watcher", "error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	t, known := w.byPath[ev.Name]

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !known {
			return
		}
		// Could be a true delete, or the first half of a rename within
		// the same directory. Park it as pending; a paired Create within
		// flushInterval resolves it to a rename, otherwise it expires
		// into a delete at the next flush.
		delete(w.byPath, ev.Name)
		w.pending[ev.Name] = t
		tlog.Debugf("watcher", "path gone, pending: %s", ev.Name)

	case ev.Has(fsnotify.Create):
		dir := filepath.Dir(ev.Name)
		// Pair with a pending rename whose directory matches and whose
		// new name isn't already tracked.
		if known {
			return
		}
		for oldPath, pendingT := range w.pending {
			if filepath.Dir(oldPath) != dir {
				continue
			}
			delete(w.pending, oldPath)
			w.resolveRename(pendingT, ev.Name)
			return
		}

	default:
		// Write/Chmod on a known path don't change tagdir's state.
	}
}

func (w *Watcher) resolveRename(t tracked, newPath string) {
	if err := w.store.WithSession(func(sess *store.Session) error {
		return sess.UpdateEntityPath(t.entityID, newPath)
	}); err != nil {
		tlog.Errorf("watcher", "failed to update entity path: %v", err)
		return
	}
	w.untrack(t.entityID)
	w.track(t.entityID, newPath)
	tlog.Logf("watcher", "entity renamed to %s", newPath)
}

func (w *Watcher) flushPending() {
	if len(w.pending) == 0 {
		return
	}
	for oldPath, t := range w.pending {
		delete(w.pending, oldPath)
		if _, err := os.Lstat(oldPath); err == nil {
			// Spurious event: the path is still there. Re-track and
			// ignore, per spec's "Unknown / spurious -> ignore".
			w.byPath[oldPath] = t
			continue
		}
		w.deleteEntity(t)
	}
}

func (w *Watcher) deleteEntity(t tracked) {
	err := w.store.WithSession(func(sess *store.Session) error {
		return sess.DeleteEntityByPath(filepath.Join(t.dir, t.base))
	})
	if err != nil {
		if err == store.ErrNotFound {
			// Already gone: at-least-once delivery, idempotent no-op.
			w.untrack(t.entityID)
			return
		}
		tlog.Errorf("watcher", "failed to delete entity: %v", err)
		return
	}
	w.untrack(t.entityID)
	tlog.Logf("watcher", "entity at %s removed", filepath.Join(t.dir, t.base))
}
