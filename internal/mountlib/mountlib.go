// Package mountlib owns a single tagdir mount's lifecycle: open the store,
// start the watcher, bind the handler set to a mountpoint under device name
// "Tagdir_<name>", serve kernel requests, and tear everything down in order
// on unmount.
//
// Grounded on the teacher's cmd/mount, which sequences the same
// open-backend / bind-VFS / fuse.Mount / fs.Serve / unmount steps for an
// rclone remote.
package mountlib

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/tagdir-project/tagdir/internal/store"
	"github.com/tagdir-project/tagdir/internal/tagfs"
	"github.com/tagdir-project/tagdir/internal/tlog"
	"github.com/tagdir-project/tagdir/internal/watcher"
)

// Mount is a bound, serving tagdir mount. Call Unmount to shut it down.
type Mount struct {
	Name       string
	Mountpoint string

	conn    *fuse.Conn
	store   *store.Store
	watcher *watcher.Watcher
	serveErr chan error
}

// Mount opens dbURL, starts the watcher, and binds the filesystem at
// mountpoint under the device name "Tagdir_<name>". It returns once the
// kernel handshake completes; Serve continues in the background until
// Unmount or a fatal serve error.
func Mount(ctx context.Context, name, dbURL, mountpoint string) (*Mount, error) {
	s, err := store.Open(dbURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	w, err := watcher.New(s)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName("Tagdir_"+name),
		fuse.Subtype("tagdir"),
		fuse.VolumeName(name),
	)
	if err != nil {
		w.Stop()
		_ = s.Close()
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}

	m := &Mount{
		Name:       name,
		Mountpoint: mountpoint,
		conn:       conn,
		store:      s,
		watcher:    w,
		serveErr:   make(chan error, 1),
	}

	go func() {
		m.serveErr <- fusefs.Serve(conn, tagfs.New(s))
	}()

	select {
	case <-conn.Ready:
		if err := conn.MountError; err != nil {
			_ = m.Unmount()
			return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
		}
	case err := <-m.serveErr:
		_ = m.Unmount()
		return nil, fmt.Errorf("serve %s: %w", mountpoint, err)
	}

	tlog.Logf("mountlib", "mounted Tagdir_%s at %s", name, mountpoint)
	return m, nil
}

// Wait blocks until the serve loop exits, e.g. because the mount was
// unmounted externally (fusermount -u).
func (m *Mount) Wait() error {
	return <-m.serveErr
}

// Unmount signals the watcher to stop, unmounts the kernel connection, and
// closes the store, in that order, per §5's shutdown sequencing.
func (m *Mount) Unmount() error {
	m.watcher.Stop()

	err := fuse.Unmount(m.Mountpoint)
	if err == nil {
		<-m.serveErr
	}
	if cerr := m.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if serr := m.store.Close(); serr != nil && err == nil {
		err = serr
	}
	tlog.Logf("mountlib", "unmounted Tagdir_%s", m.Name)
	return err
}
