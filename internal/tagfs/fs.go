// Package tagfs binds tagdir's virtual filesystem to bazil.org/fuse: one
// Go method per filesystem operation, exactly as spec'd in §4.2. The node
// hierarchy is a tagged variant of the grammar in internal/vpath (root, tag
// chain, entity boundary, passthrough host path, reserved file), walked one
// path component at a time the way the kernel actually delivers Lookup
// calls — so unlike internal/vpath.Parse (which parses a complete path
// string in one pass) each node type here only enforces the
// grammar rule for its own single step.
//
// Grounded on the teacher's cmd/mount, which wires the same fs.FS contract
// to bazil.org/fuse for a single rclone remote.
package tagfs

import (
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/tagdir-project/tagdir/internal/store"
)

// FS is the root of one tagdir mount.
type FS struct {
	store *store.Store
}

// New returns a tagdir FS backed by s.
func New(s *store.Store) *FS {
	return &FS{store: s}
}

var _ fs.FS = (*FS)(nil)

// Root implements fs.FS.
func (f *FS) Root() (fs.Node, error) {
	return &rootNode{fs: f}, nil
}

func (f *FS) withSession(fn func(*store.Session) error) error {
	return f.store.WithSession(fn)
}

// fillAttr copies a store.Attr onto a fuse.Attr.
func fillAttr(a store.Attr, out *fuse.Attr, inode uint64) {
	out.Inode = inode
	out.Mode = os.FileMode(a.Mode)
	out.Uid = a.UID
	out.Gid = a.GID
	out.Atime = time.Unix(a.Atime, 0)
	out.Mtime = time.Unix(a.Mtime, 0)
	out.Ctime = time.Unix(a.Ctime, 0)
	if out.Mode.IsDir() {
		out.Nlink = 2
	} else {
		out.Nlink = 1
	}
}

// fillHostAttr copies an os.FileInfo from a passthrough Lstat onto a
// fuse.Attr, the same shape getattr uses for paths inside an entity.
func fillHostAttr(fi os.FileInfo, out *fuse.Attr, inode uint64) {
	out.Inode = inode
	out.Mode = fi.Mode()
	out.Size = uint64(fi.Size())
	out.Mtime = fi.ModTime()
	out.Ctime = fi.ModTime()
	out.Atime = fi.ModTime()
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		out.Uid = st.Uid
		out.Gid = st.Gid
		out.Nlink = uint32(st.Nlink)
		out.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		out.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
}

// dedupAppend appends name to tags unless it's already present, per §9's
// resolved open question that repeated tags in a chain collapse to one.
func dedupAppend(tags []string, name string) []string {
	for _, t := range tags {
		if t == name {
			return tags
		}
	}
	out := make([]string, len(tags), len(tags)+1)
	copy(out, tags)
	return append(out, name)
}
