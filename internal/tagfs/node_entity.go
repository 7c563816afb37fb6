package tagfs

import (
	"context"
	"os"
	"path/filepath"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/tagdir-project/tagdir/internal/store"
)

// entityNode is the boundary node for an entity reached with an empty
// residual path: "/@t1/.../@tk/ent". It shows the entity's own stored
// Attr (not the host's), can be read as a symlink to the real path
// (§4.2's getattr/readlink split), and is where passthrough begins for
// everything below it — every further path component becomes a hostNode.
type entityNode struct {
	fs     *FS
	tags   []string
	entity store.Entity
}

var (
	_ fs.Node               = (*entityNode)(nil)
	_ fs.NodeStringLookuper = (*entityNode)(nil)
	_ fs.HandleReadDirAller = (*entityNode)(nil)
	_ fs.NodeReadlinker     = (*entityNode)(nil)
	_ fs.NodeAccesser       = (*entityNode)(nil)
	_ fs.NodeRenamer        = (*entityNode)(nil)
	_ fs.NodeSetattrer      = (*entityNode)(nil)
)

func (n *entityNode) Attr(ctx context.Context, a *fuse.Attr) error {
	var attr store.Attr
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		attr, err = sess.GetAttr(n.entity.AttrID)
		return err
	})
	if err != nil {
		return storeErrno(err)
	}
	fillAttr(attr, a, entityInode(n.entity.ID))
	return nil
}

func (n *entityNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	real := filepath.Join(n.entity.Path, name)
	if _, err := os.Lstat(real); err != nil {
		return nil, hostErrno(err)
	}
	return &hostNode{fs: n.fs, path: real}, nil
}

// ReadDirAll passes through to the host: entities are real directories
// only through passthrough. A non-directory entity fails with EINVAL
// rather than the host's own ENOTDIR, per §4.2.
func (n *entityNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	fi, err := os.Lstat(n.entity.Path)
	if err != nil {
		return nil, hostErrno(err)
	}
	if !fi.IsDir() {
		return nil, fuse.EINVAL
	}
	return hostReadDirAll(n.entity.Path)
}

// Readlink exposes the entity's real absolute path, letting a client jump
// straight to it regardless of what kind of node it actually is.
func (n *entityNode) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	return n.entity.Path, nil
}

func (n *entityNode) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return hostErrno(unix.Access(n.entity.Path, req.Mask))
}

// Rename: an entity can't be moved out of a tag chain through the
// filesystem; tagging is only mkdir/rmdir/the side channel.
func (n *entityNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	return fuse.EPERM
}

func (n *entityNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return n.fs.setSyntheticAttr(entityAttrSetter{entity: n.entity}, req)
}

type entityAttrSetter struct{ entity store.Entity }

func (s entityAttrSetter) get(sess *store.Session) (store.Attr, error) {
	return sess.GetAttr(s.entity.AttrID)
}

func (s entityAttrSetter) set(sess *store.Session, a store.Attr) error {
	return sess.SetAttr(a)
}
