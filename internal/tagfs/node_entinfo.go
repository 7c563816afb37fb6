package tagfs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/tagdir-project/tagdir/internal/store"
	"github.com/tagdir-project/tagdir/internal/tlog"
	"github.com/tagdir-project/tagdir/internal/vpath"
)

// entinfoNode is the reserved "/.tagdir_entinfo" file. Its content is
// always empty; the side-channel protocol lives entirely in its extended
// attributes (§4.4) — one attribute key per known entity.
type entinfoNode struct {
	fs *FS
}

var (
	_ fs.Node              = (*entinfoNode)(nil)
	_ fs.NodeOpener        = (*entinfoNode)(nil)
	_ fs.NodeGetxattrer    = (*entinfoNode)(nil)
	_ fs.NodeListxattrer   = (*entinfoNode)(nil)
	_ fs.NodeSetxattrer    = (*entinfoNode)(nil)
	_ fs.NodeRemovexattrer = (*entinfoNode)(nil)
)

func (n *entinfoNode) Attr(ctx context.Context, a *fuse.Attr) error {
	var attr store.Attr
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		attr, err = sess.EntinfoAttr()
		return err
	})
	if err != nil {
		return storeErrno(err)
	}
	fillAttr(attr, a, entinfoInode)
	return nil
}

func (n *entinfoNode) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return &entinfoHandle{}, nil
}

// Getxattr returns "<real_path>,<tag1>,...,<tagN>" for the entity named by
// req.Name, per §4.4.
func (n *entinfoNode) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	var value string
	err := n.fs.withSession(func(sess *store.Session) error {
		e, err := sess.GetEntity(req.Name)
		if err != nil {
			return err
		}
		tags, err := sess.EntityTags(e.ID)
		if err != nil {
			return err
		}
		value = e.Path + "," + strings.Join(tags, ",")
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fuse.ErrNoXattr
		}
		return storeErrno(err)
	}
	resp.Xattr = []byte(value)
	return nil
}

// Listxattr returns the name of every known entity as an attribute key.
func (n *entinfoNode) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	var entities []store.Entity
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		entities, err = sess.AllEntities()
		return err
	})
	if err != nil {
		return storeErrno(err)
	}
	for _, e := range entities {
		resp.Append(e.Name)
	}
	return nil
}

// Setxattr parses req.Xattr as "<real_path>,<tag1>,...,<tagN>" and
// upserts the entity req.Name, per §4.4.
func (n *entinfoNode) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	parts := strings.Split(string(req.Xattr), ",")
	if len(parts) < 2 {
		return fuse.EINVAL
	}
	realPath, tags := parts[0], parts[1:]
	if !filepath.IsAbs(realPath) {
		return fuse.EINVAL
	}
	for _, t := range tags {
		if !vpath.IsTagName(t) {
			return fuse.EINVAL
		}
	}
	err := n.fs.withSession(func(sess *store.Session) error {
		return sess.UpsertEntity(req.Name, realPath, tags, req.Uid, req.Gid)
	})
	if err != nil {
		return storeErrno(err)
	}
	tlog.Logf("tagfs", "registered entity %s -> %s %v", req.Name, realPath, tags)
	return nil
}

func (n *entinfoNode) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest) error {
	err := n.fs.withSession(func(sess *store.Session) error {
		return sess.DeleteEntity(req.Name)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fuse.ErrNoXattr
		}
		return storeErrno(err)
	}
	tlog.Logf("tagfs", "deleted entity %s", req.Name)
	return nil
}

// entinfoHandle backs an open reserved file: reads return no content,
// writes are rejected since content isn't how this protocol works.
type entinfoHandle struct{}

var (
	_ fs.Handle       = (*entinfoHandle)(nil)
	_ fs.HandleReader = (*entinfoHandle)(nil)
	_ fs.HandleWriter = (*entinfoHandle)(nil)
)

func (h *entinfoHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	resp.Data = nil
	return nil
}

func (h *entinfoHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	return fuse.EPERM
}
