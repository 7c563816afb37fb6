package tagfs

import (
	"context"
	"errors"
	"strings"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/tagdir-project/tagdir/internal/store"
	"github.com/tagdir-project/tagdir/internal/tlog"
	"github.com/tagdir-project/tagdir/internal/vpath"
)

// rootNode is "/": the list of tags plus the reserved entinfo file.
type rootNode struct {
	fs *FS
}

var (
	_ fs.Node                = (*rootNode)(nil)
	_ fs.NodeStringLookuper  = (*rootNode)(nil)
	_ fs.HandleReadDirAller  = (*rootNode)(nil)
	_ fs.NodeAccesser        = (*rootNode)(nil)
	_ fs.NodeRenamer         = (*rootNode)(nil)
	_ fs.NodeRemover         = (*rootNode)(nil)
	_ fs.NodeMkdirer         = (*rootNode)(nil)
	_ fs.NodeSetattrer       = (*rootNode)(nil)
)

func (n *rootNode) Attr(ctx context.Context, a *fuse.Attr) error {
	var attr store.Attr
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		attr, err = sess.RootAttr()
		return err
	})
	if err != nil {
		return storeErrno(err)
	}
	fillAttr(attr, a, rootInode)
	return nil
}

func (n *rootNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	tlog.Debugf("tagfs", "lookup / %s", name)
	if name == vpath.EntinfoBase {
		return &entinfoNode{fs: n.fs}, nil
	}
	if !strings.HasPrefix(name, "@") {
		return nil, fuse.ENOENT
	}
	tagName := name[1:]
	if !vpath.IsTagName(tagName) {
		return nil, fuse.ENOENT
	}
	var tag store.Tag
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		tag, err = sess.GetTag(tagName)
		return err
	})
	if err != nil {
		return nil, storeErrno(err)
	}
	return &tagChainNode{fs: n.fs, tags: []string{tag.Name}}, nil
}

func (n *rootNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var tags []store.Tag
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		tags, err = sess.AllTags()
		return err
	})
	if err != nil {
		return nil, storeErrno(err)
	}
	ents := make([]fuse.Dirent, 0, len(tags)+1)
	for _, t := range tags {
		ents = append(ents, fuse.Dirent{Inode: tagInode(t.ID), Type: fuse.DT_Dir, Name: "@" + t.Name})
	}
	ents = append(ents, fuse.Dirent{Inode: entinfoInode, Type: fuse.DT_File, Name: vpath.EntinfoBase})
	return ents, nil
}

func (n *rootNode) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return nil
}

// Mkdir creates a new top-level tag, "/@name" per §4.2.
func (n *rootNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if !strings.HasPrefix(req.Name, "@") {
		return nil, fuse.EPERM
	}
	tagName := req.Name[1:]
	if !vpath.IsTagName(tagName) {
		return nil, fuse.EINVAL
	}
	var tag store.Tag
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		tag, err = sess.CreateTag(tagName, req.Uid, req.Gid)
		return err
	})
	if err != nil {
		return nil, storeErrno(err)
	}
	tlog.Logf("tagfs", "created tag @%s", tagName)
	return &tagChainNode{fs: n.fs, tags: []string{tag.Name}}, nil
}

// Remove implements "rmdir /@name": delete a tag and cascade.
func (n *rootNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if !req.Dir || !strings.HasPrefix(req.Name, "@") {
		return fuse.ENOENT
	}
	tagName := req.Name[1:]
	err := n.fs.withSession(func(sess *store.Session) error {
		return sess.DeleteTag(tagName)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fuse.ENOENT
		}
		return storeErrno(err)
	}
	tlog.Logf("tagfs", "removed tag @%s", tagName)
	return nil
}

// Rename: a tag can never move across a synthetic boundary.
func (n *rootNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	return fuse.EPERM
}

func (n *rootNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return n.fs.setSyntheticAttr(rootAttrSetter{}, req)
}

// rootAttrSetter adapts the root's singleton attr to the shared Setattr helper.
type rootAttrSetter struct{}

func (rootAttrSetter) get(sess *store.Session) (store.Attr, error) { return sess.RootAttr() }
func (rootAttrSetter) set(sess *store.Session, a store.Attr) error { return sess.SetAttr(a) }
