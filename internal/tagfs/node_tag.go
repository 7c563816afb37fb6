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

// tagChainNode is "/@t1/.../@tk": the conjunction of the listed tags. Only
// a leaf of one tag corresponds to an actual Tag row; the Attr shown for a
// longer chain is borrowed from its innermost tag, since the grammar has no
// separate attr for a conjunction.
type tagChainNode struct {
	fs   *FS
	tags []string
}

var (
	_ fs.Node               = (*tagChainNode)(nil)
	_ fs.NodeStringLookuper = (*tagChainNode)(nil)
	_ fs.HandleReadDirAller = (*tagChainNode)(nil)
	_ fs.NodeAccesser       = (*tagChainNode)(nil)
	_ fs.NodeMkdirer        = (*tagChainNode)(nil)
	_ fs.NodeRemover        = (*tagChainNode)(nil)
	_ fs.NodeRenamer        = (*tagChainNode)(nil)
	_ fs.NodeSetattrer      = (*tagChainNode)(nil)
)

func (n *tagChainNode) innermost() string { return n.tags[len(n.tags)-1] }

func (n *tagChainNode) Attr(ctx context.Context, a *fuse.Attr) error {
	var tag store.Tag
	var attr store.Attr
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		tag, err = sess.GetTag(n.innermost())
		if err != nil {
			return err
		}
		attr, err = sess.GetAttr(tag.AttrID)
		return err
	})
	if err != nil {
		return storeErrno(err)
	}
	inode := hashInode(strings.Join(n.tags, "/"))
	if len(n.tags) == 1 {
		inode = tagInode(tag.ID)
	}
	fillAttr(attr, a, inode)
	return nil
}

func (n *tagChainNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	tlog.Debugf("tagfs", "lookup /@%s %s", strings.Join(n.tags, "/@"), name)
	if strings.HasPrefix(name, "@") {
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
		return &tagChainNode{fs: n.fs, tags: dedupAppend(n.tags, tag.Name)}, nil
	}

	var entity store.Entity
	err := n.fs.withSession(func(sess *store.Session) error {
		e, err := sess.GetEntity(name)
		if err != nil {
			return err
		}
		ok, err := sess.HasTags(e.ID, n.tags)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		entity = e
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fuse.ENOENT
		}
		return nil, storeErrno(err)
	}
	return &entityNode{fs: n.fs, tags: n.tags, entity: entity}, nil
}

func (n *tagChainNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var entities []store.Entity
	err := n.fs.withSession(func(sess *store.Session) error {
		var err error
		entities, err = sess.EntitiesWithTags(n.tags)
		return err
	})
	if err != nil {
		return nil, storeErrno(err)
	}
	ents := make([]fuse.Dirent, 0, len(entities))
	for _, e := range entities {
		ents = append(ents, fuse.Dirent{Inode: entityInode(e.ID), Type: fuse.DT_Unknown, Name: e.Name})
	}
	return ents, nil
}

func (n *tagChainNode) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return nil
}

// Mkdir implements "mkdir /@t1/.../@tk/ent": add the chain's tags to an
// existing entity. An unknown entity is an error — entities are only ever
// created through the side channel (§4.4, §9's first resolved question).
func (n *tagChainNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if strings.HasPrefix(req.Name, "@") {
		return nil, fuse.EPERM
	}
	var entity store.Entity
	err := n.fs.withSession(func(sess *store.Session) error {
		e, err := sess.GetEntity(req.Name)
		if err != nil {
			return err
		}
		tagIDs, err := sess.TagIDsByName(n.tags)
		if err != nil {
			return err
		}
		if err := sess.AddTags(e.ID, tagIDs); err != nil {
			return err
		}
		entity = e
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fuse.ENOENT
		}
		return nil, storeErrno(err)
	}
	tlog.Logf("tagfs", "tagged %s with %v", req.Name, n.tags)
	return &entityNode{fs: n.fs, tags: n.tags, entity: entity}, nil
}

// Remove implements "rmdir /@t1/.../@tk/ent": drop the chain's tags from
// the entity, deleting it if it becomes orphaned.
func (n *tagChainNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if strings.HasPrefix(req.Name, "@") {
		return fuse.ENOENT
	}
	err := n.fs.withSession(func(sess *store.Session) error {
		e, err := sess.GetEntity(req.Name)
		if err != nil {
			return err
		}
		ok, err := sess.HasTags(e.ID, n.tags)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		tagIDs, err := sess.TagIDsByName(n.tags)
		if err != nil {
			return err
		}
		return sess.RemoveTags(e, tagIDs)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fuse.ENOENT
		}
		return storeErrno(err)
	}
	tlog.Logf("tagfs", "untagged %s from %v", req.Name, n.tags)
	return nil
}

func (n *tagChainNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	return fuse.EPERM
}

func (n *tagChainNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return n.fs.setSyntheticAttr(tagAttrSetter{name: n.innermost()}, req)
}

type tagAttrSetter struct{ name string }

func (s tagAttrSetter) get(sess *store.Session) (store.Attr, error) {
	tag, err := sess.GetTag(s.name)
	if err != nil {
		return store.Attr{}, err
	}
	return sess.GetAttr(tag.AttrID)
}

func (s tagAttrSetter) set(sess *store.Session, a store.Attr) error {
	return sess.SetAttr(a)
}
