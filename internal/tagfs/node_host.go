package tagfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/tagdir-project/tagdir/internal/hostattr"
)

// hostNode wraps a real, absolute filesystem path reached by descending
// into an entity's subtree. Every operation is verbatim passthrough per
// §4.3: resolve, then invoke the same operation on the host and return its
// result or errno unchanged.
//
// Grounded on rclone's backend/local, which is the same idea at the remote
// level: local.Object wraps an absolute path and forwards stat/open/etc.
type hostNode struct {
	fs   *FS
	path string
}

var (
	_ fs.Node               = (*hostNode)(nil)
	_ fs.NodeStringLookuper = (*hostNode)(nil)
	_ fs.HandleReadDirAller = (*hostNode)(nil)
	_ fs.NodeReadlinker     = (*hostNode)(nil)
	_ fs.NodeAccesser       = (*hostNode)(nil)
	_ fs.NodeOpener         = (*hostNode)(nil)
	_ fs.NodeCreater        = (*hostNode)(nil)
	_ fs.NodeMkdirer        = (*hostNode)(nil)
	_ fs.NodeRemover        = (*hostNode)(nil)
	_ fs.NodeRenamer        = (*hostNode)(nil)
	_ fs.NodeSetattrer      = (*hostNode)(nil)
)

func (n *hostNode) Attr(ctx context.Context, a *fuse.Attr) error {
	fi, err := os.Lstat(n.path)
	if err != nil {
		return hostErrno(err)
	}
	fillHostAttr(fi, a, hashInode(n.path))
	return nil
}

func (n *hostNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	real := filepath.Join(n.path, name)
	if _, err := os.Lstat(real); err != nil {
		return nil, hostErrno(err)
	}
	return &hostNode{fs: n.fs, path: real}, nil
}

func (n *hostNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	return hostReadDirAll(n.path)
}

func hostReadDirAll(dir string) ([]fuse.Dirent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, hostErrno(err)
	}
	ents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		switch {
		case e.IsDir():
			typ = fuse.DT_Dir
		case e.Type()&os.ModeSymlink != 0:
			typ = fuse.DT_Link
		}
		ents = append(ents, fuse.Dirent{Inode: hashInode(filepath.Join(dir, e.Name())), Type: typ, Name: e.Name()})
	}
	return ents, nil
}

func (n *hostNode) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	target, err := os.Readlink(n.path)
	if err != nil {
		return "", hostErrno(err)
	}
	return target, nil
}

func (n *hostNode) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return hostErrno(unix.Access(n.path, req.Mask))
}

// osOpenFlags translates the kernel's fuse.OpenFlags bitmask into Go's
// os.OpenFile flags. Grounded on the access-mode-mask-plus-bit-tests
// technique in the overlay filesystem's fuseOpenFlagsToOSFlagsAndPerms.
func osOpenFlags(f fuse.OpenFlags) int {
	flag := int(f & fuse.OpenAccessModeMask)
	if f&fuse.OpenAppend != 0 {
		flag |= os.O_APPEND
	}
	if f&fuse.OpenCreate != 0 {
		flag |= os.O_CREATE
	}
	if f&fuse.OpenExclusive != 0 {
		flag |= os.O_EXCL
	}
	if f&fuse.OpenSync != 0 {
		flag |= os.O_SYNC
	}
	if f&fuse.OpenTruncate != 0 {
		flag |= os.O_TRUNC
	}
	return flag
}

func (n *hostNode) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	f, err := os.OpenFile(n.path, osOpenFlags(req.Flags), 0644)
	if err != nil {
		return nil, hostErrno(err)
	}
	return &hostHandle{f: f}, nil
}

func (n *hostNode) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	real := filepath.Join(n.path, req.Name)
	f, err := os.OpenFile(real, osOpenFlags(req.Flags)|os.O_CREATE, req.Mode)
	if err != nil {
		return nil, nil, hostErrno(err)
	}
	return &hostNode{fs: n.fs, path: real}, &hostHandle{f: f}, nil
}

func (n *hostNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	real := filepath.Join(n.path, req.Name)
	if err := os.Mkdir(real, req.Mode); err != nil {
		return nil, hostErrno(err)
	}
	return &hostNode{fs: n.fs, path: real}, nil
}

func (n *hostNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	real := filepath.Join(n.path, req.Name)
	if err := os.Remove(real); err != nil {
		return hostErrno(err)
	}
	return nil
}

func (n *hostNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	nd, ok := newDir.(*hostNode)
	if !ok {
		// Moving out of the entity's real subtree into a synthetic
		// directory (a tag chain or the root) crosses the boundary §4.3
		// forbids.
		return fuse.EPERM
	}
	oldPath := filepath.Join(n.path, req.OldName)
	newPath := filepath.Join(nd.path, req.NewName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return hostErrno(err)
	}
	return nil
}

func (n *hostNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Mode() {
		if err := hostattr.Lchmod(n.path, req.Mode); err != nil {
			return hostErrno(err)
		}
	}
	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := hostattr.Lchown(n.path, uid, gid); err != nil {
			return hostErrno(err)
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() {
		atime, mtime := req.Atime, req.Mtime
		if !req.Valid.Atime() {
			atime = time.Now()
		}
		if !req.Valid.Mtime() {
			mtime = time.Now()
		}
		if err := hostattr.Lchtimes(n.path, atime, mtime); err != nil {
			return hostErrno(err)
		}
	}
	if req.Valid.Size() {
		if err := os.Truncate(n.path, int64(req.Size)); err != nil {
			return hostErrno(err)
		}
	}
	return nil
}

// hostHandle is an open real file descriptor.
type hostHandle struct {
	f *os.File
}

var (
	_ fs.Handle         = (*hostHandle)(nil)
	_ fs.HandleReader   = (*hostHandle)(nil)
	_ fs.HandleWriter   = (*hostHandle)(nil)
	_ fs.HandleReleaser = (*hostHandle)(nil)
	_ fs.HandleFlusher  = (*hostHandle)(nil)
)

func (h *hostHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.f.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return hostErrno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *hostHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.f.WriteAt(req.Data, req.Offset)
	if err != nil {
		return hostErrno(err)
	}
	resp.Size = n
	return nil
}

func (h *hostHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return hostErrno(h.f.Close())
}

func (h *hostHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return hostErrno(h.f.Sync())
}

// Extended attributes on a passthrough node forward to the real path
// verbatim, same as every other data-carrying operation in this file.
var (
	_ fs.NodeGetxattrer    = (*hostNode)(nil)
	_ fs.NodeListxattrer   = (*hostNode)(nil)
	_ fs.NodeSetxattrer    = (*hostNode)(nil)
	_ fs.NodeRemovexattrer = (*hostNode)(nil)
)

func (n *hostNode) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	v, err := hostattr.Get(n.path, req.Name)
	if err != nil {
		return hostErrno(err)
	}
	resp.Xattr = v
	return nil
}

func (n *hostNode) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	names, err := hostattr.List(n.path)
	if err != nil {
		return hostErrno(err)
	}
	for _, name := range names {
		resp.Append(name)
	}
	return nil
}

func (n *hostNode) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	return hostErrno(hostattr.Set(n.path, req.Name, req.Xattr))
}

func (n *hostNode) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest) error {
	return hostErrno(hostattr.Remove(n.path, req.Name))
}
