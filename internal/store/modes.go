package store

import "os"

// dirMode and fileMode are the default permission bits for synthetic
// directories (tags, root) and the reserved regular file, stored as Go's
// os.FileMode bit layout (bazil.org/fuse's fuse.Attr.Mode is itself an
// os.FileMode, so there's no syscall-bit translation needed at the
// boundary, unlike the original model's raw stat.S_IFDIR/S_IFREG bits).
const (
	dirMode  = uint32(os.ModeDir | 0755)
	fileMode = uint32(0644)
)

// NewTagAttr returns the Attr for a newly created Tag.
func NewTagAttr(uid, gid uint32) Attr { return newAttr(dirMode, uid, gid) }

// NewEntityAttr returns the Attr for a newly registered Entity.
func NewEntityAttr(uid, gid uint32) Attr { return newAttr(dirMode, uid, gid) }
