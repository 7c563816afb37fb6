// Package hostattr carries the low-level host filesystem attribute calls
// that entity passthrough needs: changing the mode/times of a real path
// without following symlinks, and forwarding extended attributes.
//
// Adapted from rclone's backend/local lchmod_unix.go / lchtimes_unix.go /
// xattr.go, which solve the same "mutate attributes on the thing at this
// real path, not what it points to" problem for rclone's local backend.
package hostattr

import (
	"os"
	"time"

	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

// Lchmod changes the mode of the named file without following a trailing
// symlink.
func Lchmod(name string, mode os.FileMode) error {
	if err := unix.Fchmodat(unix.AT_FDCWD, name, syscallMode(mode), unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "lchmod", Path: name, Err: err}
	}
	return nil
}

// Lchtimes changes the access and modification time of the named file
// without following a trailing symlink. The underlying filesystem may
// truncate or round the values to a less precise time unit.
func Lchtimes(name string, atime, mtime time.Time) error {
	var times [2]unix.Timespec
	times[0] = unix.NsecToTimespec(atime.UnixNano())
	times[1] = unix.NsecToTimespec(mtime.UnixNano())
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, name, times[:], unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "lchtimes", Path: name, Err: err}
	}
	return nil
}

// Lchown changes the owner and group of the named file without following a
// trailing symlink. -1 leaves a field unchanged, matching os.Lchown.
func Lchown(name string, uid, gid int) error {
	return os.Lchown(name, uid, gid)
}

// syscallMode returns the syscall-specific mode bits from Go's portable
// mode bits. Borrowed from the syscall package's own internal helper,
// which isn't exported.
func syscallMode(i os.FileMode) (o uint32) {
	o |= uint32(i.Perm())
	if i&os.ModeSetuid != 0 {
		o |= unix.S_ISUID
	}
	if i&os.ModeSetgid != 0 {
		o |= unix.S_ISGID
	}
	if i&os.ModeSticky != 0 {
		o |= unix.S_ISVTX
	}
	return o
}

// List returns the extended attribute names set on path, passing through
// to the host. Used for passthrough listxattr inside an entity's real
// subtree (the reserved entinfo file's own xattrs are
// synthetic and handled entirely in internal/tagfs, not here).
func List(path string) ([]string, error) {
	return xattr.LList(path)
}

// Get reads one extended attribute, passing through to the host.
func Get(path, name string) ([]byte, error) {
	return xattr.LGet(path, name)
}

// Set writes one extended attribute, passing through to the host.
func Set(path, name string, value []byte) error {
	return xattr.LSet(path, name, value)
}

// Remove deletes one extended attribute, passing through to the host.
func Remove(path, name string) error {
	return xattr.LRemove(path, name)
}
