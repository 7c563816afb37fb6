package tagfs

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	"github.com/tagdir-project/tagdir/internal/store"
)

// hostErrno translates a passthrough syscall error into the errno bazil
// reports back to the kernel, unchanged, per spec §4.2/§7 ("passthrough:
// as returned by host"). Grounded on the teacher's repeated unwrapping of
// *os.PathError down to a syscall.Errno (e.g.
// backend/local/symlink.go's isCircularSymlinkError).
func hostErrno(err error) error {
	if err == nil {
		return nil
	}
	// errors.As walks the Unwrap chain, so this one check covers a bare
	// syscall.Errno as well as anything that wraps one: *os.PathError,
	// *os.LinkError, and github.com/pkg/xattr's *xattr.Error all do.
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.Errno(errno)
	}
	return fuse.EIO
}

// storeErrno maps a store-layer error to the errno taxonomy in spec §7:
// unrecoverable persistence error is EIO by default, with ENOENT surfaced
// for not-found and EEXIST for the tag-creation duplicate case.
func storeErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, store.ErrExists):
		return fuse.EEXIST
	default:
		return fuse.EIO
	}
}
