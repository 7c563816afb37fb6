package tagfs

import (
	"time"

	"bazil.org/fuse"

	"github.com/tagdir-project/tagdir/internal/store"
)

// attrSetter fetches and stores the one Attr row owned by a synthetic node
// (root, tag, or entity), so Setattr's field-merging logic is written once.
type attrSetter interface {
	get(sess *store.Session) (store.Attr, error)
	set(sess *store.Session, a store.Attr) error
}

// setSyntheticAttr applies chmod/chown/utimens to the attr row as reachable
// through as, per §4.2's "update the owning Attr row fields".
func (f *FS) setSyntheticAttr(as attrSetter, req *fuse.SetattrRequest) error {
	err := f.withSession(func(sess *store.Session) error {
		a, err := as.get(sess)
		if err != nil {
			return err
		}
		if req.Valid.Mode() {
			a.Mode = uint32(req.Mode)
		}
		if req.Valid.Uid() {
			a.UID = req.Uid
		}
		if req.Valid.Gid() {
			a.GID = req.Gid
		}
		if req.Valid.Atime() {
			a.Atime = req.Atime.Unix()
		}
		if req.Valid.Mtime() {
			a.Mtime = req.Mtime.Unix()
		}
		a.Ctime = time.Now().Unix()
		return as.set(sess, a)
	})
	if err != nil {
		return storeErrno(err)
	}
	return nil
}
