package tagfs

import "hash/fnv"

// Inode numbers only need to be stable and distinct within one mount's
// lifetime; bazil.org/fuse never persists them. Synthetic nodes get a
// reserved low range, everything else hashes its identity string.
const (
	rootInode    = 1
	entinfoInode = 2
)

func tagInode(tagID int64) uint64 {
	return 1000 + uint64(tagID)
}

func entityInode(entityID int64) uint64 {
	return 1_000_000 + uint64(entityID)
}

// hashInode derives an inode for a tag-chain node (no single db row backs a
// multi-tag conjunction) or a host path, from its string identity.
func hashInode(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
