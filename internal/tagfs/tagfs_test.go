package tagfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagdir-project/tagdir/internal/store"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tagdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s)
}

func TestRootLookupUnknownTag(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)

	_, err = root.(fs.NodeStringLookuper).Lookup(context.Background(), "@nonexistent")
	assert.Equal(t, fuse.ENOENT, err)
}

func TestRootLookupEntityNameIsNotFound(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)

	// A bare entity name with no "@" prefix never resolves at the root:
	// entities only live under a tag chain.
	_, err = root.(fs.NodeStringLookuper).Lookup(context.Background(), "entity1")
	assert.Equal(t, fuse.ENOENT, err)
}

func TestRootMkdirRejectsNonTagName(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)

	_, err = root.(fs.NodeMkdirer).Mkdir(context.Background(), &fuse.MkdirRequest{Name: "notag"})
	assert.Equal(t, fuse.EPERM, err)
}

func TestRootMkdirCreatesTagThenLookupSucceeds(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)

	node, err := root.(fs.NodeMkdirer).Mkdir(context.Background(), &fuse.MkdirRequest{Name: "@work"})
	require.NoError(t, err)
	if _, ok := node.(*tagChainNode); !ok {
		t.Fatalf("Mkdir returned %T, want *tagChainNode", node)
	}

	got, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	tc, ok := got.(*tagChainNode)
	require.True(t, ok)
	assert.Equal(t, []string{"work"}, tc.tags)
}

func TestRootReadDirAllListsTagsAndEntinfo(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)
	mk := root.(fs.NodeMkdirer)

	_, err = mk.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "@work"})
	require.NoError(t, err)
	_, err = mk.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "@urgent"})
	require.NoError(t, err)

	ents, err := root.(fs.HandleReadDirAller).ReadDirAll(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range ents {
		names[e.Name] = true
	}
	assert.True(t, names["@work"])
	assert.True(t, names["@urgent"])
	assert.True(t, names[".tagdir_entinfo"])
}

// registerEntity drives the side-channel Setxattr protocol end to end,
// exactly as the CLI's tag fallback does.
func registerEntity(t *testing.T, f *FS, name, path string, tags []string) {
	t.Helper()
	root, err := f.Root()
	require.NoError(t, err)
	entinfo, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), ".tagdir_entinfo")
	require.NoError(t, err)

	value := path
	for _, tg := range tags {
		value += "," + tg
	}
	err = entinfo.(fs.NodeSetxattrer).Setxattr(context.Background(), &fuse.SetxattrRequest{
		Name:  name,
		Xattr: []byte(value),
	})
	require.NoError(t, err)
}

func TestEntinfoRegisterThenGetxattrRoundTrips(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/abs/report.txt", []string{"work", "urgent"})

	root, err := f.Root()
	require.NoError(t, err)
	entinfo, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), ".tagdir_entinfo")
	require.NoError(t, err)

	var resp fuse.GetxattrResponse
	err = entinfo.(fs.NodeGetxattrer).Getxattr(context.Background(), &fuse.GetxattrRequest{Name: "report"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "/abs/report.txt,urgent,work", string(resp.Xattr))
}

func TestEntinfoGetxattrUnknownEntityReturnsErrNoXattr(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)
	entinfo, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), ".tagdir_entinfo")
	require.NoError(t, err)

	var resp fuse.GetxattrResponse
	err = entinfo.(fs.NodeGetxattrer).Getxattr(context.Background(), &fuse.GetxattrRequest{Name: "nope"}, &resp)
	assert.Equal(t, fuse.ErrNoXattr, err)
}

func TestEntinfoSetxattrRejectsMalformedValue(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)
	entinfo, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), ".tagdir_entinfo")
	require.NoError(t, err)

	cases := [][]byte{
		[]byte("no-comma-at-all"),
		[]byte("relative/path,work"),
		[]byte("/abs/path,NotATag"),
	}
	for _, v := range cases {
		err := entinfo.(fs.NodeSetxattrer).Setxattr(context.Background(), &fuse.SetxattrRequest{Name: "x", Xattr: v})
		assert.Equal(t, fuse.EINVAL, err, "value %q", v)
	}
}

func TestTagChainLookupResolvesEntityOnlyWithAllTags(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/abs/report.txt", []string{"work", "urgent"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)

	ent, err := work.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	require.NoError(t, err)
	if _, ok := ent.(*entityNode); !ok {
		t.Fatalf("Lookup returned %T, want *entityNode", ent)
	}

	workChain := work.(*tagChainNode)
	urgentPlusWork, err := workChain.Lookup(context.Background(), "@urgent")
	require.NoError(t, err)

	_, err = urgentPlusWork.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	require.NoError(t, err)
}

func TestTagChainLookupEntityMissingATagIsNotFound(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/abs/report.txt", []string{"work"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	workChain := work.(*tagChainNode)

	urgentChain, err := root.(fs.NodeMkdirer).Mkdir(context.Background(), &fuse.MkdirRequest{Name: "@urgent"})
	require.NoError(t, err)
	_ = urgentChain

	urgentPlusWork, err := workChain.Lookup(context.Background(), "@urgent")
	require.NoError(t, err)

	_, err = urgentPlusWork.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	assert.Equal(t, fuse.ENOENT, err)
}

func TestTagChainReaddirFiltersBySuperset(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "entity1", "/path1", []string{"tag1", "tag2"})
	registerEntity(t, f, "entity2", "/path2", []string{"tag1"})

	root, err := f.Root()
	require.NoError(t, err)
	tag1, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@tag1")
	require.NoError(t, err)

	ents, err := tag1.(fs.HandleReadDirAller).ReadDirAll(context.Background())
	require.NoError(t, err)
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{"entity1", "entity2"}, names)

	tag1Chain := tag1.(*tagChainNode)
	tag1Tag2, err := tag1Chain.Lookup(context.Background(), "@tag2")
	require.NoError(t, err)
	ents, err = tag1Tag2.(fs.HandleReadDirAller).ReadDirAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "entity1", ents[0].Name)
}

func TestTagChainMkdirOnUnknownEntityIsNotFound(t *testing.T) {
	f := newTestFS(t)
	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeMkdirer).Mkdir(context.Background(), &fuse.MkdirRequest{Name: "@work"})
	require.NoError(t, err)

	_, err = work.(fs.NodeMkdirer).Mkdir(context.Background(), &fuse.MkdirRequest{Name: "unknown-entity"})
	assert.Equal(t, fuse.ENOENT, err)
}

func TestEntityAttrIsStoredNotHostLstat(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/definitely/does/not/exist/report.txt", []string{"work"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	ent, err := work.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	require.NoError(t, err)

	var a fuse.Attr
	err = ent.(fs.Node).Attr(context.Background(), &a)
	require.NoError(t, err, "entity attr is a stored row, not a host lstat, so a nonexistent real path is fine")
}

func TestEntityReadlinkReturnsRealPath(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/abs/report.txt", []string{"work"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	ent, err := work.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	require.NoError(t, err)

	target, err := ent.(fs.NodeReadlinker).Readlink(context.Background(), &fuse.ReadlinkRequest{})
	require.NoError(t, err)
	assert.Equal(t, "/abs/report.txt", target)
}

func TestEntityRenameIsAlwaysRejected(t *testing.T) {
	f := newTestFS(t)
	registerEntity(t, f, "report", "/abs/report.txt", []string{"work"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	ent, err := work.(fs.NodeStringLookuper).Lookup(context.Background(), "report")
	require.NoError(t, err)

	err = ent.(fs.NodeRenamer).Rename(context.Background(), &fuse.RenameRequest{OldName: "report", NewName: "report2"}, root)
	assert.Equal(t, fuse.EPERM, err)
}

func TestHostNodeRenameAcrossSyntheticBoundaryIsRejected(t *testing.T) {
	f := newTestFS(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "child.txt"), []byte("x"), 0644))
	registerEntity(t, f, "workdir", dir, []string{"work"})

	root, err := f.Root()
	require.NoError(t, err)
	work, err := root.(fs.NodeStringLookuper).Lookup(context.Background(), "@work")
	require.NoError(t, err)
	ent, err := work.(fs.NodeStringLookuper).Lookup(context.Background(), "workdir")
	require.NoError(t, err)

	// "sub" is a hostNode (one level below the entity boundary), and it's
	// the parent a real Rename request for "child.txt" would target.
	sub, err := ent.(fs.NodeStringLookuper).Lookup(context.Background(), "sub")
	require.NoError(t, err)
	if _, ok := sub.(*hostNode); !ok {
		t.Fatalf("Lookup returned %T, want *hostNode", sub)
	}

	// Renaming into a synthetic directory (root, here) must fail rather
	// than silently crossing the passthrough boundary.
	err = sub.(fs.NodeRenamer).Rename(context.Background(), &fuse.RenameRequest{OldName: "child.txt", NewName: "y"}, root)
	assert.Equal(t, fuse.EPERM, err)
}

func TestOsOpenFlagsTranslatesBitsIndependently(t *testing.T) {
	flags := osOpenFlags(fuse.OpenCreate | fuse.OpenTruncate | fuse.OpenAppend)
	assert.NotZero(t, flags&os.O_CREATE)
	assert.NotZero(t, flags&os.O_TRUNC)
	assert.NotZero(t, flags&os.O_APPEND)
	assert.Zero(t, flags&os.O_EXCL)
	assert.Zero(t, flags&os.O_SYNC)
}
