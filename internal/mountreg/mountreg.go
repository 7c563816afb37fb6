// Package mountreg discovers live tagdir mounts by their device name.
//
// Tagdir registers each mount under a device name "Tagdir_<name>" (spec
// §6). This mirrors the original CLI's use of psutil.disk_partitions
// filtered by device name; the Go equivalent is moby/sys/mountinfo, already
// pulled in by the teacher for NFS detection in
// backend/local/changenotify_other.go.
package mountreg

import (
	"strings"

	"github.com/moby/sys/mountinfo"
)

const devicePrefix = "Tagdir_"

// Mount is one live tagdir mount.
type Mount struct {
	Name       string
	Mountpoint string
}

// List enumerates all live tagdir mounts.
func List() ([]Mount, error) {
	infos, err := mountinfo.GetMounts(func(i *mountinfo.Info) (skip, stop bool) {
		return !strings.HasPrefix(i.Source, devicePrefix), false
	})
	if err != nil {
		return nil, err
	}
	mounts := make([]Mount, 0, len(infos))
	for _, i := range infos {
		mounts = append(mounts, Mount{
			Name:       strings.TrimPrefix(i.Source, devicePrefix),
			Mountpoint: i.Mountpoint,
		})
	}
	return mounts, nil
}

// Find returns the mountpoint for the tagdir mount named name. If name is
// empty and exactly one tagdir mount exists, that one is returned.
func Find(name string) (string, bool) {
	mounts, err := List()
	if err != nil {
		return "", false
	}
	if name == "" {
		if len(mounts) == 1 {
			return mounts[0].Mountpoint, true
		}
		return "", false
	}
	for _, m := range mounts {
		if m.Name == name {
			return m.Mountpoint, true
		}
	}
	return "", false
}
