package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/xattr"

	"github.com/tagdir-project/tagdir/internal/mountreg"
	"github.com/tagdir-project/tagdir/internal/vpath"
)

func findMountByName(n string) (string, bool) {
	return mountreg.Find(n)
}

// virtualTagPath is the directory "@t1/.../@tk" under the mountpoint, used
// by mktag/rmtag (one tag) and as the parent for tag/untag's entity path.
func virtualTagPath(mountpoint string, tags []string) string {
	segs := make([]string, 0, len(tags))
	for _, t := range tags {
		segs = append(segs, "@"+t)
	}
	return filepath.Join(append([]string{mountpoint}, segs...)...)
}

func virtualEntityPath(mountpoint string, tags []string, entityName string) string {
	return filepath.Join(virtualTagPath(mountpoint, tags), entityName)
}

// doTag drives "mkdir /@t1/.../@tk/ent" against the mount, falling back to
// the side-channel setxattr to register a previously unknown entity, per
// spec §6/§9's resolved open question.
func doTag(mountpoint string, tags []string, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	entityName := filepath.Base(abs)
	virtual := virtualEntityPath(mountpoint, tags, entityName)

	err = os.Mkdir(virtual, 0755)
	if err == nil {
		return nil
	}
	if !isNotExist(err) {
		return fmt.Errorf("tag %s: %w", entityName, err)
	}

	value := abs + "," + strings.Join(tags, ",")
	reserved := filepath.Join(mountpoint, vpath.EntinfoBase)
	if err := xattr.Set(reserved, entityName, []byte(value)); err != nil {
		return fmt.Errorf("register %s: %w", entityName, err)
	}
	return nil
}

// doUntag drives "rmdir /@t1/.../@tk/ent".
func doUntag(mountpoint string, tags []string, path string) error {
	entityName := filepath.Base(path)
	virtual := virtualEntityPath(mountpoint, tags, entityName)
	if err := syscall.Rmdir(virtual); err != nil {
		return fmt.Errorf("untag %s: %w", entityName, err)
	}
	return nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, syscall.ENOENT)
}
