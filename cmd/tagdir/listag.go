package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/xattr"
	"github.com/spf13/cobra"

	"github.com/tagdir-project/tagdir/internal/vpath"
)

var listagCmd = &cobra.Command{
	Use:   "listag [path]",
	Short: "List tag directories, or the tag set of one entity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mp, err := findMountpoint()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return listTags(mp)
		}
		return listEntity(mp, args[0])
	},
}

func listTags(mountpoint string) error {
	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "@") {
			fmt.Println(e.Name())
		}
	}
	return nil
}

func listEntity(mountpoint, path string) error {
	name := filepath.Base(path)
	reserved := filepath.Join(mountpoint, vpath.EntinfoBase)
	value, err := xattr.Get(reserved, name)
	if err != nil {
		return fmt.Errorf("listag %s: %w", name, err)
	}
	fmt.Println(string(value))
	return nil
}
