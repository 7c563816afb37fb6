package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
)

var rmtagCmd = &cobra.Command{
	Use:   "rmtag <tag>...",
	Short: "Remove one or more top-level tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mp, err := findMountpoint()
		if err != nil {
			return err
		}
		for _, tag := range args {
			if err := syscall.Rmdir(virtualTagPath(mp, []string{tag})); err != nil {
				return fmt.Errorf("rmtag %s: %w", tag, err)
			}
		}
		return nil
	},
}
