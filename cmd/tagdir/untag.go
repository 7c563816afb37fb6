package main

import (
	"github.com/spf13/cobra"
)

var untagCmd = &cobra.Command{
	Use:   "untag <tag>... <path>",
	Short: "Remove tags from a path's entity",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mp, err := findMountpoint()
		if err != nil {
			return err
		}
		tags, path := args[:len(args)-1], args[len(args)-1]
		return doUntag(mp, tags, path)
	},
}
