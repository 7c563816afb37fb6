package main

import (
	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag <tag>... <path>",
	Short: "Tag a real path, registering it as an entity if unknown",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mp, err := findMountpoint()
		if err != nil {
			return err
		}
		tags, path := args[:len(args)-1], args[len(args)-1]
		return doTag(mp, tags, path)
	},
}
