package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mktagCmd = &cobra.Command{
	Use:   "mktag <tag>...",
	Short: "Create one or more top-level tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mp, err := findMountpoint()
		if err != nil {
			return err
		}
		for _, tag := range args {
			if err := os.Mkdir(virtualTagPath(mp, []string{tag}), 0755); err != nil {
				return fmt.Errorf("mktag %s: %w", tag, err)
			}
		}
		return nil
	},
}
