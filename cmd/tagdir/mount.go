package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tagdir-project/tagdir/internal/mountlib"
)

// foreground is accepted for CLI-surface completeness (spec's "-i") but is
// currently a no-op: this implementation never daemonizes, so it always
// runs attached to the terminal. Daemonization is an out-of-scope
// collaborator per §1.
var foreground bool

var mountCmd = &cobra.Command{
	Use:   "mount <name> <db-url> <mountpoint>",
	Short: "Bootstrap the store, start the watcher, and mount",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		setLogLevel()
		m, err := mountlib.Mount(context.Background(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return m.Wait()
	},
}

func init() {
	mountCmd.Flags().BoolVarP(&foreground, "interactive", "i", false, "stay attached to the terminal (always true in this implementation)")
}
