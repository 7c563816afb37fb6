package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagdir-project/tagdir/internal/tlog"
)

// name addresses a specific mount when more than one is live (the
// mountreg "--name" filter shared by every subcommand but mount itself,
// which establishes the name).
var name string

// level sets internal/tlog's verbosity for the whole process.
var level string

var rootCmd = &cobra.Command{
	Use:     "tagdir",
	Short:   "A tag-indexed view over real filesystem entities",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&name, "name", "", "mount name, required only when multiple tagdir mounts are live")
	rootCmd.PersistentFlags().StringVar(&level, "level", "error", "log level: debug|error")
	rootCmd.AddCommand(mountCmd, mktagCmd, rmtagCmd, tagCmd, untagCmd, listagCmd)
}

// Execute runs the command tree. A non-nil error exits 1, the practical
// equivalent of spec's "-1" on a POSIX exit status byte.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func findMountpoint() (string, error) {
	mp, ok := findMountByName(name)
	if !ok {
		if name == "" {
			return "", fmt.Errorf("no single tagdir mount found; pass --name")
		}
		return "", fmt.Errorf("no tagdir mount named %q", name)
	}
	return mp, nil
}

func setLogLevel() {
	tlog.SetLevel(level)
}
