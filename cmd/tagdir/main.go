// Command tagdir mounts and administers tagdir filesystems.
//
// Grounded on rclone's cmd package: a cobra.Command tree, one file per
// subcommand, a shared set of persistent flags.
package main

func main() {
	Execute()
}
