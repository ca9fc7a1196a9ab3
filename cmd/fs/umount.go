package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// umountCmd triggers an orderly shutdown of an already-mounted volume by
// writing to its /halt pseudo-file (C10), which the kernel pass-through
// adaptor exposes at the mount root: the running "fs mount" process
// deactivates the superblock, drains the pipeline, and exits on its own
// once it observes Pipeline.Stopped().
var umountCmd = &cobra.Command{
	Use:   "umount <mount-point>",
	Short: "Signal an orderly shutdown of the volume mounted at mount-point.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		haltPath := filepath.Join(args[0], "halt")
		if err := os.WriteFile(haltPath, []byte("0"), 0); err != nil {
			return fmt.Errorf("umount: signal halt: %w", err)
		}
		return nil
	},
}
