package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corefs-project/corefs/internal/mount"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print --device-path's superblock fields without mounting.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		sb, err := mount.ReadSuperblock(c)
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		fmt.Printf("uuid=%s\n", sb.UUID)
		fmt.Printf("root-inode=%s\n", sb.RootInode)
		fmt.Printf("block-size=%d\n", sb.BlockSize)
		fmt.Printf("ag-count=%d\n", sb.AGCount)
		fmt.Printf("generation=%d\n", sb.Generation)
		fmt.Printf("active=%v\n", sb.Active())
		fmt.Printf("free-blocks=%d\n", sb.FreeBlocks.Load())
		fmt.Printf("free-inodes=%d\n", sb.FreeInodes.Load())
		return nil
	},
}
