package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corefs-project/corefs/internal/mount"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Initialise a fresh volume at --device-path.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, err := mount.Mkfs(c)
		if err != nil {
			return fmt.Errorf("mkfs: %w", err)
		}
		defer ctx.Close()

		fmt.Printf("uuid=%s root-inode=%s block-size=%d ag-count=%d\n",
			ctx.Super.UUID, ctx.Super.RootInode, ctx.Super.BlockSize, ctx.Super.AGCount)
		return nil
	},
}
