package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corefs-project/corefs/internal/adaptor"
	"github.com/corefs-project/corefs/internal/logger"
	"github.com/corefs-project/corefs/internal/mount"
)

func init() {
	mountCmd.Flags().Int("fd", -1, "Already-open file descriptor the kernel pass-through adaptor is forwarding decoded requests/replies over.")
	_ = viper.BindPFlag("mount.fd", mountCmd.Flags().Lookup("fd"))
}

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Attach to an existing volume and run the execution pipeline over --fd.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		fd := viper.GetInt("mount.fd")
		if fd < 0 {
			return fmt.Errorf("mount: --fd is required")
		}

		closeLog, err := logger.Init(&c.Logging)
		if err != nil {
			return fmt.Errorf("mount: init logger: %w", err)
		}
		defer closeLog()

		sb, err := mount.ReadSuperblock(c)
		if err != nil {
			return fmt.Errorf("mount: read superblock: %w", err)
		}
		ctx, err := mount.Open(c, sb)
		if err != nil {
			return fmt.Errorf("mount: open: %w", err)
		}

		transport := adaptor.NewFDTransport(os.NewFile(uintptr(fd), "corefs-adaptor"))
		ids := adaptor.NewInodeTable(sb.RootInode)
		ctx.StartPipeline(transport, adaptor.Decode(ctx, ids))
		logger.Infof("mounted %s (uuid=%s) on fd=%d", c.Volume.DevicePath, sb.UUID, fd)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
		case <-ctx.Pipeline.Stopped():
		}

		if err := ctx.Pipeline.Drain(true); err != nil {
			logger.Warnf("drain: %v", err)
		}
		return ctx.Close()
	},
}
