// Package main implements the fs CLI: mkfs/mount/umount/stat/check over
// a corefs volume, mirroring the teacher's cobra+viper command-tree
// shape (internal/cfg.BindFlags registers every flag into viper under
// its mapstructure dotted key; each subcommand re-derives a *cfg.Config
// from viper's current state rather than threading flag values by hand).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corefs-project/corefs/internal/cfg"
)

var bindErr error

var rootCmd = &cobra.Command{
	Use:   "fs",
	Short: "Operate a corefs volume: mkfs, mount, umount, stat, check.",
}

// loadConfig re-derives a *cfg.Config from viper's current state
// (persistent flags bound at init time) and validates it.
func loadConfig() (*cfg.Config, error) {
	if bindErr != nil {
		return nil, bindErr
	}
	c, err := cfg.Parse(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(mkfsCmd, mountCmd, umountCmd, statCmd, checkCmd)
}
