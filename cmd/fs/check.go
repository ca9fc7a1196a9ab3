package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/mount"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// checker accumulates the result of walking the reachable tree from the
// root inode. Allocator occupancy is never persisted across process
// lifetimes (mount.Context.open's doc comment, DESIGN.md), so there is no
// on-disk ground truth for a classic "allocated but unreachable" pass:
// check instead verifies that every reachable name resolves to a loadable
// inode whose on-disk type agrees with the directory entry pointing at
// it, which is the corruption a torn write or a stale DNode entry would
// actually produce.
type checker struct {
	ctx *mount.Context

	dirs, regular, symlinks int
	problems                []string
}

func (c *checker) walk(dirRoot vaddr.VA, path string) {
	cursor := 0
	for {
		ents, next, err := c.ctx.Inode.Readdir(dirRoot, cursor, 256)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("%s: readdir: %v", path, err))
			return
		}
		for _, ent := range ents {
			c.visit(ent, path)
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func (c *checker) visit(ent inode.Dirent, parentPath string) {
	childPath := parentPath + "/" + ent.Name
	rec, h, err := c.ctx.Inode.Load(ent.Ino)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: load: %v", childPath, err))
		return
	}
	mode := rec.Mode
	dirRoot := rec.DirRoot
	c.ctx.Store.Release(h)

	switch {
	case mode.IsDir() && ent.Kind != inode.EntryDirectory:
		c.problems = append(c.problems, fmt.Sprintf("%s: entry kind says non-dir, inode is a directory", childPath))
	case mode.IsRegular() && ent.Kind != inode.EntryRegular:
		c.problems = append(c.problems, fmt.Sprintf("%s: entry kind says non-regular, inode is regular", childPath))
	case mode.IsSymlink() && ent.Kind != inode.EntrySymlink:
		c.problems = append(c.problems, fmt.Sprintf("%s: entry kind says non-symlink, inode is a symlink", childPath))
	}

	switch {
	case mode.IsDir():
		c.dirs++
		c.walk(dirRoot, childPath)
	case mode.IsRegular():
		c.regular++
	case mode.IsSymlink():
		c.symlinks++
	default:
		c.problems = append(c.problems, fmt.Sprintf("%s: unrecognised inode type %o", childPath, mode))
	}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Walk the reachable namespace from the root inode and report structural problems.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		sb, err := mount.ReadSuperblock(c)
		if err != nil {
			return fmt.Errorf("check: read superblock: %w", err)
		}
		ctx, err := mount.Open(c, sb)
		if err != nil {
			return fmt.Errorf("check: open: %w", err)
		}
		defer ctx.Close()

		root, rootH, err := ctx.Inode.Load(sb.RootInode)
		if err != nil {
			return fmt.Errorf("check: load root inode: %w", err)
		}
		dirRoot := root.DirRoot
		ctx.Store.Release(rootH)

		ck := &checker{ctx: ctx, dirs: 1}
		ck.walk(dirRoot, "")

		fmt.Printf("dirs=%d regular=%d symlinks=%d\n", ck.dirs, ck.regular, ck.symlinks)
		fmt.Printf("inode-capacity=%d\n", ctx.Alloc.TotalCount(vaddr.Inode))
		if len(ck.problems) > 0 {
			for _, p := range ck.problems {
				fmt.Fprintln(os.Stderr, p)
			}
			os.Exit(3)
		}
		return nil
	},
}
