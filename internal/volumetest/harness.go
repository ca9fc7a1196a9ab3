// Package volumetest is the small in-process volume harness the rest of
// the test suite builds scenarios on top of, standing in for the
// teacher's fs/fstesting package: instead of mounting a real kernel
// file system, it drives a *mount.Context directly against a temp-file
// volume, which is enough to exercise every C1-C11 invariant and
// round-trip law without a FUSE session.
package volumetest

import (
	"path/filepath"
	"testing"

	"github.com/corefs-project/corefs/internal/cfg"
	"github.com/corefs-project/corefs/internal/mount"
)

// Volume is a freshly formatted, small volume wired up for a single test.
type Volume struct {
	*mount.Context
	Config *cfg.Config
}

// Options lets a scenario override the defaults New otherwise picks
// (mostly so the ENOSPC/hardlink-storm scenarios can ask for a
// deliberately tiny volume instead of paying for a realistic one).
type Options struct {
	BlockSize int
	AGCount   int
	SizeBytes int64
}

// defaultOptions sizes a volume generously enough for ordinary scenario
// tests (multi-megabyte files, directories past the inline bucket) while
// staying fast to mkfs.
func defaultOptions() Options {
	return Options{BlockSize: 4096, AGCount: 2, SizeBytes: 16 * 1024 * 1024}
}

// New formats a fresh volume in t.TempDir() and returns the opened
// context, closing it automatically when t completes.
func New(t *testing.T, opts ...Options) *Volume {
	t.Helper()
	o := defaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	c := cfg.Defaults()
	c.Volume.DevicePath = filepath.Join(t.TempDir(), "volume.img")
	c.Volume.BlockSize = o.BlockSize
	c.Volume.AGCount = o.AGCount
	c.Volume.SizeBytes = o.SizeBytes
	c.Cache.MaxEntries = 8192

	ctx, err := mount.Mkfs(c)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	v := &Volume{Context: ctx, Config: c}
	t.Cleanup(func() { v.Context.Close() })

	return v
}

// Reopen closes v's current context and re-attaches to the same
// DevicePath, simulating an unmount/remount cycle (scenario 4's "crash-like
// drop", the "unmount followed by remount is the identity" law).
func (v *Volume) Reopen(t *testing.T) {
	t.Helper()
	if err := v.Context.Close(); err != nil {
		t.Fatalf("close before reopen: %v", err)
	}
	sb, err := mount.ReadSuperblock(v.Config)
	if err != nil {
		t.Fatalf("ReadSuperblock: %v", err)
	}
	ctx, err := mount.Open(v.Config, sb)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v.Context = ctx
}
