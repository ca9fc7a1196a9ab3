// Package pseudo implements the synthetic control namespace (C10): a
// handful of regular-file pseudo-inodes rooted outside the real
// directory tree, each redirecting read/write to a handler pair instead
// of the file-map engine (§4.10).
package pseudo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/cache"
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/logger"
	"github.com/corefs-project/corefs/internal/super"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// File is one pseudo-inode: its path, its VA, and its handler pair. Save
// is nil for read-only files.
type File struct {
	Path string
	VA   vaddr.VA
	Show func() string
	Save func(string) error
}

// Registry is the whole synthetic tree: every File, indexed by both path
// (for lookup by name) and VA (for GETATTR/READ/WRITE dispatch once the
// kernel adaptor has already resolved a path to an inode).
type Registry struct {
	mu       sync.RWMutex
	byPath   map[string]*File
	byVA     map[vaddr.VA]*File
	timeouts *fuseiTimeouts

	sb      *super.Superblock
	cache   *cache.Cache
	metrics *metrics
}

// fuseiTimeouts holds the kernel attribute/entry cache lifetimes exposed
// at /fusei/attr_timeout and /fusei/entry_timeout, each clamped to the
// spec's 0..9 second range.
type fuseiTimeouts struct {
	mu    sync.Mutex
	attr  int
	entry int
}

// NewRegistry builds the fixed set of pseudo files over sb, c, and a,
// assigning each a pseudo VA in sequence. /logger/debug reads back and
// adjusts the running trace level through package logger.
func NewRegistry(sb *super.Superblock, c *cache.Cache, a *alloc.Allocator) *Registry {
	r := &Registry{
		byPath:   make(map[string]*File),
		byVA:     make(map[vaddr.VA]*File),
		timeouts: &fuseiTimeouts{attr: 1, entry: 1},
		sb:       sb,
		cache:    c,
		metrics:  newMetrics(sb, c, a),
	}

	var slot uint32
	add := func(path string, show func() string, save func(string) error) {
		f := &File{Path: path, VA: vaddr.Pseudo(slot), Show: show, Save: save}
		slot++
		r.byPath[path] = f
		r.byVA[f.VA] = f
	}

	add("/halt", func() string {
		return boolString(sb.Active())
	}, func(v string) error {
		on, err := parseBool(v)
		if err != nil {
			return err
		}
		if on {
			sb.Boot()
		} else {
			sb.Deactivate()
		}
		return nil
	})

	add("/uuid", func() string { return sb.UUID.String() }, nil)

	add("/super/fsstat", func() string {
		return fmt.Sprintf("free_blocks=%d free_inodes=%d block_size=%d ag_count=%d",
			sb.FreeBlocks.Load(), sb.FreeInodes.Load(), sb.BlockSize, sb.AGCount)
	}, nil)

	add("/super/iostat", func() string {
		return fmt.Sprintf("bytes_read=%d bytes_written=%d reads=%d writes=%d",
			sb.IO.BytesRead.Load(), sb.IO.BytesWritten.Load(), sb.IO.Reads.Load(), sb.IO.Writes.Load())
	}, nil)

	add("/cache/cstats", func() string {
		counts := c.LenByBucket()
		parts := make([]string, 0, len(counts))
		for bucket, n := range counts {
			parts = append(parts, fmt.Sprintf("%s=%d", bucket, n))
		}
		return strings.Join(parts, " ")
	}, nil)

	add("/cache/alloc_nbk", func() string {
		return strconv.FormatUint(a.FootprintBytes(), 10)
	}, nil)

	add("/fusei/attr_timeout", func() string {
		r.timeouts.mu.Lock()
		defer r.timeouts.mu.Unlock()
		return strconv.Itoa(r.timeouts.attr)
	}, func(v string) error {
		return setTimeout(&r.timeouts.mu, &r.timeouts.attr, v)
	})

	add("/fusei/entry_timeout", func() string {
		r.timeouts.mu.Lock()
		defer r.timeouts.mu.Unlock()
		return strconv.Itoa(r.timeouts.entry)
	}, func(v string) error {
		return setTimeout(&r.timeouts.mu, &r.timeouts.entry, v)
	})

	add("/logger/debug", func() string {
		return logger.CurrentLevel()
	}, func(v string) error {
		return logger.SetLevel(strings.TrimSpace(v))
	})

	return r
}

// AttrTimeoutSeconds and EntryTimeoutSeconds expose the current kernel
// cache lifetimes for the adaptor to apply to each GETATTR/LOOKUP reply.
func (r *Registry) AttrTimeoutSeconds() int {
	r.timeouts.mu.Lock()
	defer r.timeouts.mu.Unlock()
	return r.timeouts.attr
}

func (r *Registry) EntryTimeoutSeconds() int {
	r.timeouts.mu.Lock()
	defer r.timeouts.mu.Unlock()
	return r.timeouts.entry
}

// Lookup resolves a pseudo path to its File, or ok=false if path isn't
// one of the fixed synthetic names.
func (r *Registry) Lookup(path string) (*File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byPath[path]
	return f, ok
}

// ByVA resolves a pseudo inode's VA back to its File.
func (r *Registry) ByVA(va vaddr.VA) (*File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byVA[va]
	return f, ok
}

// Read renders f's current value, appending a trailing newline the way a
// procfs-style control file does.
func (f *File) Read() []byte {
	return []byte(f.Show() + "\n")
}

// Write applies a new value to f. Read-only files reject every write.
func (f *File) Write(p []byte) error {
	if f.Save == nil {
		return corefs.New(corefs.NotSupported, f.Path+" is read-only")
	}
	return f.Save(strings.TrimSpace(string(p)))
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	default:
		return false, corefs.New(corefs.InvalidArgument, "expected 0 or 1, got "+s)
	}
}

func setTimeout(mu *sync.Mutex, dst *int, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return corefs.New(corefs.InvalidArgument, "expected an integer 0..9")
	}
	if n < 0 || n > 9 {
		return corefs.New(corefs.InvalidArgument, "timeout must be in 0..9")
	}
	mu.Lock()
	*dst = n
	mu.Unlock()
	return nil
}
