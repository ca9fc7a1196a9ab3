// Package storage implements the persistent storage engine (C5): the
// only path from memory to volume, orchestrating cache lookups, codec
// I/O, and write ordering (child-before-parent, superblock last).
package storage

import (
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/block"
	"github.com/corefs-project/corefs/internal/cache"
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// NodeCodec decodes/encodes one kind's in-memory representation to/from
// the block payload bytes. Each of C6/C7/C8's packages implements and
// registers one, so this package never needs to know about Inode, DNode,
// FNode, Leaf, or XNode structs directly.
type NodeCodec interface {
	Decode(payload []byte) (any, error)
	Encode(value any) ([]byte, error)
	New() any // zero-initialised value for a freshly allocated node (§3.5)
}

// Engine sits between logical handlers (C6/C7/C8) and the codec/cache. It
// is the single source of block I/O.
type Engine struct {
	f      *os.File
	codec  block.Codec
	cache  *cache.Cache
	alloc  *alloc.Allocator
	layout vaddr.Layout
	kindBase func(vaddr.Kind) uint64

	codecs [vaddr.NumKinds]NodeCodec

	sf singleflight.Group // coalesces concurrent reads of the same block (§4.9)

	generation atomic.Uint64

	ioMu sync.Mutex // serialises writes that must observe child-before-parent ordering
}

// New builds a storage Engine over an already-open volume file.
func New(f *os.File, codec block.Codec, c *cache.Cache, a *alloc.Allocator, layout vaddr.Layout, kindBase func(vaddr.Kind) uint64) *Engine {
	return &Engine{f: f, codec: codec, cache: c, alloc: a, layout: layout, kindBase: kindBase}
}

// RegisterCodec wires the NodeCodec for one kind. Called once at mount
// setup by each of the inode/filemap/xattr/super packages.
func (e *Engine) RegisterCodec(k vaddr.Kind, nc NodeCodec) {
	e.codecs[k] = nc
}

// BlockSize returns the volume's fixed block size, so callers that pack a
// variable number of variable-length records into one node (xattr's XNode
// chain) can size their own spill threshold against it.
func (e *Engine) BlockSize() uint32 {
	return e.layout.BlockSize
}

// Handle is a pinned cache entry returned by Load; callers must Release
// it when done (directly, or implicitly via the pipeline's FINI phase).
type Handle = cache.Entry

// Load fetches the node at va: pins and returns it if already cached,
// otherwise reads the block via the codec, decodes it, inserts it into
// the cache, and returns the pinned entry (§4.5).
func (e *Engine) Load(va vaddr.VA) (*Handle, error) {
	// Fast path: already resident.
	if entry, ok := e.cache.Get(va); ok {
		entry.Lock()
		state := entry.State
		entry.Unlock()
		if state == cache.StateQuarantined {
			e.cache.Release(entry)
			return nil, corefs.New(corefs.CorruptData, "block quarantined at "+va.String())
		}
		return entry, nil
	}

	// singleflight collapses concurrent misses for the same VA into one
	// physical read (§4.9: "coalesces concurrent reads of the same
	// block into one I/O").
	key := va.String()
	v, err, _ := e.sf.Do(key, func() (any, error) {
		off, codec := e.offsetAndCodec(va)
		payload, hdr, rerr := codec.ReadBlock(e.f, off, e.layout.BlockSize, va)
		if rerr != nil {
			if corefs.Is(rerr, corefs.CorruptData) && va.Kind == vaddr.Leaf {
				e.cache.Quarantine(va)
			}
			return nil, rerr
		}
		nc := e.codecs[va.Kind]
		corefs.Invariant(nc != nil, "no NodeCodec registered for kind %s", va.Kind)
		value, derr := nc.Decode(payload)
		if derr != nil {
			return nil, derr
		}
		e.generation.Store(hdr.Generation)
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	entry, inserted := e.cache.GetOrInsert(va, func() any { return v }, cache.StateReady)
	if !inserted {
		// Another Load won the insert race between our singleflight.Do
		// returning and GetOrInsert's lock; use the winner's copy so
		// the single-instance guarantee holds.
	}
	return entry, nil
}

// Create allocates a fresh block of kind, zero-initialises its in-memory
// representation, and inserts it into the cache marked dirty (§3.5).
func (e *Engine) Create(kind vaddr.Kind) (vaddr.VA, *Handle, error) {
	va, err := e.alloc.Alloc(kind)
	if err != nil {
		return vaddr.VA{}, nil, err
	}
	nc := e.codecs[kind]
	corefs.Invariant(nc != nil, "no NodeCodec registered for kind %s", kind)
	entry := e.cache.Insert(va, nc.New(), cache.StateReady)
	entry.Lock()
	entry.MarkDirty()
	entry.Unlock()
	return va, entry, nil
}

// CreateAt zero-initialises and inserts a node at a caller-chosen fixed va,
// bypassing the allocator. This exists for singleton nodes, such as the
// SUPER block, that are not managed by alloc.Allocator at all (§4.11).
func (e *Engine) CreateAt(va vaddr.VA) (*Handle, error) {
	nc := e.codecs[va.Kind]
	corefs.Invariant(nc != nil, "no NodeCodec registered for kind %s", va.Kind)
	entry := e.cache.Insert(va, nc.New(), cache.StateReady)
	entry.Lock()
	entry.MarkDirty()
	entry.Unlock()
	return entry, nil
}

// Release unpins h, making it eligible for eviction once clean. Every
// Load/Create/CreateAt caller must Release its handle when done with it.
func (e *Engine) Release(h *Handle) {
	e.cache.Release(h)
}

// Store marks handle dirty; the actual write is deferred to FlushDirty.
func (e *Engine) Store(h *Handle) {
	h.Lock()
	h.MarkDirty()
	h.Unlock()
}

// writeOne encodes and writes a single dirty entry, clearing its dirty
// bit only after the write succeeds.
func (e *Engine) writeOne(h *Handle) error {
	h.Lock()
	if !h.Dirty() {
		h.Unlock()
		return nil
	}
	va := h.VA
	value := h.Value
	h.Unlock()

	nc := e.codecs[va.Kind]
	payload, err := nc.Encode(value)
	if err != nil {
		return err
	}
	off, codec := e.offsetAndCodec(va)
	gen := e.generation.Add(1)
	if err := codec.WriteBlock(e.f, off, e.layout.BlockSize, va, gen, payload); err != nil {
		return err
	}

	h.Lock()
	h.ClearDirty()
	h.Unlock()
	return nil
}

// FlushPolicy selects which dirty entries a FlushDirty call targets.
type FlushPolicy int

const (
	FlushAll FlushPolicy = iota
)

// FlushDirty writes out dirty entries matching policy. Children (LEAF,
// lower FNODE levels) must be passed before their parents by the caller,
// since the engine writes strictly in the order given — it does not
// reorder on the caller's behalf (§4.5, §5 write-child-first).
func (e *Engine) FlushDirty(handles []*Handle, _ FlushPolicy) error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	for _, h := range handles {
		if err := e.writeOne(h); err != nil {
			return err
		}
	}
	return nil
}

// EvictClean best-effort drops up to n clean, unreferenced cache entries.
func (e *Engine) EvictClean(n int) int {
	return e.cache.EvictClean(n)
}

func (e *Engine) offsetAndCodec(va vaddr.VA) (int64, block.Codec) {
	return int64(vaddr.Phys(va, e.layout, e.kindBase)), e.codec
}
