// Package cache implements the bounded object cache (C4): a single-
// instance-per-VA index of loaded nodes, with refcounting, dirty
// tracking, and clock-style eviction. The cache never performs I/O; a Get
// miss returns ok=false and the caller issues a fetch through
// internal/storage.
package cache

import (
	"sync"

	"github.com/corefs-project/corefs/internal/vaddr"
)

// State is an entry's lifecycle state, used by the pipeline's pending-set
// to know what a parked task is waiting for (§8 invariant 4).
type State int

const (
	StateLoading State = iota
	StateReady
	StateWriting
	StateQuarantined
)

// Entry is one cached node: its decoded value, refcount, dirty bit, and
// the per-entry lock that serialises mutation against the storage stage
// (§3.4, §4.9).
type Entry struct {
	mu sync.Mutex

	VA    vaddr.VA
	Value any
	State State
	dirty bool
	refs  int
	clock bool // clock-algorithm reference bit, cleared on eviction sweep
}

// Lock/Unlock expose the entry's per-entry lock directly; callers
// acquire entries in ascending VA order to avoid deadlock (§5).
func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

func (e *Entry) Dirty() bool { return e.dirty }

// MarkDirty marks the entry dirty; the caller must hold e's lock.
func (e *Entry) MarkDirty() { e.dirty = true }

// ClearDirty clears the dirty bit once the storage engine confirms the
// write; the caller must hold e's lock.
func (e *Entry) ClearDirty() { e.dirty = false }

func lessVA(a, b vaddr.VA) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.AG != b.AG {
		return a.AG < b.AG
	}
	return a.Slot < b.Slot
}

// table is one bucket's hash index plus a clock hand for eviction (§4.4
// "Bucketing": separate tables for inodes, other nodes, and raw blocks,
// identical semantics per table).
type table struct {
	mu      sync.Mutex
	entries map[vaddr.VA]*Entry
	order   []vaddr.VA // insertion/clock-sweep order
	hand    int
}

func newTable() *table {
	return &table{entries: make(map[vaddr.VA]*Entry)}
}

// Bucket names which table a VA belongs to.
type Bucket int

const (
	BucketInode Bucket = iota
	BucketOther
	BucketRawBlock
	numBuckets
)

func bucketOf(k vaddr.Kind) Bucket {
	switch k {
	case vaddr.Inode:
		return BucketInode
	case vaddr.Leaf:
		return BucketRawBlock
	default:
		return BucketOther
	}
}

// Cache is the object cache. maxEntries is the entry budget OverBudget
// compares occupancy against; nothing evicts toward it automatically, and
// the pipeline's periodic housekeeping hook does not act on it.
type Cache struct {
	tables     [numBuckets]*table
	maxEntries int
}

// New builds a Cache with the given approximate entry budget.
func New(maxEntries int) *Cache {
	c := &Cache{maxEntries: maxEntries}
	for i := range c.tables {
		c.tables[i] = newTable()
	}
	return c
}

// Get returns the entry for va if resident, pinning it (refcount++) on
// success.
func (c *Cache) Get(va vaddr.VA) (*Entry, bool) {
	t := c.tables[bucketOf(va.Kind)]
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[va]
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	e.refs++
	e.clock = true
	e.mu.Unlock()
	return e, true
}

// Insert adds a new, pinned (refs==1) entry for va in the given state,
// replacing any entry already present for va. It does no miss check of
// its own: a caller that may race a concurrent load of the same va uses
// GetOrInsert, which keeps the single-instance guarantee (§4.4).
func (c *Cache) Insert(va vaddr.VA, value any, state State) *Entry {
	t := c.tables[bucketOf(va.Kind)]
	t.mu.Lock()
	defer t.mu.Unlock()
	return c.insertLocked(t, va, value, state)
}

func (c *Cache) insertLocked(t *table, va vaddr.VA, value any, state State) *Entry {
	e := &Entry{VA: va, Value: value, State: state, refs: 1, clock: true}
	t.entries[va] = e
	t.order = append(t.order, va)
	return e
}

// GetOrInsert returns the existing entry for va if present (pinned), or
// atomically inserts a new pinned placeholder via makeValue and returns
// it with inserted=true. This is the single-instance guarantee's load-
// bearing primitive: storage.Load calls it so two concurrent misses for
// the same VA never race to create two entries.
func (c *Cache) GetOrInsert(va vaddr.VA, makeValue func() any, state State) (e *Entry, inserted bool) {
	t := c.tables[bucketOf(va.Kind)]
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[va]; ok {
		e.mu.Lock()
		e.refs++
		e.clock = true
		e.mu.Unlock()
		return e, false
	}
	e = c.insertLocked(t, va, makeValue(), state)
	return e, true
}

// Release drops a pin. When refs reaches zero the entry becomes eligible
// for eviction (but is not evicted immediately).
func (e *Entry) release() {
	e.mu.Lock()
	e.refs--
	e.mu.Unlock()
}

// Release drops the caller's pin on e.
func (c *Cache) Release(e *Entry) { e.release() }

// Remove drops va from the cache unconditionally (used by unlink's
// destroy path once the block is freed, §3.5).
func (c *Cache) Remove(va vaddr.VA) {
	t := c.tables[bucketOf(va.Kind)]
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, va)
	for i, v := range t.order {
		if v == va {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Quarantine marks a data leaf's entry so repeated reads of the same
// corrupt range keep failing fast instead of re-issuing I/O (SPEC_FULL.md
// §3, quarantine). The entry is not evicted.
func (c *Cache) Quarantine(va vaddr.VA) {
	t := c.tables[bucketOf(va.Kind)]
	t.mu.Lock()
	e, ok := t.entries[va]
	t.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.State = StateQuarantined
	e.mu.Unlock()
}

// EvictClean drops up to n clean, unreferenced entries using a clock
// sweep over each table in turn (§4.4). It never touches dirty or pinned
// entries.
func (c *Cache) EvictClean(n int) (evicted int) {
	for _, t := range c.tables {
		evicted += evictFromTable(t, n-evicted)
		if evicted >= n {
			break
		}
	}
	return evicted
}

func evictFromTable(t *table, want int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if want <= 0 {
		return 0
	}
	evicted := 0
	scanned := 0
	for evicted < want && scanned < 2*len(t.order) && len(t.order) > 0 {
		scanned++
		if t.hand >= len(t.order) {
			t.hand = 0
		}
		va := t.order[t.hand]
		e, ok := t.entries[va]
		if !ok {
			t.order = append(t.order[:t.hand], t.order[t.hand+1:]...)
			continue
		}
		e.mu.Lock()
		switch {
		case e.refs > 0 || e.dirty || e.State == StateQuarantined:
			t.hand++
		case e.clock:
			e.clock = false
			t.hand++
		default:
			delete(t.entries, va)
			t.order = append(t.order[:t.hand], t.order[t.hand+1:]...)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

// Len returns the number of resident entries across all tables, for the
// /cache/cstats pseudo file (§4.10).
func (c *Cache) Len() int {
	n := 0
	for _, t := range c.tables {
		t.mu.Lock()
		n += len(t.entries)
		t.mu.Unlock()
	}
	return n
}

// LenByBucket returns per-table occupancy, for /cache/cstats.
func (c *Cache) LenByBucket() map[string]int {
	names := map[Bucket]string{BucketInode: "inode", BucketOther: "other", BucketRawBlock: "block"}
	out := make(map[string]int, numBuckets)
	for b, t := range c.tables {
		t.mu.Lock()
		out[names[Bucket(b)]] = len(t.entries)
		t.mu.Unlock()
	}
	return out
}

// OverBudget reports whether occupancy exceeds the configured budget,
// driving the background eviction trigger (§4.9 housekeeping).
func (c *Cache) OverBudget() bool { return c.Len() > c.maxEntries }

// flushOrder lists kinds in child-before-parent write order: leaves and
// their FNode ancestors before the inode that roots them, XNode chains
// before their owning inode, and the superblock last of all.
var flushOrder = []vaddr.Kind{vaddr.Leaf, vaddr.FNode, vaddr.XNode, vaddr.DNode, vaddr.Inode, vaddr.Super}

// DirtyEntries returns every dirty, resident entry across all buckets, in
// flushOrder so a caller can hand the slice straight to
// storage.Engine.FlushDirty without reordering (§5 write-child-first).
func (c *Cache) DirtyEntries() []*Entry {
	var out []*Entry
	for _, k := range flushOrder {
		t := c.tables[bucketOf(k)]
		t.mu.Lock()
		for _, va := range t.order {
			if va.Kind != k {
				continue
			}
			e := t.entries[va]
			e.mu.Lock()
			dirty := e.dirty
			e.mu.Unlock()
			if dirty {
				out = append(out, e)
			}
		}
		t.mu.Unlock()
	}
	return out
}
