// Package super implements the superblock and mount state machine (C11):
// volume identity, feature flags, process-wide counters, and the
// BOOT/ACTIVE/DRAIN/TERM lifecycle that governs unmount.
package super

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// FormatMagic identifies a volume file as ours (§6).
const FormatMagic uint64 = 0x766F6C7574610001

// FeatureFlags is a bitset of on-disk format features.
type FeatureFlags uint32

const (
	FeatureAuthenticated FeatureFlags = 1 << iota
)

// State is the mount lifecycle (§4.9 Cancellation and drain).
type State int

const (
	StateNone State = iota
	StateBoot
	StateActive
	StateDrain
	StateTerm
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "BOOT"
	case StateActive:
		return "ACTIVE"
	case StateDrain:
		return "DRAIN"
	case StateTerm:
		return "TERM"
	default:
		return "NONE"
	}
}

// IOCounters are the cumulative read/write byte counters exposed at
// /super/iostat (§4.10).
type IOCounters struct {
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64
	Reads        atomic.Uint64
	Writes       atomic.Uint64
}

// Superblock is the singleton SUPER node: volume identity, feature flags,
// root inode, and process-wide counters (§3.2, §4.11).
type Superblock struct {
	mu sync.RWMutex

	Version     uint32
	BlockSize   uint32
	AGCount     uint32
	RootInode   vaddr.VA
	UUID        uuid.UUID
	Features    FeatureFlags
	Generation  uint64
	active      bool
	FreeBlocks  atomic.Int64
	FreeInodes  atomic.Int64
	IO          IOCounters

	state      State
	openFiles  atomic.Int64
	dirtyNodes atomic.Int64
}

// New creates a fresh superblock for mkfs.
func New(blockSize uint32, agCount uint32) *Superblock {
	return &Superblock{
		Version:   1,
		BlockSize: blockSize,
		AGCount:   agCount,
		UUID:      uuid.New(),
		active:    true,
		state:     StateBoot,
	}
}

// Active reports whether the filesystem accepts new requests. It flips
// false on CorruptData/IoError against metadata (§7), and DRAIN also
// eventually sets it false once TERM is reached.
func (s *Superblock) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Deactivate transitions active to false: called when a CorruptData or
// IoError against a metadata node is observed, so subsequent requests
// fail fast with EIO while DRAIN completes (§7).
func (s *Superblock) Deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *Superblock) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// BeginDrain transitions ACTIVE -> DRAIN. It is a no-op (returns nil) if
// already draining, and an error if not currently ACTIVE.
func (s *Superblock) BeginDrain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDrain {
		return nil
	}
	if s.state != StateActive {
		return corefs.New(corefs.Busy, "cannot drain from state "+s.state.String())
	}
	s.state = StateDrain
	return nil
}

// OpenFiles returns the count of inodes with an active open handle.
func (s *Superblock) OpenFiles() int64 { return s.openFiles.Load() }

func (s *Superblock) IncOpenFiles() { s.openFiles.Add(1) }
func (s *Superblock) DecOpenFiles() { s.openFiles.Add(-1) }

func (s *Superblock) DirtyNodes() int64 { return s.dirtyNodes.Load() }
func (s *Superblock) IncDirty()         { s.dirtyNodes.Add(1) }
func (s *Superblock) DecDirty()         { s.dirtyNodes.Add(-1) }

// FinishDrain transitions DRAIN -> TERM. Per §4.9 and §9's open-question
// resolution, the transition is refused while any file has open handles
// or any dirty cache entry remains, unless force is set (umount -f),
// in which case open handles are ignored but dirty nodes must still be
// zero — forcing never drops unflushed data silently.
func (s *Superblock) FinishDrain(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDrain {
		return corefs.New(corefs.Busy, "not draining")
	}
	if s.dirtyNodes.Load() != 0 {
		return corefs.New(corefs.Busy, "dirty cache entries remain")
	}
	if !force && s.openFiles.Load() != 0 {
		return corefs.New(corefs.Busy, "open file handles remain")
	}
	s.state = StateTerm
	s.active = false
	return nil
}

// Boot transitions BOOT -> ACTIVE once recovery/loading completes.
func (s *Superblock) Boot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateActive
	s.active = true
}
