package super

import (
	"encoding/binary"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// onDiskSize is Version(4) + BlockSize(4) + AGCount(4) + RootInode VA(9) +
// UUID(16) + Features(4) + Generation(8).
const onDiskSize = 4 + 4 + 4 + 9 + 16 + 4 + 8

// Snapshot returns the subset of s that is actually persisted to the
// fixed SUPER block: occupancy counters (FreeBlocks/FreeInodes/IO) are
// process-local bookkeeping, not stored state.
func (s *Superblock) Snapshot() *Superblock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Superblock{
		Version:    s.Version,
		BlockSize:  s.BlockSize,
		AGCount:    s.AGCount,
		RootInode:  s.RootInode,
		UUID:       s.UUID,
		Features:   s.Features,
		Generation: s.Generation,
	}
}

// Codec implements storage.NodeCodec for the single SUPER block.
type Codec struct{}

func (Codec) New() any { return &Superblock{} }

func (Codec) Decode(p []byte) (any, error) {
	if len(p) < onDiskSize {
		return nil, corefs.New(corefs.CorruptData, "superblock record truncated")
	}
	sb := &Superblock{}
	sb.Version = binary.LittleEndian.Uint32(p[0:4])
	sb.BlockSize = binary.LittleEndian.Uint32(p[4:8])
	sb.AGCount = binary.LittleEndian.Uint32(p[8:12])
	sb.RootInode = decodeVA(p[12:21])
	copy(sb.UUID[:], p[21:37])
	sb.Features = FeatureFlags(binary.LittleEndian.Uint32(p[37:41]))
	sb.Generation = binary.LittleEndian.Uint64(p[41:49])
	return sb, nil
}

func (Codec) Encode(value any) ([]byte, error) {
	sb, ok := value.(*Superblock)
	if !ok {
		return nil, corefs.New(corefs.InvalidArgument, "codec.Encode: not a *Superblock")
	}
	p := make([]byte, onDiskSize)
	binary.LittleEndian.PutUint32(p[0:4], sb.Version)
	binary.LittleEndian.PutUint32(p[4:8], sb.BlockSize)
	binary.LittleEndian.PutUint32(p[8:12], sb.AGCount)
	encodeVA(p[12:21], sb.RootInode)
	copy(p[21:37], sb.UUID[:])
	binary.LittleEndian.PutUint32(p[37:41], uint32(sb.Features))
	binary.LittleEndian.PutUint64(p[41:49], sb.Generation)
	return p, nil
}

func encodeVA(p []byte, v vaddr.VA) {
	p[0] = byte(v.Kind)
	binary.LittleEndian.PutUint32(p[1:], v.AG)
	binary.LittleEndian.PutUint32(p[5:], v.Slot)
}

func decodeVA(p []byte) vaddr.VA {
	return vaddr.VA{Kind: vaddr.Kind(p[0]), AG: binary.LittleEndian.Uint32(p[1:]), Slot: binary.LittleEndian.Uint32(p[5:])}
}
