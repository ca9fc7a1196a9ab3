// Package filemap implements the file-map engine (C7): the sparse-file
// block map, hole-aware reads, allocate-on-write, fallocate modes, and
// SEEK_DATA/SEEK_HOLE/fiemap.
package filemap

import (
	"encoding/binary"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// Fanout is the radix tree's fixed fan-out per level (§4.7). Depth is the
// number of FNODE levels between the inode-embedded root and the LEAF
// level: Fanout^Depth * BlockSize bounds the addressable file space,
// which must cover at least 4 TiB (§6).
const (
	Fanout = 256
	Depth  = 4
)

// MaxLeaves is the file space's addressable leaf count.
func MaxLeaves() uint64 {
	n := uint64(1)
	for i := 0; i < Depth; i++ {
		n *= Fanout
	}
	return n
}

// unwrittenAG marks a child pointer as UNWRITTEN (§4.7): reserved via
// fallocate but not yet holding real data, distinct from a hole (the
// zero VA) and from a real allocated child. It lives outside any real
// AG index range the allocator ever hands out.
const unwrittenAG = ^uint32(0)

var unwrittenMarker = vaddr.VA{Kind: vaddr.KindInvalid, AG: unwrittenAG, Slot: 1}

func isHole(v vaddr.VA) bool      { return v.Zero() }
func isUnwritten(v vaddr.VA) bool { return v == unwrittenMarker }

// FNode is the decoded FNODE interior node: Fanout child pointers, each a
// hole, UNWRITTEN, or a real VA of the next level (FNODE or LEAF).
type FNode struct {
	Children [Fanout]vaddr.VA
}

// FNodeCodec implements storage.NodeCodec for vaddr.FNode.
type FNodeCodec struct{}

func (FNodeCodec) New() any { return &FNode{} }

func (FNodeCodec) Decode(p []byte) (any, error) {
	if len(p) < Fanout*9 {
		return nil, corefs.New(corefs.CorruptData, "fnode truncated")
	}
	f := &FNode{}
	off := 0
	for i := 0; i < Fanout; i++ {
		f.Children[i] = decodeVA(p[off:])
		off += 9
	}
	return f, nil
}

func (FNodeCodec) Encode(v any) ([]byte, error) {
	f := v.(*FNode)
	buf := make([]byte, Fanout*9)
	off := 0
	for i := 0; i < Fanout; i++ {
		encodeVA(buf[off:], f.Children[i])
		off += 9
	}
	return buf, nil
}

func encodeVA(p []byte, v vaddr.VA) {
	p[0] = byte(v.Kind)
	binary.LittleEndian.PutUint32(p[1:], v.AG)
	binary.LittleEndian.PutUint32(p[5:], v.Slot)
}

func decodeVA(p []byte) vaddr.VA {
	return vaddr.VA{Kind: vaddr.Kind(p[0]), AG: binary.LittleEndian.Uint32(p[1:]), Slot: binary.LittleEndian.Uint32(p[5:])}
}

var _ storage.NodeCodec = FNodeCodec{}

// digits splits a leaf index into Depth base-Fanout digits, most
// significant first (§4.7 path resolution).
func digits(leafIndex uint64) [Depth]uint32 {
	var d [Depth]uint32
	for i := Depth - 1; i >= 0; i-- {
		d[i] = uint32(leafIndex % Fanout)
		leafIndex /= Fanout
	}
	return d
}
