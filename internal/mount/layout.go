package mount

import (
	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// allocatableKinds are the node kinds the allocator hands out slots for.
// SUPER is a single fixed block at the start of AG 0; AGMAP is the space-map
// bitmap itself, serialized alongside the AG header rather than through the
// generic node codec path — neither goes through alloc.Allocator.
var allocatableKinds = []vaddr.Kind{vaddr.Inode, vaddr.DNode, vaddr.FNode, vaddr.Leaf, vaddr.XNode}

// headerBlocks reserves room at the front of every AG for the AG header and
// its per-kind space-map bitmaps, ahead of any kind's block pool.
const headerBlocks = 16

// buildLayout splits each AG's blocks evenly across the allocatable kinds,
// after reserving headerBlocks for the AG header/space-maps, and returns the
// per-kind KindLayout table plus the matching kindBase closure storage.Engine
// needs to resolve a VA to a physical offset.
func buildLayout(blockSize uint32, agBlocks uint64) ([vaddr.NumKinds]alloc.KindLayout, func(vaddr.Kind) uint64) {
	var layout [vaddr.NumKinds]alloc.KindLayout
	usable := agBlocks - headerBlocks
	per := uint32(usable / uint64(len(allocatableKinds)))

	base := headerBlocks
	for _, k := range allocatableKinds {
		layout[k] = alloc.KindLayout{BlocksPerAG: per, BaseBlock: uint32(base)}
		base += uint64(per)
	}

	kindBase := func(k vaddr.Kind) uint64 {
		return uint64(layout[k].BaseBlock) * uint64(blockSize)
	}
	return layout, kindBase
}
