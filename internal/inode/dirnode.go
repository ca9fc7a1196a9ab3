package inode

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// EntryKind mirrors the directory-entry type tag surfaced to readdir
// (regular, dir, symlink — enough for d_type without a second lookup).
type EntryKind uint8

const (
	EntryRegular EntryKind = iota
	EntryDirectory
	EntrySymlink
)

// DirEntry is one name -> ino mapping inside a DNode.
type DirEntry struct {
	Name string
	Ino  vaddr.VA // the INODE VA this name resolves to
	Kind EntryKind
	hash uint64
}

func hashName(name string) uint64 {
	// xxhash avalanches well, so names differing in one character get
	// unrelated hashes. The hash is stored with each entry and compared
	// before the full name in find, as a cheap equality pre-check; it does
	// not pick a bucket or a node.
	return xxhash.Sum64String(name)
}

// dirInlineCap is the inline bucket size before a directory's root DNode
// overflows into a chained DNode (SPEC_FULL.md §3, directory hashing).
const dirInlineCap = 16

// DirNode is the decoded DNODE persistent node: up to dirInlineCap
// directory entries, searched linearly, plus an overflow chain pointer.
type DirNode struct {
	Entries  []DirEntry
	Overflow vaddr.VA // zero VA if this is the last node in the chain
}

func (d *DirNode) find(name string) (int, bool) {
	h := hashName(name)
	for i, e := range d.Entries {
		if e.hash == h && e.Name == name {
			return i, true
		}
	}
	return -1, false
}

// DirCodec implements storage.NodeCodec for vaddr.DNode.
type DirCodec struct{}

func (DirCodec) New() any { return &DirNode{} }

func (DirCodec) Decode(p []byte) (any, error) {
	if len(p) < 4+9 {
		return nil, corefs.New(corefs.CorruptData, "dir node truncated")
	}
	d := &DirNode{}
	count := binary.LittleEndian.Uint32(p[0:4])
	off := 4
	d.Entries = make([]DirEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+2 > len(p) {
			return nil, corefs.New(corefs.CorruptData, "dir node entry truncated")
		}
		nlen := int(binary.LittleEndian.Uint16(p[off:]))
		off += 2
		if off+nlen+9+1 > len(p) {
			return nil, corefs.New(corefs.CorruptData, "dir node entry overruns block")
		}
		name := string(p[off : off+nlen])
		off += nlen
		ino := decodeVA(p[off:])
		off += 9
		kind := EntryKind(p[off])
		off++
		d.Entries = append(d.Entries, DirEntry{Name: name, Ino: ino, Kind: kind, hash: hashName(name)})
	}
	d.Overflow = decodeVA(p[off:])
	return d, nil
}

func (DirCodec) Encode(v any) ([]byte, error) {
	d := v.(*DirNode)
	size := 4
	for _, e := range d.Entries {
		size += 2 + len(e.Name) + 9 + 1
	}
	size += 9
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d.Entries)))
	off := 4
	for _, e := range d.Entries {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.Name)))
		off += 2
		copy(buf[off:], e.Name)
		off += len(e.Name)
		encodeVA(buf[off:], e.Ino)
		off += 9
		buf[off] = byte(e.Kind)
		off++
	}
	encodeVA(buf[off:], d.Overflow)
	return buf, nil
}

var _ storage.NodeCodec = DirCodec{}
