// Package inode implements the inode & directory engine (C6): the inode
// table, directory hashing, name lookup, link/unlink, and the readdir
// cursor, all built on top of internal/storage's generic node load/store.
package inode

import (
	"encoding/binary"
	"time"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// NameMax and LinkMax bound directory entries (§8 boundary behaviours).
const (
	NameMax           = 255
	LinkMax           = 65000
	inlineSymlinkMax  = 60
	xattrInlineHeader = 0 // xattr engine owns its own inline region; record only stores the head VA
)

// Mode mirrors the POSIX mode_t bits the core cares about (type + perm).
type Mode uint32

const (
	ModeTypeMask Mode = 0170000
	ModeRegular  Mode = 0100000
	ModeDir      Mode = 0040000
	ModeSymlink  Mode = 0120000
)

func (m Mode) IsDir() bool     { return m&ModeTypeMask == ModeDir }
func (m Mode) IsRegular() bool { return m&ModeTypeMask == ModeRegular }
func (m Mode) IsSymlink() bool { return m&ModeTypeMask == ModeSymlink }

// Record is the decoded INODE persistent node (§3.2): one per inode,
// embedding a small symlink target, the xattr chain head, and the
// file-map root, so common metadata ops never touch a second block.
type Record struct {
	Mode   Mode
	Nlink  uint32
	UID    uint32
	GID    uint32
	size   uint64
	Blocks uint64

	Atime, Mtime, Ctime time.Time

	fileMapRoot vaddr.VA // FNODE root, zero VA if the file has no leaves yet
	xattrHead   vaddr.VA // XNODE chain head, zero VA if no xattrs
	DirRoot     vaddr.VA // DNODE root for directories, zero VA otherwise

	SymlinkLen    uint16
	SymlinkTarget [inlineSymlinkMax]byte
}

func (r *Record) Symlink() string {
	return string(r.SymlinkTarget[:r.SymlinkLen])
}

func (r *Record) SetSymlink(target string) error {
	if len(target) > inlineSymlinkMax {
		return corefs.New(corefs.NameTooLong, "symlink target exceeds inline capacity")
	}
	r.SymlinkLen = uint16(len(target))
	copy(r.SymlinkTarget[:], target)
	return nil
}

// Codec implements storage.NodeCodec for vaddr.Inode.
type Codec struct{}

func (Codec) New() any { return &Record{} }

func (Codec) Decode(p []byte) (any, error) {
	if len(p) < 4*4+8*5+9*3+2+inlineSymlinkMax {
		return nil, corefs.New(corefs.CorruptData, "inode record truncated")
	}
	r := &Record{}
	off := 0
	r.Mode = Mode(binary.LittleEndian.Uint32(p[off:]))
	off += 4
	r.Nlink = binary.LittleEndian.Uint32(p[off:])
	off += 4
	r.UID = binary.LittleEndian.Uint32(p[off:])
	off += 4
	r.GID = binary.LittleEndian.Uint32(p[off:])
	off += 4
	r.size = binary.LittleEndian.Uint64(p[off:])
	off += 8
	r.Blocks = binary.LittleEndian.Uint64(p[off:])
	off += 8
	r.Atime = decodeTime(p[off:])
	off += 8
	r.Mtime = decodeTime(p[off:])
	off += 8
	r.Ctime = decodeTime(p[off:])
	off += 8
	r.fileMapRoot = decodeVA(p[off:])
	off += 9
	r.xattrHead = decodeVA(p[off:])
	off += 9
	r.DirRoot = decodeVA(p[off:])
	off += 9
	r.SymlinkLen = binary.LittleEndian.Uint16(p[off:])
	off += 2
	copy(r.SymlinkTarget[:], p[off:off+inlineSymlinkMax])
	return r, nil
}

func (Codec) Encode(v any) ([]byte, error) {
	r := v.(*Record)
	buf := make([]byte, 4*4+8*5+9*3+2+inlineSymlinkMax)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Mode))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.Nlink)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.UID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.GID)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], r.size)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], r.Blocks)
	off += 8
	encodeTime(buf[off:], r.Atime)
	off += 8
	encodeTime(buf[off:], r.Mtime)
	off += 8
	encodeTime(buf[off:], r.Ctime)
	off += 8
	encodeVA(buf[off:], r.fileMapRoot)
	off += 9
	encodeVA(buf[off:], r.xattrHead)
	off += 9
	encodeVA(buf[off:], r.DirRoot)
	off += 9
	binary.LittleEndian.PutUint16(buf[off:], r.SymlinkLen)
	off += 2
	copy(buf[off:], r.SymlinkTarget[:])
	return buf, nil
}

func decodeTime(p []byte) time.Time {
	unixNano := int64(binary.LittleEndian.Uint64(p))
	if unixNano == 0 {
		return time.Time{}
	}
	return time.Unix(0, unixNano).UTC()
}

func encodeTime(p []byte, t time.Time) {
	binary.LittleEndian.PutUint64(p, uint64(t.UnixNano()))
}

func encodeVA(p []byte, v vaddr.VA) {
	p[0] = byte(v.Kind)
	binary.LittleEndian.PutUint32(p[1:], v.AG)
	binary.LittleEndian.PutUint32(p[5:], v.Slot)
}

func decodeVA(p []byte) vaddr.VA {
	return vaddr.VA{Kind: vaddr.Kind(p[0]), AG: binary.LittleEndian.Uint32(p[1:]), Slot: binary.LittleEndian.Uint32(p[5:])}
}

var _ storage.NodeCodec = Codec{}
