// Package xattr implements the extended-attribute engine (C8): a
// per-inode list of (name, value) pairs, set/get/remove/list, spilling
// into a chain of XNODE overflow blocks once the inline region is full.
package xattr

import (
	"encoding/binary"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

const (
	NameMax  = 255
	ValueMax = 64 * 1024
)

// SetFlag mirrors setxattr(2)'s XATTR_CREATE/XATTR_REPLACE (§4.8).
type SetFlag int

const (
	SetDefault SetFlag = iota
	SetCreate
	SetReplace
)

// Attr is one name/value pair.
type Attr struct {
	Name  string
	Value []byte
}

// XNode is the decoded XNODE persistent node: a flat list of attrs plus
// an overflow pointer, mirroring DirNode's chain shape.
type XNode struct {
	Attrs    []Attr
	Overflow vaddr.VA
}

func (x *XNode) find(name string) int {
	for i, a := range x.Attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Codec implements storage.NodeCodec for vaddr.XNode.
type Codec struct{}

func (Codec) New() any { return &XNode{} }

func (Codec) Decode(p []byte) (any, error) {
	if len(p) < 4+9 {
		return nil, corefs.New(corefs.CorruptData, "xattr node truncated")
	}
	x := &XNode{}
	count := binary.LittleEndian.Uint32(p[0:4])
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+2 > len(p) {
			return nil, corefs.New(corefs.CorruptData, "xattr entry truncated")
		}
		nlen := int(binary.LittleEndian.Uint16(p[off:]))
		off += 2
		if off+nlen+4 > len(p) {
			return nil, corefs.New(corefs.CorruptData, "xattr name overruns block")
		}
		name := string(p[off : off+nlen])
		off += nlen
		vlen := int(binary.LittleEndian.Uint32(p[off:]))
		off += 4
		if off+vlen > len(p) {
			return nil, corefs.New(corefs.CorruptData, "xattr value overruns block")
		}
		value := append([]byte(nil), p[off:off+vlen]...)
		off += vlen
		x.Attrs = append(x.Attrs, Attr{Name: name, Value: value})
	}
	x.Overflow = decodeVA(p[off:])
	return x, nil
}

func (Codec) Encode(v any) ([]byte, error) {
	x := v.(*XNode)
	size := 4
	for _, a := range x.Attrs {
		size += 2 + len(a.Name) + 4 + len(a.Value)
	}
	size += 9
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(x.Attrs)))
	off := 4
	for _, a := range x.Attrs {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(a.Name)))
		off += 2
		copy(buf[off:], a.Name)
		off += len(a.Name)
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(a.Value)))
		off += 4
		copy(buf[off:], a.Value)
		off += len(a.Value)
	}
	encodeVA(buf[off:], x.Overflow)
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

var _ storage.NodeCodec = Codec{}

// HeadAccessor lets Engine read/write the owning inode's
// XattrHead field without importing package inode (which would create an
// import cycle, since inode's Record already references vaddr only).
type HeadAccessor interface {
	XattrHead() vaddr.VA
	SetXattrHead(vaddr.VA)
	Touch() // bump ctime only (§4.8: xattr ops never touch mtime)
}

// Engine implements C8 over the generic storage engine.
type Engine struct {
	store *storage.Engine
}

func New(store *storage.Engine) *Engine {
	store.RegisterCodec(vaddr.XNode, Codec{})
	return &Engine{store: store}
}

func (e *Engine) chain(head vaddr.VA) ([]vaddr.VA, []*XNode, []*storage.Handle, error) {
	var vas []vaddr.VA
	var nodes []*XNode
	var handles []*storage.Handle
	va := head
	for !va.Zero() {
		h, err := e.store.Load(va)
		if err != nil {
			for _, hh := range handles {
				e.store.Release(hh)
			}
			return nil, nil, nil, err
		}
		x := h.Value.(*XNode)
		vas = append(vas, va)
		nodes = append(nodes, x)
		handles = append(handles, h)
		va = x.Overflow
	}
	return vas, nodes, handles, nil
}

func releaseAll(store *storage.Engine, handles []*storage.Handle) {
	for _, h := range handles {
		store.Release(h)
	}
}

// Get returns the value for name, or NotFound.
func (e *Engine) Get(owner HeadAccessor, name string) ([]byte, error) {
	_, nodes, handles, err := e.chain(owner.XattrHead())
	if err != nil {
		return nil, err
	}
	defer releaseAll(e.store, handles)
	for _, x := range nodes {
		if i := x.find(name); i >= 0 {
			return append([]byte(nil), x.Attrs[i].Value...), nil
		}
	}
	return nil, corefs.New(corefs.NotFound, name)
}

// List returns every attribute name.
func (e *Engine) List(owner HeadAccessor) ([]string, error) {
	_, nodes, handles, err := e.chain(owner.XattrHead())
	if err != nil {
		return nil, err
	}
	defer releaseAll(e.store, handles)
	var names []string
	for _, x := range nodes {
		for _, a := range x.Attrs {
			names = append(names, a.Name)
		}
	}
	return names, nil
}

// blockFrameOverhead is the common block header (magic/length/VA/generation/
// checksum) every encoded XNode payload has to fit alongside; it mirrors
// package block's own headerSize, which is unexported, so the value is
// repeated here as a constant.
const blockFrameOverhead = 32

// xnodeFixedOverhead is Codec.Encode's per-node framing: a 4-byte attr
// count plus the 9-byte encoded Overflow VA.
const xnodeFixedOverhead = 4 + 9

func entryEncodedSize(a Attr) int {
	return 2 + len(a.Name) + 4 + len(a.Value)
}

// Set creates/replaces name=value, honouring XATTR_CREATE/XATTR_REPLACE
// flags (§4.8). Name length is bounded by NameMax, value by ValueMax, and a
// single attr additionally can't exceed what one XNode's block can encode.
func (e *Engine) Set(owner HeadAccessor, name string, value []byte, flag SetFlag) error {
	if len(name) > NameMax {
		return corefs.New(corefs.NameTooLong, name)
	}
	if len(value) > ValueMax {
		return corefs.New(corefs.FileTooBig, "xattr value exceeds maximum")
	}

	nodeCap := int(e.store.BlockSize()) - blockFrameOverhead
	newEntry := Attr{Name: name, Value: append([]byte(nil), value...)}
	if xnodeFixedOverhead+entryEncodedSize(newEntry) > nodeCap {
		return corefs.New(corefs.FileTooBig, "xattr value exceeds a single block's capacity")
	}

	vas, nodes, handles, err := e.chain(owner.XattrHead())
	if err != nil {
		return err
	}
	_ = vas

	found := false
	for i, x := range nodes {
		j := x.find(name)
		if j < 0 {
			continue
		}
		found = true
		if flag == SetCreate {
			releaseAll(e.store, handles)
			return corefs.New(corefs.Exists, name)
		}
		resized := nodeEncodedSize(x) - entryEncodedSize(x.Attrs[j]) + entryEncodedSize(newEntry)
		if resized <= nodeCap {
			x.Attrs[j] = newEntry
			e.store.Store(handles[i])
			releaseAll(e.store, handles)
			owner.Touch()
			return nil
		}
		// Growing this attr in place would overflow its node: drop it here
		// and let it fall through to the tail-insert/spill path below, the
		// same as a brand new attr.
		x.Attrs = append(x.Attrs[:j], x.Attrs[j+1:]...)
		e.store.Store(handles[i])
		break
	}
	if !found && flag == SetReplace {
		releaseAll(e.store, handles)
		return corefs.New(corefs.NotFound, name)
	}

	if len(nodes) > 0 {
		tail := nodes[len(nodes)-1]
		tailH := handles[len(handles)-1]
		if nodeEncodedSize(tail)+entryEncodedSize(newEntry) <= nodeCap {
			tail.Attrs = append(tail.Attrs, newEntry)
			e.store.Store(tailH)
			releaseAll(e.store, handles)
			owner.Touch()
			return nil
		}
		// Tail node is full: spill into a new overflow XNode and link it,
		// mirroring insertEntry's DNode spill (internal/inode/engine.go).
		newVA, newH, cerr := e.store.Create(vaddr.XNode)
		if cerr != nil {
			releaseAll(e.store, handles)
			return cerr
		}
		nx := newH.Value.(*XNode)
		nx.Attrs = append(nx.Attrs, newEntry)
		e.store.Store(newH)
		e.store.Release(newH)

		tail.Overflow = newVA
		e.store.Store(tailH)
		releaseAll(e.store, handles)
		owner.Touch()
		return nil
	}

	// No xattr chain yet: allocate the head node.
	releaseAll(e.store, handles)
	headVA, headH, cerr := e.store.Create(vaddr.XNode)
	if cerr != nil {
		return cerr
	}
	x := headH.Value.(*XNode)
	x.Attrs = append(x.Attrs, newEntry)
	e.store.Store(headH)
	e.store.Release(headH)
	owner.SetXattrHead(headVA)
	owner.Touch()
	return nil
}

func nodeEncodedSize(x *XNode) int {
	size := xnodeFixedOverhead
	for _, a := range x.Attrs {
		size += entryEncodedSize(a)
	}
	return size
}

// Remove deletes name, or NotFound.
func (e *Engine) Remove(owner HeadAccessor, name string) error {
	_, nodes, handles, err := e.chain(owner.XattrHead())
	if err != nil {
		return err
	}
	defer releaseAll(e.store, handles)
	for i, x := range nodes {
		if j := x.find(name); j >= 0 {
			x.Attrs = append(x.Attrs[:j], x.Attrs[j+1:]...)
			e.store.Store(handles[i])
			owner.Touch()
			return nil
		}
	}
	return corefs.New(corefs.NotFound, name)
}
