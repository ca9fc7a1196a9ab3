package filemap

import (
	"github.com/corefs-project/corefs/internal/storage"
)

// Leaf is the decoded LEAF persistent node: a block-sized data payload.
type Leaf struct {
	Data []byte
}

// LeafCodec implements storage.NodeCodec for vaddr.Leaf. New leaves start
// as a zero-length payload; Engine grows them to blockSize lazily on
// first write within the block, since storage.Engine's Encode/Decode
// don't know the volume's block size.
type LeafCodec struct {
	BlockSize uint32
}

func (c LeafCodec) New() any { return &Leaf{} }

func (c LeafCodec) Decode(p []byte) (any, error) {
	data := make([]byte, len(p))
	copy(data, p)
	return &Leaf{Data: data}, nil
}

func (c LeafCodec) Encode(v any) ([]byte, error) {
	l := v.(*Leaf)
	return l.Data, nil
}

var _ storage.NodeCodec = LeafCodec{}
