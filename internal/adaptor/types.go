package adaptor

import (
	"github.com/jacobsa/fuse/fuseops"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/inode"
)

// Request is the adaptor-facing request envelope: one field set per
// corefs operation, built by the external kernel pass-through adaptor
// from whatever opcode it just decoded off the kernel channel. Using
// fuseops vocabulary types directly (InodeID) means the adaptor never
// re-translates IDs on the way in.
type Request struct {
	Op string

	Parent fuseops.InodeID
	Inode  fuseops.InodeID
	Name   string

	// Mode carries the permission bits for mkdir/create; any file-type bits
	// in it are ignored, since the op itself decides the type. UID/GID are
	// likewise only meaningful there.
	Mode     uint32
	UID, GID uint32

	// NewMode/NewSize are pointers so setattr can distinguish "leave
	// unchanged" from "set to zero", mirroring
	// fuseops.SetInodeAttributesOp.
	NewMode     *uint32
	NewSize     *uint64
	NewUID      *uint32
	NewGID      *uint32

	Offset int64
	Data   []byte
	ReadSize uint64

	NewParent fuseops.InodeID
	NewName   string
	Exchange  bool

	XattrName  string
	XattrValue []byte
	XattrFlag  int

	Cursor int
	Max    int

	LinkTarget string

	LookupN uint64
}

// Dirent is one READDIR entry in the adaptor's reply vocabulary.
type Dirent struct {
	Name string
	Ino  fuseops.InodeID
	Kind inode.EntryKind
}

// Reply is what a Request's Handler hands back to Transport.Send. Errors
// cross the wire as the flattened (Kind, Message) pair rather than the
// error interface itself, since *corefs.Error's Cause chain can bottom
// out in unexported-field stdlib error types gob cannot encode.
type Reply struct {
	ErrKind corefs.Kind
	ErrMsg  string

	Inode      fuseops.InodeID
	Attributes fuseops.InodeAttributes
	Entries    []Dirent
	Data       []byte
	N          int
	XattrNames []string
	XattrValue []byte
	LinkTarget string
	NextCursor int
}

// setErr records err on r, flattening it to (Kind, Message).
func (r *Reply) setErr(err error) *Reply {
	if err == nil {
		return r
	}
	r.ErrKind = corefs.KindOf(err)
	r.ErrMsg = err.Error()
	return r
}

// Err reconstructs an error value from the reply's flattened fields, or
// nil if none was set.
func (r *Reply) Err() error {
	if r.ErrKind == 0 {
		return nil
	}
	return corefs.New(r.ErrKind, r.ErrMsg)
}
