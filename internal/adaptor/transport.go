package adaptor

import (
	"bufio"
	"encoding/gob"
	"io"
	"os"
	"sync"

	"github.com/corefs-project/corefs/internal/corefs"
)

// FDTransport implements pipeline.Transport over an already-open file
// descriptor, satisfying the CLI's "--fd=N" contract (SPEC_FULL.md §6):
// the kernel pass-through adaptor that owns the real kernel channel
// forwards decoded Request/Reply values across this descriptor instead
// of corefs ever touching /dev/fuse directly. Request and Reply carry
// only concrete structs, slices and primitives (no interface-typed
// fields), so plain gob needs no gob.Register calls.
type FDTransport struct {
	enc *gob.Encoder
	dec *gob.Decoder

	sendMu sync.Mutex
	closed bool
	f      *os.File
}

// NewFDTransport wraps f (typically os.NewFile(uintptr(fd), "corefs")) as
// a gob stream in both directions.
func NewFDTransport(f *os.File) *FDTransport {
	return &FDTransport{
		enc: gob.NewEncoder(f),
		dec: gob.NewDecoder(bufio.NewReader(f)),
		f:   f,
	}
}

// Receive decodes the next Request off the descriptor. It returns
// ok=false once the peer closes its end (EOF) or the transport has been
// explicitly closed, matching pipeline.Transport's shutdown contract.
func (t *FDTransport) Receive() (any, bool) {
	var req Request
	if err := t.dec.Decode(&req); err != nil {
		return nil, false
	}
	return &req, true
}

// Send encodes and writes one Reply. Concurrent Send calls (TX may be
// invoked from multiple VPROC completions) are serialised so gob frames
// never interleave on the wire.
func (t *FDTransport) Send(reply any) error {
	r, ok := reply.(*Reply)
	if !ok {
		return corefs.New(corefs.InvalidArgument, "transport: not an adaptor Reply")
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	return t.enc.Encode(r)
}

// Close releases the underlying descriptor. Further Receive calls
// return ok=false; further Send calls fail.
func (t *FDTransport) Close() error {
	t.sendMu.Lock()
	t.closed = true
	t.sendMu.Unlock()
	return t.f.Close()
}
