package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/corefs-project/corefs/internal/logger"
)

// Decode turns one raw transport request into a Task: it assigns the
// owning inode's VA (for same-inode ordering) and the Handler that
// will run the request's semantics on VPROC. It is supplied by the
// mount context, which is the only place that knows how to map a
// kernel op to domain logic.
type Decode func(req any) (*Task, error)

// rx is the RX stage: it owns the transport's receive side and turns
// each incoming request into a Task on VPROC's queue.
type rx struct {
	transport Transport
	decode    Decode
	next      func(*Task)
	nextID    atomic.Uint64
}

func newRX(transport Transport, decode Decode, next func(*Task)) *rx {
	return &rx{transport: transport, decode: decode, next: next}
}

func (r *rx) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, ok := r.transport.Receive()
		if !ok {
			return
		}
		t, err := r.decode(req)
		if err != nil {
			logger.Errorf("rx: failed to decode request: %v", err)
			continue
		}
		if t.ID == 0 {
			t.ID = r.nextID.Add(1)
		}
		t.State = StateNew
		r.next(t)
	}
}
