package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/corefs-project/corefs/internal/logger"
)

// tx is the TX stage: it takes finished tasks off its queue and
// writes their reply (or error) back out through the transport.
type tx struct {
	mu        sync.Mutex
	in        Queue[*Task]
	transport Transport
	notifyCh  chan struct{}
	onSent    func(*Task)
}

func newTX(transport Transport, onSent func(*Task)) *tx {
	return &tx{
		in:        NewQueue[*Task](),
		transport: transport,
		notifyCh:  make(chan struct{}, 1),
		onSent:    onSent,
	}
}

func (x *tx) Enqueue(t *Task) {
	x.mu.Lock()
	x.in.Push(t)
	x.mu.Unlock()
	select {
	case x.notifyCh <- struct{}{}:
	default:
	}
}

func (x *tx) dequeue() (*Task, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.in.IsEmpty() {
		return nil, false
	}
	return x.in.Pop(), true
}

func (x *tx) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultDequeueTimeout)
	defer ticker.Stop()
	for {
		if t, ok := x.dequeue(); ok {
			x.send(t)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-x.notifyCh:
		case <-ticker.C:
		}
	}
}

func (x *tx) send(t *Task) {
	var reply any
	if t.Err != nil {
		reply = t.Err
	} else {
		reply = t.Reply
	}
	if err := x.transport.Send(reply); err != nil {
		logger.Errorf("tx: failed to send reply for task %d: %v", t.ID, err)
	}
	if x.onSent != nil {
		x.onSent(t)
	}
}
