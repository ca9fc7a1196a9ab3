package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/corefs-project/corefs/internal/logger"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// defaultDequeueTimeout bounds how long a stage worker blocks on an
// empty queue before running its periodic housekeeping pass (§4.9).
const defaultDequeueTimeout = 50 * time.Millisecond

var errNoSuspendTarget = errors.New("pipeline: handler suspended without a resolvable block")

// vproc is the single VPROC worker: every task, regardless of which
// inode it addresses, is processed by this one goroutine, which is
// what gives same-inode tasks a total order (§4.9 "Tasks addressed to
// the same inode are processed in arrival order, because a single
// VPROC worker handles them all").
type vproc struct {
	mu       sync.Mutex
	in       Queue[*Task]
	pending  *PendingSet
	submit   func(BlockJob)
	onDone   func(t *Task)
	timeout  time.Duration
	houseFn  func()
	notifyCh chan struct{}
}

func newVPROC(pending *PendingSet, submit func(BlockJob), onDone func(t *Task), houseFn func()) *vproc {
	return &vproc{
		in:       NewQueue[*Task](),
		pending:  pending,
		submit:   submit,
		onDone:   onDone,
		timeout:  defaultDequeueTimeout,
		houseFn:  houseFn,
		notifyCh: make(chan struct{}, 1),
	}
}

// Enqueue places t on the VPROC queue, either as a brand-new arrival
// from RX or as a re-entry after a block it awaited resolved.
func (v *vproc) Enqueue(t *Task) {
	v.mu.Lock()
	v.in.Push(t)
	v.mu.Unlock()
	select {
	case v.notifyCh <- struct{}{}:
	default:
	}
}

func (v *vproc) dequeue() (*Task, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.in.IsEmpty() {
		return nil, false
	}
	return v.in.Pop(), true
}

func (v *vproc) Run(ctx context.Context) {
	ticker := time.NewTicker(v.timeout)
	defer ticker.Stop()
	for {
		if t, ok := v.dequeue(); ok {
			v.step(t)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-v.notifyCh:
		case <-ticker.C:
			if v.houseFn != nil {
				v.houseFn()
			}
		}
	}
}

// step runs one execution attempt of t's handler, advancing its state
// machine or parking it on the blocks it's waiting for.
func (v *vproc) step(t *Task) {
	if t.State == StateNew {
		t.State = StateParsed
	}
	t.State = StateExecReq

	res := t.Handle(t)
	if res.Err != nil {
		t.Err = res.Err
		t.State = StateFiniReq
		v.finish(t)
		return
	}
	if !res.Done {
		v.suspend(t, res.Awaiting, res.Jobs)
		return
	}
	t.Reply = res.Reply
	t.State = StateExecRes
	t.State = StateFiniReq
	v.finish(t)
}

func (v *vproc) suspend(t *Task, blocks []vaddr.VA, jobs []BlockJob) {
	if len(blocks) == 0 || len(jobs) != len(blocks) {
		logger.Errorf("vproc: task %d reported WOULD_BLOCK_ON with mismatched blocks/jobs, dropping", t.ID)
		t.Err = errNoSuspendTarget
		v.finish(t)
		return
	}
	v.pending.Park(t, blocks)
	for _, job := range jobs {
		job.Task = t
		v.submit(job)
	}
}

// Resolved is called by the SIO stage once a block this VPROC worker
// was waiting on has completed; any task whose full wait set has now
// cleared is re-enqueued for another execution attempt.
func (v *vproc) Resolved(va vaddr.VA) {
	for _, t := range v.pending.Resolve(va) {
		v.Enqueue(t)
	}
}

func (v *vproc) finish(t *Task) {
	t.State = StateFiniRes
	t.State = StateDone
	v.onDone(t)
}
