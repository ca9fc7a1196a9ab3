package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/corefs-project/corefs/internal/logger"
)

// sioPool is the storage I/O stage: N workers, each with its own FIFO,
// jobs sharded by an atomic round-robin counter so reads and writes
// against different blocks proceed in parallel while a run of jobs
// landing on the same worker still executes in submission order (§4.9).
type sioPool struct {
	chans   []chan BlockJob
	counter atomic.Uint64
	onDone  func(job BlockJob, err error)
	group   *errgroup.Group
	cancel  context.CancelFunc
}

func newSIOPool(n int, onDone func(job BlockJob, err error)) *sioPool {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	p := &sioPool{
		chans:  make([]chan BlockJob, n),
		onDone: onDone,
		group:  g,
		cancel: cancel,
	}
	for i := 0; i < n; i++ {
		ch := make(chan BlockJob, 256)
		p.chans[i] = ch
		p.group.Go(func() error {
			p.worker(ctx, ch)
			return nil
		})
	}
	return p
}

func (p *sioPool) worker(ctx context.Context, ch chan BlockJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			err := job.Do()
			if err != nil {
				logger.Errorf("sio: block job for %s failed: %v", job.VA, err)
			}
			p.onDone(job, err)
		}
	}
}

// Submit shards job across the pool by an incrementing counter mod N.
func (p *sioPool) Submit(job BlockJob) {
	idx := p.counter.Add(1) % uint64(len(p.chans))
	p.chans[idx] <- job
}

// Drain waits for every in-flight channel to empty, then stops every
// worker. Called once VPROC has finished producing new jobs (§4.9
// drain sequence: "the SIO workers drain their queues").
//
// Closing a channel lets a worker's select still pull whatever is
// buffered in it before it sees ok == false, but only as long as
// ctx.Done() isn't also ready to fire: cancelling before the workers
// have drained would let that select pick ctx.Done() over a pending
// job and return early, leaving it unprocessed. So cancel only runs
// after every worker has already exited on its own.
func (p *sioPool) Drain() {
	for _, ch := range p.chans {
		close(ch)
	}
	_ = p.group.Wait()
	p.cancel()
}
