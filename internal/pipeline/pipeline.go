package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/corefs-project/corefs/internal/logger"
	"github.com/corefs-project/corefs/internal/super"
)

// Config controls the pipeline's stage-worker counts (§4.9, bound to
// cfg.PipelineConfig by the mount context).
type Config struct {
	SIOWorkers   int
	DrainTimeout time.Duration
}

// Pipeline composes the RX, VPROC, SIO, and TX stages over a single
// transport, layering the BOOT/ACTIVE/DRAIN/TERM protocol on top of a
// super.Superblock (§4.9, §4.11).
type Pipeline struct {
	sb     *super.Superblock
	cfg    Config
	rx     *rx
	vproc  *vproc
	sio    *sioPool
	tx     *tx
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a Pipeline. decode maps raw transport requests to Tasks;
// transport is the kernel pass-through adaptor's request/reply channel.
// The SIO pool itself isn't started until Start, since its workers
// need a live context to shut down on.
func New(sb *super.Superblock, transport Transport, decode Decode, cfg Config) *Pipeline {
	p := &Pipeline{sb: sb, cfg: cfg, done: make(chan struct{})}

	p.tx = newTX(transport, nil)
	p.vproc = newVPROC(NewPendingSet(),
		func(job BlockJob) { p.sio.Submit(job) },
		func(t *Task) { p.tx.Enqueue(t) },
		p.housekeep)
	p.sio = newSIOPool(cfg.SIOWorkers, func(job BlockJob, err error) {
		if err != nil {
			if job.Task != nil {
				job.Task.Err = err
				p.tx.Enqueue(job.Task)
			}
			return
		}
		p.vproc.Resolved(job.VA)
	})
	p.rx = newRX(transport, decode, func(t *Task) { p.vproc.Enqueue(t) })

	return p
}

// housekeep runs on VPROC's idle timeout; currently a hook point for
// future periodic work (cache eviction sweeps, stat refresh).
func (p *Pipeline) housekeep() {}

// Start boots the superblock and launches every stage goroutine. RX
// runs on the calling goroutine's behalf via a background goroutine
// too, so Start returns immediately; use Drain to shut down.
func (p *Pipeline) Start() {
	p.sb.Boot()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.vproc.Run(ctx)
	go p.tx.Run(ctx)
	go func() {
		defer close(p.done)
		p.rx.Run(ctx)
	}()
}

// Stopped closes once RX has returned, which only happens after the
// transport itself is closed (e.g. by the unmount sequence that owns
// it). Drain does not wait on this: RX's shutdown is the transport
// owner's responsibility, not the pipeline's.
func (p *Pipeline) Stopped() <-chan struct{} { return p.done }

// Drain transitions ACTIVE -> DRAIN -> TERM: it refuses any further
// BeginDrain/FinishDrain races, waits for in-flight tasks to clear the
// pending set, stops VPROC and TX, and drains the SIO pool (§4.9
// "Cancellation and drain"). RX is left running; the caller closes the
// transport separately once Drain returns to stop it.
func (p *Pipeline) Drain(force bool) error {
	if err := p.sb.BeginDrain(); err != nil {
		return err
	}

	timeout := p.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for p.vproc.pending.Len() > 0 {
		if time.Now().After(deadline) {
			if !force {
				return fmt.Errorf("pipeline: drain timed out with %d tasks still pending", p.vproc.pending.Len())
			}
			logger.Warnf("pipeline: forcing drain with %d tasks still pending", p.vproc.pending.Len())
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.sb.FinishDrain(force); err != nil {
		return err
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.sio.Drain()
	return nil
}
