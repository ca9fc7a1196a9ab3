package pipeline

import (
	"sync"

	"github.com/corefs-project/corefs/internal/vaddr"
)

// PendingSet implements cooperative suspension (§5): a VPROC handler
// that hits an uncached block registers its task here, keyed by every
// VA it's waiting on, and returns without re-executing. When an SIO
// worker resolves a block, Resolve returns every task whose full wait
// set has now cleared, ready for VPROC to re-run.
type PendingSet struct {
	mu      sync.Mutex
	waiters map[vaddr.VA][]*Task
	remain  map[uint64]int // task ID -> outstanding wait count
}

func NewPendingSet() *PendingSet {
	return &PendingSet{
		waiters: make(map[vaddr.VA][]*Task),
		remain:  make(map[uint64]int),
	}
}

// Park registers t as waiting on every VA in blocks. blocks must be
// non-empty; a task that isn't suspended has no business being parked.
func (p *PendingSet) Park(t *Task, blocks []vaddr.VA) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remain[t.ID] = len(blocks)
	for _, va := range blocks {
		p.waiters[va] = append(p.waiters[va], t)
	}
}

// Resolve reports that va's block I/O completed, returning every task
// whose entire wait set has now cleared (ready to re-enter VPROC).
func (p *PendingSet) Resolve(va vaddr.VA) []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiting := p.waiters[va]
	delete(p.waiters, va)

	var ready []*Task
	for _, t := range waiting {
		p.remain[t.ID]--
		if p.remain[t.ID] <= 0 {
			delete(p.remain, t.ID)
			ready = append(ready, t)
		}
	}
	return ready
}

// Len reports the number of distinct tasks still parked, for drain's
// "pending tasks processed to completion" check.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remain)
}
