package pipeline

import "github.com/corefs-project/corefs/internal/vaddr"

// BlockJob is one unit of storage-stage work: load or flush the block at
// VA, off the VPROC thread, reporting back through the owning Pipeline
// once Do returns (§4.9 "block I/O jobs").
type BlockJob struct {
	VA   vaddr.VA
	Task *Task
	Do   func() error
}
