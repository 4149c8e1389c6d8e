package nvr

import (
	"github.com/banshee-data/camnvr/internal/logging"
)

// PostProcessorJob is one unit of post-processor work: a named
// post-processor plus the frame snapshot and object that triggered it.
type PostProcessorJob struct {
	Name  string
	Frame *Frame
	Obj   DetectedObject
}

// WorkQueueDispatch is the default PostProcessorDispatch: a bounded,
// in-process work queue. Send never blocks the pipeline — a full queue
// drops the job and logs it, the same fire-and-forget contract
// PostProcessorDispatch documents. The consumer side (an external
// post-processor pool) drains Jobs() on its own goroutines.
type WorkQueueDispatch struct {
	jobs chan PostProcessorJob
	log  *logging.Logger
}

const postProcessorQueueCapacity = 32

// NewWorkQueueDispatch builds a WorkQueueDispatch with a fixed-capacity
// job queue.
func NewWorkQueueDispatch(log *logging.Logger) *WorkQueueDispatch {
	return &WorkQueueDispatch{
		jobs: make(chan PostProcessorJob, postProcessorQueueCapacity),
		log:  log,
	}
}

// Send pushes a job for name onto the queue, cloning frame so the caller
// can keep reusing its own copy. It drops the job if the queue is full
// rather than blocking the supervisor loop.
func (d *WorkQueueDispatch) Send(name string, frame *Frame, obj DetectedObject) {
	job := PostProcessorJob{Name: name, Frame: frame.Clone(), Obj: obj}
	select {
	case d.jobs <- job:
	default:
		d.log.Warnf("post-processor queue full, dropping job for %q", name)
	}
}

// Jobs returns the receive-only channel a post-processor pool drains.
func (d *WorkQueueDispatch) Jobs() <-chan PostProcessorJob {
	return d.jobs
}
