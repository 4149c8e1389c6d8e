package nvr

import (
	"context"

	"github.com/banshee-data/camnvr/internal/logging"
)

// Capture is the pipeline's first stage: it pulls frames
// from a Transport as fast as the transport delivers them and fans each
// one out to the object and motion decode queues, gated by ScanGate so a
// disabled path never receives work. The first successfully captured
// frame fires ready so the Supervisor can leave its startup wait.
type Capture struct {
	transport Transport
	objects   *FrameQueue
	motion    *FrameQueue
	objGate   *ScanGate
	motionGate *ScanGate
	ready     *FrameReadySignal
	log       *logging.Logger
}

// NewCapture wires a Capture stage around a transport and the two
// downstream decode queues.
func NewCapture(transport Transport, objects, motion *FrameQueue, objGate, motionGate *ScanGate, ready *FrameReadySignal, log *logging.Logger) *Capture {
	return &Capture{
		transport:  transport,
		objects:    objects,
		motion:     motion,
		objGate:    objGate,
		motionGate: motionGate,
		ready:      ready,
		log:        log,
	}
}

// Run pulls frames until ctx is cancelled or the transport closes. It
// never returns a non-nil error for ErrTransportClosed or ctx
// cancellation — both are expected shutdown paths.
func (c *Capture) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := c.transport.Next(ctx)
		if err != nil {
			if err == ErrTransportClosed || ctx.Err() != nil {
				return nil
			}
			c.log.Errorf("transport read failed: %v", err)
			return err
		}
		if frame == nil {
			continue
		}

		c.ready.Fire()

		if c.objGate.Enabled() {
			c.objects.Push(frame.Clone())
		}
		if c.motionGate.Enabled() {
			c.motion.Push(frame.Clone())
		}
	}
}
