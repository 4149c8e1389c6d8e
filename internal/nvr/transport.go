package nvr

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by Transport.Next once the stream has
// ended or Release has been called. Capture treats it as a clean exit,
// never a panic.
var ErrTransportClosed = errors.New("nvr: transport closed")

// Transport is the raw media transport's contract. Its implementation
// (reading decoded frames from a live network stream) is an external
// collaborator out of this core's scope; this interface is all Capture
// depends on.
type Transport interface {
	// Next blocks until a decoded frame is available, ctx is cancelled, or
	// the stream ends. A non-nil error other than ErrTransportClosed
	// indicates the transport itself failed.
	Next(ctx context.Context) (*Frame, error)

	// Release tears down the transport, causing any blocked or future
	// Next call to return ErrTransportClosed.
	Release()

	// FPS reports the stream's frames-per-second, used by the Supervisor's
	// idle-frame and max-timeout arithmetic.
	FPS() float64

	// Resolution reports the camera's native frame size.
	Resolution() (width, height int)
}

// ObjectAnalyzer is the external object-detection model/batching server's
// contract: given a frame, return detections. ObjectDecoder passes the
// frame at its captured size; it does not resize it. An error is
// treated as "no detections" for that frame — Decoder logs it at Debug
// and moves on.
type ObjectAnalyzer interface {
	Detect(ctx context.Context, frame *Frame) ([]DetectedObject, error)
}

// MotionAnalyzer is the external motion-contour detector's contract.
type MotionAnalyzer interface {
	Detect(ctx context.Context, frame *Frame) (MotionContours, error)
}
