package audio

import (
	"context"
	"time"
)

// Source yields captured audio frames.
//
// Implementations capture on their own goroutine or device callback and
// buffer frames until Next is called. They must be safe for concurrent use.
type Source interface {
	// Start begins capture. Calling Start on a running source is a no-op.
	Start(ctx context.Context) error

	// Next returns the next frame, waiting at most timeout. ok is false when
	// no frame arrived in time. A non-nil error means the device failed or
	// ctx ended; the session should stop.
	Next(ctx context.Context, timeout time.Duration) (frame AudioFrame, ok bool, err error)

	// ClearBuffer discards frames captured so far, typically the tail of the
	// facilitator's own voice picked up by the microphone.
	ClearBuffer()

	// Stop ends capture. It is safe to call more than once.
	Stop() error
}

// Player plays raw PCM.
type Player interface {
	// Play blocks until pcm (in format f) finished playing or ctx is done.
	Play(ctx context.Context, pcm []byte, f Format) error

	// Stop interrupts any playback in progress.
	Stop() error
}
