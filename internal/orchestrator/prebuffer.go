package orchestrator

import "github.com/MrWong99/somatic/pkg/audio"

// PreBuffer keeps the most recent frames captured while no speech is in
// progress. When speech onset is detected a few frames late, draining the
// buffer recovers the start of the utterance.
//
// PreBuffer is owned by the control loop and is not safe for concurrent use.
type PreBuffer struct {
	frames  []audio.AudioFrame
	maxSize int
}

// NewPreBuffer returns a buffer that retains at most maxSize frames. A
// maxSize below one disables buffering.
func NewPreBuffer(maxSize int) *PreBuffer {
	maxSize = max(maxSize, 0)
	return &PreBuffer{
		frames:  make([]audio.AudioFrame, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push appends frame and evicts the oldest frames beyond the size limit.
func (b *PreBuffer) Push(frame audio.AudioFrame) {
	if b.maxSize == 0 {
		return
	}
	b.frames = append(b.frames, frame)
	b.evict()
}

// Drain returns the buffered frames oldest first and empties the buffer.
func (b *PreBuffer) Drain() []audio.AudioFrame {
	out := make([]audio.AudioFrame, len(b.frames))
	copy(out, b.frames)
	b.Clear()
	return out
}

// Clear drops every buffered frame.
func (b *PreBuffer) Clear() {
	b.frames = b.frames[:0]
}

// Len returns the number of buffered frames.
func (b *PreBuffer) Len() int { return len(b.frames) }

// evict keeps only the most recent maxSize frames. Survivors are copied to a
// fresh backing array so the evicted PCM slices can be collected.
func (b *PreBuffer) evict() {
	if len(b.frames) <= b.maxSize {
		return
	}
	keep := b.frames[len(b.frames)-b.maxSize:]
	fresh := make([]audio.AudioFrame, len(keep), b.maxSize)
	copy(fresh, keep)
	b.frames = fresh
}
