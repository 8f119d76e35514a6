package audio

import (
	"context"
	"sync"
	"time"
)

// FrameQueue hands frames from a real-time producer to a polling consumer.
// Push never blocks: when the queue is full the oldest frame is discarded.
// It is safe for one producer and any number of consumers.
type FrameQueue struct {
	mu      sync.Mutex
	buf     []AudioFrame
	head    int
	size    int
	dropped uint64
	notify  chan struct{}
}

// NewFrameQueue returns a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{buf: make([]AudioFrame, capacity), notify: make(chan struct{}, 1)}
}

// Push appends frame, evicting the oldest frame when full.
func (q *FrameQueue) Push(frame AudioFrame) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
	}
	q.buf[(q.head+q.size)%len(q.buf)] = frame
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop returns the oldest frame without waiting.
func (q *FrameQueue) TryPop() (AudioFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return AudioFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = AudioFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, true
}

// Pop waits up to timeout for a frame. It returns false on timeout and
// ctx.Err() when ctx is done.
func (q *FrameQueue) Pop(ctx context.Context, timeout time.Duration) (AudioFrame, bool, error) {
	if f, ok := q.TryPop(); ok {
		return f, true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return AudioFrame{}, false, ctx.Err()
		case <-timer.C:
			f, ok := q.TryPop()
			return f, ok, nil
		case <-q.notify:
			if f, ok := q.TryPop(); ok {
				return f, true, nil
			}
		}
	}
}

// Clear discards all queued frames.
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	clear(q.buf)
	q.head, q.size = 0, 0
	q.mu.Unlock()
}

// Len reports the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped reports how many frames were evicted because the queue was full.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
