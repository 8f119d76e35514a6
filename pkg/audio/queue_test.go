package audio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/somatic/pkg/audio"
)

func frameAt(ms int) audio.AudioFrame {
	return audio.AudioFrame{Timestamp: time.Duration(ms) * time.Millisecond}
}

func TestFrameQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(4)
	for i := range 3 {
		q.Push(frameAt(i))
	}
	for i := range 3 {
		f, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if f.Timestamp != time.Duration(i)*time.Millisecond {
			t.Errorf("pop %d: timestamp %v", i, f.Timestamp)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue")
	}
}

func TestFrameQueue_DropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(3)
	for i := range 5 {
		q.Push(frameAt(i))
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", q.Dropped())
	}
	f, _ := q.TryPop()
	if f.Timestamp != 2*time.Millisecond {
		t.Errorf("oldest kept = %v, want 2ms", f.Timestamp)
	}
}

func TestFrameQueue_Clear(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(8)
	q.Push(frameAt(1))
	q.Push(frameAt(2))
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d", q.Len())
	}
	q.Push(frameAt(3))
	f, ok := q.TryPop()
	if !ok || f.Timestamp != 3*time.Millisecond {
		t.Errorf("after Clear got %v, %v", f.Timestamp, ok)
	}
}

func TestFrameQueue_PopTimeout(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(2)
	start := time.Now()
	_, ok, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("Pop = %v, %v; want timeout", ok, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Pop returned before timeout")
	}
}

func TestFrameQueue_PopWakesOnPush(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		q.Push(frameAt(7))
	}()
	f, ok, err := q.Pop(context.Background(), 2*time.Second)
	wg.Wait()
	if err != nil || !ok {
		t.Fatalf("Pop = %v, %v", ok, err)
	}
	if f.Timestamp != 7*time.Millisecond {
		t.Errorf("timestamp = %v", f.Timestamp)
	}
}

func TestFrameQueue_PopContextCancelled(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := q.Pop(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
