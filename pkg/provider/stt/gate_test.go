package stt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/somatic/pkg/provider/stt"
	"github.com/MrWong99/somatic/pkg/provider/stt/mock"
)

func TestGate_PassesThrough(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Result: stt.Transcription{Text: "hello"}}
	g := stt.NewGate(p, 0)

	got, err := g.Transcribe(context.Background(), []byte{1, 2}, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("Text = %q, want hello", got.Text)
	}
	if len(p.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(p.Calls()))
	}
	if _, err := g.Transcribe(context.Background(), []byte{1, 2}, 16000); err != nil {
		t.Errorf("second Transcribe after release: %v", err)
	}
}

// blockingGate returns a gate whose engine is held until release is closed.
func blockingGate(t *testing.T, wait time.Duration) (g *stt.Gate, started <-chan struct{}, release chan struct{}) {
	t.Helper()
	begin := make(chan struct{})
	release = make(chan struct{})
	p := &mock.Provider{TranscribeFunc: func(ctx context.Context, _ []byte, _ int) (stt.Transcription, error) {
		close(begin)
		<-release
		return stt.Transcription{Text: "first"}, nil
	}}
	g = stt.NewGate(p, wait)
	go func() { _, _ = g.Transcribe(context.Background(), nil, 16000) }()
	<-begin
	return g, begin, release
}

func TestGate_BusyWithoutWait(t *testing.T) {
	t.Parallel()

	g, _, release := blockingGate(t, 0)
	defer close(release)

	if _, err := g.Transcribe(context.Background(), nil, 16000); !errors.Is(err, stt.ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestGate_BusyAfterBoundedWait(t *testing.T) {
	t.Parallel()

	g, _, release := blockingGate(t, 0)
	defer close(release)

	start := time.Now()
	_, err := g.TranscribeWithin(context.Background(), 30*time.Millisecond, nil, 16000)
	if !errors.Is(err, stt.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("returned before the wait bound")
	}
}

func TestGate_CallerCancellation(t *testing.T) {
	t.Parallel()

	g, _, release := blockingGate(t, time.Minute)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Transcribe(ctx, nil, 16000); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestAudioDuration(t *testing.T) {
	t.Parallel()

	if got := stt.AudioDuration(make([]byte, 32000), 16000); got != time.Second {
		t.Errorf("AudioDuration = %v, want 1s", got)
	}
	if got := stt.AudioDuration(make([]byte, 10), 0); got != 0 {
		t.Errorf("AudioDuration with zero rate = %v, want 0", got)
	}
}
