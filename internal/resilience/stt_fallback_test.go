package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/somatic/pkg/provider/stt"
	sttmock "github.com/MrWong99/somatic/pkg/provider/stt/mock"
)

func TestSTTFallback_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("model crashed")}
	secondary := &sttmock.Provider{Result: stt.Transcription{Text: "from secondary"}}

	fb := NewSTTFallback(primary, "native", FallbackConfig{})
	fb.AddFallback("server", secondary)

	got, err := fb.Transcribe(context.Background(), []byte{1, 2}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "from secondary" {
		t.Errorf("text = %q", got.Text)
	}
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].SampleRate != 16000 {
		t.Errorf("secondary calls = %+v", calls)
	}
}

func TestSTTFallback_BusyDoesNotTripBreaker(t *testing.T) {
	primary := &sttmock.Provider{Err: stt.ErrBusy}
	fb := NewSTTFallback(primary, "native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	for range 3 {
		_, err := fb.Transcribe(context.Background(), nil, 16000)
		if !errors.Is(err, stt.ErrBusy) {
			t.Fatalf("err = %v, want ErrBusy", err)
		}
	}
	if !fb.Healthy() {
		t.Error("busy engine should stay healthy")
	}
	if got := len(primary.Calls()); got != 3 {
		t.Errorf("primary called %d times, want 3", got)
	}
}
