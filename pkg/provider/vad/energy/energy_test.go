package energy_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/vad"
	"github.com/MrWong99/somatic/pkg/provider/vad/energy"
)

const frameDur = 30 * time.Millisecond

// constFrame returns a 30 ms 16 kHz frame whose samples all equal amp.
func constFrame(amp int16, ts time.Duration) audio.AudioFrame {
	const samples = 480
	data := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(amp))
	}
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1, Timestamp: ts}
}

func newDetector(t *testing.T) *energy.Detector {
	t.Helper()
	d, err := energy.New(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

const (
	quiet  int16 = 100
	speech int16 = 8000
)

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, 0},
		{"single odd byte", []byte{0x7f}, 0},
		{"full scale negative", constFrame(-32768, 0).Data, 1},
		{"half scale", constFrame(16384, 0).Data, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := energy.RMS(tt.pcm); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*vad.Config)
	}{
		{"zero sample rate", func(c *vad.Config) { c.SampleRate = 0 }},
		{"zero threshold", func(c *vad.Config) { c.EnergyThreshold = 0 }},
		{"sensitivity too high", func(c *vad.Config) { c.Sensitivity = 4 }},
		{"negative sensitivity", func(c *vad.Config) { c.Sensitivity = -1 }},
		{"zero end silence", func(c *vad.Config) { c.SpeechEndSilence = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := vad.DefaultConfig()
			tt.mutate(&cfg)
			if _, err := energy.New(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestThreshold_Sensitivity(t *testing.T) {
	t.Parallel()

	// The initial noise floor of 0.01 puts a 0.03 lower bound on the
	// effective threshold, so only the least sensitive level rises above it.
	want := map[int]float64{0: 0.04, 1: 0.03, 2: 0.03, 3: 0.03}
	for level, w := range want {
		cfg := vad.DefaultConfig()
		cfg.Sensitivity = level
		d, err := energy.New(cfg)
		if err != nil {
			t.Fatalf("New(sensitivity=%d): %v", level, err)
		}
		if got := d.Threshold(); math.Abs(got-w) > 1e-9 {
			t.Errorf("sensitivity %d: Threshold = %v, want %v", level, got, w)
		}
	}
}

func TestProcess_SilenceConvergesNoiseFloor(t *testing.T) {
	t.Parallel()

	d := newDetector(t)
	target := energy.RMS(constFrame(quiet, 0).Data)
	prevGap := math.Abs(d.NoiseFloor() - target)

	for i := range 300 {
		res := d.Process(constFrame(quiet, time.Duration(i)*frameDur))
		if res.State != vad.StateSilence {
			t.Fatalf("frame %d: state = %s, want silence", i, res.State)
		}
		if res.IsSpeech {
			t.Fatalf("frame %d: IsSpeech = true", i)
		}
		gap := math.Abs(d.NoiseFloor() - target)
		if gap > prevGap {
			t.Fatalf("frame %d: noise floor moved away from mean energy (%v > %v)", i, gap, prevGap)
		}
		prevGap = gap
	}
	if prevGap > 1e-4 {
		t.Errorf("noise floor %v did not converge to %v", d.NoiseFloor(), target)
	}
}

func TestProcess_FalsePositiveRejected(t *testing.T) {
	t.Parallel()

	d := newDetector(t)
	if res := d.Process(constFrame(speech, 0)); res.State != vad.StateSpeechStarted {
		t.Fatalf("first frame: state = %s, want speech_started", res.State)
	}

	var sawSilence bool
	for i := 1; i <= 10; i++ {
		ts := time.Duration(i) * frameDur
		res := d.Process(constFrame(quiet, ts))
		if res.State == vad.StateSpeaking {
			t.Fatalf("frame %d: reached speaking on a single loud frame", i)
		}
		if ts <= 200*time.Millisecond && res.State != vad.StateSpeechStarted {
			t.Errorf("frame %d (%s): state = %s, want speech_started inside reject window", i, ts, res.State)
		}
		if res.State == vad.StateSilence {
			sawSilence = true
			if res.SpeechDuration != 0 {
				t.Errorf("SpeechDuration = %s after reject, want 0", res.SpeechDuration)
			}
		}
	}
	if !sawSilence {
		t.Error("detector never returned to silence")
	}
	if d.TakeEnded() {
		t.Error("TakeEnded = true after a rejected false start")
	}
}

func TestProcess_FullSpeechCycle(t *testing.T) {
	t.Parallel()

	d := newDetector(t)

	type step struct {
		amp   int16
		count int
	}
	plan := []step{{quiet, 5}, {speech, 15}, {quiet, 60}}

	var (
		frame       int
		speakingAt  = -1
		endedFrames []int
		states      []vad.State
	)
	for _, s := range plan {
		for range s.count {
			res := d.Process(constFrame(s.amp, time.Duration(frame)*frameDur))
			states = append(states, res.State)
			if res.State == vad.StateSpeaking && speakingAt < 0 {
				speakingAt = frame
			}
			if res.State == vad.StateSpeechEnded {
				endedFrames = append(endedFrames, frame)
			}
			frame++
		}
	}

	if states[5] != vad.StateSpeechStarted {
		t.Errorf("frame 5: state = %s, want speech_started", states[5])
	}
	// Speech starts at 150 ms; 300 ms later is frame 15.
	if speakingAt != 15 {
		t.Errorf("promoted to speaking at frame %d, want 15", speakingAt)
	}
	// Last speech at 570 ms; 1.5 s of silence ends the run at 2070 ms.
	if len(endedFrames) != 1 || endedFrames[0] != 69 {
		t.Fatalf("speech_ended frames = %v, want [69]", endedFrames)
	}
	if states[70] != vad.StateSilence {
		t.Errorf("frame after speech_ended: state = %s, want silence", states[70])
	}
	if !d.TakeEnded() {
		t.Error("TakeEnded = false after a completed run")
	}
	if d.TakeEnded() {
		t.Error("TakeEnded = true on second call, want latch cleared")
	}
}

func TestProcess_Durations(t *testing.T) {
	t.Parallel()

	d := newDetector(t)
	d.Process(constFrame(speech, 0))
	res := d.Process(constFrame(speech, 90*time.Millisecond))
	if res.SpeechDuration != 90*time.Millisecond {
		t.Errorf("SpeechDuration = %s, want 90ms", res.SpeechDuration)
	}
	if res.SilenceDuration != 0 {
		t.Errorf("SilenceDuration = %s while speaking, want 0", res.SilenceDuration)
	}
	res = d.Process(constFrame(quiet, 150*time.Millisecond))
	if res.SilenceDuration != 60*time.Millisecond {
		t.Errorf("SilenceDuration = %s, want 60ms", res.SilenceDuration)
	}
	if res.AudioLevel <= 0 {
		t.Errorf("AudioLevel = %v, want > 0", res.AudioLevel)
	}
}

func TestReset_RestoresNoiseFloor(t *testing.T) {
	t.Parallel()

	d := newDetector(t)
	// 0.025 RMS stays under the initial 0.03 threshold and drags the floor up.
	for i := range 200 {
		d.Process(constFrame(819, time.Duration(i)*frameDur))
	}
	if d.NoiseFloor() <= 0.02 {
		t.Fatalf("noise floor %v did not adapt upward", d.NoiseFloor())
	}

	d.Process(constFrame(speech, 200*frameDur))
	d.Reset()

	if got := d.NoiseFloor(); got != 0.01 {
		t.Errorf("NoiseFloor after Reset = %v, want 0.01", got)
	}
	if got := d.State(); got != vad.StateSilence {
		t.Errorf("State after Reset = %s, want silence", got)
	}
	res := d.Process(constFrame(quiet, 0))
	if res.SilenceDuration != 0 || res.SpeechDuration != 0 {
		t.Errorf("durations after Reset = %s/%s, want 0/0", res.SpeechDuration, res.SilenceDuration)
	}
}

func TestEngine_NewSession(t *testing.T) {
	t.Parallel()

	sess, err := energy.Engine{}.NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if res := sess.Process(audio.AudioFrame{}); res.AudioLevel != 0 || res.State != vad.StateSilence {
		t.Errorf("empty frame result = %+v, want silence at level 0", res)
	}
}
