// Package energy implements an RMS-energy voice activity detector with an
// adaptive noise floor.
//
// The effective threshold is max(base×sensitivity, 3×noise floor). The noise
// floor is an exponential moving average of frame energy, updated only while
// the detector is silent: quickly for the first [fastSamples] updates, then
// slowly. All timing is derived from frame timestamps, so the detector is
// fully deterministic for a given frame sequence.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/vad"
)

const (
	initialNoiseFloor = 0.01
	fastAlpha         = 0.1
	slowAlpha         = 0.01
	fastSamples       = 100
	noiseFloorFactor  = 3.0

	// falseStartWindow is how long a tentative speech run may go quiet
	// before it is discarded as noise.
	falseStartWindow = 200 * time.Millisecond
)

// Engine creates energy detector sessions.
type Engine struct{}

// NewSession validates cfg and returns a fresh [Detector].
func (Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	return New(cfg)
}

var _ vad.Engine = Engine{}

// Detector is a single-stream energy VAD. It is not safe for concurrent use.
type Detector struct {
	threshold        float64
	minSpeech        time.Duration
	speechEndSilence time.Duration

	state       vad.State
	noiseFloor  float64
	noiseCount  int
	speechStart time.Duration
	hasStart    bool
	lastSpeech  time.Duration
	hasLast     bool
	ended       bool
}

// New returns a detector for cfg.
func New(cfg vad.Config) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EnergyThreshold <= 0 || cfg.EnergyThreshold >= 1 {
		return nil, fmt.Errorf("energy: threshold must be in (0,1), got %g", cfg.EnergyThreshold)
	}
	if cfg.Sensitivity < 0 || cfg.Sensitivity > 3 {
		return nil, fmt.Errorf("energy: sensitivity must be 0..3, got %d", cfg.Sensitivity)
	}
	if cfg.MinSpeech < 0 || cfg.SpeechEndSilence <= 0 {
		return nil, fmt.Errorf("energy: invalid durations min_speech=%s end_silence=%s", cfg.MinSpeech, cfg.SpeechEndSilence)
	}
	return &Detector{
		threshold:        cfg.EnergyThreshold * vad.SensitivityMultiplier(cfg.Sensitivity),
		minSpeech:        cfg.MinSpeech,
		speechEndSilence: cfg.SpeechEndSilence,
		noiseFloor:       initialNoiseFloor,
	}, nil
}

var _ vad.Session = (*Detector)(nil)

// Process implements [vad.Session].
func (d *Detector) Process(frame audio.AudioFrame) vad.Result {
	now := frame.Timestamp
	energy := RMS(frame.Data)
	isSpeech := energy > d.Threshold()

	switch d.state {
	case vad.StateSilence:
		if isSpeech {
			d.state = vad.StateSpeechStarted
			d.speechStart, d.hasStart = now, true
			d.lastSpeech, d.hasLast = now, true
		} else {
			d.updateNoiseFloor(energy)
		}

	case vad.StateSpeechStarted:
		if isSpeech {
			d.lastSpeech, d.hasLast = now, true
			if now-d.speechStart >= d.minSpeech {
				d.state = vad.StateSpeaking
			}
		} else if now-d.lastSpeech > falseStartWindow {
			d.state = vad.StateSilence
			d.hasStart = false
		}

	case vad.StateSpeaking:
		if isSpeech {
			d.lastSpeech, d.hasLast = now, true
		} else if now-d.lastSpeech >= d.speechEndSilence {
			d.state = vad.StateSpeechEnded
			d.ended = true
		}

	case vad.StateSpeechEnded:
		d.state = vad.StateSilence
		d.hasStart = false
	}

	res := vad.Result{
		State:      d.state,
		IsSpeech:   isSpeech,
		AudioLevel: energy,
	}
	if d.hasStart {
		res.SpeechDuration = now - d.speechStart
	}
	if !isSpeech && d.hasLast {
		res.SilenceDuration = now - d.lastSpeech
	}
	return res
}

// TakeEnded implements [vad.Session].
func (d *Detector) TakeEnded() bool {
	ended := d.ended
	d.ended = false
	return ended
}

// Reset implements [vad.Session].
func (d *Detector) Reset() {
	d.state = vad.StateSilence
	d.hasStart = false
	d.hasLast = false
	d.ended = false
	d.noiseFloor = initialNoiseFloor
	d.noiseCount = 0
}

// State returns the current detector state.
func (d *Detector) State() vad.State { return d.state }

// NoiseFloor returns the current adaptive noise floor estimate.
func (d *Detector) NoiseFloor() float64 { return d.noiseFloor }

// Threshold returns the effective speech threshold for the next frame.
func (d *Detector) Threshold() float64 {
	return max(d.threshold, d.noiseFloor*noiseFloorFactor)
}

func (d *Detector) updateNoiseFloor(energy float64) {
	alpha := slowAlpha
	if d.noiseCount < fastSamples {
		alpha = fastAlpha
	}
	d.noiseFloor = (1-alpha)*d.noiseFloor + alpha*energy
	d.noiseCount++
}

// RMS returns the root-mean-square energy of little-endian int16 PCM,
// normalised to [0,1]. A trailing odd byte is ignored and an empty buffer
// yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
