// Package vad defines the voice activity detection contract used by the
// turn-taking loop.
//
// A detector classifies each audio frame as speech or silence and tracks a
// four-state hysteresis machine around that classification:
//
//	SILENCE -> SPEECH_STARTED -> SPEAKING -> SPEECH_ENDED -> SILENCE
//
// SPEECH_ENDED is transient and is reported for exactly one frame. Callers that
// may miss that frame can use [Session.TakeEnded], which latches the edge until
// it is consumed.
//
// A Session holds per-stream state and must not be shared between goroutines.
// Engines are safe for concurrent use and hand out independent sessions.
package vad

import (
	"time"

	"github.com/MrWong99/somatic/pkg/audio"
)

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. It is used for duration math
	// only; energy computation does not depend on it.
	SampleRate int

	// EnergyThreshold is the base speech threshold on a [0,1] normalised RMS
	// scale before the sensitivity multiplier is applied. Typical: 0.02.
	EnergyThreshold float64

	// Sensitivity selects a fixed threshold multiplier. 0 is the least
	// sensitive, 3 the most. See [SensitivityMultiplier].
	Sensitivity int

	// MinSpeech is how long a speech run must last before it is promoted from
	// SPEECH_STARTED to SPEAKING.
	MinSpeech time.Duration

	// SpeechEndSilence is how long a confirmed run must be silent before it is
	// declared ended.
	SpeechEndSilence time.Duration
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		EnergyThreshold:  0.02,
		Sensitivity:      2,
		MinSpeech:        300 * time.Millisecond,
		SpeechEndSilence: 1500 * time.Millisecond,
	}
}

// sensitivityMultipliers maps sensitivity levels to threshold multipliers.
var sensitivityMultipliers = [...]float64{2.0, 1.5, 1.0, 0.6}

// SensitivityMultiplier returns the threshold multiplier for level. Levels
// outside 0..3 are clamped.
func SensitivityMultiplier(level int) float64 {
	level = max(0, min(level, len(sensitivityMultipliers)-1))
	return sensitivityMultipliers[level]
}

// Session is a stateful detector bound to a single audio stream.
type Session interface {
	// Process classifies frame and advances the state machine. Frame
	// timestamps drive all timing; frames must be delivered in capture order.
	// Empty frames are treated as zero energy.
	Process(frame audio.AudioFrame) Result

	// TakeEnded reports whether a SPEECH_ENDED transition has been produced
	// since the last call, and clears the latch.
	TakeEnded() bool

	// Reset clears all timers and restores the adaptive noise floor to its
	// initial value.
	Reset()
}

// Engine creates independent detector sessions.
type Engine interface {
	NewSession(cfg Config) (Session, error)
}
