package vad

import "time"

// State is the detector's speech state.
type State int

const (
	// StateSilence means no speech is in progress.
	StateSilence State = iota

	// StateSpeechStarted means speech was detected but has not yet lasted
	// long enough to be confirmed.
	StateSpeechStarted

	// StateSpeaking means a confirmed speech run is in progress.
	StateSpeaking

	// StateSpeechEnded is reported for exactly one frame after a confirmed
	// run ends. The next frame always returns to StateSilence.
	StateSpeechEnded
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateSpeechStarted:
		return "speech_started"
	case StateSpeaking:
		return "speaking"
	case StateSpeechEnded:
		return "speech_ended"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one frame.
type Result struct {
	State    State
	IsSpeech bool

	// SpeechDuration is the time since the current speech run began, or zero.
	SpeechDuration time.Duration

	// SilenceDuration is the time since speech was last detected. It is zero
	// while the frame is speech or when no speech has been seen.
	SilenceDuration time.Duration

	// AudioLevel is the frame's normalised RMS energy in [0,1].
	AudioLevel float64
}
