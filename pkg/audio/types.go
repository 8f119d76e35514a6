// Package audio holds the frame type that flows from capture to the voice
// activity detector, PCM conversion helpers, the hand-off queue between the
// real-time capture callback and the session loop, and the [Source] and
// [Player] device abstractions.
//
// All PCM in this package is signed 16-bit little-endian unless a function
// name says otherwise.
package audio

import "time"

// AudioFrame is one fixed-size chunk of captured audio.
type AudioFrame struct {
	// Data is interleaved int16 little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 for the detector and transcription).
	SampleRate int

	// Channels is 1 for everything downstream of capture.
	Channels int

	// Timestamp is the capture time relative to the start of the stream.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / (2 * f.Channels)
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
