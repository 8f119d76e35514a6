package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Normalizer converts frames to a fixed target format, usually 16 kHz mono.
// It warns once on the first mismatch. A Normalizer belongs to one stream
// and must not be shared between goroutines.
type Normalizer struct {
	Target Format

	warnMismatch sync.Once
	warnCorrupt  sync.Once
}

// Normalize returns frame in the target format. Frames already in the target
// format are returned as is. Frames with an odd byte count are returned with
// nil Data.
func (n *Normalizer) Normalize(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		n.warnCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in pcm frame, dropping", "bytes", len(frame.Data))
		})
		return AudioFrame{SampleRate: n.Target.SampleRate, Channels: n.Target.Channels, Timestamp: frame.Timestamp}
	}
	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	if src == n.Target {
		return frame
	}
	n.warnMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting", "from", src.String(), "to", n.Target.String())
	})

	pcm := frame.Data
	// Downmix before resampling so only one channel is interpolated.
	if src.Channels == 2 && n.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
		src.Channels = 1
	}
	if src.Channels == 1 && src.SampleRate != n.Target.SampleRate {
		pcm = Resample(pcm, src.SampleRate, n.Target.SampleRate)
		src.SampleRate = n.Target.SampleRate
	}
	return AudioFrame{Data: pcm, SampleRate: src.SampleRate, Channels: src.Channels, Timestamp: frame.Timestamp}
}

// StereoToMono averages each interleaved L/R pair.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// Resample converts mono PCM from srcRate to dstRate by linear
// interpolation. Invalid rates return the input unchanged.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	m := int(int64(n) * int64(dstRate) / int64(srcRate))
	if m == 0 {
		return nil
	}
	out := make([]byte, m*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range m {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := float64(int16(binary.LittleEndian.Uint16(pcm[idx*2:])))
		s1 := s0
		if idx+1 < n {
			s1 = float64(int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}

// Float32ToPCM16 converts little-endian float32 samples in [-1, 1] to int16
// PCM. Values outside the range are clipped. Trailing partial samples are
// ignored.
func Float32ToPCM16(raw []byte) []byte {
	n := len(raw) / 4
	out := make([]byte, n*2)
	for i := range n {
		f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(f)))
	}
	return out
}

// PCM16ToFloat32 decodes int16 PCM into normalised float32 samples.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

func floatToInt16(f float32) int16 {
	switch {
	case f != f: // NaN
		return 0
	case f >= 1:
		return math.MaxInt16
	case f <= -1:
		return math.MinInt16
	default:
		return int16(f * 32767)
	}
}
