// Package local connects the facilitator to the machine's own microphone
// (through miniaudio via malgo) and speakers (through oto).
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/somatic/pkg/audio"
)

// ErrDeviceStopped is returned by [Capture.Next] when the capture device
// stopped without [Capture.Stop] being called.
var ErrDeviceStopped = errors.New("local: capture device stopped unexpectedly")

// CaptureConfig selects and shapes the microphone stream.
type CaptureConfig struct {
	// Device is a case-insensitive substring of the capture device name.
	// Empty selects the system default.
	Device string

	SampleRate int
	Channels   int

	// ChunkSize is the number of samples per emitted frame.
	ChunkSize int

	// QueueFrames bounds the hand-off queue. Zero means 200 frames.
	QueueFrames int
}

// Capture is an [audio.Source] backed by a malgo capture device.
type Capture struct {
	cfg   CaptureConfig
	queue *audio.FrameQueue
	norm  audio.Normalizer

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	stopping bool
	failed   error

	// Only touched from the device callback.
	pending []byte
	samples int64
}

var _ audio.Source = (*Capture)(nil)

// NewCapture returns a stopped capture source.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("local: invalid capture config: sample_rate=%d chunk_size=%d", cfg.SampleRate, cfg.ChunkSize)
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = 200
	}
	return &Capture{
		cfg:   cfg,
		queue: audio.NewFrameQueue(cfg.QueueFrames),
		norm:  audio.Normalizer{Target: audio.Format{SampleRate: cfg.SampleRate, Channels: 1}},
	}, nil
}

// Start opens the device and begins capturing.
func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, func(msg string) {
		slog.Debug("malgo", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return fmt.Errorf("local: init audio context: %w", err)
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(c.cfg.Channels)
	dc.SampleRate = uint32(c.cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(c.cfg.ChunkSize)

	if c.cfg.Device != "" {
		id, err := findDevice(mctx, c.cfg.Device)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return err
		}
		dc.Capture.DeviceID = id.Pointer()
	}

	c.pending = c.pending[:0]
	c.samples = 0
	c.failed = nil
	c.stopping = false

	dev, err := malgo.InitDevice(mctx.Context, dc, malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onStop,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("local: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("local: start capture device: %w", err)
	}

	c.mctx, c.device, c.running = mctx, dev, true
	slog.Info("microphone capture started", "device", c.cfg.Device, "sample_rate", c.cfg.SampleRate, "chunk_size", c.cfg.ChunkSize)
	return nil
}

// onData slices the device stream into fixed-size frames.
func (c *Capture) onData(_, input []byte, _ uint32) {
	c.pending = append(c.pending, input...)
	frameBytes := c.cfg.ChunkSize * c.cfg.Channels * 2
	for len(c.pending) >= frameBytes {
		data := make([]byte, frameBytes)
		copy(data, c.pending[:frameBytes])
		c.pending = c.pending[frameBytes:]

		ts := time.Duration(c.samples) * time.Second / time.Duration(c.cfg.SampleRate)
		c.samples += int64(c.cfg.ChunkSize)
		c.queue.Push(c.norm.Normalize(audio.AudioFrame{
			Data:       data,
			SampleRate: c.cfg.SampleRate,
			Channels:   c.cfg.Channels,
			Timestamp:  ts,
		}))
	}
}

func (c *Capture) onStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopping {
		c.failed = ErrDeviceStopped
	}
}

// Next implements [audio.Source].
func (c *Capture) Next(ctx context.Context, timeout time.Duration) (audio.AudioFrame, bool, error) {
	c.mu.Lock()
	failed := c.failed
	c.mu.Unlock()
	if failed != nil {
		return audio.AudioFrame{}, false, failed
	}
	return c.queue.Pop(ctx, timeout)
}

// ClearBuffer implements [audio.Source].
func (c *Capture) ClearBuffer() {
	c.queue.Clear()
}

// Stop implements [audio.Source].
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	dev, mctx := c.device, c.mctx
	c.device, c.mctx, c.running = nil, nil, false
	c.mu.Unlock()

	var errs []error
	if err := dev.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("local: stop capture device: %w", err))
	}
	dev.Uninit()
	if err := mctx.Uninit(); err != nil {
		errs = append(errs, fmt.Errorf("local: release audio context: %w", err))
	}
	mctx.Free()
	return errors.Join(errs...)
}

// Devices lists the names of available capture devices.
func Devices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("local: init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("local: enumerate capture devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func findDevice(mctx *malgo.AllocatedContext, want string) (malgo.DeviceID, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("local: enumerate capture devices: %w", err)
	}
	want = strings.ToLower(want)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("local: no capture device matching %q", want)
}
