package local

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/somatic/pkg/audio"
)

// oto allows a single context per process, so every Player shares it. The
// first Play fixes its format and later audio is resampled to match.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoErr    error
)

func sharedContext(f audio.Format) (*oto.Context, audio.Format, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if otoErr == nil {
			<-ready
			otoFormat = audio.Format{SampleRate: f.SampleRate, Channels: 1}
		}
	})
	return otoCtx, otoFormat, otoErr
}

// Player is an [audio.Player] for the default output device.
type Player struct {
	mu      sync.Mutex
	current *oto.Player
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a player. The output device is opened on first use.
func NewPlayer() *Player { return &Player{} }

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	octx, target, err := sharedContext(f)
	if err != nil {
		return fmt.Errorf("local: open output device: %w", err)
	}
	norm := audio.Normalizer{Target: target}
	frame := norm.Normalize(audio.AudioFrame{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels})
	if len(frame.Data) == 0 {
		return nil
	}

	player := octx.NewPlayer(bytes.NewReader(frame.Data))
	p.mu.Lock()
	if p.current != nil {
		p.current.Pause()
	}
	p.current = player
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == player {
			p.current = nil
		}
		p.mu.Unlock()
		_ = player.Close()
	}()

	player.Play()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Stop implements [audio.Player].
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Pause()
	}
	return nil
}
