// Package elevenlabs synthesizes speech with the ElevenLabs streaming
// websocket API.
//
// Each utterance opens one stream-input connection: a begin-of-input
// message carries the API key, voice settings and output format, then the
// text and an empty flush message follow. PCM chunks arrive base64-encoded
// until the server marks the stream final.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_monolingual_v1"
	defaultOutputFmt = "pcm_16000"
)

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithModel sets the model id. Defaults to eleven_monolingual_v1.
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithVoiceSettings sets stability and similarity boost (both 0..1).
func WithVoiceSettings(stability, similarity float64) Option {
	return func(s *Synthesizer) {
		s.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// WithOutputFormat selects a pcm_<rate> output format.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// WithBaseURL points the client at another websocket host.
func WithBaseURL(u string) Option {
	return func(s *Synthesizer) { s.baseURL = strings.TrimRight(u, "/") }
}

// Synthesizer is a [tts.Synthesizer] for one ElevenLabs voice.
type Synthesizer struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	baseURL      string
	settings     voiceSettings
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New returns a synthesizer for voiceID.
func New(apiKey, voiceID string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		settings:     voiceSettings{Stability: 0.75, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(s)
	}
	if _, err := sampleRate(s.outputFormat); err != nil {
		return nil, err
	}
	return s, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// beginMessage opens the input stream.
type beginMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Synthesizer) streamURL() string {
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", s.outputFormat)
	return s.baseURL + "/v1/text-to-speech/" + url.PathEscape(s.voiceID) + "/stream-input?" + q.Encode()
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	rate, _ := sampleRate(s.outputFormat)
	format := audio.Format{SampleRate: rate, Channels: 1}

	conn, _, err := websocket.Dial(ctx, s.streamURL(), nil)
	if err != nil {
		return nil, format, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(4 << 20)

	vs := s.settings
	msgs := []any{
		beginMessage{Text: " ", VoiceSettings: &vs, XiAPIKey: s.apiKey},
		textMessage{Text: strings.TrimSpace(text) + " ", TryTriggerGeneration: true},
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, format, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return nil, format, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm bytes.Buffer
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return pcm.Bytes(), format, nil
			}
			return nil, format, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, format, fmt.Errorf("elevenlabs: server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, format, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm.Write(chunk)
		}
		if resp.IsFinal {
			return pcm.Bytes(), format, nil
		}
	}
}

// sampleRate parses "pcm_22050" style output formats.
func sampleRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return rate, nil
}
