package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		voice   string
		opts    []Option
		wantErr bool
	}{
		{name: "ok", key: "k", voice: "v"},
		{name: "missing key", voice: "v", wantErr: true},
		{name: "missing voice", key: "k", wantErr: true},
		{name: "mp3 format", key: "k", voice: "v", opts: []Option{WithOutputFormat("mp3_44100")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.key, tt.voice, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	s, err := New("k", "voice 1", WithModel("eleven_turbo_v2"), WithOutputFormat("pcm_22050"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.streamURL()
	want := "wss://api.elevenlabs.io/v1/text-to-speech/voice%201/stream-input?model_id=eleven_turbo_v2&output_format=pcm_22050"
	if got != want {
		t.Errorf("streamURL = %q\nwant        %q", got, want)
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	got := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/text-to-speech/abc/stream-input") {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		var received []string
		for range 3 {
			_, data, err := conn.Read(ctx)
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			received = append(received, string(data))
		}
		got <- received
		for _, chunk := range []string{"\x01\x02", "\x03\x04"} {
			msg, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte(chunk))})
			_ = conn.Write(ctx, websocket.MessageText, msg)
		}
		msg, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, msg)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	s, err := New("secret", "abc", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")), WithVoiceSettings(0.5, 0.6))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm, format, err := s.Synthesize(context.Background(), "Feel your feet.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(pcm) != "\x01\x02\x03\x04" {
		t.Errorf("pcm = %v", pcm)
	}
	if format.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", format.SampleRate)
	}

	received := <-got
	if len(received) != 3 {
		t.Fatalf("server received %d messages, want 3", len(received))
	}
	var begin beginMessage
	if err := json.Unmarshal([]byte(received[0]), &begin); err != nil {
		t.Fatalf("begin message: %v", err)
	}
	if begin.XiAPIKey != "secret" || begin.VoiceSettings == nil || begin.VoiceSettings.Stability != 0.5 {
		t.Errorf("begin = %+v", begin)
	}
	if !strings.Contains(received[1], "Feel your feet. ") {
		t.Errorf("text message = %s", received[1])
	}
	if received[2] != `{"text":""}` {
		t.Errorf("flush message = %s", received[2])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		msg, _ := json.Marshal(audioResponse{Error: "quota_exceeded", Message: "out of credits"})
		_ = conn.Write(r.Context(), websocket.MessageText, msg)
		// Drain client messages until it hangs up.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s, _ := New("k", "v", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	_, _, err := s.Synthesize(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want server error", err)
	}
}
