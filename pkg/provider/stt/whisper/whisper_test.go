package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/somatic/pkg/provider/stt/whisper"
)

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_SendsWAVAndFields(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 3200) // 100ms at 16kHz
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("language"); got != "de" {
			t.Errorf("language = %q, want de", got)
		}
		if got := r.FormValue("model"); got != "small" {
			t.Errorf("model = %q, want small", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		wav, _ := io.ReadAll(f)
		if len(wav) != 44+len(pcm) {
			t.Errorf("wav size = %d, want %d", len(wav), 44+len(pcm))
		}
		if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
			t.Errorf("bad wav header %q", wav[:12])
		}
		if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
			t.Errorf("wav sample rate = %d, want 16000", rate)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  my hands are warm \n"})
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Transcribe(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "my hands are warm" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Duration != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", got.Duration)
	}
	if got.Language != "de" {
		t.Errorf("Language = %q, want de", got.Language)
	}
}

func TestTranscribe_EmptyAudioSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for empty audio")
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	got, err := p.Transcribe(context.Background(), nil, 16000)
	if err != nil || got.Text != "" {
		t.Errorf("Transcribe(nil) = %+v, %v", got, err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), make([]byte, 320), 16000)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("err = %v", err)
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), make([]byte, 320), 16000); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 320), 16000); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
