package piper_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/MrWong99/somatic/pkg/provider/tts/piper"
)

// fakePiper writes a script that echoes stdin back as "audio".
func fakePiper(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestNew_EmptyModel(t *testing.T) {
	t.Parallel()
	if _, err := piper.New("", 0); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestSynthesize_ReadsStdout(t *testing.T) {
	t.Parallel()

	s, err := piper.New("voice.onnx", 180, piper.WithBinary(fakePiper(t, "cat")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm, format, err := s.Synthesize(context.Background(), "breathe")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(pcm) != "breathe" {
		t.Errorf("pcm = %q, want stdin echoed", pcm)
	}
	if format.SampleRate != 22050 || format.Channels != 1 {
		t.Errorf("format = %+v, want 22050 mono", format)
	}
}

func TestSynthesize_SampleRateFromModelConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	model := filepath.Join(dir, "en_US-lessac-medium.onnx")
	if err := os.WriteFile(model+".json", []byte(`{"audio":{"sample_rate":16000}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := piper.New(model, 0, piper.WithBinary(fakePiper(t, "cat")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, format, err := s.Synthesize(context.Background(), "x")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if format.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", format.SampleRate)
	}
}

func TestSynthesize_FailureIncludesStderr(t *testing.T) {
	t.Parallel()

	s, _ := piper.New("voice.onnx", 0, piper.WithBinary(fakePiper(t, "echo 'model missing' >&2; exit 1")))
	_, _, err := s.Synthesize(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "model missing") {
		t.Errorf("err = %q, want stderr included", got)
	}
}
