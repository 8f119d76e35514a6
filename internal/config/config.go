// Package config provides the configuration schema, loader, and provider
// registry for the somatic facilitator.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ContextStrategy selects how much history is sent to the language model.
type ContextStrategy string

const (
	ContextRolling ContextStrategy = "rolling"
	ContextFull    ContextStrategy = "full"
)

// IsValid reports whether s is a recognised strategy.
func (s ContextStrategy) IsValid() bool {
	return s == ContextRolling || s == ContextFull
}

// StoreKind selects the transcript backend.
type StoreKind string

const (
	StoreFile     StoreKind = "file"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
)

// IsValid reports whether k is a recognised store.
func (k StoreKind) IsValid() bool {
	switch k {
	case StoreFile, StoreSQLite, StorePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel     LogLevel           `yaml:"log_level"`
	Audio        AudioConfig        `yaml:"audio"`
	STT          STTConfig          `yaml:"stt"`
	TTS          TTSConfig          `yaml:"tts"`
	LLM          LLMConfig          `yaml:"llm"`
	Pacing       PacingConfig       `yaml:"pacing"`
	Facilitation FacilitationConfig `yaml:"facilitation"`
	Session      SessionConfig      `yaml:"session"`
	Server       ServerConfig       `yaml:"server"`
}

// AudioConfig describes microphone capture.
type AudioConfig struct {
	// InputDevice selects a capture device by case-insensitive name
	// substring. Empty uses the system default.
	InputDevice string `yaml:"input_device"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// ChunkSize is the number of samples per frame (480 is 30 ms at 16 kHz).
	ChunkSize int `yaml:"chunk_size"`

	// VADSensitivity is 0 (least) to 3 (most sensitive).
	VADSensitivity int `yaml:"vad_sensitivity"`
}

// STTConfig selects the transcription engine.
type STTConfig struct {
	// Engine is "whisper" (whisper.cpp server) or "whisper-native".
	Engine   string `yaml:"engine"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// BaseURL is the whisper.cpp server address.
	BaseURL string `yaml:"base_url"`

	// ModelPath is the ggml model file for whisper-native.
	ModelPath string `yaml:"model_path"`

	// Fallback is an optional secondary engine tried when this one fails,
	// e.g. whisper-native behind a whisper.cpp server.
	Fallback *STTConfig `yaml:"fallback"`
}

// TTSConfig selects the speech engine.
type TTSConfig struct {
	// Engine is "say", "piper", "elevenlabs" or "none".
	Engine string `yaml:"engine"`

	// Voice is the macOS voice name.
	Voice string `yaml:"voice"`

	// Rate is the speaking rate in words per minute.
	Rate int `yaml:"rate"`

	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// ModelPath is the piper .onnx voice model.
	ModelPath string `yaml:"model_path"`
}

// ProviderEntry configures one language model backend. The Name field is
// used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider (e.g. "claude_proxy", "ollama").
	Name string `yaml:"provider"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects the language model and how context is sent to it.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	ProxyURL  string `yaml:"proxy_url"`
	OllamaURL string `yaml:"ollama_url"`
	APIKey    string `yaml:"api_key"`

	ContextStrategy ContextStrategy `yaml:"context_strategy"`
	WindowSize      int             `yaml:"window_size"`
	MaxTokens       int             `yaml:"max_tokens"`
	Timeout         time.Duration   `yaml:"timeout"`

	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Primary returns the entry of the configured primary provider. The base URL
// is the proxy or Ollama address, depending on the provider.
func (c LLMConfig) Primary() ProviderEntry {
	e := ProviderEntry{Name: c.Provider, Model: c.Model, APIKey: c.APIKey}
	switch c.Provider {
	case "claude_proxy":
		e.BaseURL = c.ProxyURL
	case "ollama":
		e.BaseURL = c.OllamaURL
	}
	return e
}

// PacingConfig holds turn-taking thresholds.
type PacingConfig struct {
	ResponseDelayMS     int `yaml:"response_delay_ms"`
	MinSpeechDurationMS int `yaml:"min_speech_duration_ms"`
	ExtendedSilenceSec  int `yaml:"extended_silence_sec"`
}

// ResponseDelay returns the delay as a duration.
func (p PacingConfig) ResponseDelay() time.Duration {
	return time.Duration(p.ResponseDelayMS) * time.Millisecond
}

// MinSpeech returns the minimum speech duration.
func (p PacingConfig) MinSpeech() time.Duration {
	return time.Duration(p.MinSpeechDurationMS) * time.Millisecond
}

// ExtendedSilence returns the check-in threshold.
func (p PacingConfig) ExtendedSilence() time.Duration {
	return time.Duration(p.ExtendedSilenceSec) * time.Second
}

// FacilitationConfig selects the facilitation style.
type FacilitationConfig struct {
	Directiveness      int      `yaml:"directiveness"`
	Focuses            []string `yaml:"focuses"`
	Qualities          []string `yaml:"qualities"`
	OrientPleasant     bool     `yaml:"orient_pleasant"`
	Verbosity          string   `yaml:"verbosity"`
	CustomInstructions string   `yaml:"custom_instructions"`
}

// SessionConfig controls transcript persistence.
type SessionConfig struct {
	AutoSave          bool      `yaml:"auto_save"`
	SaveDirectory     string    `yaml:"save_directory"`
	IncludeTimestamps bool      `yaml:"include_timestamps"`
	Store             StoreKind `yaml:"store"`

	// DSN is the PostgreSQL connection string, or the SQLite file path.
	// For SQLite it defaults to <save_directory>/sessions.db.
	DSN string `yaml:"dsn"`
}

// ServerConfig holds settings for the web service.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":5555").
	ListenAddr string `yaml:"listen_addr"`

	// Metrics exposes /metrics when true.
	Metrics bool `yaml:"metrics"`
}

// Default returns the built-in configuration. Decoding a file overlays it,
// so omitted keys keep these values.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			ChunkSize:      480,
			VADSensitivity: 2,
		},
		STT: STTConfig{
			Engine:   "whisper",
			Model:    "small",
			Language: "en",
			BaseURL:  "http://localhost:8080",
		},
		TTS: TTSConfig{
			Engine:          "say",
			Voice:           "Samantha",
			Rate:            110,
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.75,
			SimilarityBoost: 0.75,
		},
		LLM: LLMConfig{
			Provider:        "claude_proxy",
			Model:           "claude-sonnet-4-5-20250929",
			ProxyURL:        "http://127.0.0.1:8317",
			OllamaURL:       "http://localhost:11434",
			ContextStrategy: ContextRolling,
			WindowSize:      10,
			MaxTokens:       300,
			Timeout:         30 * time.Second,
		},
		Pacing: PacingConfig{
			ResponseDelayMS:     2000,
			MinSpeechDurationMS: 500,
			ExtendedSilenceSec:  60,
		},
		Facilitation: FacilitationConfig{
			Directiveness: 3,
			Verbosity:     "medium",
		},
		Session: SessionConfig{
			AutoSave:          true,
			SaveDirectory:     "sessions",
			IncludeTimestamps: true,
			Store:             StoreFile,
		},
		Server: ServerConfig{
			ListenAddr: ":5555",
			Metrics:    true,
		},
	}
}
