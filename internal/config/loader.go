package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"claude_proxy", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native"},
	"tts": {"say", "piper", "elevenlabs", "none"},
}

var (
	validVerbosity = []string{"low", "medium", "high"}
	envRef         = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// SearchPaths returns the files tried, in order, when no config path is
// given explicitly.
func SearchPaths() []string {
	paths := []string{
		filepath.Join("config", "default.yaml"),
		"config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "somatic-facilitator", "config.yaml"))
	}
	return paths
}

// Resolve returns the config file to load. An explicit path is returned as
// is. Otherwise the first existing [SearchPaths] entry is used; ok is false
// when there is none and defaults apply.
func Resolve(explicit string) (path string, ok bool) {
	if explicit != "" {
		return explicit, true
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %q: %w", path, err)
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, Validate(cfg)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes YAML from r over the
// defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} in raw with the value of the environment
// variable VAR, or the empty string when it is unset. Bare $VAR is left
// untouched.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size must be positive, got %d", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.VADSensitivity < 0 || cfg.Audio.VADSensitivity > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_sensitivity %d is out of range [0, 3]", cfg.Audio.VADSensitivity))
	}

	// Providers
	validateProviderName("stt", cfg.STT.Engine)
	validateProviderName("tts", cfg.TTS.Engine)
	validateProviderName("llm", cfg.LLM.Provider)
	for _, fb := range cfg.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
	}
	if cfg.STT.Engine == "whisper-native" && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required when stt.engine is whisper-native"))
	}
	if fb := cfg.STT.Fallback; fb != nil {
		validateProviderName("stt", fb.Engine)
		switch {
		case fb.Engine == cfg.STT.Engine:
			errs = append(errs, fmt.Errorf("stt.fallback.engine %q repeats stt.engine", fb.Engine))
		case fb.Fallback != nil:
			errs = append(errs, errors.New("stt.fallback must not declare its own fallback"))
		case fb.Engine == "whisper-native" && fb.ModelPath == "":
			errs = append(errs, errors.New("stt.fallback.model_path is required for whisper-native"))
		}
	}
	if cfg.TTS.Engine == "piper" && cfg.TTS.ModelPath == "" {
		errs = append(errs, errors.New("tts.model_path is required when tts.engine is piper"))
	}
	if cfg.TTS.Rate <= 0 {
		errs = append(errs, fmt.Errorf("tts.rate must be positive, got %d", cfg.TTS.Rate))
	}

	// LLM
	if !cfg.LLM.ContextStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("llm.context_strategy %q is invalid; valid values: rolling, full", cfg.LLM.ContextStrategy))
	}
	if cfg.LLM.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("llm.window_size must be at least 1, got %d", cfg.LLM.WindowSize))
	}
	if cfg.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be at least 1, got %d", cfg.LLM.MaxTokens))
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("llm.fallbacks[%d].provider is required", i))
		}
	}

	// Pacing
	if cfg.Pacing.ResponseDelayMS <= 0 {
		errs = append(errs, fmt.Errorf("pacing.response_delay_ms must be positive, got %d", cfg.Pacing.ResponseDelayMS))
	}
	if cfg.Pacing.MinSpeechDurationMS < 0 {
		errs = append(errs, fmt.Errorf("pacing.min_speech_duration_ms must not be negative, got %d", cfg.Pacing.MinSpeechDurationMS))
	}
	if cfg.Pacing.ExtendedSilenceSec <= 0 {
		errs = append(errs, fmt.Errorf("pacing.extended_silence_sec must be positive, got %d", cfg.Pacing.ExtendedSilenceSec))
	}

	// Facilitation
	if cfg.Facilitation.Directiveness < 0 || cfg.Facilitation.Directiveness > 10 {
		errs = append(errs, fmt.Errorf("facilitation.directiveness %d is out of range [0, 10]", cfg.Facilitation.Directiveness))
	}
	if !slices.Contains(validVerbosity, cfg.Facilitation.Verbosity) {
		errs = append(errs, fmt.Errorf("facilitation.verbosity %q is invalid; valid values: low, medium, high", cfg.Facilitation.Verbosity))
	}

	// Session
	if !cfg.Session.Store.IsValid() {
		errs = append(errs, fmt.Errorf("session.store %q is invalid; valid values: file, sqlite, postgres", cfg.Session.Store))
	}
	if cfg.Session.Store == StorePostgres && cfg.Session.DSN == "" {
		errs = append(errs, errors.New("session.dsn is required when session.store is postgres"))
	}
	if cfg.Session.SaveDirectory == "" && cfg.Session.Store != StorePostgres {
		errs = append(errs, errors.New("session.save_directory is required"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
