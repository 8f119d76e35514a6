package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/somatic/pkg/provider/llm"
	"github.com/MrWong99/somatic/pkg/provider/stt"
	"github.com/MrWong99/somatic/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
	stt map[string]func(STTConfig) (stt.Provider, error)
	tts map[string]func(TTSConfig) (tts.Speaker, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt: make(map[string]func(STTConfig) (stt.Provider, error)),
		tts: make(map[string]func(TTSConfig) (tts.Speaker, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers a transcription engine factory under name.
func (r *Registry) RegisterSTT(name string, factory func(STTConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a speech engine factory under name.
func (r *Registry) RegisterTTS(name string, factory func(TTSConfig) (tts.Speaker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates the transcription engine named by cfg.Engine.
func (r *Registry) CreateSTT(cfg STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// CreateTTS instantiates the speech engine named by cfg.Engine.
func (r *Registry) CreateTTS(cfg TTSConfig) (tts.Speaker, error) {
	r.mu.RLock()
	factory, ok := r.tts[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// LLMNames returns the registered LLM provider names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for n := range r.llm {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
