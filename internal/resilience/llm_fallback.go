package resilience

import (
	"context"

	"github.com/MrWong99/somatic/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete returns the reply of the first healthy backend that succeeds.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Healthy reports whether any backend is accepting calls.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// States returns the breaker state of every backend.
func (f *LLMFallback) States() map[string]State { return f.group.States() }
