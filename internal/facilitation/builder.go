// Package facilitation composes the facilitator's language: the system
// prompt sent to the language model, the spoken openers, check-ins and
// closer, and the hold-signal convention the model uses to request extended
// silence.
//
// Prompt composition is a pure function of [PromptConfig]. Phrase selection
// draws from a caller-supplied random source so that output is reproducible
// under a fixed seed.
package facilitation

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// PromptConfig selects the facilitation style.
type PromptConfig struct {
	// Focuses name where attention is directed. Empty means open awareness.
	// Unknown keys are ignored.
	Focuses []string

	// Qualities are tone overlays. Unknown keys are ignored.
	Qualities []string

	// Directiveness ranges from 0 (pure following) to 10 (strong guidance).
	// The nearest defined level is used.
	Directiveness int

	// OrientPleasant adds guidance toward pleasant experience.
	OrientPleasant bool

	// Verbosity is one of [VerbosityLow], [VerbosityMedium] or
	// [VerbosityHigh]. Anything else is treated as low.
	Verbosity string

	// CustomInstructions is appended verbatim when non-empty.
	CustomInstructions string
}

// DefaultPromptConfig returns the default style.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{Directiveness: 3, Verbosity: VerbosityLow}
}

// Focuses returns every known focus key.
func Focuses() []string {
	return []string{FocusBodySensations, FocusEmotions, FocusInnerParts, FocusOpenAwareness}
}

// Qualities returns every known quality key.
func Qualities() []string {
	return []string{QualityPlayful, QualityCompassionate, QualityLoving, QualitySpacious, QualityEffortless}
}

// Builder produces prompts and spoken phrases. It is safe for concurrent use.
type Builder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBuilder returns a builder that draws phrases from rng. A nil rng uses a
// randomly seeded source.
func NewBuilder(rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Builder{rng: rng}
}

// SystemPrompt assembles the system instruction for cfg. Parts appear in a
// fixed order: base, focus, quality, pleasant orientation, directiveness,
// verbosity, custom instructions.
func SystemPrompt(cfg PromptConfig) string {
	parts := []string{basePrompt}

	focuses := cfg.Focuses
	if len(focuses) == 0 {
		focuses = []string{FocusOpenAwareness}
	}
	for _, f := range focuses {
		if p, ok := focusPrompts[f]; ok {
			parts = append(parts, p)
		}
	}
	for _, q := range cfg.Qualities {
		if p, ok := qualityPrompts[q]; ok {
			parts = append(parts, p)
		}
	}
	if cfg.OrientPleasant {
		parts = append(parts, orientPleasantPrompt)
	}

	parts = append(parts, directivenessText(cfg.Directiveness))

	verbosity, ok := verbosityPrompts[cfg.Verbosity]
	if !ok {
		verbosity = verbosityPrompts[VerbosityLow]
	}
	parts = append(parts, verbosity)

	if cfg.CustomInstructions != "" {
		parts = append(parts, "\nAdditional instructions:\n"+cfg.CustomInstructions)
	}
	return strings.Join(parts, "\n")
}

// SystemPrompt is a convenience wrapper around the package-level function.
func (b *Builder) SystemPrompt(cfg PromptConfig) string {
	return SystemPrompt(cfg)
}

// NearestDirectiveness returns the defined directiveness level closest to
// level. Ties go to the lower level.
func NearestDirectiveness(level int) int {
	best := directivenessLevels[0].level
	for _, d := range directivenessLevels[1:] {
		if abs(d.level-level) < abs(best-level) {
			best = d.level
		}
	}
	return best
}

func directivenessText(level int) string {
	nearest := NearestDirectiveness(level)
	for _, d := range directivenessLevels {
		if d.level == nearest {
			return d.text
		}
	}
	return ""
}

// Opener picks a session-opening phrase. Very low directiveness draws only
// from minimal openers; otherwise the pool is the common openers plus those
// of each selected focus, quality and pleasant orientation.
func (b *Builder) Opener(cfg PromptConfig) string {
	if cfg.Directiveness <= 1 {
		return b.pick(minimalOpeners)
	}
	pool := append([]string(nil), commonOpeners...)
	for _, f := range cfg.Focuses {
		pool = append(pool, focusOpeners[f]...)
	}
	for _, q := range cfg.Qualities {
		pool = append(pool, qualityOpeners[q]...)
	}
	if cfg.OrientPleasant {
		pool = append(pool, pleasantOpeners...)
	}
	return b.pick(pool)
}

// CheckIn picks a gentle phrase for long silences.
func (b *Builder) CheckIn() string {
	return b.pick(checkInPhrases)
}

// Closer returns the session-closing phrase.
func (b *Builder) Closer() string {
	return closer
}

func (b *Builder) pick(pool []string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return pool[b.rng.IntN(len(pool))]
}

// WithIntention appends the meditator's stated intention to a system prompt.
// An empty intention leaves the prompt unchanged.
func WithIntention(prompt, intention string) string {
	intention = strings.TrimSpace(intention)
	if intention == "" {
		return prompt
	}
	return prompt + "\n\nThe meditator's intention for this session: \"" + intention + "\"\n" +
		"Hold this lightly. Follow their process rather than forcing toward the goal. " +
		"The intention is a compass, not a cage."
}

// CheckInPhrases returns a copy of the check-in phrase pool.
func CheckInPhrases() []string {
	return append([]string(nil), checkInPhrases...)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
