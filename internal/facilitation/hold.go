package facilitation

import "strings"

// Signal is the hold instruction carried by a model response.
type Signal string

const (
	// SignalNone is a normal response.
	SignalNone Signal = "none"

	// SignalHold asks the facilitator to enter hold mode now.
	SignalHold Signal = "hold"

	// SignalConfirm means the model is unsure and is asking the meditator
	// whether they want hold mode. It does not enter hold mode by itself.
	SignalConfirm Signal = "confirm"
)

const (
	holdConfirmMarker = "[HOLD?]"
	holdMarker        = "[HOLD]"
)

// ParseHold extracts a leading [HOLD] or [HOLD?] marker from a model
// response, case-insensitively and tolerant of surrounding whitespace. It
// returns the signal and the response text with the marker removed and
// trimmed. Without a marker, the trimmed text is returned unchanged.
func ParseHold(response string) (Signal, string) {
	text := strings.TrimSpace(response)
	upper := strings.ToUpper(text)
	switch {
	case strings.HasPrefix(upper, holdConfirmMarker):
		return SignalConfirm, strings.TrimSpace(text[len(holdConfirmMarker):])
	case strings.HasPrefix(upper, holdMarker):
		return SignalHold, strings.TrimSpace(text[len(holdMarker):])
	default:
		return SignalNone, text
	}
}
