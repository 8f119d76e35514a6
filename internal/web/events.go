package web

// Client → server event types.
const (
	EventStartSession = "start_session"
	EventUserMessage  = "user_message"
	EventEndSession   = "end_session"
	EventAudioData    = "audio_data"
)

// Server → client event types.
const (
	EventFacilitatorMessage = "facilitator_message"
	EventFacilitatorTyping  = "facilitator_typing"
	EventTranscription      = "transcription"
	EventSessionEnded       = "session_ended"
	EventHold               = "hold"
	EventError              = "error"
)

// Kinds of facilitator messages.
const (
	KindOpener   = "opener"
	KindResponse = "response"
	KindCheckIn  = "checkin"
)

// ClientEvent is any event sent by the browser. Fields not used by Type are
// left empty.
type ClientEvent struct {
	Type string `json:"type"`

	// start_session
	SessionID          string   `json:"session_id,omitempty"`
	Intention          string   `json:"intention,omitempty"`
	Focuses            []string `json:"focuses,omitempty"`
	Qualities          []string `json:"qualities,omitempty"`
	Directiveness      *int     `json:"directiveness,omitempty"`
	OrientPleasant     *bool    `json:"orient_pleasant,omitempty"`
	Verbosity          string   `json:"verbosity,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`

	// user_message
	Text string `json:"text,omitempty"`

	// audio_data: base64 of little-endian float32 mono samples.
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// FacilitatorMessage carries one facilitator turn.
type FacilitatorMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// FacilitatorTyping toggles the typing indicator.
type FacilitatorTyping struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// Transcription returns the text of an audio_data event.
type Transcription struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// SessionEnded reports the closer and, when the session was saved, its id.
type SessionEnded struct {
	Type      string  `json:"type"`
	Closer    string  `json:"closer"`
	SessionID *string `json:"session_id"`
}

// Hold reports a change of hold mode.
type Hold struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// Error reports a client mistake.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func facilitatorMessage(text, kind string) FacilitatorMessage {
	return FacilitatorMessage{Type: EventFacilitatorMessage, Text: text, Kind: kind}
}

func errorEvent(msg string) Error {
	return Error{Type: EventError, Message: msg}
}
