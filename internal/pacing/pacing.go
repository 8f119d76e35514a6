// Package pacing implements the conversation-level turn-taking state machine.
//
// A [Controller] decides, from speech/silence events and elapsed wall-clock
// time, whether the facilitator should wait, respond, check in after a long
// silence, or hold in an extended silence requested by the meditator. Hold
// mode suppresses the normal response-delay path until it is explicitly exited
// or the extended-silence threshold triggers a check-in.
//
// A Controller is owned by exactly one control loop and is not safe for
// concurrent use.
package pacing

import "time"

// State is the conversation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateResponding
	StateSilentHold
	StateDeepSilence
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	case StateSilentHold:
		return "silent_hold"
	case StateDeepSilence:
		return "deep_silence"
	default:
		return "unknown"
	}
}

// Decision is the result of a pacing query.
type Decision int

const (
	// Wait means nothing should happen yet.
	Wait Decision = iota
	// Respond means the facilitator may take a turn.
	Respond
	// CheckIn means a long silence warrants a gentle check-in.
	CheckIn
	// Hold means hold mode is active and the facilitator stays quiet.
	Hold
)

// String returns the upper-case name of the decision.
func (d Decision) String() string {
	switch d {
	case Wait:
		return "WAIT"
	case Respond:
		return "RESPOND"
	case CheckIn:
		return "CHECK_IN"
	case Hold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Config holds pacing thresholds.
type Config struct {
	// ResponseDelay is how long after speech ends a response becomes
	// appropriate.
	ResponseDelay time.Duration

	// MinSpeechDuration is the shortest speech run considered valid. The
	// controller does not use it directly; it feeds the detector.
	MinSpeechDuration time.Duration

	// ExtendedSilence is the silence after which a check-in is offered, both
	// in normal and in hold mode.
	ExtendedSilence time.Duration
}

// DefaultConfig returns the default pacing thresholds.
func DefaultConfig() Config {
	return Config{
		ResponseDelay:     2000 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		ExtendedSilence:   60 * time.Second,
	}
}

// Controller tracks turn-taking state for one session.
type Controller struct {
	cfg Config
	now func() time.Time

	state         State
	lastSpeechEnd time.Time
	lastResponse  time.Time
	silenceStart  time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns an idle controller.
func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current conversation state.
func (c *Controller) State() State { return c.state }

// StartSession moves to listening and resets every timer. The check-in
// baseline starts at the current time.
func (c *Controller) StartSession() {
	c.state = StateListening
	c.lastSpeechEnd = time.Time{}
	c.lastResponse = c.now()
	c.silenceStart = time.Time{}
}

// EndSession returns the controller to idle.
func (c *Controller) EndSession() {
	c.state = StateIdle
}

// OnSpeechStart records that the meditator began speaking.
func (c *Controller) OnSpeechStart() {
	c.state = StateListening
}

// OnSpeechEnd records the end of an utterance for response-delay timing.
func (c *Controller) OnSpeechEnd() {
	c.lastSpeechEnd = c.now()
	c.state = StateProcessing
}

// DiscardSpeechEnd forgets the last speech end when no turn follows it, for
// an utterance that was dropped before transcription produced any text.
// Without it [ShouldRespond] would keep answering [Respond] and a check-in
// could never fire.
func (c *Controller) DiscardSpeechEnd() {
	c.lastSpeechEnd = time.Time{}
	if c.InSilenceMode() {
		c.state = StateSilentHold
		return
	}
	c.state = StateListening
}

// OnTranscription handles a completed user utterance. Any utterance cancels
// hold mode, and the result is always [Respond]. Callers filter blank
// transcriptions before calling.
func (c *Controller) OnTranscription(string) Decision {
	if c.InSilenceMode() {
		c.ExitSilenceMode()
	}
	return Respond
}

// ShouldRespond answers what should happen right now. It has no side effects.
func (c *Controller) ShouldRespond() Decision {
	now := c.now()

	if c.InSilenceMode() {
		if now.Sub(c.silenceStart) >= c.cfg.ExtendedSilence {
			return CheckIn
		}
		return Hold
	}

	if !c.lastSpeechEnd.IsZero() && now.Sub(c.lastSpeechEnd) >= c.cfg.ResponseDelay {
		return Respond
	}
	if now.Sub(c.lastResponse) >= c.cfg.ExtendedSilence {
		return CheckIn
	}
	return Wait
}

// OnResponseStart marks the facilitator as speaking.
func (c *Controller) OnResponseStart() {
	c.state = StateResponding
}

// OnResponseEnd marks the end of a facilitator utterance. The check-in
// baseline restarts and the speech-end timer is cleared. In hold mode, the
// hold timer restarts as well so that a check-in is not repeated on every
// poll, and the state stays in silent hold.
func (c *Controller) OnResponseEnd() {
	now := c.now()
	c.lastResponse = now
	c.lastSpeechEnd = time.Time{}
	if c.InSilenceMode() {
		c.silenceStart = now
		c.state = StateSilentHold
		return
	}
	c.state = StateListening
}

// EnterSilenceMode starts hold mode. It is called after the language model
// signalled that the meditator wants extended quiet.
func (c *Controller) EnterSilenceMode() {
	c.state = StateSilentHold
	c.silenceStart = c.now()
}

// ExitSilenceMode leaves hold mode.
func (c *Controller) ExitSilenceMode() {
	c.state = StateListening
	c.silenceStart = time.Time{}
}

// InSilenceMode reports whether hold mode is active.
func (c *Controller) InSilenceMode() bool {
	return !c.silenceStart.IsZero()
}

// SilenceDuration returns the time since the hold began, else since speech
// last ended, else since the last response.
func (c *Controller) SilenceDuration() time.Duration {
	now := c.now()
	switch {
	case c.InSilenceMode():
		return now.Sub(c.silenceStart)
	case !c.lastSpeechEnd.IsZero():
		return now.Sub(c.lastSpeechEnd)
	default:
		return now.Sub(c.lastResponse)
	}
}
