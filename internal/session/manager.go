// Package session owns the ordered record of one meditation session and
// produces the bounded context window sent to the language model.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/somatic/pkg/provider/llm"
)

// ErrNoActiveSession is returned when a session is mutated before it was
// started or after it was ended.
var ErrNoActiveSession = errors.New("session: no active session")

// IDLayout is the time layout used for generated session IDs. It sorts
// lexically in chronological order.
const IDLayout = "2006-01-02-150405"

// Role is the speaker of an exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Strategy selects which exchanges are sent to the model.
type Strategy string

const (
	// StrategyRolling sends the most recent exchanges up to the window size.
	StrategyRolling Strategy = "rolling"

	// StrategyFull sends the whole history.
	StrategyFull Strategy = "full"
)

// Exchange is one recorded utterance.
type Exchange struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// State is a snapshot of a session.
type State struct {
	ID        string
	StartTime time.Time

	// EndTime is zero while the session is active.
	EndTime time.Time

	Exchanges []Exchange
	Tags      []string
	Notes     string
}

// Ended reports whether the session has been finalised.
func (s *State) Ended() bool { return !s.EndTime.IsZero() }

// Duration returns the session length, measured to now while it is active.
// It is never negative.
func (s *State) Duration(now time.Time) time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	return max(0, end.Sub(s.StartTime))
}

func (s *State) clone() *State {
	c := *s
	c.Exchanges = slices.Clone(s.Exchanges)
	c.Tags = slices.Clone(s.Tags)
	return &c
}

// Config configures a Manager.
type Config struct {
	Strategy Strategy

	// WindowSize is the number of exchanges sent under [StrategyRolling].
	WindowSize int
}

// DefaultConfig returns a rolling window of the last ten exchanges.
func DefaultConfig() Config {
	return Config{Strategy: StrategyRolling, WindowSize: 10}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager holds at most one active session. Starting a new session replaces
// the previous one; persisting it first is the caller's job.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	current *State
}

// NewManager returns a Manager with no session.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRolling
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start begins a new session. An empty id is generated from the local wall
// clock using [IDLayout].
func (m *Manager) Start(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if id == "" {
		id = now.Local().Format(IDLayout)
	}
	m.current = &State{ID: id, StartTime: now, Tags: []string{}}
	return m.current.clone()
}

// Current returns a snapshot of the current session, or nil.
func (m *Manager) Current() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.clone()
}

// AddUserMessage appends a user exchange.
func (m *Manager) AddUserMessage(text string) error {
	return m.add(RoleUser, text)
}

// AddAssistantMessage appends an assistant exchange.
func (m *Manager) AddAssistantMessage(text string) error {
	return m.add(RoleAssistant, text)
}

func (m *Manager) add(role Role, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.active()
	if err != nil {
		return err
	}
	s.Exchanges = append(s.Exchanges, Exchange{Role: role, Content: text, Timestamp: m.now()})
	return nil
}

// AddTag records tag once.
func (m *Manager) AddTag(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.active()
	if err != nil {
		return err
	}
	if !slices.Contains(s.Tags, tag) {
		s.Tags = append(s.Tags, tag)
	}
	return nil
}

// SetNotes replaces the session notes.
func (m *Manager) SetNotes(notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.active()
	if err != nil {
		return err
	}
	s.Notes = notes
	return nil
}

// End stamps the end time and returns the finalised session. Ending an
// already ended session returns it unchanged.
func (m *Manager) End() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoActiveSession
	}
	if !m.current.Ended() {
		m.current.EndTime = m.now()
	}
	return m.current.clone(), nil
}

// ContextMessages returns the exchanges selected by the strategy as model
// messages, oldest first. The stored history is never modified.
func (m *Manager) ContextMessages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}

	ex := m.current.Exchanges
	if m.cfg.Strategy == StrategyRolling && len(ex) > m.cfg.WindowSize {
		ex = ex[len(ex)-m.cfg.WindowSize:]
	}
	msgs := make([]llm.Message, len(ex))
	for i, e := range ex {
		msgs[i] = llm.Message{Role: string(e.Role), Content: e.Content}
	}
	return msgs
}

// LastUserMessage returns the most recent user utterance.
func (m *Manager) LastUserMessage() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", false
	}
	for i := len(m.current.Exchanges) - 1; i >= 0; i-- {
		if e := m.current.Exchanges[i]; e.Role == RoleUser {
			return e.Content, true
		}
	}
	return "", false
}

// Record serialises the current session.
func (m *Manager) Record() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoActiveSession
	}
	return NewRecord(m.current, m.now()), nil
}

// active returns the mutable current session. Must be called with m.mu held.
func (m *Manager) active() (*State, error) {
	if m.current == nil {
		return nil, ErrNoActiveSession
	}
	if m.current.Ended() {
		return nil, fmt.Errorf("%w: session %s already ended", ErrNoActiveSession, m.current.ID)
	}
	return m.current, nil
}
