package session

import (
	"fmt"
	"math"
	"time"
)

// Record is the flat, self-contained persistence form of a session. Times
// are Unix epoch seconds.
type Record struct {
	SessionID     string           `json:"session_id"`
	StartTime     float64          `json:"start_time"`
	EndTime       *float64         `json:"end_time"`
	Duration      float64          `json:"duration"`
	ExchangeCount int              `json:"exchange_count"`
	Tags          []string         `json:"tags"`
	Notes         string           `json:"notes"`
	Exchanges     []RecordExchange `json:"exchanges"`
}

// RecordExchange is one exchange inside a [Record].
type RecordExchange struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`

	// Time is the timestamp in ISO-8601 form, for human readers.
	Time string `json:"time"`
}

// NewRecord serialises s. now is used for the duration of an active session.
func NewRecord(s *State, now time.Time) *Record {
	rec := &Record{
		SessionID:     s.ID,
		StartTime:     epoch(s.StartTime),
		Duration:      s.Duration(now).Seconds(),
		ExchangeCount: len(s.Exchanges),
		Tags:          append([]string{}, s.Tags...),
		Notes:         s.Notes,
		Exchanges:     make([]RecordExchange, len(s.Exchanges)),
	}
	if s.Ended() {
		end := epoch(s.EndTime)
		rec.EndTime = &end
	}
	for i, e := range s.Exchanges {
		rec.Exchanges[i] = RecordExchange{
			Role:      string(e.Role),
			Content:   e.Content,
			Timestamp: epoch(e.Timestamp),
			Time:      e.Timestamp.Local().Format(time.RFC3339Nano),
		}
	}
	return rec
}

// State reconstructs the session described by r.
func (r *Record) State() (*State, error) {
	s := &State{
		ID:        r.SessionID,
		StartTime: fromEpoch(r.StartTime),
		Tags:      append([]string{}, r.Tags...),
		Notes:     r.Notes,
		Exchanges: make([]Exchange, len(r.Exchanges)),
	}
	if r.EndTime != nil {
		s.EndTime = fromEpoch(*r.EndTime)
	}
	for i, e := range r.Exchanges {
		role := Role(e.Role)
		if role != RoleUser && role != RoleAssistant {
			return nil, fmt.Errorf("session: exchange %d has unknown role %q", i, e.Role)
		}
		s.Exchanges[i] = Exchange{Role: role, Content: e.Content, Timestamp: fromEpoch(e.Timestamp)}
	}
	return s, nil
}

// StartedAt returns the start time as a [time.Time].
func (r *Record) StartedAt() time.Time { return fromEpoch(r.StartTime) }

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}

// At returns the exchange timestamp as a [time.Time].
func (e RecordExchange) At() time.Time { return fromEpoch(e.Timestamp) }
