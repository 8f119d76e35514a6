package session_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/somatic/internal/session"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { c.t = c.t.Add(time.Second); return c.t }

func newManager(cfg session.Config) *session.Manager {
	clk := &clock{t: time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)}
	return session.NewManager(cfg, session.WithClock(clk.now))
}

func TestStart_GeneratesSortableID(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	s := m.Start("")
	if s.ID != "2026-03-01-093001" {
		t.Errorf("ID = %q, want 2026-03-01-093001", s.ID)
	}
	if got := m.Start("custom").ID; got != "custom" {
		t.Errorf("explicit ID = %q, want custom", got)
	}
}

func TestMutations_WithoutActiveSession(t *testing.T) {
	t.Parallel()

	ops := map[string]func(m *session.Manager) error{
		"user":      func(m *session.Manager) error { return m.AddUserMessage("hi") },
		"assistant": func(m *session.Manager) error { return m.AddAssistantMessage("hi") },
		"tag":       func(m *session.Manager) error { return m.AddTag("calm") },
		"notes":     func(m *session.Manager) error { return m.SetNotes("n") },
	}
	for name, op := range ops {
		t.Run(name+"/never started", func(t *testing.T) {
			t.Parallel()
			if err := op(newManager(session.DefaultConfig())); !errors.Is(err, session.ErrNoActiveSession) {
				t.Errorf("err = %v, want ErrNoActiveSession", err)
			}
		})
		t.Run(name+"/ended", func(t *testing.T) {
			t.Parallel()
			m := newManager(session.DefaultConfig())
			m.Start("")
			if _, err := m.End(); err != nil {
				t.Fatalf("End: %v", err)
			}
			if err := op(m); !errors.Is(err, session.ErrNoActiveSession) {
				t.Errorf("err = %v, want ErrNoActiveSession", err)
			}
		})
	}
}

func TestEnd(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	if _, err := m.End(); !errors.Is(err, session.ErrNoActiveSession) {
		t.Fatalf("End without session: err = %v", err)
	}
	m.Start("s1")
	first, err := m.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if !first.Ended() {
		t.Fatal("session not marked ended")
	}
	again, _ := m.End()
	if !again.EndTime.Equal(first.EndTime) {
		t.Errorf("second End re-stamped end time: %v != %v", again.EndTime, first.EndTime)
	}
	if first.Duration(time.Now()) != time.Second {
		t.Errorf("Duration = %s, want 1s", first.Duration(time.Now()))
	}
}

func TestContextMessages_Rolling(t *testing.T) {
	t.Parallel()

	m := newManager(session.Config{Strategy: session.StrategyRolling, WindowSize: 3})
	m.Start("")
	for i := range 7 {
		add := m.AddUserMessage
		if i%2 == 1 {
			add = m.AddAssistantMessage
		}
		if err := add(fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	got := m.ContextMessages()
	want := []struct{ role, content string }{
		{"user", "msg 4"}, {"assistant", "msg 5"}, {"user", "msg 6"},
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].role || got[i].Content != want[i].content {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	got[0].Content = "mutated"
	if again := m.ContextMessages(); again[0].Content != "msg 4" {
		t.Error("mutating the result changed stored history")
	}
	if n := len(m.Current().Exchanges); n != 7 {
		t.Errorf("stored exchanges = %d, want 7", n)
	}
}

func TestContextMessages_Full(t *testing.T) {
	t.Parallel()

	m := newManager(session.Config{Strategy: session.StrategyFull, WindowSize: 2})
	m.Start("")
	for i := range 5 {
		_ = m.AddUserMessage(fmt.Sprint(i))
	}
	if got := m.ContextMessages(); len(got) != 5 {
		t.Errorf("full strategy returned %d messages, want 5", len(got))
	}
}

func TestLastUserMessage(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	if _, ok := m.LastUserMessage(); ok {
		t.Error("LastUserMessage ok without session")
	}
	m.Start("")
	_ = m.AddAssistantMessage("What's here?")
	if _, ok := m.LastUserMessage(); ok {
		t.Error("LastUserMessage ok with no user exchanges")
	}
	_ = m.AddUserMessage("tingling")
	_ = m.AddAssistantMessage("Where?")
	if got, ok := m.LastUserMessage(); !ok || got != "tingling" {
		t.Errorf("LastUserMessage = %q, %v", got, ok)
	}
}

func TestTagsAndNotes(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	m.Start("")
	_ = m.AddTag("calm")
	_ = m.AddTag("body")
	_ = m.AddTag("calm")
	_ = m.SetNotes("first")
	_ = m.SetNotes("second")

	s := m.Current()
	if len(s.Tags) != 2 {
		t.Errorf("Tags = %v, want two unique tags", s.Tags)
	}
	if s.Notes != "second" {
		t.Errorf("Notes = %q", s.Notes)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	m.Start("round")
	for i := range 6 {
		if i%2 == 0 {
			_ = m.AddUserMessage(fmt.Sprintf("user %d", i))
		} else {
			_ = m.AddAssistantMessage(fmt.Sprintf("assistant %d", i))
		}
	}
	_ = m.AddTag("grounding")
	_ = m.SetNotes("steady")

	active, err := m.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if active.EndTime != nil {
		t.Error("active record has end_time")
	}

	ended, _ := m.End()
	rec := session.NewRecord(ended, time.Now())
	if rec.ExchangeCount != 6 || rec.Duration <= 0 {
		t.Errorf("ExchangeCount=%d Duration=%v", rec.ExchangeCount, rec.Duration)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded session.Record
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	back, err := decoded.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}

	if back.ID != "round" || back.Notes != "steady" || len(back.Tags) != 1 {
		t.Errorf("metadata mismatch: %+v", back)
	}
	if len(back.Exchanges) != len(ended.Exchanges) {
		t.Fatalf("exchanges = %d, want %d", len(back.Exchanges), len(ended.Exchanges))
	}
	for i, e := range ended.Exchanges {
		b := back.Exchanges[i]
		if b.Role != e.Role || b.Content != e.Content {
			t.Errorf("[%d] = %s/%q, want %s/%q", i, b.Role, b.Content, e.Role, e.Content)
		}
		if d := b.Timestamp.Sub(e.Timestamp); d > time.Microsecond || d < -time.Microsecond {
			t.Errorf("[%d] timestamp drift %s", i, d)
		}
	}
	if !back.Ended() {
		t.Error("reconstructed session lost its end time")
	}
}

func TestRecord_JSONFields(t *testing.T) {
	t.Parallel()

	m := newManager(session.DefaultConfig())
	m.Start("fields")
	_ = m.AddUserMessage("hello")
	rec, _ := m.Record()
	raw, _ := json.Marshal(rec)

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"session_id", "start_time", "end_time", "duration", "exchange_count", "tags", "notes", "exchanges"} {
		if _, ok := generic[k]; !ok {
			t.Errorf("missing field %q", k)
		}
	}
	if generic["end_time"] != nil {
		t.Errorf("end_time = %v, want null", generic["end_time"])
	}
	ex := generic["exchanges"].([]any)[0].(map[string]any)
	for _, k := range []string{"role", "content", "timestamp", "time"} {
		if _, ok := ex[k]; !ok {
			t.Errorf("exchange missing field %q", k)
		}
	}
}

func TestRecordState_UnknownRole(t *testing.T) {
	t.Parallel()

	rec := &session.Record{SessionID: "x", Exchanges: []session.RecordExchange{{Role: "narrator"}}}
	if _, err := rec.State(); err == nil {
		t.Error("expected error for unknown role")
	}
}

