package web_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/internal/transcript"
	"github.com/MrWong99/somatic/internal/web"
	"github.com/MrWong99/somatic/pkg/provider/llm"
	llmmock "github.com/MrWong99/somatic/pkg/provider/llm/mock"
	"github.com/MrWong99/somatic/pkg/provider/stt"
	sttmock "github.com/MrWong99/somatic/pkg/provider/stt/mock"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	srv   *web.Server
	http  *httptest.Server
	llm   *llmmock.Provider
	store *transcript.FileStore
	clock *clock
}

func newHarness(t *testing.T, sttp stt.Provider) *harness {
	t.Helper()
	store, err := transcript.NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h := &harness{
		llm:   &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "What do you notice in your chest?"}},
		store: store,
		clock: &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.srv, err = web.New(web.Config{
		Session:         session.DefaultConfig(),
		Pacing:          pacing.DefaultConfig(),
		Prompt:          facilitation.DefaultPromptConfig(),
		AutoSave:        true,
		CheckInInterval: 10 * time.Millisecond,
		Now:             h.clock.now,
	}, web.Deps{LLM: h.llm, STT: sttp, Store: store})
	if err != nil {
		t.Fatalf("web.New: %v", err)
	}
	h.http = httptest.NewServer(h.srv.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.srv.RunCheckIns(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		h.http.Close()
		h.srv.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetReadLimit(1 << 20)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

type event map[string]any

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func expect(t *testing.T, conn *websocket.Conn, typ string) event {
	t.Helper()
	ev := read(t, conn)
	if ev["type"] != typ {
		t.Fatalf("event = %v, want type %q", ev, typ)
	}
	return ev
}

// start opens a session and consumes the acknowledgement and opener.
func start(t *testing.T, conn *websocket.Conn, id string) string {
	t.Helper()
	send(t, conn, web.ClientEvent{Type: web.EventStartSession, SessionID: id, Intention: "rest"})
	ack := expect(t, conn, web.EventSessionStarted)
	opener := expect(t, conn, web.EventFacilitatorMessage)
	if opener["kind"] != web.KindOpener || opener["text"] == "" {
		t.Fatalf("opener = %v", opener)
	}
	return ack["session_id"].(string)
}

func TestWebSocket_SessionFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.llm.Responses = []*llm.CompletionResponse{
		{Content: "What do you notice in your chest?"},
		{Content: "[HOLD] Resting here together."},
	}
	conn := h.dial(t)
	id := start(t, conn, "")

	send(t, conn, web.ClientEvent{Type: web.EventUserMessage, Text: "my chest is tight"})
	if ev := expect(t, conn, web.EventFacilitatorTyping); ev["typing"] != true {
		t.Errorf("typing = %v, want true", ev["typing"])
	}
	if ev := expect(t, conn, web.EventFacilitatorMessage); ev["text"] != "What do you notice in your chest?" || ev["kind"] != web.KindResponse {
		t.Errorf("response = %v", ev)
	}
	if ev := expect(t, conn, web.EventFacilitatorTyping); ev["typing"] != false {
		t.Errorf("typing = %v, want false", ev["typing"])
	}

	send(t, conn, web.ClientEvent{Type: web.EventUserMessage, Text: "I'd like to just be quiet"})
	expect(t, conn, web.EventFacilitatorTyping)
	if ev := expect(t, conn, web.EventFacilitatorMessage); ev["text"] != "Resting here together." {
		t.Errorf("hold marker not stripped: %v", ev)
	}
	if ev := expect(t, conn, web.EventHold); ev["active"] != true {
		t.Errorf("hold = %v, want active", ev)
	}
	expect(t, conn, web.EventFacilitatorTyping)

	// Blank messages are ignored.
	send(t, conn, web.ClientEvent{Type: web.EventUserMessage, Text: "   "})

	send(t, conn, web.ClientEvent{Type: web.EventEndSession})
	ended := expect(t, conn, web.EventSessionEnded)
	if ended["closer"] != "Gently coming back... taking your time." {
		t.Errorf("closer = %v", ended["closer"])
	}
	if ended["session_id"] != id {
		t.Errorf("session_id = %v, want %q", ended["session_id"], id)
	}

	if got := len(h.llm.Calls()); got != 2 {
		t.Errorf("LLM calls = %d, want 2", got)
	}
	if !strings.Contains(h.llm.Calls()[0].Req.SystemPrompt, `intention for this session: "rest"`) {
		t.Error("system prompt is missing the intention")
	}

	doc, err := h.store.Load(context.Background(), id)
	if err != nil || doc == nil {
		t.Fatalf("Load = %v, %v", doc, err)
	}
	var roles []string
	for _, ex := range doc.Exchanges {
		roles = append(roles, ex.Role)
	}
	want := []string{"assistant", "user", "assistant", "user", "assistant", "assistant"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles, want)
	}
	if len(h.srv.LiveSessions()) != 0 {
		t.Errorf("live sessions = %v, want none", h.srv.LiveSessions())
	}
}

func TestWebSocket_ReconnectKeepsHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	first := h.dial(t)
	start(t, first, "morning-sit")
	_ = first.Close(websocket.StatusNormalClosure, "")

	second := h.dial(t)
	send(t, second, web.ClientEvent{Type: web.EventStartSession, SessionID: "morning-sit"})
	ack := expect(t, second, web.EventSessionStarted)
	if ack["resumed"] != true {
		t.Errorf("resumed = %v, want true", ack["resumed"])
	}

	send(t, second, web.ClientEvent{Type: web.EventUserMessage, Text: "still here"})
	expect(t, second, web.EventFacilitatorTyping)
	expect(t, second, web.EventFacilitatorMessage)
	expect(t, second, web.EventFacilitatorTyping)

	msgs := h.llm.Calls()[0].Req.Messages
	if len(msgs) != 2 || msgs[0].Role != llm.RoleAssistant || msgs[1].Content != "still here" {
		t.Errorf("context messages = %+v, want opener then user message", msgs)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	conn := h.dial(t)

	tests := []struct {
		name string
		ev   any
		want string
	}{
		{"message without session", web.ClientEvent{Type: web.EventUserMessage, Text: "hi"}, "No active session"},
		{"audio without session", web.ClientEvent{Type: web.EventAudioData, Audio: ""}, "No active session"},
		{"unknown type", web.ClientEvent{Type: "dance"}, "unknown event type: dance"},
		{"unsafe id", web.ClientEvent{Type: web.EventStartSession, SessionID: "../etc"}, "invalid session id"},
	}
	for _, tc := range tests {
		send(t, conn, tc.ev)
		if ev := expect(t, conn, web.EventError); ev["message"] != tc.want {
			t.Errorf("%s: message = %v, want %q", tc.name, ev["message"], tc.want)
		}
	}

	// End without a session is a no-op; the connection keeps working.
	send(t, conn, web.ClientEvent{Type: web.EventEndSession})
	start(t, conn, "")
}

func TestWebSocket_LLMFailureUsesFallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.llm.CompleteErr = errors.New("proxy unreachable")
	conn := h.dial(t)
	start(t, conn, "")

	send(t, conn, web.ClientEvent{Type: web.EventUserMessage, Text: "hello"})
	expect(t, conn, web.EventFacilitatorTyping)
	if ev := expect(t, conn, web.EventFacilitatorMessage); ev["text"] != web.DefaultFallbackLine {
		t.Errorf("text = %v, want fallback", ev["text"])
	}
}

func float32Audio(samples int, value float32) string {
	raw := make([]byte, samples*4)
	for i := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(value))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestWebSocket_ReplyArrivingAtShutdownIsSaved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	begin := make(chan struct{})
	h.llm.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		close(begin)
		<-ctx.Done()
		return &llm.CompletionResponse{Content: "Stay with that warmth."}, nil
	}
	conn := h.dial(t)
	start(t, conn, "late-reply")

	send(t, conn, web.ClientEvent{Type: web.EventUserMessage, Text: "my hands are warm"})
	<-begin
	h.srv.Close()

	doc, err := h.store.Load(context.Background(), "late-reply")
	if err != nil || doc == nil {
		t.Fatalf("Load = %v, %v", doc, err)
	}
	var got []string
	for _, ex := range doc.Exchanges {
		got = append(got, ex.Role+": "+ex.Content)
	}
	if len(got) != 4 || got[2] != "assistant: Stay with that warmth." {
		t.Errorf("exchanges = %q, want opener, user, reply, closer", got)
	}
}

func TestWebSocket_AudioResampledTo16k(t *testing.T) {
	t.Parallel()
	p := &sttmock.Provider{Result: stt.Transcription{Text: "warmth in my hands"}}
	h := newHarness(t, p)
	conn := h.dial(t)
	start(t, conn, "")

	send(t, conn, web.ClientEvent{Type: web.EventAudioData, Audio: float32Audio(4800, 0.5), SampleRate: 48000})
	if ev := expect(t, conn, web.EventTranscription); ev["text"] != "warmth in my hands" {
		t.Errorf("transcription = %v", ev)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("STT calls = %d, want 1", len(calls))
	}
	if calls[0].SampleRate != 16000 || len(calls[0].PCM) != 1600*2 {
		t.Errorf("got %d bytes at %d Hz, want 3200 bytes at 16000 Hz", len(calls[0].PCM), calls[0].SampleRate)
	}

	send(t, conn, web.ClientEvent{Type: web.EventAudioData, Audio: "not base64!"})
	if ev := expect(t, conn, web.EventTranscription); ev["error"] != "invalid audio payload" {
		t.Errorf("transcription = %v", ev)
	}
}

func TestWebSocket_AudioBusy(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := &sttmock.Provider{TranscribeFunc: func(ctx context.Context, _ []byte, _ int) (stt.Transcription, error) {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return stt.Transcription{Text: "slow"}, nil
	}}
	h := newHarness(t, stt.NewGate(p, 0))
	conn := h.dial(t)
	start(t, conn, "")

	send(t, conn, web.ClientEvent{Type: web.EventAudioData, Audio: float32Audio(160, 0.1)})
	<-entered
	send(t, conn, web.ClientEvent{Type: web.EventAudioData, Audio: float32Audio(160, 0.1)})
	if ev := expect(t, conn, web.EventTranscription); ev["error"] != "busy" || ev["text"] != "" {
		t.Errorf("second transcription = %v, want busy", ev)
	}

	close(release)
	if ev := expect(t, conn, web.EventTranscription); ev["text"] != "slow" {
		t.Errorf("first transcription = %v", ev)
	}
}

func TestWebSocket_CheckInAfterExtendedSilence(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	conn := h.dial(t)
	start(t, conn, "")

	h.clock.advance(61 * time.Second)
	ev := expect(t, conn, web.EventFacilitatorMessage)
	if ev["kind"] != web.KindCheckIn {
		t.Fatalf("kind = %v, want checkin", ev["kind"])
	}
	found := false
	for _, p := range facilitation.CheckInPhrases() {
		found = found || ev["text"] == p
	}
	if !found {
		t.Errorf("check-in %q is not a known phrase", ev["text"])
	}
}

func TestClose_SavesLiveSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	conn := h.dial(t)
	start(t, conn, "evening")

	h.srv.Close()

	doc, err := h.store.Load(context.Background(), "evening")
	if err != nil || doc == nil {
		t.Fatalf("Load = %v, %v", doc, err)
	}
	last := doc.Exchanges[len(doc.Exchanges)-1]
	if last.Content != "Gently coming back... taking your time." {
		t.Errorf("last exchange = %q, want the closer", last.Content)
	}
}

func TestSessionAPI(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	end := 1700000600.0
	rec := &session.Record{
		SessionID:     "2026-03-01-090000",
		StartTime:     1700000000,
		EndTime:       &end,
		Duration:      600,
		ExchangeCount: 1,
		Tags:          []string{"calm"},
		Exchanges:     []session.RecordExchange{{Role: "assistant", Content: "Welcome.", Timestamp: 1700000000}},
	}
	if _, err := h.store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	do := func(method, path string) (*http.Response, map[string]any, []any) {
		t.Helper()
		req, _ := http.NewRequest(method, h.http.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		var obj map[string]any
		var arr []any
		if err := json.Unmarshal(raw, &obj); err != nil {
			_ = json.Unmarshal(raw, &arr)
		}
		return resp, obj, arr
	}

	resp, _, list := do("GET", "/api/sessions")
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d %v", resp.StatusCode, list)
	}

	resp, doc, _ := do("GET", "/api/sessions/2026-03-01-090000")
	if resp.StatusCode != http.StatusOK || doc["version"] != "1.0" || doc["session_id"] != "2026-03-01-090000" {
		t.Errorf("get = %d %v", resp.StatusCode, doc)
	}

	for _, path := range []string{"/api/sessions/missing", "/api/sessions/.hidden"} {
		resp, body, _ := do("GET", path)
		if resp.StatusCode != http.StatusNotFound || body["error"] != "Session not found" {
			t.Errorf("GET %s = %d %v", path, resp.StatusCode, body)
		}
	}

	for _, want := range []bool{true, false} {
		resp, body, _ := do("DELETE", "/api/sessions/2026-03-01-090000")
		if resp.StatusCode != http.StatusOK || body["deleted"] != want {
			t.Errorf("DELETE = %d %v, want deleted=%v", resp.StatusCode, body, want)
		}
	}

	resp, _, _ = do("GET", "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}
}

func TestNew_RequiresLLM(t *testing.T) {
	t.Parallel()
	if _, err := web.New(web.Config{}, web.Deps{}); err == nil {
		t.Fatal("expected an error without an LLM provider")
	}
}
