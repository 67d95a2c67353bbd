package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quorumworks/conclave/internal/config"
	"github.com/quorumworks/conclave/internal/council"
	"github.com/quorumworks/conclave/internal/store"
)

type stubRunner struct {
	turn *council.Turn
	err  error
	last string
}

func (r *stubRunner) RunTurn(_ context.Context, query string) (*council.Turn, error) {
	r.last = query
	if r.err != nil {
		return nil, r.err
	}
	return r.turn, nil
}

type stubRecorder struct {
	conversations map[string]store.Conversation
	appended      []string
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{conversations: map[string]store.Conversation{}}
}

func (r *stubRecorder) AppendTurn(id string, turn *council.Turn) (store.Conversation, error) {
	if id == "" {
		id = "conv-1"
	}
	conv := r.conversations[id]
	conv.ID = id
	conv.Turns = append(conv.Turns, *turn)
	r.conversations[id] = conv
	r.appended = append(r.appended, id)
	return conv, nil
}

func (r *stubRecorder) Load(id string) (store.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}
	return conv, nil
}

func (r *stubRecorder) List() ([]store.Summary, error) {
	var out []store.Summary
	for id, conv := range r.conversations {
		out = append(out, store.Summary{ID: id, Turns: len(conv.Turns)})
	}
	return out, nil
}

func completedTurn() *council.Turn {
	return &council.Turn{
		ID:     "turn-1",
		Query:  "q",
		Stage:  council.StageCompleted,
		Status: council.StatusCompleted,
		Stage3: &council.SynthesisResult{Answer: "the answer", Backend: "m1", Chairman: "m1"},
	}
}

func testServer(runner Runner, recorder Recorder) *Server {
	settings := SettingsFromConfig(nil)
	settings.Enabled = true
	return NewServer(settings, runner, recorder)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(&stubRunner{}, newStubRecorder())
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != ProtocolVersion {
		t.Fatalf("unexpected version %q", resp.Version)
	}
	if rec := doRequest(t, s, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health should be rejected, got %d", rec.Code)
	}
}

func TestPostTurnsRunsAndPersists(t *testing.T) {
	runner := &stubRunner{turn: completedTurn()}
	recorder := newStubRecorder()
	s := testServer(runner, recorder)

	rec := doRequest(t, s, http.MethodPost, "/turns", `{"query":"why is the sky blue?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	if runner.last != "why is the sky blue?" {
		t.Fatalf("query not forwarded: %q", runner.last)
	}
	var resp turnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-1" {
		t.Fatalf("expected fresh conversation id, got %q", resp.ConversationID)
	}
	if resp.Turn == nil || resp.Turn.Stage3 == nil || resp.Turn.Stage3.Answer != "the answer" {
		t.Fatalf("turn not returned: %+v", resp.Turn)
	}
	if len(recorder.appended) != 1 {
		t.Fatalf("turn not persisted: %v", recorder.appended)
	}
}

func TestPostTurnsContinuesConversation(t *testing.T) {
	runner := &stubRunner{turn: completedTurn()}
	recorder := newStubRecorder()
	recorder.conversations["conv-9"] = store.Conversation{ID: "conv-9"}
	s := testServer(runner, recorder)

	rec := doRequest(t, s, http.MethodPost, "/turns", `{"query":"q","conversation_id":"conv-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp turnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-9" {
		t.Fatalf("conversation id not threaded through: %q", resp.ConversationID)
	}
}

func TestPostTurnsValidation(t *testing.T) {
	s := testServer(&stubRunner{turn: completedTurn()}, newStubRecorder())
	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{nope", http.StatusBadRequest},
		{"missing query", `{"query":"   "}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := doRequest(t, s, http.MethodPost, "/turns", tc.body); rec.Code != tc.want {
				t.Fatalf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}
	if rec := doRequest(t, s, http.MethodGet, "/turns", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /turns should be rejected, got %d", rec.Code)
	}
}

func TestPostTurnsRejectsOversizedBody(t *testing.T) {
	settings := SettingsFromConfig(nil)
	settings.Enabled = true
	settings.MaxBodyBytes = 64
	s := NewServer(settings, &stubRunner{turn: completedTurn()}, newStubRecorder())
	body := fmt.Sprintf(`{"query":%q}`, strings.Repeat("x", 256))
	if rec := doRequest(t, s, http.MethodPost, "/turns", body); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", rec.Code)
	}
}

func TestPostTurnsEngineErrorIs500(t *testing.T) {
	s := testServer(&stubRunner{err: fmt.Errorf("broken template")}, newStubRecorder())
	if rec := doRequest(t, s, http.MethodPost, "/turns", `{"query":"q"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rec.Code)
	}
}

func TestGetConversation(t *testing.T) {
	recorder := newStubRecorder()
	recorder.conversations["conv-1"] = store.Conversation{ID: "conv-1", Turns: []council.Turn{*completedTurn()}}
	s := testServer(&stubRunner{}, recorder)

	rec := doRequest(t, s, http.MethodGet, "/conversations/conv-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var conv store.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conv.ID != "conv-1" || len(conv.Turns) != 1 {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	if rec := doRequest(t, s, http.MethodGet, "/conversations/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing conversation should 404, got %d", rec.Code)
	}
}

func TestListConversations(t *testing.T) {
	recorder := newStubRecorder()
	recorder.conversations["conv-1"] = store.Conversation{ID: "conv-1"}
	s := testServer(&stubRunner{}, recorder)

	rec := doRequest(t, s, http.MethodGet, "/conversations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var summaries []store.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "conv-1" {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
}

func TestSettingsEnvOverrides(t *testing.T) {
	t.Setenv("CONCLAVE_SERVER_ENABLED", "true")
	t.Setenv("CONCLAVE_SERVER_HOST", "0.0.0.0")
	t.Setenv("CONCLAVE_SERVER_PORT", "9000")
	settings := SettingsFromConfig(&config.Config{})
	if !settings.Enabled || settings.Host != "0.0.0.0" || settings.Port != 9000 {
		t.Fatalf("env overrides not applied: %+v", settings)
	}
	if settings.Address() != "0.0.0.0:9000" {
		t.Fatalf("unexpected address %q", settings.Address())
	}
}

func TestStartRefusesWhenDisabled(t *testing.T) {
	settings := SettingsFromConfig(nil)
	settings.Enabled = false
	s := NewServer(settings, &stubRunner{}, newStubRecorder())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error when disabled")
	}
}
