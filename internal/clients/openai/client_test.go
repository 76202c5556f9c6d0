package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return &client{
		log:        log.With("service", "openai.Client"),
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "gpt-4o-mini",
		ttsModel:   "tts-1",
		ttsVoice:   "alloy",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: 2,
	}
}

func chatCompletion(content string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return raw
}

func TestTutorReply(t *testing.T) {
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatCompletion(`{"reply":"A slice is a view over an array.","speech_variant":"A slice is a view over an array"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	reply, err := c.TutorReply(context.Background(), ChatRequest{
		Message:      "what is a slice?",
		SystemPrompt: "be brief",
		History: []types.ConversationTurn{
			{Role: types.RoleUser, Content: "hi"},
			{Role: types.RoleAssistant, Content: "hello"},
			{Role: "tool", Content: "dropped"},
		},
	})
	if err != nil {
		t.Fatalf("TutorReply: %v", err)
	}
	if reply.Reply != "A slice is a view over an array." {
		t.Fatalf("reply = %q", reply.Reply)
	}
	if reply.SpeechVariant == "" {
		t.Fatalf("speech variant missing")
	}

	if gotBody.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", gotBody.Model)
	}
	msgs := gotBody.Messages
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want system + 2 history + user", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be brief" {
		t.Fatalf("first message = %+v, want the system prompt", msgs[0])
	}
	if msgs[len(msgs)-1].Role != "user" || msgs[len(msgs)-1].Content != "what is a slice?" {
		t.Fatalf("last message = %+v, want the current user turn", msgs[len(msgs)-1])
	}
}

func TestTutorReplyPlainTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(chatCompletion("just a plain sentence, no JSON"))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv.URL).TutorReply(context.Background(), ChatRequest{Message: "q"})
	if err != nil {
		t.Fatalf("TutorReply: %v", err)
	}
	if reply.Reply != "just a plain sentence, no JSON" {
		t.Fatalf("reply = %q", reply.Reply)
	}
	if reply.SpeechVariant != "" {
		t.Fatalf("fallback invented a speech variant: %q", reply.SpeechVariant)
	}
}

func TestTutorReplyEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).TutorReply(context.Background(), ChatRequest{Message: "q"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestPostJSONDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).TutorReply(context.Background(), ChatRequest{Message: "q"})
	if err == nil {
		t.Fatalf("expected error for 400")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("400 retried: %d requests", got)
	}
}

func TestPostJSONRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write(chatCompletion(`{"reply":"recovered","speech_variant":""}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv.URL).TutorReply(context.Background(), ChatRequest{Message: "q"})
	if err != nil {
		t.Fatalf("TutorReply after retry: %v", err)
	}
	if reply.Reply != "recovered" {
		t.Fatalf("reply = %q", reply.Reply)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("made %d requests, want 2", got)
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Voice string `json:"voice"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Voice != "nova" {
			t.Errorf("voice = %q", body.Voice)
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	synth, err := newTestClient(t, srv.URL).Synthesize(context.Background(), "hello there friendly learner", "nova")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(synth.Audio) != "mp3-bytes" {
		t.Fatalf("audio = %q", synth.Audio)
	}
	if synth.MimeType != "audio/mpeg" {
		t.Fatalf("mime = %q", synth.MimeType)
	}
	if synth.EstimatedDuration <= 0 {
		t.Fatalf("estimated duration = %v", synth.EstimatedDuration)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	if _, err := newTestClient(t, "http://unused").Synthesize(context.Background(), "   ", ""); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestEstimateSpeechDuration(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
	}{
		{"", 0},
		{"one two three four five", 2 * time.Second},
		{strings.Repeat("word ", 25), 10 * time.Second},
	}
	for _, tt := range tests {
		if got := EstimateSpeechDuration(tt.text); got != tt.want {
			t.Fatalf("EstimateSpeechDuration(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
