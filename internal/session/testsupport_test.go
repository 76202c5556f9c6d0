package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/clients/gcp"
	"github.com/lumenlms/tutor-backend/internal/clients/openai"
	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/dbctx"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeChatClient struct {
	mu      sync.Mutex
	calls   []openai.ChatRequest
	reply   string
	variant string
	err     error
	block   chan struct{} // when set, TutorReply waits on it
}

func (f *fakeChatClient) TutorReply(ctx context.Context, req openai.ChatRequest) (*openai.ChatReply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	reply := f.reply
	if reply == "" {
		reply = "Sure, let me explain that."
	}
	return &openai.ChatReply{Reply: reply, SpeechVariant: f.variant}, nil
}

func (f *fakeChatClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTTS struct {
	mu    sync.Mutex
	calls []string
	err   error
	dur   time.Duration
}

func (f *fakeTTS) Synthesize(_ context.Context, text, _ string) (*openai.Synthesis, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &openai.Synthesis{Audio: []byte("mp3"), MimeType: "audio/mpeg", EstimatedDuration: f.dur}, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePlayer struct {
	mu    sync.Mutex
	plays int
	stops int
	err   error
	dur   time.Duration
}

func (f *fakePlayer) Play(_ context.Context, _ []byte, _ string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.plays++
	return f.dur, nil
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

type fakeSTT struct {
	text string
	err  error
	got  []byte
}

func (f *fakeSTT) TranscribeAudioBytes(_ context.Context, audio []byte, _ string, _ gcp.SpeechConfig) (*gcp.SpeechResult, error) {
	f.got = audio
	if f.err != nil {
		return nil, f.err
	}
	return &gcp.SpeechResult{Provider: "test", PrimaryText: f.text, Confidence: 0.9}, nil
}

type fakeProgressRepo struct {
	mu            sync.Mutex
	upserts       []*types.ProgressRecord
	completedSets int
}

func (f *fakeProgressRepo) Get(_ dbctx.Context, _, _ uuid.UUID) (*types.ProgressRecord, error) {
	return nil, nil
}

func (f *fakeProgressRepo) Upsert(_ dbctx.Context, rec *types.ProgressRecord) (*types.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.upserts = append(f.upserts, &cp)
	if rec.CompletedAt != nil {
		f.completedSets++
	}
	return &cp, nil
}

func (f *fakeProgressRepo) lastPercent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.upserts) == 0 {
		return -1
	}
	return f.upserts[len(f.upserts)-1].ProgressPercent
}

type fakeSecurityRepo struct {
	mu     sync.Mutex
	events []*types.SecurityEvent
}

func (f *fakeSecurityRepo) Create(_ dbctx.Context, ev *types.SecurityEvent) (*types.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeSecurityRepo) ListByUser(_ dbctx.Context, _ uuid.UUID, _ int) ([]*types.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, nil
}

func (f *fakeSecurityRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Publish(_ uuid.UUID, event string, _ map[string]any) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) countOf(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, uuid.UUID) (Decision, error) {
	return Decision{Allowed: true}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, uuid.UUID) (Decision, error) {
	return Decision{Allowed: false, RetryAfter: 5 * time.Second}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseRevealDelay = time.Millisecond
	return cfg
}

func mustPipeline(t *testing.T, cfg Config, limiter RateLimiter, sec *fakeSecurityRepo, chat *fakeChatClient) *Pipeline {
	t.Helper()
	p, err := NewPipeline(mustTestLogger(t), cfg, limiter, sec, chat)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

var errBoom = fmt.Errorf("boom")
