package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestTrackerProgressScale(t *testing.T) {
	tests := []struct {
		interactions int
		want         int
	}{
		{0, 0},
		{1, 10},
		{5, 50},
		{10, 100},
		{11, 100},
		{50, 100},
	}
	for _, tt := range tests {
		repo := &fakeProgressRepo{}
		tr := NewTracker(mustTestLogger(t), repo, nil, uuid.New(), uuid.New())
		got, err := tr.Update(context.Background(), tt.interactions)
		if err != nil {
			t.Fatalf("Update(%d): %v", tt.interactions, err)
		}
		if got != tt.want {
			t.Fatalf("Update(%d) = %d, want %d", tt.interactions, got, tt.want)
		}
		if repo.lastPercent() != tt.want {
			t.Fatalf("persisted percent = %d, want %d", repo.lastPercent(), tt.want)
		}
	}
}

func TestTrackerMonotonic(t *testing.T) {
	repo := &fakeProgressRepo{}
	tr := NewTracker(mustTestLogger(t), repo, nil, uuid.New(), uuid.New())

	if got, _ := tr.Update(context.Background(), 5); got != 50 {
		t.Fatalf("Update(5) = %d, want 50", got)
	}
	// A lower interaction count must never walk progress backwards.
	if got, _ := tr.Update(context.Background(), 3); got != 50 {
		t.Fatalf("Update(3) after 50%% = %d, want 50", got)
	}
	if tr.Percent() != 50 {
		t.Fatalf("Percent() = %d, want 50", tr.Percent())
	}
}

func TestTrackerCompletionFiresOnce(t *testing.T) {
	repo := &fakeProgressRepo{}
	notify := &recordingNotifier{}
	tr := NewTracker(mustTestLogger(t), repo, notify, uuid.New(), uuid.New())

	for i := 1; i <= 12; i++ {
		if _, err := tr.Update(context.Background(), i); err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
	}

	if repo.completedSets != 1 {
		t.Fatalf("CompletedAt written %d times, want exactly 1", repo.completedSets)
	}
	if got := notify.countOf(EventSessionCompleted); got != 1 {
		t.Fatalf("completion event published %d times, want exactly 1", got)
	}
}

func TestTrackerResetStartsNewLifecycle(t *testing.T) {
	repo := &fakeProgressRepo{}
	notify := &recordingNotifier{}
	tr := NewTracker(mustTestLogger(t), repo, notify, uuid.New(), uuid.New())

	for i := 1; i <= 10; i++ {
		if _, err := tr.Update(context.Background(), i); err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
	}
	if tr.Percent() != 100 {
		t.Fatalf("percent before reset = %d, want 100", tr.Percent())
	}

	tr.Reset()
	if tr.Percent() != 0 {
		t.Fatalf("percent after reset = %d, want 0", tr.Percent())
	}

	// The new lifecycle earns progress from zero and may complete again.
	if got, _ := tr.Update(context.Background(), 1); got != 10 {
		t.Fatalf("first post-reset update = %d, want 10", got)
	}
	for i := 2; i <= 10; i++ {
		if _, err := tr.Update(context.Background(), i); err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
	}
	if got := notify.countOf(EventSessionCompleted); got != 2 {
		t.Fatalf("completion event published %d times across two lifecycles, want 2", got)
	}
}

func TestTrackerSeedSuppressesRepeatCompletion(t *testing.T) {
	repo := &fakeProgressRepo{}
	notify := &recordingNotifier{}
	tr := NewTracker(mustTestLogger(t), repo, notify, uuid.New(), uuid.New())

	// Resuming an already-completed session must not celebrate again.
	tr.Seed(100)
	if _, err := tr.Update(context.Background(), 15); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if repo.completedSets != 0 {
		t.Fatalf("CompletedAt rewritten on resume, want 0 writes")
	}
	if got := notify.countOf(EventSessionCompleted); got != 0 {
		t.Fatalf("completion event re-fired %d times on resume", got)
	}
}

func TestTrackerSeedIsMonotonic(t *testing.T) {
	tr := NewTracker(mustTestLogger(t), &fakeProgressRepo{}, nil, uuid.New(), uuid.New())
	tr.Seed(40)
	tr.Seed(20)
	if tr.Percent() != 40 {
		t.Fatalf("Percent() = %d after lower seed, want 40", tr.Percent())
	}
}

func TestTrackerSurvivesNilRepo(t *testing.T) {
	tr := NewTracker(mustTestLogger(t), nil, nil, uuid.New(), uuid.New())
	got, err := tr.Update(context.Background(), 2)
	if err != nil {
		t.Fatalf("Update with nil repo: %v", err)
	}
	if got != 20 {
		t.Fatalf("Update(2) = %d, want 20", got)
	}
}
