package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := testConfig()
	deps := Deps{
		Store:      NewMemorySnapshotStore(),
		Pipeline:   mustPipeline(t, cfg, allowAllLimiter{}, &fakeSecurityRepo{}, &fakeChatClient{}),
		TTS:        &fakeTTS{},
		Player:     &fakePlayer{},
		Capability: StaticCapability{},
		Mic:        OpenMicrophone{},
	}
	return NewRegistry(mustTestLogger(t), cfg, deps)
}

func TestRegistryObtainReusesController(t *testing.T) {
	r := newTestRegistry(t)
	user, course := uuid.New(), uuid.New()

	a := r.Obtain(user, course)
	b := r.Obtain(user, course)
	if a != b {
		t.Fatalf("Obtain returned a second controller for the same pair")
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}

	other := r.Obtain(user, uuid.New())
	if other == a {
		t.Fatalf("different course shares a controller")
	}
	if r.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", r.Size())
	}
}

func TestRegistryLookupNeverCreates(t *testing.T) {
	r := newTestRegistry(t)
	user, course := uuid.New(), uuid.New()

	if got := r.Lookup(user, course); got != nil {
		t.Fatalf("Lookup created a controller")
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d after Lookup, want 0", r.Size())
	}

	created := r.Obtain(user, course)
	if got := r.Lookup(user, course); got != created {
		t.Fatalf("Lookup missed an existing controller")
	}
}

func TestRegistryDrop(t *testing.T) {
	r := newTestRegistry(t)
	user, course := uuid.New(), uuid.New()

	r.Obtain(user, course)
	r.Drop(user, course)
	if r.Lookup(user, course) != nil {
		t.Fatalf("controller survived Drop")
	}
}

func TestRegistrySweepEvictsIdle(t *testing.T) {
	r := newTestRegistry(t)
	r.SetIdleAfter(10 * time.Millisecond)
	user, course := uuid.New(), uuid.New()

	ctrl := r.Obtain(user, course)
	if _, err := ctrl.Start(context.Background(), StartOptions{CourseTitle: "Intro to Go"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Still fresh: nothing to sweep.
	if n := r.Sweep(context.Background()); n != 0 {
		t.Fatalf("Sweep evicted %d fresh sessions", n)
	}

	time.Sleep(25 * time.Millisecond)
	if n := r.Sweep(context.Background()); n != 1 {
		t.Fatalf("Sweep evicted %d sessions, want 1", n)
	}
	if r.Lookup(user, course) != nil {
		t.Fatalf("idle controller still registered after sweep")
	}
	// Eviction ends the session so its snapshot is already saved.
	if ctrl.State().Phase != PhaseEnded {
		t.Fatalf("swept session phase = %q, want ended", ctrl.State().Phase)
	}
}

func TestRegistrySweepKeepsActive(t *testing.T) {
	r := newTestRegistry(t)
	r.SetIdleAfter(time.Hour)
	r.Obtain(uuid.New(), uuid.New())

	if n := r.Sweep(context.Background()); n != 0 {
		t.Fatalf("Sweep evicted %d active sessions", n)
	}
	if r.Size() != 1 {
		t.Fatalf("active controller evicted")
	}
}
