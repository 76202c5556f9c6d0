package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/data/repos"
	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/dbctx"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// ProgressPerInteraction is the fixed share of completion each user turn is
// worth. Ten interactions count as a completed course regardless of
// course length.
const ProgressPerInteraction = 10

// Tracker derives completion from interaction count, persists it, and
// raises the completion event exactly once per session lifecycle.
type Tracker struct {
	log      *logger.Logger
	repo     repos.ProgressRepo
	notify   Notifier
	userID   uuid.UUID
	courseID uuid.UUID

	mu             sync.Mutex
	percent        int
	completedFired bool
}

func NewTracker(log *logger.Logger, repo repos.ProgressRepo, notify Notifier, userID, courseID uuid.UUID) *Tracker {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Tracker{
		log:      log.With("component", "Tracker"),
		repo:     repo,
		notify:   notify,
		userID:   userID,
		courseID: courseID,
	}
}

// Seed primes the in-memory percent from a resumed snapshot so progress
// stays monotonic across reloads.
func (t *Tracker) Seed(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if percent > t.percent {
		t.percent = percent
	}
	if t.percent >= 100 {
		// A resumed completed session must not re-fire the celebration.
		t.completedFired = true
	}
}

// Update recomputes progress from the interaction count and persists it.
// The returned percent never decreases within one lifecycle; CompletedAt is
// written only on the first transition to 100.
func (t *Tracker) Update(ctx context.Context, interactions int) (int, error) {
	p := interactions * ProgressPerInteraction
	if p > 100 {
		p = 100
	}

	t.mu.Lock()
	if p < t.percent {
		p = t.percent
	}
	completedNow := p >= 100 && t.percent < 100 && !t.completedFired
	if completedNow {
		t.completedFired = true
	}
	t.percent = p
	t.mu.Unlock()

	rec := &types.ProgressRecord{
		UserID:            t.userID,
		CourseID:          t.courseID,
		ProgressPercent:   p,
		TotalInteractions: interactions,
	}
	if completedNow {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}

	var err error
	if t.repo != nil {
		_, err = t.repo.Upsert(dbctx.Context{Ctx: ctx}, rec)
		if err != nil {
			t.log.Warn("progress persist failed", "user_id", t.userID, "course_id", t.courseID, "error", err)
		}
	}

	if completedNow {
		t.notify.Publish(t.userID, EventSessionCompleted, map[string]any{
			"course_id": t.courseID.String(),
			"progress":  p,
		})
	}
	return p, err
}

// Reset starts a new progress lifecycle: percent returns to zero and the
// completion event may fire again once the learner works back up to 100.
// The persisted record keeps its first CompletedAt; only the in-memory
// lifecycle restarts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.percent = 0
	t.completedFired = false
	t.mu.Unlock()
}

// Percent returns the cached completion percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}
