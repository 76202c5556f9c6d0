package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	types "github.com/lumenlms/tutor-backend/internal/domain"
)

// SnapshotStore persists the in-progress transcript and progress for one
// (user, course) pair. It is consulted exactly once at session start to
// choose between resume and initialize.
//
// Load returns (nil, nil) for absent or corrupt entries: a snapshot that
// cannot be decoded is treated as absence, never surfaced to the learner.
// Save failures wrap errs.ErrStorageUnavailable; the session then continues
// in memory only.
type SnapshotStore interface {
	Save(ctx context.Context, userID, courseID uuid.UUID, snap *types.SessionSnapshot) error
	Load(ctx context.Context, userID, courseID uuid.UUID) (*types.SessionSnapshot, error)
	Clear(ctx context.Context, userID, courseID uuid.UUID) error
}

// MemorySnapshotStore keeps snapshots in process memory. Used in tests and
// in redis-less deployments, where resuming only survives as long as the
// process does.
type MemorySnapshotStore struct {
	mu sync.RWMutex
	m  map[string]types.SessionSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{m: make(map[string]types.SessionSnapshot)}
}

func snapshotKey(userID, courseID uuid.UUID) string {
	return userID.String() + ":" + courseID.String()
}

func (s *MemorySnapshotStore) Save(_ context.Context, userID, courseID uuid.UUID, snap *types.SessionSnapshot) error {
	if snap == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	cp.Transcript = append([]types.ConversationTurn(nil), snap.Transcript...)
	s.m[snapshotKey(userID, courseID)] = cp
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, userID, courseID uuid.UUID) (*types.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.m[snapshotKey(userID, courseID)]
	if !ok {
		return nil, nil
	}
	cp := snap
	cp.Transcript = append([]types.ConversationTurn(nil), snap.Transcript...)
	return &cp, nil
}

func (s *MemorySnapshotStore) Clear(_ context.Context, userID, courseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, snapshotKey(userID, courseID))
	return nil
}
