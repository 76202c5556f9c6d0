package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/lumenlms/tutor-backend/internal/domain"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// SnapshotStore persists session snapshots in redis under a TTL, so an
// abandoned session eventually evaporates instead of resuming months
// later. A snapshot that fails to decode reads as absent; the learner gets
// a fresh session, never an error page.
type SnapshotStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSnapshotStore(log *logger.Logger, rdb *goredis.Client, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SnapshotStore{
		log: log.With("service", "RedisSnapshotStore"),
		rdb: rdb,
		ttl: ttl,
	}
}

func snapshotKey(userID, courseID uuid.UUID) string {
	return fmt.Sprintf("session:snapshot:%s:%s", userID, courseID)
}

func (s *SnapshotStore) Save(ctx context.Context, userID, courseID uuid.UUID, snap *types.SessionSnapshot) error {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, snapshotKey(userID, courseID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", errs.ErrStorageUnavailable)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, userID, courseID uuid.UUID) (*types.SessionSnapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKey(userID, courseID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", errs.ErrStorageUnavailable)
	}
	var snap types.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("discarding undecodable snapshot", "user_id", userID, "course_id", courseID, "error", err)
		_ = s.rdb.Del(ctx, snapshotKey(userID, courseID)).Err()
		return nil, nil
	}
	return &snap, nil
}

func (s *SnapshotStore) Clear(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.rdb.Del(ctx, snapshotKey(userID, courseID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", errs.ErrStorageUnavailable)
	}
	return nil
}
