package app

import (
	"fmt"

	redisclient "github.com/lumenlms/tutor-backend/internal/clients/redis"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"github.com/lumenlms/tutor-backend/internal/session"
)

// wireSessionRegistry assembles the session machinery: snapshot store and
// rate limiter (redis-backed when redis is up), the turn pipeline, and the
// controller registry. Audio playback confirmation lives in the browser,
// so the server side runs the accepting player with a gesture-aware
// capability profile.
func wireSessionRegistry(log *logger.Logger, cfg session.Config, clients Clients, reposet Repos, notifier session.Notifier) (*session.Registry, error) {
	log.Info("Wiring session registry...")

	var store session.SnapshotStore
	var limiter session.RateLimiter
	if clients.Redis != nil {
		store = redisclient.NewSnapshotStore(log, clients.Redis, cfg.SnapshotTTL)
		limiter = redisclient.NewRateLimiter(log, clients.Redis, cfg.RatePerMinute, cfg.Burst)
	} else {
		store = session.NewMemorySnapshotStore()
		limiter = session.NewMemoryRateLimiter(cfg.RatePerMinute, cfg.Burst)
	}

	pipeline, err := session.NewPipeline(log, cfg, limiter, reposet.SecurityEvent, clients.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	deps := session.Deps{
		Store:      store,
		Pipeline:   pipeline,
		TTS:        clients.OpenAI,
		Player:     session.NopPlayer{},
		Capability: session.StaticCapability{},
		STT:        clients.Speech,
		Mic:        session.OpenMicrophone{},
		Progress:   reposet.Progress,
		Notifier:   notifier,
	}
	return session.NewRegistry(log, cfg, deps), nil
}
