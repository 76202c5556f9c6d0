package app

import (
	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenlms/tutor-backend/internal/clients/gcp"
	"github.com/lumenlms/tutor-backend/internal/clients/openai"
	redisclient "github.com/lumenlms/tutor-backend/internal/clients/redis"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type Clients struct {
	OpenAI openai.Client
	Speech gcp.Speech
	Redis  *goredis.Client
}

// wireClients connects the remote dependencies. OpenAI is required; speech
// and redis degrade (no voice input, in-process stores) when unconfigured.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	oa, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, err
	}

	speech, err := gcp.NewSpeech(log)
	if err != nil {
		log.Warn("GCP speech unavailable, voice input disabled", "error", err)
		speech = nil
	}

	rdb, err := redisclient.NewClient(log)
	if err != nil {
		log.Warn("Redis unavailable, using in-process session stores", "error", err)
		rdb = nil
	}

	return Clients{OpenAI: oa, Speech: speech, Redis: rdb}, nil
}
