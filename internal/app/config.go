package app

import (
	"time"

	"github.com/lumenlms/tutor-backend/internal/pkg/envutil"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type Config struct {
	Env     string
	Version string

	Port        string
	MetricsAddr string

	// TutorConfigPath points at the optional YAML overriding session
	// behavior (prompts, pacing, rate limits).
	TutorConfigPath string

	SweepInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	sweepSeconds := envutil.GetEnvAsInt("SESSION_SWEEP_INTERVAL_SECONDS", 60, log)
	return Config{
		Env:             envutil.GetEnv("APP_ENV", "development", log),
		Version:         envutil.GetEnv("APP_VERSION", "dev", log),
		Port:            envutil.GetEnv("PORT", "8080", log),
		MetricsAddr:     envutil.GetEnv("METRICS_ADDR", ":9090", log),
		TutorConfigPath: envutil.GetEnv("TUTOR_CONFIG_PATH", "", log),
		SweepInterval:   time.Duration(sweepSeconds) * time.Second,
	}
}
