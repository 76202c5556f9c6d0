package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tunable behavior of a tutoring session. Values come
// from defaults, optionally overridden by a YAML file (TUTOR_CONFIG_PATH).
type Config struct {
	// SystemPrompt is prepended to every tutoring-chat call.
	SystemPrompt string
	// WelcomeMessage opens a fresh session. The welcome turn does not
	// start the countdown timer.
	WelcomeMessage string
	// Voice selects the synthesis voice.
	Voice string

	// HistoryLimit bounds how many prior turns accompany each chat call.
	HistoryLimit int

	// RatePerMinute and Burst parameterize the per-user token bucket.
	RatePerMinute float64
	Burst         int

	// BaseRevealDelay is the per-word reveal delay used when no audio
	// duration hint is available.
	BaseRevealDelay time.Duration

	// SnapshotTTL bounds how long an abandoned snapshot survives.
	SnapshotTTL time.Duration

	// ThreatPatterns, when set, replaces the built-in injection patterns.
	ThreatPatterns []string
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:    "You are a friendly, encouraging course tutor. Keep answers short and conversational.",
		WelcomeMessage:  "Hi! I'm your course tutor. Ask me anything about the material whenever you're ready.",
		Voice:           "alloy",
		HistoryLimit:    10,
		RatePerMinute:   10,
		Burst:           3,
		BaseRevealDelay: 120 * time.Millisecond,
		SnapshotTTL:     7 * 24 * time.Hour,
	}
}

// fileConfig is the YAML shape of Config. Durations are written as strings
// ("120ms", "168h") and parsed here.
type fileConfig struct {
	SystemPrompt    string   `yaml:"system_prompt"`
	WelcomeMessage  string   `yaml:"welcome_message"`
	Voice           string   `yaml:"voice"`
	HistoryLimit    int      `yaml:"history_limit"`
	RatePerMinute   float64  `yaml:"rate_per_minute"`
	Burst           int      `yaml:"burst"`
	BaseRevealDelay string   `yaml:"base_reveal_delay"`
	SnapshotTTL     string   `yaml:"snapshot_ttl"`
	ThreatPatterns  []string `yaml:"threat_patterns"`
}

func (f fileConfig) revealDelay() (time.Duration, error) {
	if f.BaseRevealDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(f.BaseRevealDelay)
}

func (f fileConfig) snapshotTTL() (time.Duration, error) {
	if f.SnapshotTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(f.SnapshotTTL)
}

// LoadConfig returns defaults merged with the YAML file at path, when path
// is non-empty. Unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read tutor config: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse tutor config: %w", err)
	}
	if file.SystemPrompt != "" {
		cfg.SystemPrompt = file.SystemPrompt
	}
	if file.WelcomeMessage != "" {
		cfg.WelcomeMessage = file.WelcomeMessage
	}
	if file.Voice != "" {
		cfg.Voice = file.Voice
	}
	if file.HistoryLimit > 0 {
		cfg.HistoryLimit = file.HistoryLimit
	}
	if file.RatePerMinute > 0 {
		cfg.RatePerMinute = file.RatePerMinute
	}
	if file.Burst > 0 {
		cfg.Burst = file.Burst
	}
	if d, derr := file.revealDelay(); derr != nil {
		return cfg, fmt.Errorf("parse base_reveal_delay: %w", derr)
	} else if d > 0 {
		cfg.BaseRevealDelay = d
	}
	if d, derr := file.snapshotTTL(); derr != nil {
		return cfg, fmt.Errorf("parse snapshot_ttl: %w", derr)
	} else if d > 0 {
		cfg.SnapshotTTL = d
	}
	if len(file.ThreatPatterns) > 0 {
		cfg.ThreatPatterns = file.ThreatPatterns
	}
	return cfg, nil
}
