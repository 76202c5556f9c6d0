package session

import "github.com/google/uuid"

// Event names published to the realtime hub for one learner's session.
const (
	EventRevealPartial    = "RevealPartial"
	EventAudioPending     = "AudioPending"
	EventSessionCompleted = "SessionCompleted"
	EventSessionExpired   = "SessionExpired"
	EventSessionEnded     = "SessionEnded"
)

// Notifier pushes session events to the learner's client. Implemented by
// the SSE hub adapter in app wiring; a no-op stands in for tests.
type Notifier interface {
	Publish(userID uuid.UUID, event string, data map[string]any)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Publish(uuid.UUID, string, map[string]any) {}
