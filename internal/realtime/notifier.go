package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// Publisher is the cross-process leg of event delivery; the redis bus
// implements it. Single-process deployments run without one.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// HubNotifier routes session events to the learner's channel. With a bus
// attached it publishes there and lets the forwarder feed the local hub;
// without one it broadcasts directly.
type HubNotifier struct {
	log *logger.Logger
	hub *SSEHub
	bus Publisher
}

func NewHubNotifier(log *logger.Logger, hub *SSEHub, bus Publisher) *HubNotifier {
	return &HubNotifier{
		log: log.With("component", "HubNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *HubNotifier) Publish(userID uuid.UUID, event string, data map[string]any) {
	msg := SSEMessage{
		Channel: userID.String(),
		Event:   SSEEvent(event),
		Data:    data,
	}
	if n.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.log.Warn("bus publish failed, falling back to local hub", "event", event, "error", err)
			n.hub.Broadcast(msg)
		}
		return
	}
	n.hub.Broadcast(msg)
}
