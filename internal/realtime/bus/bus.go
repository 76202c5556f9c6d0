package bus

import (
	"context"

	"github.com/lumenlms/tutor-backend/internal/realtime"
)

// Bus fans session events across processes. Each instance publishes its
// own events and forwards everything it hears into the local hub, so a
// learner's tabs see the same stream no matter which replica they hit.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
