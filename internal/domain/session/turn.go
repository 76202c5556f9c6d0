package session

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in a tutoring transcript. The transcript
// is append-only while a session is live.
type ConversationTurn struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
}

// SessionSnapshot is the persisted (transcript + progress) pair for one
// (user, course). Overwritten on every transcript or progress change and
// deleted on normal session end or explicit reset.
type SessionSnapshot struct {
	Transcript      []ConversationTurn `json:"transcript"`
	ProgressPercent int                `json:"progress_percent"`
	SavedAt         time.Time          `json:"saved_at"`
}
