package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SecuritySeverityCritical = "critical"
	SecuritySeverityWarning  = "warning"

	SecurityEventInjectionAttempt = "injection_attempt"
)

// SecurityEvent records a rejected input (threat-scan match). Written
// fire-and-forget; the rejected message itself is never stored verbatim.
type SecurityEvent struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Type     string         `gorm:"column:type;not null;index" json:"type"`
	Severity string         `gorm:"column:severity;not null;index" json:"severity"`
	Details  datatypes.JSON `gorm:"type:jsonb;column:details;not null;default:'{}'" json:"details,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (SecurityEvent) TableName() string { return "security_event" }
