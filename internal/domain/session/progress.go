package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressRecord is the remote source of truth for a learner's completion
// state on one course. The controller's in-memory copy is a cache reconciled
// last-write-wins on every interaction. CompletedAt is set exactly once, the
// first time ProgressPercent reaches 100.
type ProgressRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_progress_user_course,unique,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index:idx_progress_user_course,unique,priority:2" json:"course_id"`

	ProgressPercent   int `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	TotalInteractions int `gorm:"column:total_interactions;not null;default:0" json:"total_interactions"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProgressRecord) TableName() string { return "progress_record" }
