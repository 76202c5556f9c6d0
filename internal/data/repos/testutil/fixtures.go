package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/lumenlms/tutor-backend/internal/domain"
)

func SeedProgress(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, percent int) *types.ProgressRecord {
	tb.Helper()
	rec := &types.ProgressRecord{
		ID:                uuid.New(),
		UserID:            userID,
		CourseID:          courseID,
		ProgressPercent:   percent,
		TotalInteractions: percent / 10,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed progress: %v", err)
	}
	return rec
}

func SeedSecurityEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, typ, severity string) *types.SecurityEvent {
	tb.Helper()
	ev := &types.SecurityEvent{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     typ,
		Severity: severity,
		Details:  datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		tb.Fatalf("seed security event: %v", err)
	}
	return ev
}

func PtrTime(v time.Time) *time.Time { return &v }
