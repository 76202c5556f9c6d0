package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/dbctx"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type ProgressRepo interface {
	Get(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.ProgressRecord, error)
	// Upsert writes progress keyed by (user, course). CompletedAt is only
	// ever written forward; an existing non-null value is preserved.
	Upsert(dbc dbctx.Context, rec *types.ProgressRecord) (*types.ProgressRecord, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, log *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: log.With("repo", "ProgressRepo")}
}

func (r *progressRepo) Get(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.ProgressRecord, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if courseID == uuid.Nil {
		return nil, fmt.Errorf("missing course_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.ProgressRecord
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *progressRepo) Upsert(dbc dbctx.Context, rec *types.ProgressRecord) (*types.ProgressRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("missing record")
	}
	if rec.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if rec.CourseID == uuid.Nil {
		return nil, fmt.Errorf("missing course_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.UpdatedAt = time.Now().UTC()

	assignments := map[string]interface{}{
		"progress_percent":   rec.ProgressPercent,
		"total_interactions": rec.TotalInteractions,
		"updated_at":         rec.UpdatedAt,
	}
	if rec.CompletedAt != nil {
		// Keep the first completion timestamp if one is already set.
		assignments["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", *rec.CompletedAt)
	}

	err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}
