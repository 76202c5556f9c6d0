package session

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/dbctx"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type SecurityEventRepo interface {
	Create(dbc dbctx.Context, ev *types.SecurityEvent) (*types.SecurityEvent, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.SecurityEvent, error)
}

type securityEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSecurityEventRepo(db *gorm.DB, log *logger.Logger) SecurityEventRepo {
	return &securityEventRepo{db: db, log: log.With("repo", "SecurityEventRepo")}
}

func (r *securityEventRepo) Create(dbc dbctx.Context, ev *types.SecurityEvent) (*types.SecurityEvent, error) {
	if ev == nil {
		return nil, fmt.Errorf("missing event")
	}
	if ev.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *securityEventRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.SecurityEvent, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SecurityEvent
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.SecurityEvent{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
