package repos

import (
	"github.com/lumenlms/tutor-backend/internal/data/repos/session"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type ProgressRepo = session.ProgressRepo
type SecurityEventRepo = session.SecurityEventRepo

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return session.NewProgressRepo(db, baseLog)
}

func NewSecurityEventRepo(db *gorm.DB, baseLog *logger.Logger) SecurityEventRepo {
	return session.NewSecurityEventRepo(db, baseLog)
}
