package app

import (
	"gorm.io/gorm"

	"github.com/lumenlms/tutor-backend/internal/data/repos"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type Repos struct {
	Progress      repos.ProgressRepo
	SecurityEvent repos.SecurityEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Progress:      repos.NewProgressRepo(db, log),
		SecurityEvent: repos.NewSecurityEventRepo(db, log),
	}
}
