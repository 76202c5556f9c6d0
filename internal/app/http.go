package app

import (
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/lumenlms/tutor-backend/internal/http"
	httpH "github.com/lumenlms/tutor-backend/internal/http/handlers"
	httpMW "github.com/lumenlms/tutor-backend/internal/http/middleware"
	"github.com/lumenlms/tutor-backend/internal/observability"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"github.com/lumenlms/tutor-backend/internal/realtime"
	"github.com/lumenlms/tutor-backend/internal/session"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Session  *httpH.SessionHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, registry *session.Registry, hub *realtime.SSEHub, db *gorm.DB, rdb *goredis.Client) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db, rdb),
		Session:  httpH.NewSessionHandler(log, registry),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger) (Middleware, error) {
	log.Info("Wiring middleware...")
	auth, err := httpMW.NewAuthMiddleware(log)
	if err != nil {
		return Middleware{}, err
	}
	return Middleware{Auth: auth}, nil
}

func wireRouter(log *logger.Logger, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		HealthHandler:   handlers.Health,
		SessionHandler:  handlers.Session,
		RealtimeHandler: handlers.Realtime,
		AuthMiddleware:  middleware.Auth,
		Metrics:         metrics,
	})
}
