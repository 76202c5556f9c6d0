package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/lumenlms/tutor-backend/internal/http/handlers"
	httpMW "github.com/lumenlms/tutor-backend/internal/http/middleware"
	"github.com/lumenlms/tutor-backend/internal/observability"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware  *httpMW.AuthMiddleware
	SessionHandler  *httpH.SessionHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler

	Metrics *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("tutor-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readycheck", cfg.HealthHandler.ReadyCheck)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/session/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Tutoring session
		if cfg.SessionHandler != nil {
			s := protected.Group("/session/:courseID")
			s.POST("/start", cfg.SessionHandler.Start)
			s.GET("/state", cfg.SessionHandler.State)
			s.POST("/message", cfg.SessionHandler.Message)
			s.POST("/voice/start", cfg.SessionHandler.VoiceStart)
			s.POST("/voice/chunk", cfg.SessionHandler.VoiceChunk)
			s.POST("/voice/stop", cfg.SessionHandler.VoiceStop)
			s.POST("/audio/manual-play", cfg.SessionHandler.ManualPlay)
			s.POST("/audio/confirm", cfg.SessionHandler.PlaybackConfirm)
			s.POST("/audio/blocked", cfg.SessionHandler.PlaybackBlocked)
			s.POST("/audio/toggle", cfg.SessionHandler.ToggleAudio)
			s.POST("/reveal-all", cfg.SessionHandler.RevealAll)
			s.POST("/end", cfg.SessionHandler.End)
			s.POST("/reset", cfg.SessionHandler.Reset)
		}
	}

	return r
}
