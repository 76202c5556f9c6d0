package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lumenlms/tutor-backend/internal/db"
	apphttp "github.com/lumenlms/tutor-backend/internal/http"
	"github.com/lumenlms/tutor-backend/internal/observability"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"github.com/lumenlms/tutor-backend/internal/realtime"
	"github.com/lumenlms/tutor-backend/internal/realtime/bus"
	"github.com/lumenlms/tutor-backend/internal/session"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Registry *session.Registry
	SSEHub   *realtime.SSEHub
	Bus      bus.Bus
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	sessionCfg, err := session.LoadConfig(cfg.TutorConfigPath)
	if err != nil {
		log.Warn("tutor config load failed, using defaults", "error", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "tutor-backend",
		Environment: cfg.Env,
		Version:     cfg.Version,
	})

	ssehub := realtime.NewSSEHub(log)

	var eventBus bus.Bus
	if clientset.Redis != nil {
		eventBus, err = bus.NewRedisBus(log, clientset.Redis)
		if err != nil {
			log.Warn("redis event bus unavailable, events stay in-process", "error", err)
			eventBus = nil
		}
	}
	var publisher realtime.Publisher
	if eventBus != nil {
		publisher = eventBus
	}
	notifier := realtime.NewHubNotifier(log, ssehub, publisher)

	reposet := wireRepos(theDB, log)

	registry, err := wireSessionRegistry(log, sessionCfg, clientset, reposet, notifier)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, registry, ssehub, theDB, clientset.Redis)
	middlewareset, err := wireMiddleware(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	router := wireRouter(log, handlerset, middlewareset, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Clients:      clientset,
		Repos:        reposet,
		Registry:     registry,
		SSEHub:       ssehub,
		Bus:          eventBus,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves until ctx is cancelled: the HTTP listener, the idle-session
// sweeper, the cross-process event forwarder, and the metrics listener.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, func(m realtime.SSEMessage) {
			a.SSEHub.Broadcast(m)
		}); err != nil {
			a.Log.Warn("event forwarder failed to start", "error", err)
		}
	}

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartRedisProbe(ctx, a.Log, a.Clients.Redis)

	server := &apphttp.Server{Engine: a.Router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Server listening", "port", a.Cfg.Port)
		return server.Run(gctx, ":"+a.Cfg.Port)
	})
	g.Go(func() error {
		a.Registry.Run(gctx, a.Cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.Metrics.SetSessionsActive(a.Registry.Size())
			}
		}
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Clients.Speech != nil {
		_ = a.Clients.Speech.Close()
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
