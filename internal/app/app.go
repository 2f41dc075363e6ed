package app

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/reelforge-backend/internal/data/db"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
	"github.com/yungbote/reelforge-backend/internal/realtime/bus"
	"github.com/yungbote/reelforge-backend/internal/temporalx"
	"github.com/yungbote/reelforge-backend/internal/temporalx/temporalworker"
	"github.com/yungbote/reelforge-backend/internal/utils"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// New opens the database and wires every component. AUTO_MIGRATE (default
// true) runs schema migrations first.
func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}

	dbService, err := db.NewService(log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if utils.GetEnvAsBool("AUTO_MIGRATE", true, log) {
		if err := dbService.AutoMigrateAll(); err != nil {
			_ = dbService.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	theDB := dbService.DB()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName, cfg.Environment))
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)
	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     wireServices(log, cfg, reposet, clients),
		SSEHub:       realtime.NewSSEHub(log),
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Migrate runs schema migrations against the configured database.
func (a *App) Migrate() error {
	return a.dbService.AutoMigrateAll()
}

// Serve runs the HTTP API and the configured scheduler until ctx is done or
// one of them fails.
func (a *App) Serve(ctx context.Context) error {
	auth, err := wireMiddleware(a.Log, a.Cfg)
	if err != nil {
		return err
	}
	handlers := wireHandlers(a.Log, a.DB, a.Repos, a.Services, a.SSEHub)
	server := wireServer(a.Log, a.Cfg, handlers, auth, a.Metrics)

	if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		collectors := []observability.Collector{
			a.Metrics.AutomationCollector(a.DB),
			a.Metrics.PoolCollector(a.DB),
		}
		if rc := bus.ConfigFromEnv(); rc.Addr != "" {
			rdb := goredis.NewClient(rc.RedisOptions())
			go func() {
				<-ctx.Done()
				_ = rdb.Close()
			}()
			collectors = append(collectors, a.Metrics.RedisCollector(rdb))
		}
		a.Metrics.StartCollectors(ctx, a.Log, collectors...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return server.Run(gctx, a.Cfg.HTTPAddr)
	})
	switch a.Cfg.Scheduler {
	case SchedulerLoop:
		g.Go(func() error { return a.RunCronLoop(gctx) })
	case SchedulerTemporal:
		g.Go(func() error { return a.RunTemporalWorker(gctx) })
	default:
		a.Log.Info("In-process scheduler disabled; expecting POST /api/cron/tick")
	}
	return g.Wait()
}

// RunCronLoop ticks the cron driver every CronInterval, starting immediately.
// Tick failures are logged and the loop continues.
func (a *App) RunCronLoop(ctx context.Context) error {
	log := a.Log.With("component", "CronLoop")
	log.Info("Cron loop started", "interval", a.Cfg.CronInterval)
	ticker := time.NewTicker(a.Cfg.CronInterval)
	defer ticker.Stop()
	for {
		if _, err := a.Services.Cron.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Error("Cron tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			log.Info("Cron loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunTemporalWorker hosts the durable cron workflow until ctx is done.
func (a *App) RunTemporalWorker(ctx context.Context) error {
	tcfg := temporalx.LoadConfig()
	if tcfg.Address == "" {
		return fmt.Errorf("SCHEDULER=temporal requires TEMPORAL_ADDRESS")
	}
	tcfg.IntervalSeconds = int(a.Cfg.CronInterval / time.Second)
	tc, err := temporalx.NewClient(ctx, a.Log, tcfg)
	if err != nil {
		return err
	}
	defer tc.Close()
	w, err := temporalworker.NewRunner(a.Log, tcfg, tc, a.Services.Cron)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
