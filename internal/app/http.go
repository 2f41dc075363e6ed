package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/reelforge-backend/internal/data/repos"
	apphttp "github.com/yungbote/reelforge-backend/internal/http"
	httpH "github.com/yungbote/reelforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/reelforge-backend/internal/http/middleware"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Automation *httpH.AutomationHandler
	Cron       *httpH.CronHandler
	Realtime   *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, set repos.Set, services Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Automation: httpH.NewAutomationHandlerWithDeps(httpH.AutomationHandlerDeps{
			Log:     log,
			Repos:   set,
			Runner:  services.Runner,
			Coord:   services.Coord,
			Tracker: services.Tracker,
		}),
		Cron:     httpH.NewCronHandler(log, services.Cron, set.Automations),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

// wireMiddleware returns a nil auth middleware when no JWT secret is
// configured; mutating endpoints are then open.
func wireMiddleware(log *logger.Logger, cfg Config) (*httpMW.AuthMiddleware, error) {
	log.Info("Wiring middleware...")
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY not set; mutating endpoints are unauthenticated")
		return nil, nil
	}
	return httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey)
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, auth *httpMW.AuthMiddleware, metrics *observability.Metrics) *apphttp.Server {
	serviceName := ""
	if observability.TracingEnabled() {
		serviceName = cfg.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       serviceName,
		AllowOrigins:      cfg.AllowOrigins,
		AuthMiddleware:    auth,
		AutomationHandler: handlers.Automation,
		CronHandler:       handlers.Cron,
		RealtimeHandler:   handlers.Realtime,
		HealthHandler:     handlers.Health,
	})
}
