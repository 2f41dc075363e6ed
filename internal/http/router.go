package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/reelforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/reelforge-backend/internal/http/middleware"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	// ServiceName labels otelgin spans; empty disables the middleware.
	ServiceName  string
	AllowOrigins []string

	AuthMiddleware    *httpMW.AuthMiddleware
	AutomationHandler *httpH.AutomationHandler
	CronHandler       *httpH.CronHandler
	RealtimeHandler   *httpH.RealtimeHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		if cfg.AutomationHandler != nil {
			api.GET("/automations", cfg.AutomationHandler.List)
			api.GET("/automations/export", cfg.AutomationHandler.Export)
			api.GET("/automations/:id", cfg.AutomationHandler.Get)
			api.GET("/automations/:id/progress", cfg.AutomationHandler.Progress)
			api.GET("/automations/:id/logs", cfg.AutomationHandler.Logs)
			api.GET("/automations/:id/posts", cfg.AutomationHandler.Posts)
			api.GET("/automations/:id/jobs", cfg.AutomationHandler.Jobs)
			api.GET("/automations/:id/rotation", cfg.AutomationHandler.RotationStats)
		}
		if cfg.CronHandler != nil {
			api.GET("/cron/health", cfg.CronHandler.Health)
		}
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		if cfg.AutomationHandler != nil {
			protected.POST("/automations/import", cfg.AutomationHandler.Import)
			protected.POST("/automations/:id/run", cfg.AutomationHandler.Run)
			protected.POST("/automations/:id/stop", cfg.AutomationHandler.Stop)
			protected.DELETE("/automations/:id/rotation", cfg.AutomationHandler.ClearRotation)
		}
		if cfg.CronHandler != nil {
			protected.POST("/cron/tick", cfg.CronHandler.Tick)
		}
	}

	return r
}
