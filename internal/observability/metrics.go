package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	providerRequests *CounterVec
	providerLatency  *HistogramVec

	runs         *CounterVec
	runDuration  *HistogramVec
	items        *CounterVec
	publishes    *CounterVec
	cronTicks    *Counter
	staleResets  *Counter
	automations  *GaugeVec
	dbPool       *GaugeVec
	redisUp      *Gauge
	redisPing    *Gauge
	writeOrdered []promWriter
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return parseBoolEnv("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when disabled. All methods are
// nil-safe.
func Current() *Metrics {
	return instance
}

func parseBoolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func scrapeInterval() time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS")))
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds a registry without installing it as Current.
func New() *Metrics {
	m := &Metrics{
		apiRequests: NewCounterVec("rf_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"rf_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight:      NewGauge("rf_api_inflight_requests", "In-flight API requests."),
		providerRequests: NewCounterVec("rf_provider_requests_total", "External provider calls by provider/operation/status.", []string{"provider", "operation", "status"}),
		providerLatency: NewHistogramVec(
			"rf_provider_request_duration_seconds",
			"External provider call latency by provider/operation.",
			[]string{"provider", "operation"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		),
		runs: NewCounterVec("rf_automation_runs_total", "Automation runs by outcome.", []string{"outcome"}),
		runDuration: NewHistogramVec(
			"rf_automation_run_duration_seconds",
			"Automation run wall time by outcome.",
			[]string{"outcome"},
			[]float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		),
		items:       NewCounterVec("rf_pipeline_items_total", "Pipeline items by result.", []string{"result"}),
		publishes:   NewCounterVec("rf_publish_total", "Publish attempts by status.", []string{"status"}),
		cronTicks:   NewCounter("rf_cron_ticks_total", "Scheduler ticks."),
		staleResets: NewCounter("rf_stale_resets_total", "Runs reset after going stale."),
		automations: NewGaugeVec("rf_automations", "Automations by status.", []string{"status"}),
		dbPool:      NewGaugeVec("rf_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:     NewGauge("rf_redis_up", "Redis reachable (1) or not (0)."),
		redisPing:   NewGauge("rf_redis_ping_seconds", "Redis ping latency."),
	}
	m.writeOrdered = []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.providerRequests, m.providerLatency,
		m.runs, m.runDuration, m.items, m.publishes, m.cronTicks, m.staleResets,
		m.automations, m.dbPool, m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, pw := range m.writeOrdered {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	if dur > 0 {
		m.apiLatency.Observe(dur.Seconds(), method, route, status)
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveProvider records one call to an AI, source or publishing service.
func (m *Metrics) ObserveProvider(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.Inc(provider, operation, status)
	m.providerLatency.Observe(dur.Seconds(), provider, operation)
}

func (m *Metrics) ObserveRun(outcome string, dur time.Duration, processed, failed int) {
	if m == nil {
		return
	}
	m.runs.Inc(outcome)
	m.runDuration.Observe(dur.Seconds(), outcome)
	m.items.Add(float64(processed), "processed")
	m.items.Add(float64(failed), "failed")
}

func (m *Metrics) IncPublish(status string) {
	if m == nil {
		return
	}
	m.publishes.Inc(status)
}

func (m *Metrics) IncCronTick(staleResets int) {
	if m == nil {
		return
	}
	m.cronTicks.Inc()
	m.staleResets.Add(float64(staleResets))
}

// Collector refreshes a group of gauges. Failures are logged and the next
// tick tries again.
type Collector struct {
	Name    string
	Collect func(ctx context.Context) error
}

// StartCollectors runs every collector once per METRICS_SCRAPE_INTERVAL_SECONDS
// until ctx is done.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, cs ...Collector) {
	if m == nil || len(cs) == 0 {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, c := range cs {
					if err := c.Collect(ctx); err != nil && log != nil {
						log.Warn("metrics collector failed", "collector", c.Name, "error", err)
					}
				}
			}
		}
	}()
}

// PoolCollector reports database/sql pool usage.
func (m *Metrics) PoolCollector(db *gorm.DB) Collector {
	return Collector{Name: "db_pool", Collect: func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		st := sqlDB.Stats()
		for stat, v := range map[string]float64{
			"open_connections":      float64(st.OpenConnections),
			"in_use":                float64(st.InUse),
			"idle":                  float64(st.Idle),
			"wait_count":            float64(st.WaitCount),
			"wait_duration_seconds": st.WaitDuration.Seconds(),
		} {
			m.dbPool.Set(v, stat)
		}
		return nil
	}}
}

// RedisCollector pings rdb and records reachability and latency.
func (m *Metrics) RedisCollector(rdb redis.UniversalClient) Collector {
	return Collector{Name: "redis", Collect: func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		start := time.Now()
		if err := rdb.Ping(pctx).Err(); err != nil {
			m.redisUp.Set(0)
			return err
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
		return nil
	}}
}

// AutomationCollector keeps rf_automations in step with the table.
func (m *Metrics) AutomationCollector(db *gorm.DB) Collector {
	return Collector{Name: "automations", Collect: func(ctx context.Context) error {
		return m.CollectAutomationStatus(ctx, db)
	}}
}

// CollectAutomationStatus sets the per-status automation gauge once.
func (m *Metrics) CollectAutomationStatus(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	for _, s := range []automation.Status{
		automation.StatusInactive, automation.StatusQueued, automation.StatusProcessing,
		automation.StatusRunning, automation.StatusCompleted, automation.StatusError, automation.StatusStopped,
	} {
		m.automations.Set(0, string(s))
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.Automation{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.automations.Set(float64(row.Count), status)
	}
	return nil
}
