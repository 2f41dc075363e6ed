package observability

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type OtelConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string

	// Endpoint is the OTLP/HTTP collector. Spans go to stdout when empty.
	Endpoint    string
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

// OtelConfigFromEnv reads OTEL_ENABLED, OTEL_SAMPLER_RATIO (default 0.1) and
// the OTEL_EXPORTER_OTLP_* variables.
func OtelConfigFromEnv(serviceName, environment string) OtelConfig {
	return OtelConfig{
		Enabled:     truthy(os.Getenv("OTEL_ENABLED")),
		ServiceName: serviceName,
		Environment: environment,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Headers:     parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:    truthy(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")),
		SampleRatio: parseRatio(os.Getenv("OTEL_SAMPLER_RATIO"), 0.1),
	}
}

var (
	otelMu       sync.Mutex
	otelShutdown func(context.Context) error
)

// InitOTel installs the global tracer provider the first time it is called
// with Enabled set. The returned shutdown func is nil while tracing is off.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelMu.Lock()
	defer otelMu.Unlock()
	if otelShutdown != nil || !cfg.Enabled {
		return otelShutdown
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "reelforge"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		log.Warn("OTel resource init failed, continuing", "error", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	}
	if exp, err := buildTraceExporter(ctx, cfg); err != nil {
		log.Warn("OTel exporter init failed; spans will not be exported", "error", err)
	} else {
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otelShutdown = tp.Shutdown

	exporter := cfg.Endpoint
	if exporter == "" {
		exporter = "stdout"
	}
	log.Info("OTel tracing initialized", "service", name, "exporter", exporter, "sample_ratio", cfg.SampleRatio)
	return otelShutdown
}

// TracingEnabled reports whether InitOTel installed a provider.
func TracingEnabled() bool {
	otelMu.Lock()
	defer otelMu.Unlock()
	return otelShutdown != nil
}

// Tracer returns the named tracer of the global provider. Spans are no-ops
// until InitOTel installs a provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("reelforge/" + name)
}

// EndSpan records err on span before ending it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func buildTraceExporter(ctx context.Context, cfg OtelConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseRatio(raw string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return min(max(f, 0), 1)
}

// parseHeaders reads "k1=v1,k2=v2", dropping malformed pairs.
func parseHeaders(raw string) map[string]string {
	var out map[string]string
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}
