package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger over zap's sugared API. Values whose key
// looks like a credential are replaced before they reach the core.
type Logger struct {
	s      *zap.SugaredLogger
	redact bool
}

// Config selects the zap preset and output shape.
type Config struct {
	Mode   string // prod | dev | test
	Level  string // empty keeps the preset level
	Format string // json | console, empty keeps the preset encoder
	Redact bool
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT and LOG_REDACTION_ENABLED on
// top of the given mode.
func ConfigFromEnv(mode string) Config {
	cfg := Config{
		Mode:   strings.ToLower(strings.TrimSpace(mode)),
		Level:  strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		Format: strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		Redact: true,
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		cfg.Redact = false
	}
	return cfg
}

// New builds a logger for mode using the environment overrides.
func New(mode string) (*Logger, error) {
	return Build(ConfigFromEnv(mode))
}

func Build(c Config) (*Logger, error) {
	var zc zap.Config
	switch c.Mode {
	case "prod", "production":
		zc = zap.NewProductionConfig()
	case "test":
		zc = zap.NewDevelopmentConfig()
		zc.OutputPaths = []string{"stderr"}
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if c.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("logger: bad level %q: %w", c.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	switch c.Format {
	case "":
	case "json", "console":
		zc.Encoding = c.Format
	default:
		return nil, fmt.Errorf("logger: bad format %q", c.Format)
	}
	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar(), redact: c.Redact}, nil
}

// FromZap wraps an existing zap logger, mainly for tests that observe output.
func FromZap(z *zap.Logger, redact bool) *Logger {
	return &Logger{s: z.Sugar(), redact: redact}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.s.Sync()
}

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, l.clean(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, l.clean(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, l.clean(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, l.clean(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.s.Fatalw(msg, l.clean(kv)...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(l.clean(kv)...), redact: l.redact}
}

// Named scopes the logger to a component such as "cron" or "pipeline".
func (l *Logger) Named(component string) *Logger {
	return &Logger{s: l.s.Named(component), redact: l.redact}
}

const redacted = "[REDACTED]"

// secretKeyParts are matched against keys lower-cased with '-', '_' and
// spaces removed, so "X-Api-Key", "api_key" and "AccessKey" all match.
var secretKeyParts = []string{
	"token", "authorization", "password", "secret",
	"apikey", "accesskey", "credentials", "dsn",
}

var keyFolder = strings.NewReplacer("-", "", "_", "", " ", "")

func (l *Logger) clean(kv []any) []any {
	if !l.redact || len(kv) == 0 {
		return kv
	}
	out := make([]any, len(kv))
	copy(out, kv)
	// a trailing key without a value is left for zap to report
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		out[i+1] = scrub(key, out[i+1])
	}
	return out
}

func scrub(key string, v any) any {
	if isSecretKey(key) {
		return redacted
	}
	switch m := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(m))
		for k, inner := range m {
			cp[k] = scrub(k, inner)
		}
		return cp
	case map[string]string:
		cp := make(map[string]string, len(m))
		for k, inner := range m {
			if isSecretKey(k) {
				inner = redacted
			}
			cp[k] = inner
		}
		return cp
	}
	return v
}

func isSecretKey(key string) bool {
	k := keyFolder.Replace(strings.ToLower(strings.TrimSpace(key)))
	if k == "" {
		return false
	}
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
