package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core), true)

	log.Info("posting clip",
		"automation_id", "a1",
		"Authorization", "Bearer abc",
		"headers", map[string]string{"X-Api-Key": "k", "Accept": "json"},
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["automation_id"] != "a1" {
		t.Fatalf("automation_id=%v", ctx["automation_id"])
	}
	if ctx["Authorization"] != redacted {
		t.Fatalf("Authorization=%v", ctx["Authorization"])
	}
	hdrs, ok := ctx["headers"].(map[string]string)
	if !ok {
		t.Fatalf("headers type %T", ctx["headers"])
	}
	if hdrs["X-Api-Key"] != redacted || hdrs["Accept"] != "json" {
		t.Fatalf("headers=%v", hdrs)
	}
}

func TestIsSecretKeyIgnoresSeparators(t *testing.T) {
	for _, key := range []string{"X-Api-Key", "x_api_key", "AccessKey", "access-key", "Access Key", "GCP_CREDENTIALS_JSON", "refresh_token"} {
		if !isSecretKey(key) {
			t.Errorf("expected %q to be secret", key)
		}
	}
	for _, key := range []string{"automation_id", "Accept", "video_id", "status"} {
		if isSecretKey(key) {
			t.Errorf("expected %q to be logged in clear", key)
		}
	}
}

func TestRedactionDisabled(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core), false).With("password", "hunter2")
	log.Debug("x")
	if got := logs.All()[0].ContextMap()["password"]; got != "hunter2" {
		t.Fatalf("password=%v", got)
	}
}

func TestCallerArgsNotMutated(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core), true)
	kv := []any{"token", "t0"}
	log.Warn("x", kv...)
	if kv[1] != "t0" {
		t.Fatalf("caller slice mutated: %v", kv)
	}
}

func TestBuild(t *testing.T) {
	if _, err := Build(Config{Mode: "test", Level: "loud"}); err == nil {
		t.Fatal("expected bad level error")
	}
	if _, err := Build(Config{Mode: "test", Format: "xml"}); err == nil {
		t.Fatal("expected bad format error")
	}
	l, err := Build(Config{Mode: "prod", Level: "warn", Format: "console"})
	if err != nil {
		t.Fatal(err)
	}
	l.Named("cron").Info("suppressed")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", " INFO ")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_REDACTION_ENABLED", "off")
	c := ConfigFromEnv("Prod")
	if c.Mode != "prod" || c.Level != "info" || c.Format != "json" || c.Redact {
		t.Fatalf("%+v", c)
	}
}
