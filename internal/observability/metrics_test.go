package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ObserveAPI("GET", "/api/automations", "200", 30*time.Millisecond)
	m.ObserveProvider("openai", "tagline", "ok", 1200*time.Millisecond)
	m.ObserveRun("completed", 90*time.Second, 4, 1)
	m.IncPublish("scheduled")
	m.IncCronTick(2)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`rf_api_requests_total{method="GET",route="/api/automations",status="200"} 1`,
		`rf_api_request_duration_seconds_bucket{method="GET",route="/api/automations",status="200",le="0.05"} 1`,
		`rf_api_request_duration_seconds_bucket{method="GET",route="/api/automations",status="200",le="0.025"} 0`,
		`rf_provider_requests_total{provider="openai",operation="tagline",status="ok"} 1`,
		`rf_pipeline_items_total{result="processed"} 4`,
		`rf_stale_resets_total 2`,
		"# TYPE rf_automations gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveRun("error", time.Second, 0, 0)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
}

func TestCollectAutomationStatus(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedAutomation(t, ctx, db, "a", nil)
	testutil.SeedAutomation(t, ctx, db, "b", nil)
	testutil.SeedAutomation(t, ctx, db, "c", func(a *automation.Automation) { a.Status = automation.StatusError })

	m := New()
	if err := m.CollectAutomationStatus(ctx, db); err != nil {
		t.Fatal(err)
	}
	if got := m.automations.Value("inactive"); got != 2 {
		t.Fatalf("inactive = %v", got)
	}
	if got := m.automations.Value("error"); got != 1 {
		t.Fatalf("error = %v", got)
	}
	if got := m.automations.Value("processing"); got != 0 {
		t.Fatalf("processing = %v", got)
	}
}

func TestCollectors(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedAutomation(t, ctx, db, "a", nil)

	m := New()
	for _, c := range []Collector{m.PoolCollector(db), m.AutomationCollector(db)} {
		if err := c.Collect(ctx); err != nil {
			t.Fatalf("%s: %v", c.Name, err)
		}
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`rf_db_pool{stat="in_use"}`, `rf_automations{status="inactive"} 1`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
