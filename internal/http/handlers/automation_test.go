package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/runner"
	"github.com/yungbote/reelforge-backend/internal/automation/schedule"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	httpx "github.com/yungbote/reelforge-backend/internal/http"
	httpH "github.com/yungbote/reelforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/reelforge-backend/internal/http/middleware"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

type blockingExec struct {
	started chan uuid.UUID
	release chan struct{}
}

func (e *blockingExec) Run(ctx context.Context, a *types.Automation, runID uuid.UUID, rep *progress.Reporter) (automation.RunStats, error) {
	e.started <- a.ID
	<-e.release
	return automation.RunStats{}, errs.ErrRunAborted
}

type apiFixture struct {
	t      *testing.T
	set    repos.Set
	router *gin.Engine
	token  string
	exec   *blockingExec
	ctx    context.Context
	alpha  *types.Automation
	beta   *types.Automation
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &apiFixture{t: t, set: repos.NewSet(db, log), ctx: context.Background()}
	f.exec = &blockingExec{started: make(chan uuid.UUID, 4), release: make(chan struct{})}

	coord := claim.New(f.set.Automations, log)
	sched := &schedule.Calculator{Location: time.UTC}
	run := runner.New(f.set.Automations, coord, f.exec, journal.New(f.set.Logs, nil, log), sched, nil, log)
	auth, err := httpMW.NewAuthMiddleware(log, "test-secret")
	if err != nil {
		t.Fatal(err)
	}
	f.token, _ = auth.SignToken("tester", time.Hour)

	f.router = httpx.NewRouter(httpx.RouterConfig{
		Log:            log,
		AuthMiddleware: auth,
		AutomationHandler: httpH.NewAutomationHandlerWithDeps(httpH.AutomationHandlerDeps{
			Log:     log,
			Repos:   f.set,
			Runner:  run,
			Coord:   coord,
			Tracker: rotation.NewTracker(f.set.Processed, f.set.Automations, log),
		}),
		HealthHandler: httpH.NewHealthHandler(db),
	})
	f.alpha = testutil.SeedAutomation(t, f.ctx, db, "alpha", nil)
	f.beta = testutil.SeedAutomation(t, f.ctx, db, "beta", nil)
	testutil.SeedProcessed(t, f.ctx, db, f.alpha.ID, 1, "bunny:v1", 1024, "")
	return f
}

func (f *apiFixture) do(method, path, body string, auth bool) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type triggerBody struct {
	Outcome       claim.Kind `json:"outcome"`
	RunID         *uuid.UUID `json:"run_id"`
	QueuePosition int        `json:"queue_position"`
}

func TestAutomationAPIReads(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/automations", "", false)
	list := decode[struct {
		Automations []types.Automation `json:"automations"`
	}](t, rec)
	if rec.Code != http.StatusOK || len(list.Automations) != 2 {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/api/automations/"+f.alpha.ID.String(), "", false); rec.Code != http.StatusOK {
		t.Fatalf("get by id: %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/automations/nope", "", false)
	env := decode[struct {
		Error struct{ Code string } `json:"error"`
	}](t, rec)
	if rec.Code != http.StatusNotFound || env.Error.Code != "automation_not_found" {
		t.Fatalf("missing automation: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/automations/alpha/rotation", "", false)
	stats := decode[struct {
		Rotation rotation.Stats `json:"rotation"`
	}](t, rec)
	if stats.Rotation.Cycle != 1 || stats.Rotation.Processed != 1 {
		t.Fatalf("rotation stats %+v", stats.Rotation)
	}
	if rec := f.do(http.MethodDelete, "/api/automations/alpha/rotation", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("clear without token: %d", rec.Code)
	}
	rec = f.do(http.MethodDelete, "/api/automations/alpha/rotation", "", true)
	cleared := decode[struct {
		Cleared int64 `json:"cleared"`
		Cycle   int   `json:"cycle"`
	}](t, rec)
	if cleared.Cleared != 1 || cleared.Cycle != 1 {
		t.Fatalf("clear rotation: %s", rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/healthcheck", "", false); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAutomationAPITriggerQueueStop(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(http.MethodPost, "/api/automations/alpha/run", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("run without token: %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/api/automations/alpha/run", "", true)
	got := decode[triggerBody](t, rec)
	if rec.Code != http.StatusAccepted || got.Outcome != claim.Claimed || got.RunID == nil {
		t.Fatalf("run alpha: %d %s", rec.Code, rec.Body.String())
	}
	select {
	case id := <-f.exec.started:
		if id != f.alpha.ID {
			t.Fatalf("started %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("executor never started")
	}

	rec = f.do(http.MethodPost, "/api/automations/beta/run", "", true)
	got = decode[triggerBody](t, rec)
	if rec.Code != http.StatusAccepted || got.Outcome != claim.Queued || got.QueuePosition != 1 {
		t.Fatalf("run beta: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/automations/beta/progress?with_logs=1", "", false)
	live := decode[httpH.LiveStatus](t, rec)
	if live.Status != automation.StatusQueued || live.QueuePosition != 1 || live.Done {
		t.Fatalf("beta live status %+v", live)
	}
	if !strings.Contains(live.Data.Message, "Waiting for 'alpha'") || len(live.Logs) == 0 {
		t.Fatalf("beta live data %+v logs=%d", live.Data, len(live.Logs))
	}

	if rec := f.do(http.MethodPost, "/api/automations/alpha/run", "", true); rec.Code != http.StatusConflict {
		t.Fatalf("second run of alpha: %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodPost, "/api/automations/beta/stop", "", true); rec.Code != http.StatusOK {
		t.Fatalf("stop beta: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/api/automations/beta/stop", "", true); rec.Code != http.StatusConflict {
		t.Fatalf("stop idle beta: %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/automations/alpha/stop", "", true); rec.Code != http.StatusOK {
		t.Fatalf("stop alpha: %d", rec.Code)
	}
	close(f.exec.release)

	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, err := f.set.Logs.ListRecent(dbctx.New(f.ctx), f.alpha.ID, 50)
		if err != nil {
			t.Fatal(err)
		}
		aborted := false
		for _, l := range logs {
			aborted = aborted || l.Action == "run_aborted"
		}
		if aborted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background run did not finish")
		}
		time.Sleep(20 * time.Millisecond)
	}
	// let DrainQueue observe the empty queue before the database closes
	time.Sleep(50 * time.Millisecond)

	rec = f.do(http.MethodGet, "/api/automations/alpha/progress", "", false)
	live = decode[httpH.LiveStatus](t, rec)
	if live.Status != automation.StatusStopped || !live.Done {
		t.Fatalf("alpha after stop %+v", live)
	}
}

func TestAutomationAPIImportExport(t *testing.T) {
	f := newAPIFixture(t)
	doc := "automations:\n  - name: gamma\n    enabled: true\n    schedule: {type: hourly}\n    source: {kind: gcs, prefix: raw/}\n"

	if rec := f.do(http.MethodPost, "/api/automations/import", "automations: [", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad yaml: %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/automations/import", doc, true)
	res := decode[struct {
		Created []string `json:"created"`
	}](t, rec)
	if rec.Code != http.StatusOK || len(res.Created) != 1 || res.Created[0] != "gamma" {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/automations/export", "", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "name: gamma") || !strings.Contains(rec.Body.String(), "prefix: raw/") {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDone(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	cases := []struct {
		name string
		a    types.Automation
		want bool
	}{
		{"inactive", types.Automation{Status: automation.StatusInactive}, true},
		{"error", types.Automation{Status: automation.StatusError}, true},
		{"stopped", types.Automation{Status: automation.StatusStopped}, true},
		{"processing", types.Automation{Status: automation.StatusProcessing, ProgressPercent: 100}, false},
		{"queued", types.Automation{Status: automation.StatusQueued}, false},
		{"running finished", types.Automation{Status: automation.StatusRunning, ProgressPercent: 100, NextRunAt: &later}, true},
		{"running overdue", types.Automation{Status: automation.StatusRunning, ProgressPercent: 100, NextRunAt: &earlier}, false},
		{"running partial", types.Automation{Status: automation.StatusRunning, ProgressPercent: 40, NextRunAt: &later}, false},
	}
	for _, tc := range cases {
		if got := httpH.Done(&tc.a, now); got != tc.want {
			t.Errorf("%s: Done=%v want %v", tc.name, got, tc.want)
		}
	}
}
