package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/automation/tagline"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	"github.com/yungbote/reelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

type fakeProvider struct {
	candidates []rotation.Candidate
	fetchErr   error
	failOn     map[string]bool

	mu         sync.Mutex
	downloaded []string
}

func (p *fakeProvider) Fetch(context.Context, stages.SourceConfig) ([]rotation.Candidate, error) {
	return p.candidates, p.fetchErr
}

func (p *fakeProvider) Download(_ context.Context, c rotation.Candidate, dest string) (int64, error) {
	if p.failOn[c.GUID] {
		return 0, errors.New("connection reset")
	}
	p.mu.Lock()
	p.downloaded = append(p.downloaded, c.GUID)
	p.mu.Unlock()
	return 4, os.WriteFile(dest, []byte("data"), 0o644)
}

type fakeTransformer struct {
	mu   sync.Mutex
	opts []stages.ShortOptions
	// during runs while the short is being encoded.
	during func()
}

func (f *fakeTransformer) CreateShort(_ context.Context, in string, opts stages.ShortOptions) (string, error) {
	if _, err := os.Stat(in); err != nil {
		return "", fmt.Errorf("%w: input missing", stages.ErrEncode)
	}
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	out := filepath.Join(opts.OutputDir, opts.OutputName)
	return out, os.WriteFile(out, []byte("short"), 0o644)
}

type failingAI struct{ calls int }

func (f *failingAI) Generate(context.Context, stages.TaglineRequest) (stages.Tagline, error) {
	f.calls++
	return stages.Tagline{}, fmt.Errorf("%w: 503 from upstream", stages.ErrProvider)
}

type fakePublisher struct {
	mu       sync.Mutex
	requests []stages.PublishRequest
}

func (f *fakePublisher) Publish(_ context.Context, req stages.PublishRequest) (stages.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	id := fmt.Sprintf("post_%d", len(f.requests))
	return stages.PublishResult{
		ExternalID: id,
		Status:     "processing",
		Raw:        json.RawMessage(`{"id":"` + id + `","status":"processing"}`),
	}, nil
}

func (f *fakePublisher) PostStatus(context.Context, string) (string, error) { return "processing", nil }

type ownerFunc func(ctx context.Context, id, runID uuid.UUID) (bool, error)

func (f ownerFunc) Owns(ctx context.Context, id, runID uuid.UUID) (bool, error) { return f(ctx, id, runID) }

type harness struct {
	db          *gorm.DB
	set         repos.Set
	provider    *fakeProvider
	transformer *fakeTransformer
	publisher   *fakePublisher
	exec        *Executor
	deps        Deps
}

func newHarness(t *testing.T, candidates []rotation.Candidate, ai stages.TaglineGenerator) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	h := &harness{
		db:          db,
		set:         set,
		provider:    &fakeProvider{candidates: candidates},
		transformer: &fakeTransformer{},
		publisher:   &fakePublisher{},
	}
	h.deps = Deps{
		Sources:     Sources{automation.SourceManual: h.provider},
		AI:          ai,
		Local:       tagline.NewLocalGenerator([]string{"✨"}).WithSeed(3),
		Transformer: h.transformer,
		Publisher:   h.publisher,
		Tracker:     rotation.NewTracker(set.Processed, set.Automations, log),
		Journal:     journal.New(set.Logs, nil, log),
		Logs:        set.Logs,
		Jobs:        set.Jobs,
		Posts:       set.Posts,
	}
	dir := t.TempDir()
	h.exec = New(h.deps, Config{ScratchDir: filepath.Join(dir, "scratch"), OutputDir: filepath.Join(dir, "out")}, log).
		WithClock(func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) })
	return h
}

// seedRunning inserts an automation that already holds the processing slot.
func (h *harness) seedRunning(t *testing.T, name string, mutate func(a *types.Automation)) (*types.Automation, uuid.UUID, *progress.Reporter) {
	t.Helper()
	runID := uuid.New()
	a := testutil.SeedAutomation(t, context.Background(), h.db, name, func(a *types.Automation) {
		a.Status = automation.StatusProcessing
		a.RunID = &runID
		if mutate != nil {
			mutate(a)
		}
	})
	rep := progress.NewReporter(h.set.Automations, nil, testutil.Logger(t), a.ID, runID)
	return a, runID, rep
}

func candidates(n int) []rotation.Candidate {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]rotation.Candidate, 0, n)
	for i := 0; i < n; i++ {
		up := base.Add(time.Duration(i) * time.Hour)
		out = append(out, rotation.Candidate{
			GUID:       fmt.Sprintf("vid-%02d", i),
			Filename:   fmt.Sprintf("clip_%02d.mp4", i),
			Title:      fmt.Sprintf("Clip %02d", i),
			Size:       int64(1000 + i),
			UploadedAt: &up,
		})
	}
	return out
}

func TestRunProcessesAllCandidatesWithoutRotation(t *testing.T) {
	h := newHarness(t, candidates(3), nil)
	a, runID, rep := h.seedRunning(t, "no-rotation", func(a *types.Automation) {
		a.VideosPerRun = 5
		a.BrandingTextTop = "Daily"
		a.BrandingTextBottom = "@forge"
		a.RandomWords = automation.EncodeStrings([]string{"sunset"})
	})

	stats, err := h.exec.Run(context.Background(), a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 3 || stats.Downloaded != 3 || stats.Processed != 3 || stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(h.transformer.opts) != 3 {
		t.Fatalf("want 3 shorts, got %d", len(h.transformer.opts))
	}
	for _, o := range h.transformer.opts {
		if o.TopText != "Daily sunset" || o.BottomText != "@forge" {
			t.Fatalf("non-AI overlay text: %+v", o)
		}
		if _, err := os.Stat(o.ScratchDir); !os.IsNotExist(err) {
			t.Fatalf("scratch dir %s not cleaned up", o.ScratchDir)
		}
	}
	jobs, err := h.set.Jobs.ListByAutomation(dbctx.New(context.Background()), a.ID, 10)
	if err != nil {
		t.Fatalf("ListByAutomation: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("want 3 video jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if _, err := os.Stat(j.OutputPath); err != nil {
			t.Fatalf("final artifact removed: %v", err)
		}
	}
	if got := rep.Percent(); got != 97 {
		t.Fatalf("progress after cleanup: want 97, got %d", got)
	}
	if len(h.publisher.requests) != 0 {
		t.Fatal("publishing is disabled but a post was made")
	}
}

func TestRunHonoursRotationAndBatchSize(t *testing.T) {
	all := candidates(10)
	h := newHarness(t, all, nil)
	a, runID, rep := h.seedRunning(t, "rotation-batch", func(a *types.Automation) {
		a.VideosPerRun = 2
		a.RotationEnabled = true
		a.RotationAutoReset = false
	})
	ctx := context.Background()
	for _, c := range all[:7] {
		if err := h.deps.Tracker.MarkProcessed(ctx, a.ID, 1, c); err != nil {
			t.Fatalf("MarkProcessed: %v", err)
		}
	}

	stats, err := h.exec.Run(ctx, a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 3 || stats.Processed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// oldest uploads first
	if got := strings.Join(h.provider.downloaded, ","); got != "vid-07,vid-08" {
		t.Fatalf("processed %s", got)
	}
	left, err := h.deps.Tracker.Filter(ctx, a.ID, 1, all)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(left) != 1 || left[0].GUID != "vid-09" {
		t.Fatalf("want only vid-09 left, got %+v", left)
	}
}

func TestRunFallsBackToLocalTaglines(t *testing.T) {
	ai := &failingAI{}
	h := newHarness(t, candidates(1), ai)
	a, runID, rep := h.seedRunning(t, "tagline-fallback", func(a *types.Automation) {
		a.AITaglinesEnabled = true
		a.RandomWords = automation.EncodeStrings([]string{"ocean"})
	})
	ctx := context.Background()

	stats, err := h.exec.Run(ctx, a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 1 || ai.calls != 1 {
		t.Fatalf("stats %+v, ai calls %d", stats, ai.calls)
	}
	top := h.transformer.opts[0].TopText
	if !strings.Contains(strings.ToLower(top), "ocean") {
		t.Fatalf("local tagline not used, top=%q", top)
	}

	logs, err := h.set.Logs.ListRecent(dbctx.New(ctx), a.ID, 50)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	var aiFailed, localOK bool
	for _, l := range logs {
		switch {
		case l.Action == automation.ActionAITagline && l.Status == automation.LogError:
			aiFailed = strings.HasPrefix(l.Message, "AI tagline failed: ")
		case l.Action == automation.ActionLocalTagline && l.Status == automation.LogSuccess:
			localOK = strings.Contains(l.Message, "Top: "+top)
		}
	}
	if !aiFailed || !localOK {
		t.Fatalf("audit log missing fallback trail (ai failed=%v, local ok=%v): %+v", aiFailed, localOK, logs)
	}
	recent, err := h.set.Logs.RecentTaglineMessages(dbctx.New(ctx), a.ID, 20)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent taglines: %v %v", recent, err)
	}
}

func TestRunCountsItemErrorsAndContinues(t *testing.T) {
	h := newHarness(t, candidates(3), nil)
	h.provider.failOn = map[string]bool{"vid-01": true}
	a, runID, rep := h.seedRunning(t, "item-errors", nil)
	ctx := context.Background()

	stats, err := h.exec.Run(ctx, a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 2 || stats.Errors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	logs, _ := h.set.Logs.ListRecent(dbctx.New(ctx), a.ID, 50)
	var found bool
	for _, l := range logs {
		if l.Action == "video_error" && l.VideoID == "vid-01" {
			found = true
		}
	}
	if !found {
		t.Fatal("video_error entry missing")
	}
}

func TestRunSourceFailureAborts(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.provider.fetchErr = stages.ErrSourceAuth
	a, runID, rep := h.seedRunning(t, "source-down", nil)

	_, err := h.exec.Run(context.Background(), a, runID, rep)
	if !errors.Is(err, errs.ErrSource) || !errors.Is(err, stages.ErrSourceAuth) {
		t.Fatalf("want source error, got %v", err)
	}
}

func TestRunAbortsWhenOwnershipLost(t *testing.T) {
	h := newHarness(t, candidates(3), nil)
	calls := 0
	h.exec.deps.Owner = ownerFunc(func(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
		calls++
		return false, nil
	})
	a, runID, rep := h.seedRunning(t, "stolen", nil)

	stats, err := h.exec.Run(context.Background(), a, runID, rep)
	if !errors.Is(err, errs.ErrRunAborted) {
		t.Fatalf("want ErrRunAborted, got %v", err)
	}
	if stats.Processed != 1 || calls != 1 {
		t.Fatalf("expected abort after the first item, stats %+v calls %d", stats, calls)
	}
}

func TestRunPublishesWithSpread(t *testing.T) {
	h := newHarness(t, candidates(2), nil)
	a, runID, rep := h.seedRunning(t, "publisher", func(a *types.Automation) {
		a.PublishEnabled = true
		a.PublishAccountIDs = automation.EncodeStrings([]string{"acc_1", "acc_2"})
		a.PublishScheduleMode = automation.PublishOffset
		a.PublishOffsetMinutes = 30
		a.PublishSpreadMinutes = 10
	})
	ctx := context.Background()

	stats, err := h.exec.Run(ctx, a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scheduled != 2 || stats.Posted != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i, req := range h.publisher.requests {
		want := now.Add(time.Duration(30+10*i) * time.Minute)
		if req.ScheduledAt == nil || !req.ScheduledAt.Equal(want) {
			t.Fatalf("post %d scheduled at %v, want %s", i, req.ScheduledAt, want)
		}
		if req.Caption == "" || len(req.AccountIDs) != 2 {
			t.Fatalf("post %d: %+v", i, req)
		}
	}
	posts, err := h.set.Posts.ListByAutomation(dbctx.New(ctx), a.ID, 10)
	if err != nil || len(posts) != 2 {
		t.Fatalf("posts: %v %v", posts, err)
	}
	for _, p := range posts {
		if p.Status != automation.PostScheduled {
			t.Fatalf("post status %s", p.Status)
		}
		var body map[string]string
		if err := json.Unmarshal(p.Results, &body); err != nil || body["id"] != p.ExternalPostID {
			t.Fatalf("provider response not stored for %s: %s (%v)", p.ExternalPostID, p.Results, err)
		}
	}
}

type failingMarks struct {
	repoauto.ProcessedVideoRepo
}

func (failingMarks) UpsertAliases(dbctx.Context, []*types.ProcessedVideo) error {
	return errors.New("disk full")
}

func TestRunDoesNotCountItemWhenRotationMarkFails(t *testing.T) {
	h := newHarness(t, candidates(2), nil)
	h.exec.deps.Tracker = rotation.NewTracker(failingMarks{h.set.Processed}, h.set.Automations, testutil.Logger(t))
	a, runID, rep := h.seedRunning(t, "mark-fails", func(a *types.Automation) {
		a.RotationEnabled = true
	})

	stats, err := h.exec.Run(context.Background(), a, runID, rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 0 || stats.Errors != 2 {
		t.Fatalf("each item must be counted once, got %+v", stats)
	}
}

func TestRunHeartbeatsDuringLongStages(t *testing.T) {
	h := newHarness(t, candidates(1), nil)
	a, runID, rep := h.seedRunning(t, "slow-encode", nil)
	ctx := context.Background()

	exec := New(h.deps, Config{
		ScratchDir: filepath.Join(t.TempDir(), "scratch"),
		OutputDir:  filepath.Join(t.TempDir(), "out"),
		Timeouts:   Timeouts{Heartbeat: 5 * time.Millisecond},
	}, testutil.Logger(t))

	lastProgress := func() time.Time {
		row, err := h.set.Automations.GetByID(dbctx.New(ctx), a.ID)
		if err != nil || row == nil || row.LastProgressAt == nil {
			t.Errorf("GetByID: row=%+v err=%v", row, err)
			return time.Time{}
		}
		return *row.LastProgressAt
	}
	var before, after time.Time
	h.transformer.during = func() {
		before = lastProgress()
		time.Sleep(60 * time.Millisecond)
		after = lastProgress()
	}

	if _, err := exec.Run(ctx, a, runID, rep); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if before.IsZero() || !after.After(before) {
		t.Fatalf("last_progress_at not refreshed while encoding: before=%s after=%s", before, after)
	}
	if rep.Lost() {
		t.Fatal("heartbeat must not lose ownership")
	}
}

func TestLocalFilename(t *testing.T) {
	cases := map[string]rotation.Candidate{
		"clip_1.mov":    {Filename: "clip 1.mov"},
		"video.mp4":     {ObjectName: "folder/video.mp4"},
		"abc-guid.mp4":  {GUID: "abc-guid"},
		"raw_name.mp4":  {Filename: "raw_name"},
	}
	for want, c := range cases {
		if got := LocalFilename(c); got != want {
			t.Errorf("LocalFilename(%+v) = %q, want %q", c, got, want)
		}
	}
}
