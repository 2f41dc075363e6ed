// Package pipeline runs one claimed automation: fetch candidates, apply
// rotation, then turn each selected video into a published short.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/progress"
	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/automation/tagline"
	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// Sources maps a configured video source to its adapter.
type Sources map[automation.VideoSource]stages.Provider

// Owner answers whether a run token still holds its automation.
type Owner interface {
	Owns(ctx context.Context, id, runID uuid.UUID) (bool, error)
}

type Deps struct {
	Sources     Sources
	AI          stages.TaglineGenerator
	Local       *tagline.LocalGenerator
	Transcriber stages.Transcriber
	Transformer stages.Transformer
	Publisher   stages.Publisher
	Tracker     *rotation.Tracker
	Journal     *journal.Journal
	Logs        repoauto.AutomationLogRepo
	Jobs        repoauto.VideoJobRepo
	Posts       repoauto.OutboundPostRepo
	Owner       Owner
}

type Timeouts struct {
	Fetch      time.Duration
	Download   time.Duration
	AI         time.Duration
	Transcribe time.Duration
	Encode     time.Duration
	Publish    time.Duration
	// Heartbeat is how often last_progress_at is refreshed while a long
	// stage runs, keeping the run clear of the stale sweep.
	Heartbeat time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&t.Fetch, 2*time.Minute)
	def(&t.Download, 30*time.Minute)
	def(&t.AI, 30*time.Second)
	def(&t.Transcribe, 10*time.Minute)
	def(&t.Encode, 15*time.Minute)
	def(&t.Publish, 60*time.Minute)
	def(&t.Heartbeat, 5*time.Minute)
	return t
}

type Config struct {
	ScratchDir string
	OutputDir  string
	Timeouts   Timeouts
}

type Executor struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
	// shuffle reorders a batch in place when rotation shuffle is on.
	shuffle func(n int, swap func(i, j int))
}

func New(deps Deps, cfg Config, baseLog *logger.Logger) *Executor {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "reelforge-scratch")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(os.TempDir(), "reelforge-output")
	}
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	if deps.Local == nil {
		deps.Local = tagline.NewLocalGenerator(nil)
	}
	return &Executor{
		deps:    deps,
		cfg:     cfg,
		log:     baseLog.With("service", "PipelineExecutor"),
		now:     time.Now,
		shuffle: rand.Shuffle,
	}
}

// WithClock replaces the clock used for schedule math and timestamps.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// WithShuffle replaces the batch shuffle.
func (e *Executor) WithShuffle(fn func(n int, swap func(i, j int))) *Executor {
	e.shuffle = fn
	return e
}

// run carries the per-run state shared by the items of one batch.
type run struct {
	a        *types.Automation
	runID    uuid.UUID
	rep      *progress.Reporter
	provider stages.Provider
	stats    automation.RunStats
	recent   []string
}

// Run executes one claimed run. Item failures are counted in the returned
// stats; only source failures, cancellation and lost ownership end the run
// early.
func (e *Executor) Run(ctx context.Context, a *types.Automation, runID uuid.UUID, rep *progress.Reporter) (stats automation.RunStats, err error) {
	ctx, span := observability.Tracer("pipeline").Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("automation.id", a.ID.String()), attribute.String("run.id", runID.String()))
	defer func() { observability.EndSpan(span, err) }()

	r := &run{a: a, runID: runID, rep: rep}
	rep.Action(ctx, progress.ActionRunStarted, automation.PayloadInfo, "Starting automation: "+a.Name)
	e.deps.Journal.Info(ctx, a.ID, "run_started", "Starting automation: "+a.Name)

	candidates, err := e.fetch(ctx, r)
	if err != nil {
		return r.stats, err
	}
	selected, err := e.selectBatch(ctx, r, candidates)
	if err != nil {
		return r.stats, err
	}
	if len(selected) == 0 {
		e.deps.Journal.Info(ctx, a.ID, "fetch", "No new videos to process")
		rep.Action(ctx, progress.ActionCleanup, automation.PayloadInfo, "No new videos to process")
		return r.stats, nil
	}

	if a.AITaglinesEnabled && e.deps.Logs != nil {
		if recent, err := e.deps.Logs.RecentTaglineMessages(dbctx.New(ctx), a.ID, 20); err != nil {
			e.log.Warn("Failed to load recent taglines", "automation_id", a.ID, "error", err)
		} else {
			r.recent = recent
		}
	}

	total := len(selected)
	r.stats.Total = total
	rep.SetStats(r.stats)
	rep.Action(ctx, progress.ActionBatch, automation.PayloadInfo, fmt.Sprintf("Processing %d videos", total))

	for i, c := range selected {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		if i > 0 {
			if err := e.checkOwnership(ctx, r); err != nil {
				return r.stats, err
			}
		}
		r.stats.Current = i + 1
		rep.SetStats(r.stats)
		if err := e.processItem(ctx, r, i, total, c); err != nil {
			if ctx.Err() != nil {
				return r.stats, ctx.Err()
			}
			r.stats.Errors++
			rep.SetStats(r.stats)
			id := rotation.PrimaryIdentifier(c)
			e.log.Warn("Item failed", "automation_id", a.ID, "video", id, "error", err)
			e.deps.Journal.Record(ctx, a.ID, journal.Entry{
				Action:  "video_error",
				Status:  automation.LogError,
				Message: fmt.Sprintf("Failed: %s: %v", rotation.DisplayName(c), err),
				VideoID: id,
			})
		}
	}

	rep.SetStats(r.stats)
	rep.Action(ctx, progress.ActionCleanup, automation.PayloadInfo, "Cleaning up")
	return r.stats, nil
}

func (e *Executor) fetch(ctx context.Context, r *run) (_ []rotation.Candidate, err error) {
	a := r.a
	ctx, span := observability.Tracer("pipeline").Start(ctx, "pipeline.fetch")
	span.SetAttributes(attribute.String("video.source", string(a.VideoSource)))
	defer func() { observability.EndSpan(span, err) }()

	provider := e.deps.Sources[a.VideoSource]
	if provider == nil {
		e.deps.Journal.Error(ctx, a.ID, "fetch", fmt.Sprintf("Unsupported video source: %s", a.VideoSource))
		return nil, errs.Source(fmt.Errorf("unsupported video source %q: %w", a.VideoSource, stages.ErrNotConfigured))
	}
	r.provider = provider

	msg := fmt.Sprintf("Fetching videos from %s", a.VideoSource)
	r.rep.Action(ctx, progress.ActionFetch, automation.PayloadInfo, msg)
	e.deps.Journal.Info(ctx, a.ID, "fetch", msg)

	fctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Fetch)
	defer cancel()
	candidates, err := provider.Fetch(fctx, stages.SourceConfigOf(a, e.now()))
	if err != nil {
		e.deps.Journal.Error(ctx, a.ID, "fetch", "Failed to fetch videos: "+err.Error())
		return nil, errs.Source(err)
	}
	msg = fmt.Sprintf("Found %d videos", len(candidates))
	r.rep.Action(ctx, progress.ActionVideosFetched, automation.PayloadInfo, msg)
	e.deps.Journal.Info(ctx, a.ID, "fetch", msg)
	return candidates, nil
}

// selectBatch applies rotation, ordering and the batch size.
func (e *Executor) selectBatch(ctx context.Context, r *run, candidates []rotation.Candidate) ([]rotation.Candidate, error) {
	a := r.a
	available := candidates
	if a.RotationEnabled && e.deps.Tracker != nil {
		filtered, err := e.deps.Tracker.Filter(ctx, a.ID, a.Cycle(), candidates)
		if err != nil {
			return nil, fmt.Errorf("rotation filter: %w", err)
		}
		adv, err := e.deps.Tracker.MaybeAdvanceCycle(ctx, a, candidates, filtered)
		if err != nil {
			return nil, err
		}
		available = adv.Available
		if adv.Advanced {
			e.deps.Journal.Info(ctx, a.ID, "rotation", fmt.Sprintf("All videos used, starting rotation cycle %d", adv.Cycle))
		}
		msg := fmt.Sprintf("%d of %d videos available in cycle %d", len(available), len(candidates), adv.Cycle)
		r.rep.Action(ctx, progress.ActionRotationFilter, automation.PayloadInfo, msg)
		e.deps.Journal.Info(ctx, a.ID, "rotation", msg)
	}
	r.stats.Fetched = len(available)
	r.rep.SetStats(r.stats)

	ordered := make([]rotation.Candidate, len(available))
	copy(ordered, available)
	rotation.SortByUpload(ordered)
	if n := a.BatchSize(); len(ordered) > n {
		ordered = ordered[:n]
	}
	if a.RotationShuffle && e.shuffle != nil {
		e.shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}
	return ordered, nil
}

func (e *Executor) checkOwnership(ctx context.Context, r *run) error {
	if r.rep.Lost() {
		return fmt.Errorf("automation %s run %s: %w", r.a.ID, r.runID, errs.ErrRunAborted)
	}
	if e.deps.Owner == nil {
		return nil
	}
	owns, err := e.deps.Owner.Owns(ctx, r.a.ID, r.runID)
	if err != nil {
		e.log.Warn("Ownership check failed", "automation_id", r.a.ID, "error", err)
		return nil
	}
	if !owns {
		return fmt.Errorf("automation %s run %s: %w", r.a.ID, r.runID, errs.ErrRunAborted)
	}
	return nil
}

// processItem turns one candidate into a short. ordinal is its position in
// the batch.
func (e *Executor) processItem(ctx context.Context, r *run, ordinal, total int, c rotation.Candidate) (err error) {
	a := r.a
	id := rotation.PrimaryIdentifier(c)
	name := rotation.DisplayName(c)

	ctx, span := observability.Tracer("pipeline").Start(ctx, "pipeline.item")
	span.SetAttributes(attribute.String("video.id", id), attribute.Int("batch.ordinal", ordinal))
	defer func() { observability.EndSpan(span, err) }()

	item := func(stage progress.Stage, status automation.PayloadStatus, msg string) {
		r.rep.Item(ctx, ordinal, total, stage, status, msg)
	}
	record := func(action, status, msg string) {
		e.deps.Journal.Record(ctx, a.ID, journal.Entry{Action: action, Status: status, Message: msg, VideoID: id})
	}

	item(progress.StageStart, automation.PayloadInfo, "Processing: "+name)
	record("processing_video", automation.LogInfo, "Processing: "+name)

	if err := os.MkdirAll(e.cfg.ScratchDir, 0o755); err != nil {
		return errs.Item(id, fmt.Errorf("scratch dir: %w", err))
	}
	scratch, err := os.MkdirTemp(e.cfg.ScratchDir, "item-*")
	if err != nil {
		return errs.Item(id, fmt.Errorf("scratch dir: %w", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			e.log.Warn("Scratch cleanup failed", "path", scratch, "error", rmErr)
		}
	}()

	// 1. download
	item(progress.StageDownload, automation.PayloadInfo, "Downloading: "+name)
	record("download", automation.LogInfo, "Downloading: "+name)
	local := filepath.Join(scratch, LocalFilename(c))
	dctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Download)
	stop := e.keepAlive(ctx, r)
	_, err = r.provider.Download(dctx, c, local)
	stop()
	cancel()
	if err != nil {
		return errs.Item(id, fmt.Errorf("download: %w", err))
	}
	r.stats.Downloaded++
	r.rep.SetStats(r.stats)

	// 2. overlay text
	item(progress.StageTagline, automation.PayloadInfo, "Preparing overlay text")
	text := e.overlayText(ctx, r, c, id)

	// 3. subtitles
	var subtitles string
	if a.WhisperEnabled && e.deps.Transcriber != nil {
		item(progress.StageWhisper, automation.PayloadInfo, "Transcribing audio")
		record("whisper_start", automation.LogInfo, "Starting transcription")
		tctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Transcribe)
		stop := e.keepAlive(ctx, r)
		subtitles, err = e.deps.Transcriber.Transcribe(tctx, local, a.WhisperLanguage)
		stop()
		cancel()
		if err != nil {
			subtitles = ""
			record("whisper_error", automation.LogError, "Transcription failed: "+err.Error())
		} else {
			record("whisper_complete", automation.LogSuccess, "Transcription completed")
		}
	}

	// 4. transform
	item(progress.StageFFmpeg, automation.PayloadInfo, "Creating short")
	outDir := filepath.Join(e.cfg.OutputDir, a.ID.String())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errs.Item(id, fmt.Errorf("output dir: %w", err))
	}
	ectx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Encode)
	stop = e.keepAlive(ctx, r)
	output, err := e.deps.Transformer.CreateShort(ectx, local, stages.ShortOptions{
		AspectRatio:     a.ShortAspectRatio,
		DurationSeconds: a.ShortDuration,
		TopText:         text.Top,
		BottomText:      text.Bottom,
		Emoji:           text.Emoji,
		SubtitlesPath:   subtitles,
		OutputDir:       outDir,
		OutputName:      fmt.Sprintf("short_%s_%d.mp4", safeName(id), e.now().Unix()),
		ScratchDir:      scratch,
	})
	stop()
	cancel()
	if err != nil {
		return errs.Item(id, fmt.Errorf("create short: %w", err))
	}

	// 5. job record
	completed := e.now().UTC()
	if e.deps.Jobs != nil {
		runID := r.runID
		if _, err := e.deps.Jobs.Create(dbctx.New(ctx), &types.VideoJob{
			AutomationID: a.ID,
			RunID:        &runID,
			VideoID:      id,
			Name:         name,
			OutputPath:   output,
			Status:       "completed",
			Progress:     100,
			CompletedAt:  &completed,
		}); err != nil {
			return errs.Item(id, fmt.Errorf("record job: %w", err))
		}
	}

	// 6. publish
	caption := text.Top
	if caption == "" {
		caption = name
	}
	e.publish(ctx, r, ordinal, total, id, output, caption)

	if a.RotationEnabled && e.deps.Tracker != nil {
		if err := e.deps.Tracker.MarkProcessed(ctx, a.ID, a.Cycle(), c); err != nil {
			return errs.Item(id, err)
		}
	}
	r.stats.Processed++
	r.rep.SetStats(r.stats)

	item(progress.StageDone, automation.PayloadSuccess, "Completed: "+name)
	record("video_completed", automation.LogSuccess, "Completed: "+name)
	return nil
}

// keepAlive heartbeats the run until the returned func is called.
func (e *Executor) keepAlive(ctx context.Context, r *run) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.Timeouts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.rep.Heartbeat(ctx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// overlayText walks the AI generator, the local generator and finally the
// static branding text. Without AI the top line is the branding text plus
// one random word.
func (e *Executor) overlayText(ctx context.Context, r *run, c rotation.Candidate, id string) stages.Tagline {
	a := r.a
	req := stages.TaglineRequest{
		Prompt:         a.AITaglinePrompt,
		VideoTitle:     rotation.DisplayName(c),
		VideoFilename:  c.Filename,
		Recent:         r.recent,
		Words:          a.Words(),
		BrandingTop:    a.BrandingTextTop,
		BrandingBottom: a.BrandingTextBottom,
	}
	record := func(action, status, msg string) {
		e.deps.Journal.Record(ctx, a.ID, journal.Entry{Action: action, Status: status, Message: msg, VideoID: id})
	}

	if !a.AITaglinesEnabled {
		top := a.BrandingTextTop
		if word := e.deps.Local.RandomWord(req.Words); top != "" && word != "" {
			top += " " + word
		}
		return stages.Tagline{Top: top, Bottom: a.BrandingTextBottom}
	}

	record(automation.ActionAITagline, automation.LogInfo, "Generating AI taglines")
	aiErr := stages.ErrNotConfigured
	if e.deps.AI != nil {
		actx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.AI)
		t, err := e.deps.AI.Generate(actx, req)
		cancel()
		if err == nil && !t.Empty() {
			record(automation.ActionAITagline, automation.LogSuccess, "AI Generated: "+tagline.FormatMessage(t))
			r.remember(t)
			return t
		}
		if err == nil {
			err = fmt.Errorf("empty tagline: %w", stages.ErrParse)
		}
		aiErr = err
	}
	record(automation.ActionAITagline, automation.LogError, "AI tagline failed: "+aiErr.Error())

	t, err := e.deps.Local.Generate(ctx, req)
	if err != nil {
		record(automation.ActionLocalTagline, automation.LogError, "Local tagline failed: "+err.Error())
		return tagline.Static(req)
	}
	emoji := "No emoji"
	if t.Emoji != "" {
		emoji = "Emoji: " + t.Emoji
	}
	record(automation.ActionLocalTagline, automation.LogSuccess, tagline.FormatMessage(t)+" | "+emoji)
	r.remember(t)
	return t
}

// remember keeps later items of the same batch from repeating a tagline.
func (r *run) remember(t stages.Tagline) {
	r.recent = append([]string{tagline.FormatMessage(t)}, r.recent...)
}

func (e *Executor) publish(ctx context.Context, r *run, ordinal, total int, id, output, caption string) {
	a := r.a
	accounts := a.AccountIDs()
	if !a.PublishEnabled || len(accounts) == 0 || e.deps.Publisher == nil {
		return
	}
	record := func(action, status, msg string) {
		e.deps.Journal.Record(ctx, a.ID, journal.Entry{Action: action, Status: status, Message: msg, VideoID: id, Platform: "postforme"})
	}
	r.rep.Item(ctx, ordinal, total, progress.StagePosting, automation.PayloadInfo, "Publishing")
	record("postforme_start", automation.LogInfo, fmt.Sprintf("Uploading to %d account(s): %s", len(accounts), strings.Join(accounts, ", ")))

	when := PublishTime(a, e.now(), ordinal)
	if when != nil {
		record("postforme_schedule", automation.LogInfo, "Post scheduled for: "+when.Format(time.RFC3339))
	}
	pctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Publish)
	stop := e.keepAlive(ctx, r)
	res, err := e.deps.Publisher.Publish(pctx, stages.PublishRequest{
		MediaPath:   output,
		Caption:     caption,
		AccountIDs:  accounts,
		ScheduledAt: when,
	})
	stop()
	cancel()
	if err != nil {
		observability.Current().IncPublish("failed")
		var pe *stages.PublishError
		if errors.As(err, &pe) {
			record("postforme_error", automation.LogError, fmt.Sprintf("Publish failed (HTTP %d): %s", pe.StatusCode, pe.Message))
		} else {
			record("postforme_error", automation.LogError, "Publish failed: "+err.Error())
		}
		return
	}

	status := automation.PostPending
	if when != nil {
		status = automation.PostScheduled
	}
	observability.Current().IncPublish(string(status))
	if e.deps.Posts != nil {
		if _, err := e.deps.Posts.Create(dbctx.New(ctx), &types.OutboundPost{
			ExternalPostID: res.ExternalID,
			AutomationID:   a.ID,
			VideoID:        id,
			Caption:        caption,
			AccountIDs:     automation.EncodeStrings(accounts),
			Status:         status,
			ScheduledAt:    when,
			Results:        datatypes.JSON(res.Raw),
		}); err != nil {
			e.log.Warn("Failed to record outbound post", "automation_id", a.ID, "external_id", res.ExternalID, "error", err)
		}
	}
	if when != nil {
		r.stats.Scheduled++
		record("posting", automation.LogSuccess, fmt.Sprintf("SCHEDULED! Post ID: %s (scheduled: %s)", res.ExternalID, when.Format(time.RFC3339)))
	} else {
		r.stats.Posted++
		record("posting", automation.LogSuccess, "POSTED! Post ID: "+res.ExternalID)
	}
	r.rep.SetStats(r.stats)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// LocalFilename is the scratch file name for a downloaded candidate.
func LocalFilename(c rotation.Candidate) string {
	name := c.Filename
	if name == "" {
		name = filepath.Base(strings.TrimRight(firstNonEmpty(c.ObjectName, c.RemotePath, c.Path, c.Name), "/"))
	}
	name = safeName(name)
	if name == "" || name == "." || name == ".." || name == "_" {
		name = safeName(rotation.PrimaryIdentifier(c))
	}
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
