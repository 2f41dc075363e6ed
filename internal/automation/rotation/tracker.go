package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	repoauto "github.com/yungbote/reelforge-backend/internal/data/repos/automation"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type Tracker struct {
	processed   repoauto.ProcessedVideoRepo
	automations repoauto.AutomationRepo
	log         *logger.Logger
	now         func() time.Time
}

func NewTracker(processed repoauto.ProcessedVideoRepo, automations repoauto.AutomationRepo, baseLog *logger.Logger) *Tracker {
	return &Tracker{
		processed:   processed,
		automations: automations,
		log:         baseLog.With("component", "RotationTracker"),
		now:         time.Now,
	}
}

type seenSet struct {
	ids    map[string]struct{}
	hashes map[string]struct{}
	sizes  map[int64][]string
}

func (t *Tracker) load(ctx context.Context, automationID uuid.UUID, cycle int) (seenSet, error) {
	rows, err := t.processed.ListForCycle(dbctx.New(ctx), automationID, cycle)
	if err != nil {
		return seenSet{}, fmt.Errorf("load processed videos: %w", err)
	}
	s := seenSet{
		ids:    make(map[string]struct{}, len(rows)),
		hashes: make(map[string]struct{}, len(rows)),
		sizes:  make(map[int64][]string),
	}
	for _, r := range rows {
		s.ids[r.VideoIdentifier] = struct{}{}
		if r.ContentHash != "" {
			s.hashes[r.ContentHash] = struct{}{}
		}
		if r.FileSize > 0 {
			s.sizes[r.FileSize] = append(s.sizes[r.FileSize], r.VideoIdentifier)
		}
	}
	return s, nil
}

// excludes reports why c counts as already processed, or "" when it does not.
func (s seenSet) excludes(c Candidate) string {
	aliases := IdentifierAliases(c)
	for _, a := range aliases {
		if _, ok := s.ids[a]; ok {
			return "alias"
		}
	}
	if fp := Fingerprint(c); fp != "" {
		if _, ok := s.hashes[fp]; ok {
			return "fingerprint"
		}
	}
	if c.Size > 0 {
		own := make(map[string]struct{}, len(aliases))
		for _, a := range aliases {
			own[a] = struct{}{}
		}
		for _, id := range s.sizes[c.Size] {
			if _, mine := own[id]; !mine {
				return "size"
			}
		}
	}
	return ""
}

// Filter drops candidates already processed in cycle and collapses
// candidates that share a primary identifier or a fingerprint, keeping the
// first. Input order is preserved.
func (t *Tracker) Filter(ctx context.Context, automationID uuid.UUID, cycle int, candidates []Candidate) ([]Candidate, error) {
	seen, err := t.load(ctx, automationID, cycle)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(candidates))
	batch := make(map[string]struct{}, len(candidates))
	fps := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if reason := seen.excludes(c); reason != "" {
			t.log.Debug("Skipping processed candidate", "automation_id", automationID, "cycle", cycle, "video", PrimaryIdentifier(c), "reason", reason)
			continue
		}
		id := PrimaryIdentifier(c)
		if _, dup := batch[id]; dup {
			continue
		}
		fp := Fingerprint(c)
		if fp != "" {
			if _, dup := fps[fp]; dup {
				t.log.Debug("Skipping duplicate candidate", "automation_id", automationID, "cycle", cycle, "video", id, "reason", "fingerprint")
				continue
			}
			fps[fp] = struct{}{}
		}
		batch[id] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Advance is the outcome of MaybeAdvanceCycle.
type Advance struct {
	Cycle     int
	Advanced  bool
	Available []Candidate
}

// MaybeAdvanceCycle starts a new cycle once every candidate has been used.
// It only fires when auto-reset is on, remaining is empty and before is not;
// the full before set is then available again.
func (t *Tracker) MaybeAdvanceCycle(ctx context.Context, a *types.Automation, before, remaining []Candidate) (Advance, error) {
	cycle := a.Cycle()
	if len(remaining) > 0 || len(before) == 0 || !a.RotationAutoReset {
		return Advance{Cycle: cycle, Available: remaining}, nil
	}
	dbc := dbctx.New(ctx)
	ok, err := t.automations.AdvanceCycle(dbc, a.ID, cycle)
	if err != nil {
		return Advance{}, fmt.Errorf("advance rotation cycle: %w", err)
	}
	if !ok {
		// another writer moved the cycle; filter against whatever it is now
		fresh, err := t.automations.GetByID(dbc, a.ID)
		if err != nil {
			return Advance{}, err
		}
		if fresh == nil {
			return Advance{Cycle: cycle, Available: remaining}, nil
		}
		avail, err := t.Filter(ctx, a.ID, fresh.Cycle(), before)
		if err != nil {
			return Advance{}, err
		}
		a.RotationCycle = fresh.Cycle()
		return Advance{Cycle: fresh.Cycle(), Advanced: fresh.Cycle() != cycle, Available: avail}, nil
	}
	a.RotationCycle = cycle + 1
	t.log.Info("Rotation cycle advanced", "automation_id", a.ID, "from", cycle, "to", cycle+1)
	avail := make([]Candidate, len(before))
	copy(avail, before)
	return Advance{Cycle: cycle + 1, Advanced: true, Available: avail}, nil
}

// MarkProcessed records every alias of c for the cycle and backfills the
// fingerprint. Calling it again only refreshes processed_at.
func (t *Tracker) MarkProcessed(ctx context.Context, automationID uuid.UUID, cycle int, c Candidate) error {
	aliases := IdentifierAliases(c)
	if len(aliases) == 0 {
		aliases = []string{PrimaryIdentifier(c)}
	}
	now := t.now().UTC()
	filename := c.Filename
	if filename == "" {
		filename = DisplayName(c)
	}
	rows := make([]*types.ProcessedVideo, 0, len(aliases))
	for _, alias := range aliases {
		rows = append(rows, &types.ProcessedVideo{
			AutomationID:    automationID,
			CycleNumber:     cycle,
			VideoIdentifier: alias,
			VideoFilename:   filename,
			FileSize:        c.Size,
			ProcessedAt:     now,
		})
	}
	dbc := dbctx.New(ctx)
	if err := t.processed.UpsertAliases(dbc, rows); err != nil {
		return fmt.Errorf("record processed video: %w", err)
	}
	if err := t.processed.SetContentHash(dbc, automationID, cycle, aliases, Fingerprint(c)); err != nil {
		return fmt.Errorf("backfill fingerprint: %w", err)
	}
	return nil
}

type Stats struct {
	Cycle     int   `json:"cycle"`
	Processed int64 `json:"processed"`
}

func (t *Tracker) Stats(ctx context.Context, a *types.Automation) (Stats, error) {
	n, err := t.processed.CountForCycle(dbctx.New(ctx), a.ID, a.Cycle())
	if err != nil {
		return Stats{}, err
	}
	return Stats{Cycle: a.Cycle(), Processed: n}, nil
}

// ClearCycle forgets everything processed in cycle.
func (t *Tracker) ClearCycle(ctx context.Context, a *types.Automation, cycle int) (int64, error) {
	if cycle < 1 {
		cycle = a.Cycle()
	}
	n, err := t.processed.DeleteCycle(dbctx.New(ctx), a.ID, cycle)
	if err != nil {
		return 0, err
	}
	t.log.Info("Cleared rotation cycle", "automation_id", a.ID, "cycle", cycle, "rows", n)
	return n, nil
}
