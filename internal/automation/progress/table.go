package progress

import "github.com/yungbote/reelforge-backend/internal/domain/automation"

type Action string

const (
	ActionRunStarted     Action = "run_started"
	ActionFetch          Action = "fetch"
	ActionVideosFetched  Action = "videos_fetched"
	ActionRotationFilter Action = "rotation_filter"
	ActionBatch          Action = "batch"
	ActionCleanup        Action = "cleanup"
	ActionRunCompleted   Action = "run_completed"
	ActionRunError       Action = "run_error"
)

type entry struct {
	percent int
	step    automation.Step
}

var actions = map[Action]entry{
	ActionRunStarted:     {3, automation.StepInit},
	ActionFetch:          {12, automation.StepFetch},
	ActionVideosFetched:  {20, automation.StepFetch},
	ActionRotationFilter: {25, automation.StepRotation},
	ActionBatch:          {30, automation.StepProcess},
	ActionCleanup:        {97, automation.StepComplete},
	ActionRunCompleted:   {100, automation.StepComplete},
	ActionRunError:       {100, automation.StepError},
}

// Stage is a sub-step of one batch item.
type Stage string

const (
	StageStart    Stage = "processing_video"
	StageDownload Stage = "download"
	StageTagline  Stage = "tagline"
	StageWhisper  Stage = "whisper"
	StageFFmpeg   Stage = "ffmpeg"
	StagePosting  Stage = "posting"
	StageDone     Stage = "video_completed"
)

// stages are placed at fixed fractions of the item's slice of the bar.
var stages = map[Stage]struct {
	frac float64
	step automation.Step
}{
	StageStart:    {0.0, automation.StepProcess},
	StageDownload: {0.1, automation.StepDownload},
	StageTagline:  {0.3, automation.StepAI},
	StageWhisper:  {0.45, automation.StepWhisper},
	StageFFmpeg:   {0.6, automation.StepFFmpeg},
	StagePosting:  {0.85, automation.StepPosting},
	StageDone:     {1.0, automation.StepProcess},
}

const (
	itemSpanStart = 30
	itemSpanEnd   = 94
)

// ActionPercent returns the fixed percentage and step of a run-level action.
func ActionPercent(a Action) (int, automation.Step, bool) {
	e, ok := actions[a]
	return e.percent, e.step, ok
}

// ItemPercent maps stage of item index (0-based) out of total onto the
// 30–94 span of the bar.
func ItemPercent(index, total int, stage Stage) (int, automation.Step) {
	s, ok := stages[stage]
	if !ok {
		s = stages[StageStart]
	}
	if total < 1 {
		total = 1
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}
	span := float64(itemSpanEnd - itemSpanStart)
	pct := itemSpanStart + int(span*(float64(index)+s.frac)/float64(total)+1e-9)
	return pct, s.step
}
