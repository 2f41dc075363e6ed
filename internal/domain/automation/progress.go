package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Step is the coarse pipeline phase shown to polling clients.
type Step string

const (
	StepInit     Step = "init"
	StepFetch    Step = "fetch"
	StepRotation Step = "rotation"
	StepProcess  Step = "process"
	StepDownload Step = "download"
	StepAI       Step = "ai"
	StepWhisper  Step = "whisper"
	StepFFmpeg   Step = "ffmpeg"
	StepPosting  Step = "posting"
	StepComplete Step = "complete"
	StepError    Step = "error"
)

var knownSteps = map[Step]struct{}{
	StepInit: {}, StepFetch: {}, StepRotation: {}, StepProcess: {}, StepDownload: {},
	StepAI: {}, StepWhisper: {}, StepFFmpeg: {}, StepPosting: {}, StepComplete: {}, StepError: {},
}

type PayloadStatus string

const (
	PayloadInfo    PayloadStatus = "info"
	PayloadSuccess PayloadStatus = "success"
	PayloadWarning PayloadStatus = "warning"
	PayloadError   PayloadStatus = "error"
)

// RunStats are the aggregate counters of one run.
type RunStats struct {
	Fetched    int `json:"fetched"`
	Downloaded int `json:"downloaded"`
	Processed  int `json:"processed"`
	Scheduled  int `json:"scheduled"`
	Posted     int `json:"posted"`
	Errors     int `json:"errors"`
	Total      int `json:"total,omitempty"`
	Current    int `json:"current,omitempty"`
}

type ProgressPayload struct {
	Step      Step          `json:"step"`
	Status    PayloadStatus `json:"status"`
	Message   string        `json:"message"`
	Stats     RunStats      `json:"stats"`
	Timestamp time.Time     `json:"timestamp"`
}

func (p ProgressPayload) Validate() error {
	if _, ok := knownSteps[p.Step]; !ok {
		return fmt.Errorf("unknown progress step %q", p.Step)
	}
	switch p.Status {
	case PayloadInfo, PayloadSuccess, PayloadWarning, PayloadError:
		return nil
	default:
		return fmt.Errorf("unknown progress status %q", p.Status)
	}
}

// Encode validates and serializes the payload for the progress column.
func (p ProgressPayload) Encode() (datatypes.JSON, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
