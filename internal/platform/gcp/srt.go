package gcp

import (
	"fmt"
	"strings"
	"time"
)

// Word is one recognized word with its offsets from the start of the audio.
type Word struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Cue is one subtitle entry.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

const (
	maxCueWords    = 7
	maxCueDuration = 3 * time.Second
)

// GroupWords packs words into short cues suited to vertical video: at most
// maxCueWords words or maxCueDuration each, breaking after sentence
// punctuation.
func GroupWords(words []Word) []Cue {
	var (
		cues []Cue
		cur  []string
		cue  Cue
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		cue.Text = strings.Join(cur, " ")
		cues = append(cues, cue)
		cur = nil
	}
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if len(cur) > 0 && (len(cur) >= maxCueWords || w.End-cue.Start > maxCueDuration) {
			flush()
		}
		if len(cur) == 0 {
			cue = Cue{Start: w.Start}
		}
		cur = append(cur, text)
		if w.End > cue.End {
			cue.End = w.End
		}
		if strings.ContainsAny(text[len(text)-1:], ".!?") {
			flush()
		}
	}
	flush()
	return cues
}

func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// FormatSRT renders cues as SubRip text.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		end := c.End
		if end <= c.Start {
			end = c.Start + 500*time.Millisecond
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(c.Start), srtTimestamp(end), c.Text)
	}
	return b.String()
}
