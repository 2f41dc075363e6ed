package tagline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
)

// MaxRecentInPrompt bounds how many used taglines are listed as off limits.
const MaxRecentInPrompt = 10

const defaultInstructions = "Write a short, catchy two-part caption for a vertical social video."

// BuildPrompt renders the instruction text sent to the AI providers.
func BuildPrompt(req stages.TaglineRequest) string {
	var b strings.Builder
	instructions := strings.TrimSpace(req.Prompt)
	if instructions == "" {
		instructions = defaultInstructions
	}
	b.WriteString(instructions)
	b.WriteString("\n\n")

	if req.VideoTitle != "" || req.VideoFilename != "" {
		b.WriteString("Video context:\n")
		if req.VideoTitle != "" {
			fmt.Fprintf(&b, "- Title: %s\n", req.VideoTitle)
		}
		if req.VideoFilename != "" && req.VideoFilename != req.VideoTitle {
			fmt.Fprintf(&b, "- Filename: %s\n", req.VideoFilename)
		}
		b.WriteString("\n")
	}
	if len(req.Words) > 0 {
		fmt.Fprintf(&b, "Keywords you may use: %s\n\n", strings.Join(req.Words, ", "))
	}

	recent := req.Recent
	if len(recent) > MaxRecentInPrompt {
		recent = recent[:MaxRecentInPrompt]
	}
	if len(recent) > 0 {
		b.WriteString("Do NOT reuse any of these recently used taglines:\n")
		for _, r := range recent {
			if t, ok := ParseMessage(r); ok {
				r = t.Top + " / " + t.Bottom
			}
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with JSON only, no prose: {"top": "<max 60 chars>", "bottom": "<max 40 chars>"}`)
	return b.String()
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseResponse extracts a tagline from a model reply. Markdown fences and
// text around the JSON object are tolerated; both fields are required.
func ParseResponse(text string) (stages.Tagline, error) {
	s := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var t stages.Tagline
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return stages.Tagline{}, fmt.Errorf("%w: %v", stages.ErrParse, err)
	}
	t.Top = strings.TrimSpace(t.Top)
	t.Bottom = strings.TrimSpace(t.Bottom)
	if t.Top == "" || t.Bottom == "" {
		return stages.Tagline{}, fmt.Errorf("%w: top and bottom are required", stages.ErrParse)
	}
	return t, nil
}

// FormatMessage is the log message stored for a generated tagline.
func FormatMessage(t stages.Tagline) string {
	return fmt.Sprintf("Top: %s | Bottom: %s", t.Top, t.Bottom)
}

// ParseMessage finds a FormatMessage tagline inside msg. Prefixes such as
// "AI Generated: " and suffixes after the bottom text are dropped.
func ParseMessage(msg string) (stages.Tagline, bool) {
	i := strings.Index(msg, "Top: ")
	if i < 0 {
		return stages.Tagline{}, false
	}
	top, bottom, ok := strings.Cut(msg[i+len("Top: "):], " | Bottom: ")
	if !ok {
		return stages.Tagline{}, false
	}
	if i := strings.Index(bottom, " | "); i >= 0 {
		bottom = bottom[:i]
	}
	return stages.Tagline{Top: strings.TrimSpace(top), Bottom: strings.TrimSpace(bottom)}, true
}

// Static is the last-resort text taken from the automation's branding.
func Static(req stages.TaglineRequest) stages.Tagline {
	return stages.Tagline{Top: req.BrandingTop, Bottom: req.BrandingBottom}
}
