package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/overlay"
)

const (
	defaultShortSeconds = 60
	minOutputBytes      = 1000
)

// Frame is the output geometry for one aspect ratio setting.
type Frame struct {
	Width  int
	Height int
	// Fit letterboxes instead of cropping.
	Fit  bool
	Crop string
}

// FrameFor resolves "9:16", "1:1", "16:9" and their "-fit" variants.
// Unknown values get the vertical crop.
func FrameFor(aspect string) Frame {
	switch strings.TrimSpace(aspect) {
	case "9:16-fit":
		return Frame{Width: 1080, Height: 1920, Fit: true}
	case "1:1":
		return Frame{Width: 1080, Height: 1080, Crop: `crop=min(iw\,ih):min(iw\,ih)`}
	case "1:1-fit":
		return Frame{Width: 1080, Height: 1080, Fit: true}
	case "16:9":
		return Frame{Width: 1920, Height: 1080, Crop: "crop=iw:iw*9/16"}
	case "16:9-fit":
		return Frame{Width: 1920, Height: 1080, Fit: true}
	default:
		return Frame{Width: 1080, Height: 1920, Crop: "crop=ih*9/16:ih"}
	}
}

func (f Frame) Filters() []string {
	if f.Fit {
		return []string{
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:flags=lanczos", f.Width, f.Height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", f.Width, f.Height),
		}
	}
	return []string{f.Crop, fmt.Sprintf("scale=%d:%d:flags=lanczos", f.Width, f.Height)}
}

// ShortPlan is everything needed to build one ffmpeg invocation.
type ShortPlan struct {
	Input     string
	Output    string
	Start     int
	Duration  int
	Frame     Frame
	Banner    string
	Subtitles string
}

// escapeFilterPath quotes a path for use inside a filtergraph option.
func escapeFilterPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, ":", `\:`)
	p = strings.ReplaceAll(p, "'", `\'`)
	return "'" + p + "'"
}

// FilterGraph chains frame geometry, the banner overlay and burned-in
// subtitles, ending at the [v] label.
func (p ShortPlan) FilterGraph() string {
	chain := strings.Join(p.Frame.Filters(), ",")
	var parts []string
	label := "base"
	parts = append(parts, "[0:v]"+chain+"["+label+"]")
	if p.Banner != "" {
		parts = append(parts, "["+label+"][1:v]overlay=0:0[banner]")
		label = "banner"
	}
	if p.Subtitles != "" {
		style := "FontName=Arial,FontSize=14,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,BorderStyle=1,Outline=2,Alignment=2,MarginV=70"
		parts = append(parts, "["+label+"]subtitles="+escapeFilterPath(p.Subtitles)+":force_style='"+style+"'[subs]")
		label = "subs"
	}
	parts = append(parts, "["+label+"]null[v]")
	return strings.Join(parts, ";")
}

func (p ShortPlan) Args() []string {
	args := []string{"-y", "-ss", strconv.Itoa(p.Start), "-i", p.Input}
	if p.Banner != "" {
		args = append(args, "-i", p.Banner)
	}
	args = append(args,
		"-t", strconv.Itoa(p.Duration),
		"-filter_complex", p.FilterGraph(),
		"-map", "[v]", "-map", "0:a?",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		p.Output,
	)
	return args
}

// CreateShort cuts, reframes and brands one clip.
func (m *Tools) CreateShort(ctx context.Context, in string, opts stages.ShortOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if in == "" {
		return "", fmt.Errorf("%w: input path required", stages.ErrEncode)
	}
	if opts.OutputDir == "" || opts.OutputName == "" {
		return "", fmt.Errorf("%w: output location required", stages.ErrEncode)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir output dir: %w", stages.ErrEncode, err)
	}
	duration := opts.DurationSeconds
	if duration <= 0 {
		duration = defaultShortSeconds
	}

	plan := ShortPlan{
		Input:    in,
		Output:   filepath.Join(opts.OutputDir, opts.OutputName),
		Duration: duration,
		Frame:    FrameFor(opts.AspectRatio),
	}
	if info, err := m.Probe(ctx, in); err != nil {
		m.log.Warn("Probe failed, cutting from start", "path", in, "error", err)
	} else {
		plan.Start = BestStart(info.Duration, duration)
	}

	if strings.TrimSpace(opts.TopText) != "" || strings.TrimSpace(opts.BottomText) != "" {
		scratch := opts.ScratchDir
		if scratch == "" {
			scratch = opts.OutputDir
		}
		bannerPath := filepath.Join(scratch, strings.TrimSuffix(opts.OutputName, filepath.Ext(opts.OutputName))+"_banner.png")
		emojiPath, _ := m.emojis.PNG(opts.Emoji)
		err := m.banner.Render(overlay.Banner{
			Width:     plan.Frame.Width,
			Height:    plan.Frame.Height,
			Top:       opts.TopText,
			Bottom:    opts.BottomText,
			EmojiPath: emojiPath,
		}, bannerPath)
		if err != nil {
			return "", fmt.Errorf("%w: render banner: %w", stages.ErrEncode, err)
		}
		defer os.Remove(bannerPath)
		plan.Banner = bannerPath
	}
	if opts.SubtitlesPath != "" {
		if _, err := os.Stat(opts.SubtitlesPath); err == nil {
			plan.Subtitles = opts.SubtitlesPath
		} else {
			m.log.Warn("Subtitles file missing, skipping", "path", opts.SubtitlesPath)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, m.ffmpegPath, plan.Args()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if plan.Subtitles != "" {
			// libass failures should not cost the whole short
			m.log.Warn("Encode with subtitles failed, retrying without", "error", err)
			plan.Subtitles = ""
			out, err = exec.CommandContext(ctx, m.ffmpegPath, plan.Args()...).CombinedOutput()
		}
		if err != nil {
			return "", fmt.Errorf("%w: ffmpeg: %w; out=%s", stages.ErrEncode, err, tail(out, 20))
		}
	}
	fi, err := os.Stat(plan.Output)
	if err != nil || fi.Size() < minOutputBytes {
		return "", fmt.Errorf("%w: output file not created or too small", stages.ErrEncode)
	}
	m.log.Info("Short created", "output", plan.Output, "start", plan.Start, "duration", duration, "width", plan.Frame.Width, "height", plan.Frame.Height)
	return plan.Output, nil
}
