package localmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/platform/overlay"
)

// Tools wraps the ffmpeg and ffprobe binaries.
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg (with libx264, aac, libass for subtitles)
// - ffprobe
//
// Calls are synchronous and belong in pipeline runs, not request handlers.
type Tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	banner *overlay.Renderer
	emojis *overlay.EmojiSet

	defaultTimeout time.Duration
}

type Options struct {
	FFmpegPath  string
	FFprobePath string
	Banner      *overlay.Renderer
	Emojis      *overlay.EmojiSet
	Timeout     time.Duration
}

func New(log *logger.Logger, opts Options) *Tools {
	t := &Tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     opts.FFmpegPath,
		ffprobePath:    opts.FFprobePath,
		banner:         opts.Banner,
		emojis:         opts.Emojis,
		defaultTimeout: opts.Timeout,
	}
	if t.ffmpegPath == "" {
		t.ffmpegPath = "ffmpeg"
	}
	if t.ffprobePath == "" {
		t.ffprobePath = "ffprobe"
	}
	if t.defaultTimeout <= 0 {
		t.defaultTimeout = 10 * time.Minute
	}
	if t.banner == nil {
		t.banner, _ = overlay.NewRenderer("")
	}
	return t
}

func (m *Tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

// ExtractAudio writes a 16 kHz mono track. The container follows outPath's
// extension: .flac (default), .wav or .mp3.
func (m *Tools) ExtractAudio(ctx context.Context, videoPath, outPath string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath, AudioArgs(videoPath, outPath)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, tail(out, 20))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

func AudioArgs(videoPath, outPath string) []string {
	args := []string{"-y", "-i", videoPath, "-vn", "-ac", "1", "-ar", "16000"}
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".wav":
		args = append(args, "-f", "wav")
	case ".mp3":
		args = append(args, "-c:a", "libmp3lame", "-b:a", "64k", "-f", "mp3")
	default:
		args = append(args, "-f", "flac")
	}
	return append(args, outPath)
}

type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
}

func (m *Tools) Probe(ctx context.Context, path string) (VideoInfo, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, m.ffprobePath, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbe(out)
}

// ParseProbe reads ffprobe's JSON output.
func ParseProbe(raw []byte) (VideoInfo, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	info := VideoInfo{}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			info.Width, info.Height = s.Width, s.Height
			break
		}
	}
	return info, nil
}

// BestStart skips the first tenth of long videos to avoid intros.
func BestStart(total float64, duration int) int {
	if total <= float64(duration) {
		return 0
	}
	start := math.Min(total*0.1, total-float64(duration))
	return int(math.Max(0, math.Floor(start)))
}

func tail(out []byte, lines int) string {
	parts := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}
