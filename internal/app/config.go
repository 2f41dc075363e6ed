package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/utils"
)

const (
	SchedulerLoop     = "loop"
	SchedulerTemporal = "temporal"
	SchedulerNone     = "none"
)

type Config struct {
	Environment string
	ServiceName string

	HTTPAddr     string
	MetricsAddr  string
	JWTSecretKey string
	AllowOrigins []string

	Location     *time.Location
	Scheduler    string
	CronInterval time.Duration
	StaleAfter   time.Duration

	ScratchDir      string
	OutputDir       string
	FFmpegPath      string
	FFprobePath     string
	OverlayFontPath string
	EmojiDir        string

	TaglineProvider    string
	TranscribeProvider string

	BunnyAPIKey      string
	BunnyLibraryID   string
	BunnyCDNHostname string
	SourceGCSBucket  string
}

func LoadConfig(log *logger.Logger) (Config, error) {
	tzName := utils.GetEnv("APP_TIMEZONE", "UTC", log)
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("APP_TIMEZONE %q: %w", tzName, err)
	}

	scheduler := strings.ToLower(utils.GetEnv("SCHEDULER", SchedulerLoop, log))
	switch scheduler {
	case SchedulerLoop, SchedulerTemporal, SchedulerNone:
	default:
		return Config{}, fmt.Errorf("unsupported SCHEDULER %q", scheduler)
	}

	interval := utils.GetEnvAsInt("CRON_INTERVAL_SECONDS", 60, log)
	if interval < 10 {
		interval = 10
	}
	stale := utils.GetEnvAsInt("STALE_RUN_MINUTES", 60, log)
	if stale < 1 {
		stale = 60
	}

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Environment:  utils.GetEnv("APP_ENV", "development", log),
		ServiceName:  utils.GetEnv("OTEL_SERVICE_NAME", "reelforge", log),
		HTTPAddr:     utils.GetEnv("HTTP_ADDR", ":8080", log),
		MetricsAddr:  utils.GetEnv("METRICS_ADDR", "", log),
		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "", log),
		AllowOrigins: origins,

		Location:     loc,
		Scheduler:    scheduler,
		CronInterval: time.Duration(interval) * time.Second,
		StaleAfter:   time.Duration(stale) * time.Minute,

		ScratchDir:      utils.GetEnv("SCRATCH_DIR", "", log),
		OutputDir:       utils.GetEnv("OUTPUT_DIR", "", log),
		FFmpegPath:      utils.GetEnv("FFMPEG_PATH", "ffmpeg", log),
		FFprobePath:     utils.GetEnv("FFPROBE_PATH", "ffprobe", log),
		OverlayFontPath: utils.GetEnv("OVERLAY_FONT_PATH", "", log),
		EmojiDir:        utils.GetEnv("EMOJI_DIR", "", log),

		TaglineProvider:    strings.ToLower(utils.GetEnv("TAGLINE_PROVIDER", "auto", log)),
		TranscribeProvider: strings.ToLower(utils.GetEnv("TRANSCRIBE_PROVIDER", "auto", log)),

		BunnyAPIKey:      utils.GetEnv("BUNNY_API_KEY", "", log),
		BunnyLibraryID:   utils.GetEnv("BUNNY_LIBRARY_ID", "", log),
		BunnyCDNHostname: utils.GetEnv("BUNNY_CDN_HOSTNAME", "", log),
		SourceGCSBucket:  utils.GetEnv("SOURCE_GCS_BUCKET", "", log),
	}, nil
}
