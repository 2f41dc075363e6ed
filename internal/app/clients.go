package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/pipeline"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/automation/tagline"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/platform/gcp"
	"github.com/yungbote/reelforge-backend/internal/platform/gemini"
	"github.com/yungbote/reelforge-backend/internal/platform/localmedia"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/platform/openai"
	"github.com/yungbote/reelforge-backend/internal/platform/overlay"
	"github.com/yungbote/reelforge-backend/internal/platform/postforme"
	"github.com/yungbote/reelforge-backend/internal/platform/videosource"
	"github.com/yungbote/reelforge-backend/internal/realtime/bus"
)

// Emoji offered to the local tagline generator; only those with a PNG in
// EMOJI_DIR are used.
var emojiCandidates = []string{"🔥", "✨", "💯", "🚀", "😎", "🎬", "🌅", "💥", "🙌", "⚡", "😍", "🤯"}

type Clients struct {
	Bus bus.Bus

	Sources     pipeline.Sources
	AI          stages.TaglineGenerator
	Local       *tagline.LocalGenerator
	Transcriber stages.Transcriber
	Media       *localmedia.Tools
	Publisher   stages.Publisher

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	b, err := bus.New(ctx, log, bus.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init event bus: %w", err)
	}
	c.Bus = b
	c.closers = append(c.closers, b.Close)

	// Media
	banner, err := overlay.NewRenderer(cfg.OverlayFontPath)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init banner renderer: %w", err)
	}
	emojis := overlay.LoadEmojiSet(cfg.EmojiDir, emojiCandidates)
	c.Media = localmedia.New(log, localmedia.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Banner:      banner,
		Emojis:      emojis,
	})
	c.Local = tagline.NewLocalGenerator(emojis.Available())

	// Sources
	c.Sources = pipeline.Sources{
		automation.SourceManual: videosource.NewManual(&http.Client{Timeout: 30 * time.Minute}, log),
	}
	if cfg.BunnyAPIKey != "" && cfg.BunnyLibraryID != "" {
		c.Sources[automation.SourceBunny] = videosource.NewBunny(videosource.BunnyConfig{
			APIKey:      cfg.BunnyAPIKey,
			LibraryID:   cfg.BunnyLibraryID,
			CDNHostname: cfg.BunnyCDNHostname,
		}, log)
	} else {
		log.Info("Bunny source disabled (BUNNY_API_KEY or BUNNY_LIBRARY_ID missing)")
	}
	if cfg.SourceGCSBucket != "" {
		storageCfg, err := gcp.ResolveStorageConfig(nil)
		if err != nil {
			c.Close()
			return Clients{}, err
		}
		src, err := gcp.NewSource(ctx, cfg.SourceGCSBucket, storageCfg, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init gcs source: %w", err)
		}
		c.Sources[automation.SourceGCS] = src
		c.closers = append(c.closers, src.Close)
	}

	// OpenAI is shared by taglines and Whisper.
	var oa *openai.Client
	if oc, err := openai.New(openai.ConfigFromEnv(), log); err == nil {
		oa = oc
	} else if !errors.Is(err, stages.ErrNotConfigured) {
		c.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	var gm *gemini.Client
	if gc, err := gemini.New(gemini.ConfigFromEnv(), log); err == nil {
		gm = gc
	} else if !errors.Is(err, stages.ErrNotConfigured) {
		c.Close()
		return Clients{}, fmt.Errorf("init gemini client: %w", err)
	}

	ai, err := taglineGenerator(cfg.TaglineProvider, oa, gm)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.AI = ai

	switch cfg.TranscribeProvider {
	case "gcp":
		t, err := gcp.NewTranscriber(ctx, c.Media, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init speech transcriber: %w", err)
		}
		c.Transcriber = t
		c.closers = append(c.closers, t.Close)
	case "whisper", "auto", "":
		if oa != nil {
			c.Transcriber = oa.Whisper(c.Media)
		} else if cfg.TranscribeProvider == "whisper" {
			c.Close()
			return Clients{}, fmt.Errorf("TRANSCRIBE_PROVIDER=whisper requires OPENAI_API_KEY")
		}
	case "none":
	default:
		c.Close()
		return Clients{}, fmt.Errorf("unsupported TRANSCRIBE_PROVIDER %q", cfg.TranscribeProvider)
	}
	if c.Transcriber == nil {
		log.Info("Subtitles disabled (no transcriber configured)")
	}

	if pc, err := postforme.New(postforme.ConfigFromEnv(), log); err == nil {
		c.Publisher = pc
	} else if errors.Is(err, stages.ErrNotConfigured) {
		log.Info("Publishing disabled (POSTFORME_API_KEY missing)")
	} else {
		c.Close()
		return Clients{}, fmt.Errorf("init postforme client: %w", err)
	}

	return c, nil
}

// taglineGenerator picks the AI tagline provider. "auto" chains every
// configured provider, OpenAI first. A nil result leaves taglines to the
// local generator.
func taglineGenerator(provider string, oa *openai.Client, gm *gemini.Client) (stages.TaglineGenerator, error) {
	switch provider {
	case "openai":
		if oa == nil {
			return nil, fmt.Errorf("TAGLINE_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return oa, nil
	case "gemini":
		if gm == nil {
			return nil, fmt.Errorf("TAGLINE_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		return gm, nil
	case "local", "none":
		return nil, nil
	case "auto", "":
		var chain tagline.Chain
		if oa != nil {
			chain = append(chain, oa)
		}
		if gm != nil {
			chain = append(chain, gm)
		}
		switch len(chain) {
		case 0:
			return nil, nil
		case 1:
			return chain[0], nil
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("unsupported TAGLINE_PROVIDER %q", provider)
	}
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
