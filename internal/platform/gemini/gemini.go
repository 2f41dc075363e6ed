// Package gemini generates taglines with the Generative Language API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/automation/tagline"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/httpx"
	"github.com/yungbote/reelforge-backend/internal/platform/envutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     strings.TrimSpace(envutil.String("GEMINI_API_KEY", "")),
		BaseURL:    envutil.String("GEMINI_BASE_URL", DefaultBaseURL),
		Model:      envutil.String("GEMINI_MODEL", "gemini-1.5-flash"),
		Timeout:    envutil.Seconds("GEMINI_TIMEOUT_SECONDS", 30),
		MaxRetries: envutil.Int("GEMINI_MAX_RETRIES", 2),
	}
}

type Client struct {
	model string
	http  *httpx.Client
}

func New(cfg Config, baseLog *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY: %w", stages.ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log := baseLog.With("service", "GeminiClient")
	return &Client{
		model: cfg.Model,
		http: &httpx.Client{
			Service:    "gemini",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: cfg.MaxRetries,
			Log:        log,
			Header:     func(h http.Header) { h.Set("x-goog-api-key", cfg.APIKey) },
		},
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) Generate(ctx context.Context, req stages.TaglineRequest) (stages.Tagline, error) {
	var body generateRequest
	body.Contents = []content{{Role: "user", Parts: []part{{Text: tagline.BuildPrompt(req)}}}}
	body.GenerationConfig.Temperature = 0.9
	body.GenerationConfig.MaxOutputTokens = 200

	start := time.Now()
	var resp generateResponse
	err := c.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   "/models/" + c.model + ":generateContent",
		Body:   body,
	}, &resp)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObserveProvider("gemini", "tagline", status, time.Since(start))
	if err != nil {
		return stages.Tagline{}, classify(err)
	}
	if resp.PromptFeedback.BlockReason != "" {
		return stages.Tagline{}, fmt.Errorf("%w: prompt blocked (%s)", stages.ErrProvider, resp.PromptFeedback.BlockReason)
	}
	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return stages.Tagline{}, fmt.Errorf("%w: empty candidate", stages.ErrParse)
	}
	return tagline.ParseResponse(text.String())
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch httpx.StatusCode(err) {
	case http.StatusTooManyRequests:
		return fmt.Errorf("gemini: %w: %w", stages.ErrQuotaExceeded, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gemini: %w: %w", stages.ErrNotConfigured, err)
	default:
		return fmt.Errorf("gemini: %w: %w", stages.ErrProvider, err)
	}
}
