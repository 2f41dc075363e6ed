package openai

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

const systemPrompt = "You write short, punchy captions for vertical social videos. Reply with JSON only."

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	WhisperModel string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       strings.TrimSpace(envutil.String("OPENAI_API_KEY", "")),
		BaseURL:      envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:        envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		WhisperModel: envutil.String("OPENAI_WHISPER_MODEL", "whisper-1"),
		Temperature:  0.9,
		MaxTokens:    envutil.Int("OPENAI_MAX_TOKENS", 200),
		Timeout:      envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 120),
		MaxRetries:   envutil.Int("OPENAI_MAX_RETRIES", 2),
	}
}

// Client talks to the chat completions and audio transcription endpoints.
type Client struct {
	cfg  Config
	http *httpx.Client
	log  *logger.Logger
}

func New(cfg Config, baseLog *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY: %w", stages.ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = "whisper-1"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	log := baseLog.With("service", "OpenAIClient")
	return &Client{
		cfg: cfg,
		log: log,
		http: &httpx.Client{
			Service:    "openai",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: cfg.MaxRetries,
			Log:        log,
			Header: func(h http.Header) {
				h.Set("Authorization", "Bearer "+cfg.APIKey)
			},
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the chat model for a tagline.
func (c *Client) Generate(ctx context.Context, req stages.TaglineRequest) (stages.Tagline, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: tagline.BuildPrompt(req)},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	start := time.Now()
	var resp chatResponse
	err := c.http.Do(ctx, httpx.Request{Method: http.MethodPost, Path: "/v1/chat/completions", Body: body}, &resp)
	observability.Current().ObserveProvider("openai", "tagline", statusLabel(err), time.Since(start))
	if err != nil {
		return stages.Tagline{}, classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return stages.Tagline{}, fmt.Errorf("%w: empty completion", stages.ErrParse)
	}
	return tagline.ParseResponse(resp.Choices[0].Message.Content)
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch code := httpx.StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("openai: %w: %w", stages.ErrQuotaExceeded, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("openai: %w: %w", stages.ErrNotConfigured, err)
	default:
		return fmt.Errorf("openai: %w: %w", stages.ErrProvider, err)
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := httpx.StatusCode(err); code > 0 {
		return fmt.Sprintf("%d", code)
	}
	return "error"
}
