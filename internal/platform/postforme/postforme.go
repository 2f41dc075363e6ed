// Package postforme publishes shorts through the Post for Me unified social
// posting API.
package postforme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/httpx"
	"github.com/yungbote/reelforge-backend/internal/platform/envutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

const DefaultBaseURL = "https://api.postforme.dev/v1"

type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
	MaxRetries    int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:        strings.TrimSpace(envutil.String("POSTFORME_API_KEY", "")),
		BaseURL:       envutil.String("POSTFORME_BASE_URL", DefaultBaseURL),
		Timeout:       envutil.Seconds("POSTFORME_TIMEOUT_SECONDS", 120),
		UploadTimeout: envutil.Seconds("POSTFORME_UPLOAD_TIMEOUT_SECONDS", 3600),
		MaxRetries:    envutil.Int("POSTFORME_MAX_RETRIES", 2),
	}
}

type Client struct {
	api    *httpx.Client
	upload *http.Client
	log    *logger.Logger
}

func New(cfg Config, baseLog *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing POSTFORME_API_KEY: %w", stages.ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = time.Hour
	}
	log := baseLog.With("service", "PostForMe")
	return &Client{
		log:    log,
		upload: &http.Client{Timeout: cfg.UploadTimeout},
		api: &httpx.Client{
			Service:    "postforme",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: cfg.MaxRetries,
			Log:        log,
			Header:     func(h http.Header) { h.Set("Authorization", "Bearer "+cfg.APIKey) },
		},
	}, nil
}

type uploadURL struct {
	UploadURL string `json:"upload_url"`
	MediaURL  string `json:"media_url"`
}

type media struct {
	URL string `json:"url"`
}

type createPost struct {
	Caption        string   `json:"caption"`
	SocialAccounts []string `json:"social_accounts"`
	Media          []media  `json:"media"`
	ScheduledAt    string   `json:"scheduled_at,omitempty"`
}

type post struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// UploadMedia pushes a local file to Post for Me storage and returns the
// media URL to attach to a post.
func (c *Client) UploadMedia(ctx context.Context, path string) (string, error) {
	var target uploadURL
	if err := c.api.Do(ctx, httpx.Request{Method: http.MethodPost, Path: "/media/create-upload-url"}, &target); err != nil {
		return "", asPublishError(err)
	}
	if target.UploadURL == "" || target.MediaURL == "" {
		return "", &stages.PublishError{StatusCode: http.StatusBadGateway, Message: "upload url missing from response"}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, f)
	if err != nil {
		return "", err
	}
	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "video/mp4")
	resp, err := c.upload.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &stages.PublishError{StatusCode: resp.StatusCode, Message: "media upload failed"}
	}
	c.log.Info("Media uploaded", "path", path, "bytes", fi.Size())
	return target.MediaURL, nil
}

func (c *Client) Publish(ctx context.Context, req stages.PublishRequest) (stages.PublishResult, error) {
	if strings.TrimSpace(req.Caption) == "" || len(req.AccountIDs) == 0 {
		return stages.PublishResult{}, &stages.PublishError{StatusCode: http.StatusBadRequest, Message: "caption and social accounts are required"}
	}
	start := time.Now()
	res, err := c.publish(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObserveProvider("postforme", "publish", status, time.Since(start))
	return res, err
}

func (c *Client) publish(ctx context.Context, req stages.PublishRequest) (stages.PublishResult, error) {
	mediaURL, err := c.UploadMedia(ctx, req.MediaPath)
	if err != nil {
		return stages.PublishResult{}, err
	}
	body := createPost{
		Caption:        req.Caption,
		SocialAccounts: req.AccountIDs,
		Media:          []media{{URL: mediaURL}},
	}
	if req.ScheduledAt != nil {
		body.ScheduledAt = req.ScheduledAt.UTC().Format(time.RFC3339)
	}
	var raw json.RawMessage
	if err := c.api.Do(ctx, httpx.Request{Method: http.MethodPost, Path: "/social-posts", Body: body}, &raw); err != nil {
		return stages.PublishResult{}, asPublishError(err)
	}
	var p post
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return stages.PublishResult{}, &stages.PublishError{StatusCode: http.StatusBadGateway, Message: "post id missing from response"}
	}
	c.log.Info("Post created", "post_id", p.ID, "status", p.Status, "accounts", len(req.AccountIDs))
	return stages.PublishResult{ExternalID: p.ID, Status: p.Status, Raw: raw}, nil
}

// PostStatus returns the provider's status string for a post.
func (c *Client) PostStatus(ctx context.Context, externalID string) (string, error) {
	var p post
	if err := c.api.Do(ctx, httpx.Request{Method: http.MethodGet, Path: "/social-posts/" + externalID}, &p); err != nil {
		return "", asPublishError(err)
	}
	return p.Status, nil
}

// asPublishError keeps the provider's status and message visible to the run
// journal.
func asPublishError(err error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	msg := se.Body
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &body) == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Error != nil:
			msg = fmt.Sprint(body.Error)
		}
	}
	return &stages.PublishError{StatusCode: se.StatusCode, Message: strings.TrimSpace(msg)}
}
