// Package videosource implements the HTTP-based video providers: the Bunny
// Stream library and plain manual URL lists.
package videosource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/pkg/httpx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

const (
	DefaultBunnyBaseURL = "https://video.bunnycdn.com/library"
	bunnyPageSize       = 100
	// bunnyMaxPages stops runaway paging when the API ignores ordering.
	bunnyMaxPages = 200
)

type BunnyConfig struct {
	APIKey      string
	LibraryID   string
	CDNHostname string
	BaseURL     string
	HTTP        *http.Client
}

type Bunny struct {
	cfg    BunnyConfig
	client *httpx.Client
	log    *logger.Logger
}

func NewBunny(cfg BunnyConfig, baseLog *logger.Logger) *Bunny {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBunnyBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	log := baseLog.With("service", "BunnySource")
	return &Bunny{
		cfg: cfg,
		client: &httpx.Client{
			Service:    "bunny",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.LibraryID,
			HTTP:       cfg.HTTP,
			MaxRetries: 2,
			Header:     func(h http.Header) { h.Set("AccessKey", cfg.APIKey) },
			Log:        log,
		},
		log: log,
	}
}

type bunnyVideo struct {
	GUID         string `json:"guid"`
	Title        string `json:"title"`
	DateUploaded string `json:"dateUploaded"`
	StorageSize  int64  `json:"storageSize"`
	Length       int    `json:"length"`
}

type bunnyPage struct {
	TotalItems   int          `json:"totalItems"`
	CurrentPage  int          `json:"currentPage"`
	ItemsPerPage int          `json:"itemsPerPage"`
	Items        []bunnyVideo `json:"items"`
}

// ParseBunnyTime reads dateUploaded, which the API returns without a zone.
func ParseBunnyTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Fetch lists library videos newest first and keeps those uploaded inside
// the source window. Paging stops at the first video older than the window.
func (b *Bunny) Fetch(ctx context.Context, src stages.SourceConfig) ([]rotation.Candidate, error) {
	if b.cfg.APIKey == "" || b.cfg.LibraryID == "" {
		return nil, fmt.Errorf("bunny api key or library id: %w", stages.ErrNotConfigured)
	}
	from, to := src.Window()
	var out []rotation.Candidate
	for page := 1; page <= bunnyMaxPages; page++ {
		var resp bunnyPage
		err := b.client.Do(ctx, httpx.Request{
			Method: http.MethodGet,
			Path:   "/videos",
			Query: map[string]string{
				"page":         strconv.Itoa(page),
				"itemsPerPage": strconv.Itoa(bunnyPageSize),
				"orderBy":      "date",
			},
		}, &resp)
		if err != nil {
			return nil, classify(err)
		}
		for _, v := range resp.Items {
			uploaded, ok := ParseBunnyTime(v.DateUploaded)
			if !ok {
				b.log.Debug("Skipping video with unreadable upload date", "guid", v.GUID, "date", v.DateUploaded)
				continue
			}
			if uploaded.Before(from) {
				return out, nil
			}
			if uploaded.After(to) {
				continue
			}
			u := uploaded
			out = append(out, rotation.Candidate{
				GUID:       v.GUID,
				Title:      v.Title,
				Size:       v.StorageSize,
				UploadedAt: &u,
			})
		}
		if len(resp.Items) < bunnyPageSize {
			break
		}
	}
	b.log.Info("Fetched bunny videos", "count", len(out), "from", from, "to", to)
	return out, nil
}

func (b *Bunny) downloadURL(c rotation.Candidate) (string, error) {
	if c.DownloadURL != "" {
		return c.DownloadURL, nil
	}
	if b.cfg.CDNHostname == "" {
		return "", fmt.Errorf("bunny cdn hostname: %w", stages.ErrNotConfigured)
	}
	if c.GUID == "" {
		return "", errors.New("bunny video has no guid")
	}
	base := strings.TrimSuffix(b.cfg.CDNHostname, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + "/" + c.GUID + "/original", nil
}

func (b *Bunny) Download(ctx context.Context, c rotation.Candidate, dest string) (int64, error) {
	u, err := b.downloadURL(c)
	if err != nil {
		return 0, err
	}
	n, err := httpx.Download(ctx, b.cfg.HTTP, u, http.Header{"AccessKey": {b.cfg.APIKey}}, dest)
	if err != nil {
		return n, classify(err)
	}
	return n, nil
}

// classify maps transport failures onto the source sentinels.
func classify(err error) error {
	switch code := httpx.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", stages.ErrSourceAuth, err)
	case code != 0 || httpx.IsRetryableError(err):
		return fmt.Errorf("%w: %w", stages.ErrSourceUnavailable, err)
	default:
		return err
	}
}
