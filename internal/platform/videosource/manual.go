package videosource

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/pkg/httpx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

var (
	listSplit  = regexp.MustCompile(`[\r\n,]+`)
	unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Manual serves videos from an operator supplied URL list.
type Manual struct {
	http *http.Client
	log  *logger.Logger
}

func NewManual(hc *http.Client, baseLog *logger.Logger) *Manual {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Manual{http: hc, log: baseLog.With("service", "ManualSource")}
}

// ParseURLs accepts a JSON array or a newline/comma separated list. Only
// absolute http(s) URLs are kept, deduplicated in input order.
func ParseURLs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var parts []string
	var decoded []any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		for _, v := range decoded {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
	} else {
		parts = listSplit.Split(raw, -1)
	}
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			continue
		}
		if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ManualCandidate builds the candidate for one URL. The GUID is derived from
// the URL so the same link is recognized across runs.
func ManualCandidate(rawURL string, index int, now time.Time) rotation.Candidate {
	sum := sha1.Sum([]byte(rawURL))
	hash := hex.EncodeToString(sum[:])

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	name = unsafeName.ReplaceAllString(name, "_")
	switch {
	case name == "" || name == "." || name == ".." || name == "/" || name == "_":
		name = "manual_" + hash[:12] + ".mp4"
	case path.Ext(name) == "":
		name += ".mp4"
	}
	title := strings.TrimSuffix(name, path.Ext(name))
	if title == "" {
		title = fmt.Sprintf("Manual Video %d", index+1)
	}
	uploaded := now.UTC()
	return rotation.Candidate{
		GUID:        "manual_" + hash[:24],
		Title:       title,
		Filename:    name,
		RemotePath:  rawURL,
		DownloadURL: rawURL,
		UploadedAt:  &uploaded,
	}
}

func (m *Manual) Fetch(_ context.Context, src stages.SourceConfig) ([]rotation.Candidate, error) {
	urls := ParseURLs(src.ManualURLs)
	now := src.Now
	if now.IsZero() {
		now = time.Now()
	}
	out := make([]rotation.Candidate, 0, len(urls))
	for i, u := range urls {
		out = append(out, ManualCandidate(u, i, now))
	}
	m.log.Info("Parsed manual video urls", "count", len(out))
	return out, nil
}

func (m *Manual) Download(ctx context.Context, c rotation.Candidate, dest string) (int64, error) {
	src := c.DownloadURL
	if src == "" {
		src = c.RemotePath
	}
	if src == "" {
		return 0, fmt.Errorf("manual source video url is missing")
	}
	n, err := httpx.Download(ctx, m.http, src, http.Header{"User-Agent": {"reelforge/1.0"}}, dest)
	if err != nil {
		return n, classify(err)
	}
	if n == 0 {
		return 0, fmt.Errorf("manual url %s returned an empty body: %w", src, stages.ErrSourceUnavailable)
	}
	return n, nil
}
