package videosource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

var now = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func TestParseURLs(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "  ", nil},
		{"lines and commas", "https://a.test/x.mp4\nhttps://b.test/y,ftp://c.test/z\n\nnot a url", []string{"https://a.test/x.mp4", "https://b.test/y"}},
		{"json", `["http://a.test/1.mp4", "http://a.test/1.mp4", 7, "mailto:me@x.test"]`, []string{"http://a.test/1.mp4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseURLs(tc.in)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("ParseURLs = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestManualCandidateNaming(t *testing.T) {
	c := ManualCandidate("https://cdn.test/videos/My%20Clip.mov?x=1", 0, now)
	if c.Filename != "My_Clip.mov" || c.Title != "My_Clip" {
		t.Fatalf("filename=%q title=%q", c.Filename, c.Title)
	}
	if !strings.HasPrefix(c.GUID, "manual_") || len(c.GUID) != len("manual_")+24 {
		t.Fatalf("guid %q", c.GUID)
	}
	if again := ManualCandidate("https://cdn.test/videos/My%20Clip.mov?x=1", 3, now); again.GUID != c.GUID {
		t.Fatal("guid must be stable for the same url")
	}

	bare := ManualCandidate("https://cdn.test/stream", 0, now)
	if bare.Filename != "stream.mp4" {
		t.Fatalf("extensionless filename %q", bare.Filename)
	}
	root := ManualCandidate("https://cdn.test/", 0, now)
	if !strings.HasPrefix(root.Filename, "manual_") || !strings.HasSuffix(root.Filename, ".mp4") || len(root.Filename) != len("manual_")+12+4 {
		t.Fatalf("fallback filename %q", root.Filename)
	}
}

func TestManualFetchAndDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty.mp4" {
			return
		}
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	m := NewManual(nil, logger.Nop())
	cands, err := m.Fetch(context.Background(), stages.SourceConfig{ManualURLs: srv.URL + "/a.mp4\n" + srv.URL + "/empty.mp4", Now: now})
	if err != nil || len(cands) != 2 {
		t.Fatalf("Fetch: %v %v", cands, err)
	}
	dir := t.TempDir()
	n, err := m.Download(context.Background(), cands[0], filepath.Join(dir, "a.mp4"))
	if err != nil || n != 4 {
		t.Fatalf("Download: %d %v", n, err)
	}
	if _, err := m.Download(context.Background(), cands[1], filepath.Join(dir, "e.mp4")); !errors.Is(err, stages.ErrSourceUnavailable) {
		t.Fatalf("empty body should be unavailable, got %v", err)
	}
}

func TestParseBunnyTime(t *testing.T) {
	for _, s := range []string{"2026-05-01T10:00:00", "2026-05-01T10:00:00.123", "2026-05-01T10:00:00Z"} {
		got, ok := ParseBunnyTime(s)
		if !ok || got.Year() != 2026 || got.Hour() != 10 {
			t.Errorf("ParseBunnyTime(%q) = %v %v", s, got, ok)
		}
	}
	if _, ok := ParseBunnyTime("yesterday"); ok {
		t.Error("garbage should not parse")
	}
}

// bunnyLibrary serves 130 videos, one per 6 hours going back from now.
func bunnyLibrary(t *testing.T, pages *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("AccessKey") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/original") {
			_, _ = w.Write([]byte("mp4"))
			return
		}
		if r.URL.Path != "/lib-1/videos" || r.URL.Query().Get("orderBy") != "date" {
			t.Errorf("unexpected request %s", r.URL)
		}
		*pages++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []bunnyVideo
		for i := (page - 1) * 100; i < page*100 && i < 130; i++ {
			items = append(items, bunnyVideo{
				GUID:         fmt.Sprintf("g-%03d", i),
				Title:        fmt.Sprintf("Video %d", i),
				DateUploaded: now.Add(-time.Duration(i) * 6 * time.Hour).Format("2006-01-02T15:04:05"),
				StorageSize:  int64(1000 + i),
			})
		}
		_ = json.NewEncoder(w).Encode(bunnyPage{TotalItems: 130, CurrentPage: page, ItemsPerPage: 100, Items: items})
	}))
}

func TestBunnyFetchLastDays(t *testing.T) {
	pages := 0
	srv := bunnyLibrary(t, &pages)
	defer srv.Close()

	b := NewBunny(BunnyConfig{APIKey: "key", LibraryID: "lib-1", BaseURL: srv.URL, CDNHostname: srv.URL}, logger.Nop())
	cands, err := b.Fetch(context.Background(), stages.SourceConfig{DaysFilter: 3, Now: now})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// 0h..72h inclusive at 6h steps
	if len(cands) != 13 || pages != 1 {
		t.Fatalf("got %d candidates over %d pages", len(cands), pages)
	}
	if cands[0].GUID != "g-000" || cands[0].Size != 1000 || cands[0].UploadedAt == nil {
		t.Fatalf("first candidate %+v", cands[0])
	}

	n, err := b.Download(context.Background(), cands[0], filepath.Join(t.TempDir(), "x.mp4"))
	if err != nil || n != 3 {
		t.Fatalf("Download: %d %v", n, err)
	}
}

func TestBunnyFetchDateRangePagesThrough(t *testing.T) {
	pages := 0
	srv := bunnyLibrary(t, &pages)
	defer srv.Close()

	b := NewBunny(BunnyConfig{APIKey: "key", LibraryID: "lib-1", BaseURL: srv.URL}, logger.Nop())
	// videos 106..129 fall between Apr 18 and the end of Apr 23
	cands, err := b.Fetch(context.Background(), stages.SourceConfig{StartDate: "2026-04-18", EndDate: "2026-04-23", Now: now})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pages != 2 || len(cands) == 0 {
		t.Fatalf("pages=%d candidates=%d", pages, len(cands))
	}
	from := time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 24, 0, 0, 0, 0, time.UTC)
	for _, c := range cands {
		if c.UploadedAt.Before(from) || c.UploadedAt.After(to) {
			t.Fatalf("%s uploaded %s outside range", c.GUID, c.UploadedAt)
		}
	}
}

func TestBunnyErrors(t *testing.T) {
	pages := 0
	srv := bunnyLibrary(t, &pages)
	defer srv.Close()

	b := NewBunny(BunnyConfig{APIKey: "wrong", LibraryID: "lib-1", BaseURL: srv.URL}, logger.Nop())
	if _, err := b.Fetch(context.Background(), stages.SourceConfig{Now: now}); !errors.Is(err, stages.ErrSourceAuth) {
		t.Fatalf("want auth error, got %v", err)
	}
	unconfigured := NewBunny(BunnyConfig{}, logger.Nop())
	if _, err := unconfigured.Fetch(context.Background(), stages.SourceConfig{Now: now}); !errors.Is(err, stages.ErrNotConfigured) {
		t.Fatalf("want not configured, got %v", err)
	}
	if _, err := b.Download(context.Background(), rotation.Candidate{GUID: "g-1"}, filepath.Join(t.TempDir(), "x")); !errors.Is(err, stages.ErrNotConfigured) {
		t.Fatalf("missing cdn hostname: %v", err)
	}
}
