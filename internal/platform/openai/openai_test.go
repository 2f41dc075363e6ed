package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Temperature: 0.9}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}, logger.Nop()); !errors.Is(err, stages.ErrNotConfigured) {
		t.Fatalf("want not configured, got %v", err)
	}
}

func TestGenerateTagline(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		reply := "```json\n{\"top\": \"Golden hour\", \"bottom\": \"Follow for more\"}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	})

	tl, err := c.Generate(context.Background(), stages.TaglineRequest{VideoTitle: "Sunset", Recent: []string{"Top: Old | Bottom: One"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tl.Top != "Golden hour" || tl.Bottom != "Follow for more" {
		t.Fatalf("tagline %+v", tl)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens != 200 || got.Temperature != 0.9 || len(got.Messages) != 2 {
		t.Fatalf("request %+v", got)
	}
	if !strings.Contains(got.Messages[1].Content, "Sunset") || !strings.Contains(got.Messages[1].Content, "Old / One") {
		t.Fatalf("prompt lacks context: %s", got.Messages[1].Content)
	}
}

func TestGenerateErrors(t *testing.T) {
	quota := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	})
	quota.http.MaxRetries = 0
	if _, err := quota.Generate(context.Background(), stages.TaglineRequest{}); !errors.Is(err, stages.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}

	garbled := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"sure! here you go"}}]}`)
	})
	if _, err := garbled.Generate(context.Background(), stages.TaglineRequest{}); !errors.Is(err, stages.ErrParse) {
		t.Fatalf("want parse error, got %v", err)
	}

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})
	if _, err := broken.Generate(context.Background(), stages.TaglineRequest{}); !errors.Is(err, stages.ErrProvider) {
		t.Fatalf("want provider error, got %v", err)
	}
}

type fakeAudio struct{}

func (fakeAudio) ExtractAudio(_ context.Context, _ string, out string) (string, error) {
	return out, os.WriteFile(out, []byte("ID3fake"), 0o644)
}

func TestWhisperTranscribe(t *testing.T) {
	const srt = "1\n00:00:00,000 --> 00:00:01,200\nGolden hour.\n\n"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if r.FormValue("response_format") != "srt" || r.FormValue("language") != "en" || r.FormValue("model") != "whisper-1" {
			t.Errorf("form %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil || hdr.Filename != "clip.mp3" {
			t.Errorf("file part: %v", err)
		} else {
			f.Close()
		}
		_, _ = io.WriteString(w, srt)
	})

	media := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := c.Whisper(fakeAudio{}).Transcribe(context.Background(), media, "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	b, _ := os.ReadFile(out)
	if string(b) != srt || filepath.Base(out) != "clip.srt" {
		t.Fatalf("out %s = %q", out, b)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(media), "clip.mp3")); !os.IsNotExist(err) {
		t.Fatal("intermediate audio should be removed")
	}
}

func TestWhisperFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	_, err := c.Whisper(fakeAudio{}).Transcribe(context.Background(), filepath.Join(t.TempDir(), "a.mp4"), "")
	if !errors.Is(err, stages.ErrTranscription) {
		t.Fatalf("want transcription error, got %v", err)
	}
}

func TestBaseLanguage(t *testing.T) {
	for in, want := range map[string]string{"": "en", "en-US": "en", "UR": "ur", "pt_BR": "pt"} {
		if got := baseLanguage(in); got != want {
			t.Errorf("baseLanguage(%q) = %q", in, got)
		}
	}
}
