package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/pkg/httpx"
)

// Whisper rejects uploads above 25 MB.
const maxAudioBytes = 25 << 20

type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) (string, error)
}

// Whisper transcribes audio to SRT through /v1/audio/transcriptions.
type Whisper struct {
	c     *Client
	audio AudioExtractor
}

func (c *Client) Whisper(audio AudioExtractor) *Whisper {
	return &Whisper{c: c, audio: audio}
}

func (w *Whisper) Transcribe(ctx context.Context, mediaPath, language string) (string, error) {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	mp3, err := w.audio.ExtractAudio(ctx, mediaPath, base+".mp3")
	if err != nil {
		return "", fmt.Errorf("%w: extract audio: %w", stages.ErrTranscription, err)
	}
	defer os.Remove(mp3)

	fi, err := os.Stat(mp3)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stages.ErrTranscription, err)
	}
	if fi.Size() > maxAudioBytes {
		return "", fmt.Errorf("%w: audio is %d bytes, over the upload limit", stages.ErrTranscription, fi.Size())
	}

	body, contentType, err := multipartAudio(mp3, map[string]string{
		"model":           w.c.cfg.WhisperModel,
		"response_format": "srt",
		"language":        baseLanguage(language),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", stages.ErrTranscription, err)
	}

	start := time.Now()
	raw, err := w.c.http.DoRaw(ctx, httpx.Request{
		Method:      http.MethodPost,
		Path:        "/v1/audio/transcriptions",
		Body:        body,
		ContentType: contentType,
	})
	observability.Current().ObserveProvider("openai", "transcribe", statusLabel(err), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", stages.ErrTranscription, classify(err))
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", fmt.Errorf("%w: empty transcript", stages.ErrTranscription)
	}
	out := base + ".srt"
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return "", fmt.Errorf("%w: write srt: %w", stages.ErrTranscription, err)
	}
	w.c.log.Info("Transcription written", "path", out, "bytes", len(raw))
	return out, nil
}

// baseLanguage trims a BCP-47 tag to the ISO 639-1 code Whisper expects.
func baseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "en"
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func multipartAudio(path string, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
