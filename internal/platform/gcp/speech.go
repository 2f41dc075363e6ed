package gcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// AudioExtractor turns a video into 16 kHz mono FLAC.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) (string, error)
}

// Recognizer is the slice of the Speech client the transcriber uses.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
}

type speechRecognizer struct {
	client *speech.Client
}

func (r *speechRecognizer) Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := r.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

// Transcriber produces SRT subtitles with Cloud Speech-to-Text word offsets.
type Transcriber struct {
	rec        Recognizer
	audio      AudioExtractor
	closeFn    func() error
	log        *logger.Logger
	maxRetries int
}

func NewTranscriber(ctx context.Context, audio AudioExtractor, baseLog *logger.Logger) (*Transcriber, error) {
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	t := NewTranscriberWith(&speechRecognizer{client: c}, audio, baseLog)
	t.closeFn = c.Close
	return t, nil
}

func NewTranscriberWith(rec Recognizer, audio AudioExtractor, baseLog *logger.Logger) *Transcriber {
	return &Transcriber{
		rec:        rec,
		audio:      audio,
		log:        baseLog.With("service", "gcp.Speech"),
		maxRetries: 4,
	}
}

func (t *Transcriber) Close() error {
	if t == nil || t.closeFn == nil {
		return nil
	}
	return t.closeFn()
}

var languageCodes = map[string]string{
	"en": "en-US", "es": "es-ES", "fr": "fr-FR", "de": "de-DE", "it": "it-IT",
	"pt": "pt-BR", "hi": "hi-IN", "ur": "ur-PK", "ar": "ar-SA", "tr": "tr-TR",
	"ja": "ja-JP", "ko": "ko-KR", "zh": "zh-CN", "ru": "ru-RU", "nl": "nl-NL",
}

// LanguageCode expands a bare ISO 639-1 code into the BCP-47 tag the API
// expects; full tags pass through.
func LanguageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "en-US"
	}
	if full, ok := languageCodes[strings.ToLower(lang)]; ok {
		return full
	}
	return lang
}

func (t *Transcriber) Transcribe(ctx context.Context, mediaPath, language string) (string, error) {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	flac, err := t.audio.ExtractAudio(ctx, mediaPath, base+".flac")
	if err != nil {
		return "", fmt.Errorf("%w: extract audio: %w", stages.ErrTranscription, err)
	}
	defer os.Remove(flac)
	audio, err := os.ReadFile(flac)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stages.ErrTranscription, err)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_FLAC,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               LanguageCode(language),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := t.retry(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		return t.rec.Recognize(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("%w: speech recognize: %w", stages.ErrTranscription, err)
	}

	cues := GroupWords(WordsFromResponse(resp))
	if len(cues) == 0 {
		return "", fmt.Errorf("%w: no speech recognized", stages.ErrTranscription)
	}
	out := base + ".srt"
	if err := os.WriteFile(out, []byte(FormatSRT(cues)), 0o644); err != nil {
		return "", fmt.Errorf("%w: write srt: %w", stages.ErrTranscription, err)
	}
	t.log.Info("Transcription written", "path", out, "cues", len(cues), "language", LanguageCode(language))
	return out, nil
}

// WordsFromResponse flattens the top alternative of every result.
func WordsFromResponse(resp *speechpb.LongRunningRecognizeResponse) []Word {
	if resp == nil {
		return nil
	}
	var out []Word
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 || alts[0] == nil {
			continue
		}
		for _, w := range alts[0].GetWords() {
			out = append(out, Word{Text: w.GetWord(), Start: toDuration(w.GetStartTime()), End: toDuration(w.GetEndTime())})
		}
	}
	return out
}

func toDuration(d *durationpb.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return d.AsDuration()
}

func (t *Transcriber) retry(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		switch status.Code(err) {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		default:
			return nil, err
		}
		if attempt == t.maxRetries {
			break
		}
		t.log.Warn("Speech request retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
