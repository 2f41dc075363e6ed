package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/stages"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".mkv": true, ".webm": true, ".avi": true,
}

// IsVideoObject reports whether an object name looks like a video file.
func IsVideoObject(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	return videoExts[strings.ToLower(path.Ext(name))]
}

// CandidateFromAttrs maps a bucket object to a pipeline candidate. The
// object's creation time stands in for its upload time.
func CandidateFromAttrs(attrs *storage.ObjectAttrs) rotation.Candidate {
	base := path.Base(attrs.Name)
	uploaded := attrs.Created
	if uploaded.IsZero() {
		uploaded = attrs.Updated
	}
	uploaded = uploaded.UTC()
	return rotation.Candidate{
		ObjectName: attrs.Name,
		Filename:   base,
		Title:      strings.TrimSuffix(base, path.Ext(base)),
		Size:       attrs.Size,
		UploadedAt: &uploaded,
	}
}

// Source lists and downloads videos from one GCS bucket. The automation's
// source prefix narrows the listing.
type Source struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

func NewSource(ctx context.Context, bucket string, cfg StorageConfig, baseLog *logger.Logger) (*Source, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("source bucket: %w", stages.ErrNotConfigured)
	}
	client, err := NewStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	log := baseLog.With("service", "GCSSource")
	log.Info("GCS video source initialized", "bucket", bucket, "mode", cfg.Mode, "emulator_host", cfg.EmulatorHost)
	return &Source{client: client, bucket: bucket, log: log}, nil
}

func (s *Source) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Source) Fetch(ctx context.Context, src stages.SourceConfig) ([]rotation.Candidate, error) {
	from, to := src.Window()
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: strings.TrimLeft(src.Prefix, "/")})
	var out []rotation.Candidate
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCS(err)
		}
		if !IsVideoObject(attrs.Name) {
			continue
		}
		c := CandidateFromAttrs(attrs)
		if c.UploadedAt.Before(from) || c.UploadedAt.After(to) {
			continue
		}
		out = append(out, c)
	}
	s.log.Info("Listed bucket videos", "bucket", s.bucket, "prefix", src.Prefix, "count", len(out))
	return out, nil
}

func (s *Source) Download(ctx context.Context, c rotation.Candidate, dest string) (int64, error) {
	name := c.ObjectName
	if name == "" {
		name = c.RemotePath
	}
	if name == "" {
		return 0, errors.New("gcs candidate has no object name")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return 0, classifyGCS(err)
	}
	defer r.Close()
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, r)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return n, fmt.Errorf("download gs://%s/%s: %w", s.bucket, name, copyErr)
	}
	return n, nil
}

func classifyGCS(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %w", stages.ErrSourceAuth, err)
		default:
			return fmt.Errorf("%w: %w", stages.ErrSourceUnavailable, err)
		}
	}
	if errors.Is(err, storage.ErrBucketNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %w", stages.ErrSourceUnavailable, err)
	}
	return err
}
