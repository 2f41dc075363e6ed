package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is a non-2xx response. Body is truncated.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports transient transport failures and retryable
// statuses. Context cancellation is final.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

const maxErrorBody = 2048

// Client is a small JSON client with retry on transient failures.
type Client struct {
	Service    string
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
	// Header decorates every request (auth, api keys).
	Header func(h http.Header)
	Log    *logger.Logger
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
}

// Request describes one call. Body is JSON encoded unless it is an
// io.Reader, in which case ContentType must be set.
type Request struct {
	Method      string
	Path        string
	Query       map[string]string
	Body        any
	ContentType string
}

func (c *Client) url(r Request) string {
	u := r.Path
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range r.Query {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + q.Encode()
}

func (c *Client) once(ctx context.Context, r Request) (*http.Response, []byte, error) {
	var body io.Reader
	contentType := r.ContentType
	switch v := r.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
	case io.Reader:
		body = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, err
		}
		body = bytes.NewReader(raw)
		if contentType == "" {
			contentType = "application/json"
		}
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, c.url(r), body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Header != nil {
		c.Header(req.Header)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return resp, raw, &StatusError{Service: c.Service, StatusCode: resp.StatusCode, Body: msg}
	}
	return resp, raw, nil
}

// Do performs r and decodes a JSON response into out (when non-nil). Bodies
// given as io.Reader are not retried.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	raw, err := c.DoRaw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode %s: %w", c.Service, r.Path, err)
	}
	return nil
}

// DoRaw is Do without decoding.
func (c *Client) DoRaw(ctx context.Context, r Request) ([]byte, error) {
	_, isStream := r.Body.(io.Reader)
	retries := c.MaxRetries
	if isStream {
		retries = 0
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, raw, err := c.once(ctx, r)
		if err == nil {
			return raw, nil
		}
		if attempt >= retries || !IsRetryableError(err) || ctx.Err() != nil {
			return nil, err
		}
		sleepFor := JitterSleep(RetryAfterDuration(resp, backoff, 10*time.Second))
		if c.Log != nil {
			c.Log.Warn("HTTP request retrying", "service", c.Service, "path", r.Path, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		}
		t := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
}

// Download streams url into dest, creating or truncating it, and returns the
// number of bytes written. A failed download removes dest.
func Download(ctx context.Context, hc *http.Client, rawURL string, header http.Header, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{Service: "download", StatusCode: resp.StatusCode, Body: string(msg)}
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return n, fmt.Errorf("download %s: %w", rawURL, copyErr)
	}
	return n, nil
}
