package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.temporal.io/api/serviceerror"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		base, max time.Duration
		attempt   int
		want      time.Duration
	}{
		{0, 0, 1, 250 * time.Millisecond},
		{100 * time.Millisecond, time.Second, 1, 100 * time.Millisecond},
		{100 * time.Millisecond, time.Second, 3, 400 * time.Millisecond},
		{100 * time.Millisecond, time.Second, 10, time.Second},
	}
	for _, tc := range cases {
		if got := ClampBackoff(tc.base, tc.max, tc.attempt); got != tc.want {
			t.Fatalf("ClampBackoff(%v,%v,%d)=%v want %v", tc.base, tc.max, tc.attempt, got, tc.want)
		}
	}
}

func TestRetry(t *testing.T) {
	p := RetryPolicy{MaxWait: time.Second, Backoff: time.Millisecond, BackoffMax: time.Millisecond}
	ctx := context.Background()

	calls, retries := 0, 0
	err := Retry(ctx, p, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(int, error) { retries++ })
	if err != nil || calls != 3 || retries != 2 {
		t.Fatalf("err=%v calls=%d retries=%d", err, calls, retries)
	}

	boom := errors.New("boom")
	calls = 0
	err = Retry(ctx, p, func(int) error { calls++; return Permanent(boom) }, nil)
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("permanent: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, RetryPolicy{}, func(int) error { calls++; return boom }, nil)
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("no wait: err=%v calls=%d", err, calls)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = Retry(cctx, RetryPolicy{MaxWait: time.Hour, Backoff: time.Hour}, func(int) error { return boom }, nil)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, boom) {
		t.Fatalf("canceled: %v", err)
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(serviceerror.NewUnavailable("down")) {
		t.Fatal("unavailable should retry")
	}
	if isRetryableRPC(serviceerror.NewInvalidArgument("bad")) {
		t.Fatal("invalid argument should not retry")
	}
	if isRetryableRPC(errors.New("plain")) {
		t.Fatal("plain error should not retry")
	}
}

func TestNewClientRequiresAddress(t *testing.T) {
	if _, err := NewClient(context.Background(), nil, Config{}); err == nil {
		t.Fatal("expected error without address")
	}
}
