package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// RetryPolicy bounds how long Retry keeps trying. MaxWait <= 0 means one
// attempt.
type RetryPolicy struct {
	MaxWait    time.Duration
	Backoff    time.Duration
	BackoffMax time.Duration
}

// errPermanent stops Retry early.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errPermanent{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends or the
// policy's MaxWait elapses. onRetry is called before each sleep.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error, onRetry func(attempt int, err error)) error {
	deadline := time.Now().Add(p.MaxWait)
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm errPermanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if p.MaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		t := time.NewTimer(ClampBackoff(p.Backoff, p.BackoffMax, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ctx.Err(), err)
		case <-t.C:
		}
	}
}

func clientOptions(cfg Config, log *logger.Logger, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	if cfg.TLSEnabled() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

// NewClient dials Temporal, retrying while the server comes up. It
// registers the namespace first when AutoRegisterNamespace is set.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("temporal: TEMPORAL_ADDRESS is not set")
	}
	opts, err := clientOptions(cfg, log, true)
	if err != nil {
		return nil, err
	}
	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(ctx, cfg, log); err != nil {
			return nil, err
		}
	}

	var c temporalsdkclient.Client
	err = Retry(ctx, cfg.Retry, func(attempt int) error {
		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var derr error
		c, derr = temporalsdkclient.DialContext(dctx, opts)
		if derr == nil && attempt > 1 {
			log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace, "attempts", attempt)
		}
		return derr
	}, func(attempt int, err error) {
		log.Warn("Temporal not reachable; retrying", "address", cfg.Address, "attempt", attempt, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s/%s: %w", cfg.Address, cfg.Namespace, err)
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when Describe reports it missing.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		return nil
	}
	// no namespace header, so this works before registration
	opts, err := clientOptions(cfg, log, false)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nsClient.Close()

	return Retry(ctx, cfg.Retry, func(int) error {
		_, err := nsClient.Describe(ctx, namespace)
		if err == nil {
			return nil
		}
		var nfe *serviceerror.NamespaceNotFound
		if !errors.As(err, &nfe) {
			return retryableOrPermanent(fmt.Errorf("describe namespace %s: %w", namespace, err))
		}
		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "reelforge cron scheduling",
			WorkflowExecutionRetentionPeriod: durationpb.New(time.Duration(cfg.RetentionDays) * 24 * time.Hour),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("Temporal namespace ready", "namespace", namespace, "retention_days", cfg.RetentionDays)
			return nil
		}
		return retryableOrPermanent(fmt.Errorf("register namespace %s: %w", namespace, err))
	}, func(attempt int, err error) {
		log.Warn("Temporal namespace not ready; retrying", "namespace", namespace, "attempt", attempt, "error", err)
	})
}

func retryableOrPermanent(err error) error {
	if isRetryableRPC(err) {
		return err
	}
	return Permanent(err)
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls: TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must both be set")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("temporal tls: no certificates in %s", cfg.ClientCAPath)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// ClampBackoff doubles base per attempt up to max.
func ClampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var (
		unavailable *serviceerror.Unavailable
		deadline    *serviceerror.DeadlineExceeded
		exhausted   *serviceerror.ResourceExhausted
	)
	if errors.As(err, &unavailable) || errors.As(err, &deadline) || errors.As(err, &exhausted) {
		return true
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
