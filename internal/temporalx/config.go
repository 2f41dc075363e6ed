package temporalx

import (
	"time"

	"github.com/yungbote/reelforge-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string
	// WorkflowID names the singleton cron workflow.
	WorkflowID      string
	IntervalSeconds int

	// AutoRegisterNamespace registers Namespace with RetentionDays when it is
	// missing. Leave off for Temporal Cloud.
	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout  time.Duration
	Retry        RetryPolicy
	StartMaxWait time.Duration

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func (c Config) TLSEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func LoadConfig() Config {
	retention := envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7)
	if retention < 1 {
		retention = 7
	}
	if retention > 365 {
		retention = 365
	}
	return Config{
		Address:         envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace:       envutil.String("TEMPORAL_NAMESPACE", "reelforge"),
		TaskQueue:       envutil.String("TEMPORAL_TASK_QUEUE", "reelforge-cron"),
		WorkflowID:      envutil.String("TEMPORAL_CRON_WORKFLOW_ID", "reelforge-cron"),
		IntervalSeconds: envutil.Int("CRON_INTERVAL_SECONDS", 60),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         retention,

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		Retry: RetryPolicy{
			MaxWait:    envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60),
			Backoff:    envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250),
			BackoffMax: envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5000),
		},
		StartMaxWait: envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
	}
}
