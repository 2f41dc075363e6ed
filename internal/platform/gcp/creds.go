package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv is ClientOptions over the process environment.
func ClientOptionsFromEnv() []option.ClientOption {
	return ClientOptions(os.Getenv)
}

// ClientOptions builds credentials for the storage and speech clients from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (inline JSON or a file path), plus
// GCP_QUOTA_PROJECT for billing Speech-to-Text to another project. No
// credential options means application default credentials.
func ClientOptions(getenv func(string) string) []option.ClientOption {
	var opts []option.ClientOption
	creds := strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	case creds != "":
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if qp := strings.TrimSpace(getenv("GCP_QUOTA_PROJECT")); qp != "" {
		opts = append(opts, option.WithQuotaProject(qp))
	}
	return opts
}
