package gcp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// StorageMode selects real GCS or a local fake-gcs-server.
type StorageMode string

const (
	StorageModeGCS      StorageMode = "gcs"
	StorageModeEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Mode         StorageMode
	EmulatorHost string
	// Fallback is set when the mode was inferred from STORAGE_EMULATOR_HOST.
	Fallback bool
}

func (c StorageConfig) Emulated() bool { return c.Mode == StorageModeEmulator }

type StorageConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *StorageConfigError) Error() string {
	switch e.Field {
	case "OBJECT_STORAGE_MODE":
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, StorageModeGCS, StorageModeEmulator)
	case "STORAGE_EMULATOR_HOST":
		if e.Value == "" {
			return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", StorageModeEmulator)
		}
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid storage config"
	}
}

func (e *StorageConfigError) Unwrap() error { return e.Cause }

// ResolveStorageConfig reads OBJECT_STORAGE_MODE and STORAGE_EMULATOR_HOST
// through getenv (os.Getenv when nil). An unset mode with an emulator host
// selects the emulator.
func ResolveStorageConfig(getenv func(string) string) (StorageConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := StorageConfig{EmulatorHost: strings.TrimRight(strings.TrimSpace(getenv("STORAGE_EMULATOR_HOST")), "/")}
	raw := strings.TrimSpace(getenv("OBJECT_STORAGE_MODE"))
	switch StorageMode(strings.ToLower(raw)) {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeEmulator
			cfg.Fallback = true
		}
	case StorageModeGCS:
		cfg.Mode = StorageModeGCS
	case StorageModeEmulator:
		cfg.Mode = StorageModeEmulator
	default:
		return cfg, &StorageConfigError{Field: "OBJECT_STORAGE_MODE", Value: raw}
	}
	return cfg, cfg.Validate()
}

func (c StorageConfig) Validate() error {
	switch c.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeEmulator:
	default:
		return &StorageConfigError{Field: "OBJECT_STORAGE_MODE", Value: string(c.Mode)}
	}
	if c.EmulatorHost == "" {
		return &StorageConfigError{Field: "STORAGE_EMULATOR_HOST"}
	}
	u, err := url.Parse(c.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &StorageConfigError{Field: "STORAGE_EMULATOR_HOST", Value: c.EmulatorHost, Cause: err}
	}
	return nil
}

// NewStorageClient opens a read-only client for the configured mode.
func NewStorageClient(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Emulated() {
		// the storage library routes to the emulator through this variable
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadOnly))
	return storage.NewClient(ctx, opts...)
}
