package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrClaimLost means the claim write failed for a reason other than contention.
	ErrClaimLost = errors.New("claim lost")
	// ErrSource marks a failure to list candidate videos; the run aborts.
	ErrSource = errors.New("video source unavailable")
	// ErrItem marks a failure confined to a single batch item.
	ErrItem = errors.New("item failed")
	// ErrProviderDegraded means an optional provider failed and a fallback was used.
	ErrProviderDegraded = errors.New("provider degraded")
	// ErrStaleRun marks a run reset by the stale sweep.
	ErrStaleRun = errors.New("stale run")
	// ErrRunAborted means the executor lost ownership of its run.
	ErrRunAborted = errors.New("run aborted")
	ErrNotFound   = errors.New("not found")
)

// Item tags err as an item-level failure for identifier.
func Item(identifier string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrItem, fmt.Errorf("%s: %w", strings.TrimSpace(identifier), err))
}

// Source tags err as a source failure.
func Source(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrSource, err)
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// Postgres or SQLite, translated by GORM or not.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique_violation")
}
