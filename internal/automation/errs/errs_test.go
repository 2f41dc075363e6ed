package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("update: %w", gorm.ErrDuplicatedKey), true},
		{"pg 23505", &pgconn.PgError{Code: "23505"}, true},
		{"pg other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: automation.status"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestItemWrapsSentinel(t *testing.T) {
	err := Item("guid-1", errors.New("ffmpeg exploded"))
	if !errors.Is(err, ErrItem) {
		t.Fatalf("expected ErrItem, got %v", err)
	}
	if Item("x", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
	if !errors.Is(Source(errors.New("401")), ErrSource) {
		t.Fatalf("expected ErrSource")
	}
}
