package tagline

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
)

// Chain tries each generator in order and returns the first non-empty
// tagline. Nil generators are skipped.
type Chain []stages.TaglineGenerator

func (c Chain) Generate(ctx context.Context, req stages.TaglineRequest) (stages.Tagline, error) {
	var errs []error
	for i, g := range c {
		if g == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stages.Tagline{}, err
		}
		t, err := g.Generate(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("generator %d: %w", i, err))
			continue
		}
		if t.Empty() {
			errs = append(errs, fmt.Errorf("generator %d: empty tagline", i))
			continue
		}
		return t, nil
	}
	if len(errs) == 0 {
		return stages.Tagline{}, errors.New("no tagline generator configured")
	}
	return stages.Tagline{}, errors.Join(errs...)
}
