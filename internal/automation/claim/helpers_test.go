package claim

import (
	"context"

	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
)

func dbcOf(ctx context.Context) dbctx.Context { return dbctx.New(ctx) }
