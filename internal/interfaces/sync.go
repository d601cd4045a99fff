package interfaces

import (
	"context"

	"stock-forecaster/internal/types"
)

// RepoSyncer publishes the artifact tree. Nothing to publish is a successful no-op.
type RepoSyncer interface {
	Sync(ctx context.Context) (types.SyncResult, error)
}
