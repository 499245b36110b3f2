// Package store defines the durable state used by the sync engine: scan
// checkpoints and the label timeline cache, and opens the configured backend.
package store

import (
	"context"
	"fmt"

	"github.com/Jayphen/prisync/internal/cache"
	"github.com/Jayphen/prisync/internal/config"
	"github.com/Jayphen/prisync/internal/redis"
	"github.com/Jayphen/prisync/internal/types"
)

// Store persists checkpoints, issue snapshots and the issue -> task reverse
// index. Implementations must be durable and read-after-write consistent for
// a single key. Any returned error is treated as fatal by the engine.
type Store interface {
	// GetCheckpoint returns nil, nil when no checkpoint exists for key.
	GetCheckpoint(ctx context.Context, key string) (*types.Checkpoint, error)
	SetCheckpoint(ctx context.Context, key string, cp types.Checkpoint) error

	// PutIssue replaces the snapshot stored under snap.URL.
	PutIssue(ctx context.Context, snap types.IssueSnapshot) error
	// GetIssue returns nil, nil when neither a snapshot nor a link exists.
	GetIssue(ctx context.Context, url string) (*types.IssueState, error)
	SetLink(ctx context.Context, url string, link types.Link) error

	// Checkpoints returns every stored checkpoint keyed by scanner key.
	Checkpoints(ctx context.Context) (map[string]types.Checkpoint, error)

	Close() error
}

var (
	_ Store = (*redis.Client)(nil)
	_ Store = (*cache.DB)(nil)
)

// Open connects to the backend selected in cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendRedis:
		return redis.NewClient(cfg.RedisURL, cfg.KeyPrefix)
	case config.BackendSQLite:
		path, err := config.ExpandPath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return cache.InitDB(path)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
