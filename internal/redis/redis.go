// Package redis provides the Redis-backed checkpoint store and label
// timeline cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jayphen/prisync/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces every key written by prisync.
	DefaultKeyPrefix = "prisync:"
	// DefaultRedisURL is the default Redis connection URL.
	DefaultRedisURL = "redis://localhost:6379"

	checkpointSegment = "checkpoint:"
	issueSegment      = "issue:"
	linkSegment       = "link:"
)

// Client wraps a Redis client with prisync-specific operations.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects to url and verifies the connection.
func NewClient(url, prefix string) (*Client, error) {
	if url == "" {
		url = DefaultRedisURL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, prefix: prefix}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(segment, id string) string {
	return c.prefix + segment + id
}

// GetCheckpoint returns the checkpoint for key, or nil if none was stored.
func (c *Client) GetCheckpoint(ctx context.Context, key string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	found, err := c.getJSON(ctx, c.key(checkpointSegment, key), &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// SetCheckpoint stores the checkpoint for key.
func (c *Client) SetCheckpoint(ctx context.Context, key string, cp types.Checkpoint) error {
	return c.setJSON(ctx, c.key(checkpointSegment, key), cp)
}

// PutIssue replaces the stored snapshot of an issue.
func (c *Client) PutIssue(ctx context.Context, snap types.IssueSnapshot) error {
	return c.setJSON(ctx, c.key(issueSegment, snap.URL), snap)
}

// SetLink stores the reverse-index entry for an issue URL.
func (c *Client) SetLink(ctx context.Context, url string, link types.Link) error {
	return c.setJSON(ctx, c.key(linkSegment, url), link)
}

// GetIssue returns the snapshot and link stored for url in one round trip.
func (c *Client) GetIssue(ctx context.Context, url string) (*types.IssueState, error) {
	values, err := c.rdb.MGet(ctx, c.key(issueSegment, url), c.key(linkSegment, url)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read issue %s: %w", url, err)
	}

	state := &types.IssueState{URL: url}
	if str, ok := values[0].(string); ok {
		var snap types.IssueSnapshot
		if err := json.Unmarshal([]byte(str), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode issue %s: %w", url, err)
		}
		state.Snapshot = &snap
	}
	if str, ok := values[1].(string); ok {
		var link types.Link
		if err := json.Unmarshal([]byte(str), &link); err != nil {
			return nil, fmt.Errorf("failed to decode link %s: %w", url, err)
		}
		state.Link = &link
	}

	if state.Snapshot == nil && state.Link == nil {
		return nil, nil
	}
	return state, nil
}

// Checkpoints returns all stored checkpoints keyed by scanner key.
func (c *Client) Checkpoints(ctx context.Context) (map[string]types.Checkpoint, error) {
	checkpoints := make(map[string]types.Checkpoint)
	prefix := c.key(checkpointSegment, "")

	keys, err := c.scanKeys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints: %w", err)
	}
	if len(keys) == 0 {
		return checkpoints, nil
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}

		var cp types.Checkpoint
		if err := json.Unmarshal([]byte(str), &cp); err != nil {
			continue
		}
		checkpoints[strings.TrimPrefix(keys[i], prefix)] = cp
	}

	return checkpoints, nil
}

func (c *Client) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// scanKeys scans for all keys matching a pattern.
func (c *Client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var batch []string
		var err error
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return keys, err
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
