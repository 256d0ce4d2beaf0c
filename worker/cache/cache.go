package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "job:status:"

// StatusCache keeps the API's cached job views consistent with the record
// store: every state transition drops the cached view, and the next status
// poll repopulates it from the fresh row.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) JobChanged(ctx context.Context, jobID, status string) error {
	return c.client.Del(ctx, statusKeyPrefix+jobID).Err()
}
