package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"contentEngine/api/dto"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache keeps recently served job views in Redis so status polls do not
// hit Postgres on every request. Entries hold the full response document, and
// the worker drops an entry on every state transition, so a hit always
// matches what a fresh read of the record store would return.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error) {
	raw, err := c.client.Get(ctx, statusKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}
	var resp dto.JobResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *StatusCache) SetJob(ctx context.Context, resp *dto.JobResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+resp.ID, raw, statusTTL).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, statusKeyPrefix+jobID).Err()
}
