package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobMessage is the payload handed to the worker.
type JobMessage struct {
	JobID    string `json:"jobId"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Preset   string `json:"preset"`
	UserID   string `json:"userId"`
	Priority bool   `json:"priority,omitempty"`
}

type envelope struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

type Producer interface {
	Enqueue(ctx context.Context, msg *JobMessage) error
}

type redisProducer struct {
	client   *redis.Client
	queueKey string
}

func NewProducer(client *redis.Client, name string) Producer {
	return &redisProducer{client: client, queueKey: "queue:" + name}
}

// Enqueue pushes one message. Each call gets a fresh delivery id so repeated
// enqueues of the same job stay individually trackable on the consumer side.
func (p *redisProducer) Enqueue(ctx context.Context, msg *JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	env, err := json.Marshal(envelope{ID: uuid.New().String(), Body: body})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	// Consumers pop from the right; priority messages jump the line.
	if msg.Priority {
		return p.client.RPush(ctx, p.queueKey, env).Err()
	}
	return p.client.LPush(ctx, p.queueKey, env).Err()
}
