package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobMessage is the queue payload carried from the API to the worker.
type JobMessage struct {
	JobID    string `json:"jobId"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Preset   string `json:"preset"`
	UserID   string `json:"userId"`
	Priority bool   `json:"priority,omitempty"`
}

// envelope wraps each payload with a delivery id so identical payloads
// enqueued twice stay individually ackable.
type envelope struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Delivery is one received message. Body is the raw JobMessage payload;
// decoding it is the caller's concern so malformed payloads can be left
// unacked for redelivery.
type Delivery struct {
	ID      string
	Body    []byte
	receipt string
}

type ConsumerOptions struct {
	Visibility  time.Duration // window a received message stays hidden from other consumers
	PollWait    time.Duration // bounded long-poll wait per Receive
	MaxReceives int           // deliveries before a message is dead-lettered
}

// Consumer implements at-least-once delivery on Redis. BLMOVE claims a
// message by moving it atomically from the queue list into a processing list,
// so a crash at any point leaves the message in exactly one of the two. A
// sorted set scores each claim with its visibility deadline; Ack removes the
// claim, and a reclaim pass requeues anything whose deadline lapsed,
// dead-lettering after the receive budget is spent.
type Consumer struct {
	client        *redis.Client
	queueKey      string
	processingKey string
	inflightKey   string
	attemptsKey   string
	deadKey       string
	visibility    time.Duration
	pollWait      time.Duration
	maxReceives   int64
}

func NewConsumer(client *redis.Client, name string, opts ConsumerOptions) *Consumer {
	if opts.Visibility <= 0 {
		opts.Visibility = 60 * time.Second
	}
	if opts.PollWait <= 0 {
		opts.PollWait = 20 * time.Second
	}
	if opts.MaxReceives <= 0 {
		opts.MaxReceives = 5
	}
	return &Consumer{
		client:        client,
		queueKey:      "queue:" + name,
		processingKey: "queue:" + name + ":processing",
		inflightKey:   "queue:" + name + ":inflight",
		attemptsKey:   "queue:" + name + ":attempts",
		deadKey:       "queue:" + name + ":dead",
		visibility:    opts.Visibility,
		pollWait:      opts.PollWait,
		maxReceives:   int64(opts.MaxReceives),
	}
}

// Receive long-polls for one message, hiding it for the visibility window.
// Returns nil, nil when the queue stayed empty for the poll wait.
func (c *Consumer) Receive(ctx context.Context) (*Delivery, error) {
	if err := c.reclaimExpired(ctx); err != nil {
		return nil, fmt.Errorf("reclaim in-flight: %w", err)
	}

	// The move is atomic: from here on the message lives in the processing
	// list until acked or reclaimed, so a crash cannot drop it.
	raw, err := c.client.BLMove(ctx, c.queueKey, c.processingKey, "RIGHT", "LEFT", c.pollWait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll queue: %w", err)
	}

	deadline := time.Now().Add(c.visibility)
	err = c.client.ZAdd(ctx, c.inflightKey, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: raw,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("record deadline: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Not even an envelope; the reclaim pass will dead-letter it after
		// the receive limit.
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &Delivery{ID: env.ID, Body: env.Body, receipt: raw}, nil
}

// Ack deletes a message. Unacked messages reappear after the visibility
// window.
func (c *Consumer) Ack(ctx context.Context, d *Delivery) error {
	if err := c.client.LRem(ctx, c.processingKey, 1, d.receipt).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if err := c.client.ZRem(ctx, c.inflightKey, d.receipt).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return c.client.HDel(ctx, c.attemptsKey, d.ID).Err()
}

// reclaimExpired walks the processing list. Claims with a lapsed deadline are
// redelivered. Claims with no deadline at all belong to a consumer that died
// between the move and the deadline write; they are adopted with a fresh
// window so they redeliver on a later pass instead of staying stuck.
func (c *Consumer) reclaimExpired(ctx context.Context) error {
	claimed, err := c.client.LRange(ctx, c.processingKey, 0, -1).Result()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, raw := range claimed {
		score, err := c.client.ZScore(ctx, c.inflightKey, raw).Result()
		if errors.Is(err, redis.Nil) {
			err = c.client.ZAddNX(ctx, c.inflightKey, redis.Z{
				Score:  float64(now.Add(c.visibility).UnixMilli()),
				Member: raw,
			}).Err()
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if int64(score) > now.UnixMilli() {
			continue
		}
		if err := c.redeliver(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}

// redeliver moves one expired claim back onto the queue, or onto the
// dead-letter list once its receive budget is spent.
func (c *Consumer) redeliver(ctx context.Context, raw string) error {
	removed, err := c.client.LRem(ctx, c.processingKey, 1, raw).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		// Another instance reclaimed it first.
		return nil
	}
	if err := c.client.ZRem(ctx, c.inflightKey, raw).Err(); err != nil {
		return err
	}

	id := raw
	var env envelope
	if json.Unmarshal([]byte(raw), &env) == nil && env.ID != "" {
		id = env.ID
	}
	attempts, err := c.client.HIncrBy(ctx, c.attemptsKey, id, 1).Result()
	if err != nil {
		return err
	}
	if attempts >= c.maxReceives {
		if err := c.client.LPush(ctx, c.deadKey, raw).Err(); err != nil {
			return err
		}
		return c.client.HDel(ctx, c.attemptsKey, id).Err()
	}
	return c.client.LPush(ctx, c.queueKey, raw).Err()
}
