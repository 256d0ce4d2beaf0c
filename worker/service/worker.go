package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"contentEngine/processing"
	"contentEngine/worker/queue"
)

// Receiver is the queue surface the loop consumes.
type Receiver interface {
	Receive(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
}

// JobProcessor runs one job to its terminal state.
type JobProcessor interface {
	Process(ctx context.Context, req processing.Request) (*processing.Result, error)
}

// Worker is one sequential consumer loop: receive, decode, process, ack.
// Horizontal scaling comes from running more loops against the same queue;
// the queue's visibility timeout is the only concurrency control.
type Worker struct {
	consumer  Receiver
	processor JobProcessor
	logger    *zap.Logger
	backoff   time.Duration
}

func NewWorker(consumer Receiver, processor JobProcessor, logger *zap.Logger) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		logger:    logger,
		backoff:   3 * time.Second,
	}
}

// Run polls until ctx is canceled. Poll errors back off and retry; job
// failures are recorded as terminal state by the processor and never stop
// the loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return
		default:
		}

		delivery, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker shutting down")
				return
			}
			w.logger.Error("poll failed", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if delivery == nil {
			continue
		}

		w.handle(ctx, delivery)
	}
}

func (w *Worker) handle(ctx context.Context, delivery *queue.Delivery) {
	var msg queue.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.JobID == "" {
		// Malformed payload: leave it unacked so the queue redelivers and
		// eventually dead-letters it.
		w.logger.Error("malformed queue message",
			zap.String("delivery_id", delivery.ID),
			zap.Error(err),
		)
		return
	}

	// Process records the terminal outcome itself; the error here is only
	// for logging.
	if _, err := w.processor.Process(ctx, processing.Request{
		JobID:  msg.JobID,
		Key:    msg.Key,
		Preset: msg.Preset,
		UserID: msg.UserID,
	}); err != nil {
		w.logger.Warn("job ended in failed state", zap.String("job_id", msg.JobID), zap.Error(err))
	}

	// Ack regardless of job outcome: the message lifecycle is decoupled from
	// job success, and failed jobs are retried only by a new enqueue.
	if err := w.consumer.Ack(ctx, delivery); err != nil {
		w.logger.Error("ack failed", zap.String("job_id", msg.JobID), zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}
