package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"iris/core/codec"
	"iris/core/events"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/metrics"
)

// receiveErrorBackoff bounds the retry rate when the queue itself is
// unreachable; an idle poll re-polls immediately.
const receiveErrorBackoff = 5 * time.Second

// Consumer is the event-driven worker: it long-polls the queue, decodes one
// message at a time, runs it through the processor and applies the
// acknowledge policy. Processing is strictly sequential; the queue's
// visibility timeout is the only cross-instance mutual exclusion, so
// duplicate delivery is tolerated by the processor's idempotent output
// handling.
type Consumer struct {
	queue     Queue
	processor jobs.Processor
	bus       events.Bus
}

// NewConsumer wires a consumer from its injected dependencies.
func NewConsumer(q Queue, p jobs.Processor, bus events.Bus) *Consumer {
	return &Consumer{queue: q, processor: p, bus: bus}
}

// Run consumes until the context is cancelled. An in-flight job always
// finishes before Run returns; cancellation is only observed between
// iterations.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = logger.WithComponentName(ctx, "consumer")
	logger.Info(ctx, "queue consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "queue consumer stopped")
			return nil
		default:
		}

		msg, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "queue consumer stopped")
				return nil
			}
			metrics.QueuePolls.WithLabelValues(metrics.PollError).Inc()
			logger.Error(ctx, "queue receive failed", zap.Error(err))
			sleep(ctx, receiveErrorBackoff)
			continue
		}
		if msg == nil {
			metrics.QueuePolls.WithLabelValues(metrics.PollEmpty).Inc()
			continue
		}
		metrics.QueuePolls.WithLabelValues(metrics.PollMessage).Inc()

		c.handle(ctx, msg)
	}
}

// handle drives one delivery: decode, process, acknowledge. Exactly one
// delete-or-nothing happens per receipt.
func (c *Consumer) handle(ctx context.Context, msg *Message) {
	event, err := codec.Decode(msg.Body)
	if err != nil {
		// Malformed messages can never succeed; acknowledge and drop so
		// they do not block the queue. The processor is never invoked and
		// no lifecycle events are emitted; discards are counted under
		// their own outcome label.
		logger.Warn(ctx, "discarding undecodable message", zap.Error(err))
		metrics.JobsTotal.WithLabelValues(metrics.JobDiscarded).Inc()
		c.ack(ctx, msg.Receipt, "")
		return
	}

	start := time.Now()
	c.bus.Publish(ctx, events.TopicJobs, events.JobStarted{
		Bucket: event.Bucket,
		Key:    event.Key,
		At:     start,
	})
	logger.Info(ctx, "job started", zap.String("bucket", event.Bucket), zap.String("key", event.Key))

	outcome := c.processor.Process(ctx, event)
	c.finish(ctx, event, outcome, msg.Receipt, start)
}

func (c *Consumer) finish(ctx context.Context, event jobs.ObjectEvent, outcome jobs.Outcome, receipt string, start time.Time) {
	acked := false
	if outcome.Ack() {
		acked = c.ack(ctx, receipt, event.Key)
	}

	duration := time.Since(start)
	c.bus.Publish(ctx, events.TopicJobs, events.JobFinished{
		Bucket:   event.Bucket,
		Key:      event.Key,
		Class:    outcome.Class,
		Acked:    acked,
		Duration: duration,
	})

	switch outcome.Class {
	case jobs.ClassSuccess:
		logger.Info(ctx, "job succeeded",
			zap.String("key", event.Key),
			zap.String("status", outcome.Result.Status),
			zap.Int("detections", len(outcome.Result.Detections)),
			zap.Duration("duration", duration))
	case jobs.ClassTransient:
		logger.Warn(ctx, "job failed transiently; leaving message for redelivery",
			zap.String("key", event.Key), zap.Error(outcome.Err), zap.Duration("duration", duration))
	case jobs.ClassPermanent:
		logger.Warn(ctx, "job failed permanently; message discarded",
			zap.String("key", event.Key), zap.Error(outcome.Err), zap.Duration("duration", duration))
	}
}

// ack settles a receipt with a fresh context: a cancelled loop must still
// delete the message for the job it just finished.
func (c *Consumer) ack(ctx context.Context, receipt, key string) bool {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.queue.Delete(ackCtx, receipt); err != nil {
		logger.Error(ctx, "acknowledge failed; message will be redelivered",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
