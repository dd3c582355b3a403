package queue

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/events"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/storage"
)

// BucketPoller is the fallback worker for deployments without a
// notification queue: it sweeps the input bucket directly and processes
// every image it finds. It is meant to run with source cleanup enabled so
// the bucket acts as a work queue; without it, sweeps reprocess the same
// keys, which the idempotent pipeline tolerates but wastes inference time.
// Keys that fail permanently are remembered and skipped for the life of
// the process; a restart retries them.
type BucketPoller struct {
	store     storage.BlobStore
	processor jobs.Processor
	bus       events.Bus
	bucket    string
	interval  time.Duration
	maxKeys   int32
	suffixes  []string
	failed    map[string]struct{}
}

// NewBucketPoller wires a poller from its injected dependencies.
func NewBucketPoller(store storage.BlobStore, p jobs.Processor, bus events.Bus, bucket string, cfg config.PollConfig) *BucketPoller {
	return &BucketPoller{
		store:     store,
		processor: p,
		bus:       bus,
		bucket:    bucket,
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		maxKeys:   cfg.MaxKeys,
		suffixes:  cfg.Suffixes,
		failed:    make(map[string]struct{}),
	}
}

// Run sweeps the bucket until the context is cancelled. Keys are processed
// strictly sequentially; a transient failure is simply retried on a later
// sweep because the key stays in the bucket.
func (p *BucketPoller) Run(ctx context.Context) error {
	ctx = logger.WithComponentName(ctx, "bucketpoll")
	logger.Info(ctx, "bucket poller started", zap.String("bucket", p.bucket))

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "bucket poller stopped")
			return nil
		default:
		}

		keys, err := p.store.List(ctx, p.bucket, p.maxKeys)
		if err != nil {
			logger.Error(ctx, "bucket list failed", zap.Error(err))
			sleep(ctx, p.interval)
			continue
		}

		for _, key := range keys {
			if !p.wantKey(key) {
				continue
			}
			if _, skip := p.failed[key]; skip {
				continue
			}
			if ctx.Err() != nil {
				logger.Info(ctx, "bucket poller stopped")
				return nil
			}
			p.handle(ctx, jobs.ObjectEvent{Bucket: p.bucket, Key: key})
		}

		sleep(ctx, p.interval)
	}
}

func (p *BucketPoller) handle(ctx context.Context, event jobs.ObjectEvent) {
	start := time.Now()
	p.bus.Publish(ctx, events.TopicJobs, events.JobStarted{
		Bucket: event.Bucket,
		Key:    event.Key,
		At:     start,
	})
	logger.Info(ctx, "job started", zap.String("bucket", event.Bucket), zap.String("key", event.Key))

	outcome := p.processor.Process(ctx, event)

	p.bus.Publish(ctx, events.TopicJobs, events.JobFinished{
		Bucket:   event.Bucket,
		Key:      event.Key,
		Class:    outcome.Class,
		Acked:    outcome.Ack(), // no receipt in poll mode; ack means "won't be retried"
		Duration: time.Since(start),
	})

	switch outcome.Class {
	case jobs.ClassSuccess:
		logger.Info(ctx, "job succeeded", zap.String("key", event.Key),
			zap.String("status", outcome.Result.Status))
	case jobs.ClassTransient:
		logger.Warn(ctx, "job failed transiently; retrying on a later sweep",
			zap.String("key", event.Key), zap.Error(outcome.Err))
	case jobs.ClassPermanent:
		p.failed[event.Key] = struct{}{}
		logger.Warn(ctx, "job failed permanently; key excluded from later sweeps",
			zap.String("key", event.Key), zap.Error(outcome.Err))
	}
}

func (p *BucketPoller) wantKey(key string) bool {
	if len(p.suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
