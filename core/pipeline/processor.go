// Package pipeline drives one object event through the full job: download,
// output cleanup, inference, result shaping, upload, notification and
// optional source cleanup.
package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"iris/core/errors"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/metrics"
	"iris/core/notify"
	"iris/core/storage"
	"iris/core/vision"
)

// Processor implements jobs.Processor. All collaborators are injected at
// construction; the processor holds no global state and is safe to rebuild
// in tests with fakes.
type Processor struct {
	store         storage.BlobStore
	detector      vision.Detector
	publisher     notify.Publisher
	outputBucket  string
	stagingDir    string
	sourceCleanup bool
}

// Option tunes processor construction.
type Option func(*Processor)

// WithSourceCleanup makes the processor delete the input blob after a fully
// successful run, so the input store acts as a work queue rather than an
// archive.
func WithSourceCleanup(enabled bool) Option {
	return func(p *Processor) { p.sourceCleanup = enabled }
}

// NewProcessor wires a processor from its injected dependencies.
// stagingDir is reused across iterations: the pipeline runs one job at a
// time, and every run truncates the staged files rather than appending.
func NewProcessor(store storage.BlobStore, detector vision.Detector, publisher notify.Publisher, outputBucket, stagingDir string, opts ...Option) *Processor {
	p := &Processor{
		store:        store,
		detector:     detector,
		publisher:    publisher,
		outputBucket: outputBucket,
		stagingDir:   stagingDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one job attempt. Reprocessing the same key, including a
// duplicate delivery racing a slow first attempt, converges to the same
// final stored state: pre-existing outputs are removed before new ones are
// written.
func (p *Processor) Process(ctx context.Context, event jobs.ObjectEvent) jobs.Outcome {
	ctx = logger.WithComponentName(ctx, "pipeline")
	tracer := otel.Tracer("iris-pipeline")
	ctx, span := tracer.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("object.bucket", event.Bucket),
			attribute.String("object.key", event.Key),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	// Stage 1: fetch the input blob to a fresh staging location.
	stagedPath := filepath.Join(p.stagingDir, "input"+path.Ext(event.Key))
	span.AddEvent("fetch")
	if err := p.store.Download(ctx, event.Bucket, event.Key, stagedPath); err != nil {
		return p.fail(span, "fetch", err)
	}

	// Stage 2: idempotency cleanup. Remove pre-existing outputs for the
	// derived keys so reprocessing never leaves stale mixed results.
	documentKey := jobs.DocumentKey(event.Key)
	span.AddEvent("cleanup")
	if err := p.store.Delete(ctx, p.outputBucket, event.Key); err != nil {
		return p.fail(span, "cleanup", err)
	}
	if err := p.store.Delete(ctx, p.outputBucket, documentKey); err != nil {
		return p.fail(span, "cleanup", err)
	}

	// Stage 3: inference.
	annotatedPath := filepath.Join(p.stagingDir, "annotated"+path.Ext(event.Key))
	span.AddEvent("infer")
	detections, err := p.detector.Detect(ctx, stagedPath, annotatedPath)
	if err != nil {
		return p.fail(span, "infer", err)
	}

	// Stage 4: result shaping.
	result := jobs.NewJobResult(event.Key, detections)
	metrics.Detections.Add(float64(len(result.Detections)))

	// Stage 5: publish outputs to the output store.
	span.AddEvent("upload")
	if err := p.store.Upload(ctx, p.outputBucket, event.Key, annotatedPath, contentTypeFor(event.Key)); err != nil {
		return p.fail(span, "upload", err)
	}
	document, err := result.Document()
	if err != nil {
		return p.fail(span, "upload", err)
	}
	if err := p.store.Put(ctx, p.outputBucket, documentKey, document, "application/json"); err != nil {
		return p.fail(span, "upload", err)
	}

	// Stage 6: best-effort notification. The stored artifact and document
	// are the authoritative result; a publish failure never downgrades a
	// successful job.
	span.AddEvent("notify")
	if err := p.publisher.Publish(ctx, result); err != nil {
		metrics.StageFailures.WithLabelValues("notify").Inc()
		logger.Warn(ctx, "result publish failed; job remains successful",
			zap.String("key", event.Key), zap.Error(err))
	}

	// Stage 7: optional source cleanup, only after the outputs are stored.
	if p.sourceCleanup {
		if err := p.store.Delete(ctx, event.Bucket, event.Key); err != nil {
			metrics.StageFailures.WithLabelValues("source_cleanup").Inc()
			logger.Warn(ctx, "source cleanup failed",
				zap.String("key", event.Key), zap.Error(err))
		}
	}

	p.removeStaged(ctx, stagedPath, annotatedPath)

	return jobs.Success(result)
}

// fail records the stage failure and classifies the attempt: not-found and
// malformed-input conditions are permanent, everything else defaults to
// transient so the queue redelivers it.
func (p *Processor) fail(span trace.Span, stage string, err error) jobs.Outcome {
	metrics.StageFailures.WithLabelValues(stage).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrDecode) || errors.Is(err, errors.ErrInvalidInput) {
		return jobs.Permanent(errors.Wrap(err, stage+" stage"))
	}
	return jobs.Transient(errors.Wrap(err, stage+" stage"))
}

// removeStaged clears the per-iteration staging files. Failure is harmless:
// the next run truncates them anyway.
func (p *Processor) removeStaged(ctx context.Context, paths ...string) {
	for _, file := range paths {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			logger.Debug(ctx, "staging cleanup failed", zap.String("path", file), zap.Error(err))
		}
	}
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
