// Package runtime constructs the worker's dependency graph and manages its
// lifecycle: explicit construction and injection of every collaborator,
// startup ordering, and graceful shutdown that lets the in-flight job
// finish before the broker connection is released.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/events"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/metrics"
	"iris/core/notify"
	"iris/core/pipeline"
	"iris/core/queue"
	"iris/core/storage"
	"iris/core/vision"
)

// Runtime owns the constructed components for one worker process.
type Runtime struct {
	cfg       *config.Config
	store     storage.BlobStore
	detector  vision.Detector
	publisher notify.Publisher
	processor *pipeline.Processor
	worker    jobs.Worker
	bus       events.Bus

	metricsSrv *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New builds the full dependency graph. Any failure here is a configuration
// or connection error: the process must not begin serving.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	ctx = logger.WithComponentName(ctx, "runtime")

	store, err := storage.NewS3Store(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	manifest, err := vision.LoadManifest(cfg.Model.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("model manifest: %w", err)
	}
	detector, err := vision.NewYOLODetector(
		cfg.Model.Path, cfg.Model.ConfigPath, cfg.Model.InputSize,
		cfg.Model.Confidence, cfg.Model.Overlap, manifest)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	logger.Info(ctx, "model loaded",
		zap.String("name", manifest.Name), zap.String("version", manifest.Version),
		zap.Int("classes", len(manifest.Classes)))

	// The worker cannot run without its notification channel: a broker
	// handshake failure is fatal at startup.
	publisher, err := notify.NewMQTTPublisher(ctx, cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	// Per-process staging directory: instances sharing a host never share
	// staged files; within one process the files are reused and truncated
	// per iteration.
	stagingDir := filepath.Join(cfg.Worker.StagingDir, "iris-"+uuid.NewString()[:8])
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	processor := pipeline.NewProcessor(store, detector, publisher,
		cfg.Buckets.Output, stagingDir,
		pipeline.WithSourceCleanup(cfg.Worker.SourceCleanup))

	bus := events.New()

	var worker jobs.Worker
	if cfg.Queue.URL != "" {
		q, err := queue.NewSQSQueue(ctx, cfg.AWS, cfg.Queue)
		if err != nil {
			publisher.Close()
			return nil, fmt.Errorf("queue: %w", err)
		}
		worker = queue.NewConsumer(q, processor, bus)
	} else {
		logger.Warn(ctx, "no queue URL configured; falling back to bucket polling")
		worker = queue.NewBucketPoller(store, processor, bus, cfg.Buckets.Input, cfg.Poll)
	}

	rt := &Runtime{
		cfg:       cfg,
		store:     store,
		detector:  detector,
		publisher: publisher,
		processor: processor,
		worker:    worker,
		bus:       bus,
	}

	// Threshold changes from a config reload reach the detector without a
	// restart.
	cfg.AddConfigChangeHook(func(fresh *config.Config) {
		detector.SetThresholds(fresh.Model.Confidence, fresh.Model.Overlap)
		logger.Info(ctx, "detector thresholds updated",
			zap.Float64("confidence", fresh.Model.Confidence),
			zap.Float64("overlap", fresh.Model.Overlap))
	})

	return rt, nil
}

// Start launches the metrics endpoint, the lifecycle recorder and the
// worker loop. It returns immediately; use Stop to shut down.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runtime already running")
	}
	r.running = true
	r.mu.Unlock()

	ctx = logger.WithComponentName(ctx, "runtime")
	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.startRecorder(workerCtx)
	r.startMetricsServer(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.worker.Run(workerCtx); err != nil {
			logger.Error(ctx, "worker exited with error", zap.Error(err))
		}
	}()

	logger.Info(ctx, "runtime started",
		zap.String("input_bucket", r.cfg.Buckets.Input),
		zap.String("output_bucket", r.cfg.Buckets.Output),
		zap.Bool("queue_mode", r.cfg.Queue.URL != ""))
	return nil
}

// Stop performs a graceful shutdown: the worker finishes its in-flight job,
// then the broker connection is released. The context bounds the wait.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("runtime not running")
	}
	r.running = false
	r.mu.Unlock()

	ctx = logger.WithComponentName(ctx, "runtime")
	logger.Info(ctx, "stopping runtime")

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn(ctx, "shutdown deadline reached before worker finished")
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "metrics server shutdown failed", zap.Error(err))
		}
	}

	// Disconnect only after the worker (and so any in-flight publish) is
	// done.
	r.publisher.Close()
	r.bus.Close()

	logger.Info(ctx, "runtime stopped")
	return nil
}

// ProcessOne runs the single-shot mode: process exactly one object and
// return its outcome. An empty key selects the first image in the input
// bucket.
func (r *Runtime) ProcessOne(ctx context.Context, key string) (jobs.Outcome, error) {
	ctx = logger.WithComponentName(ctx, "runtime")

	if key == "" {
		keys, err := r.store.List(ctx, r.cfg.Buckets.Input, r.cfg.Poll.MaxKeys)
		if err != nil {
			return jobs.Outcome{}, fmt.Errorf("list input bucket: %w", err)
		}
		if len(keys) == 0 {
			return jobs.Outcome{}, fmt.Errorf("no objects found in bucket %s", r.cfg.Buckets.Input)
		}
		if len(keys) > 1 {
			logger.Warn(ctx, "multiple objects in input bucket; using the first one",
				zap.Int("count", len(keys)))
		}
		key = keys[0]
	}

	logger.Info(ctx, "processing single object", zap.String("key", key))
	outcome := r.processor.Process(ctx, jobs.ObjectEvent{Bucket: r.cfg.Buckets.Input, Key: key})
	return outcome, nil
}

// startRecorder turns job lifecycle events into metrics. The recorder is
// the only bus subscriber in the core runtime; additional observers can
// subscribe without touching the consumer loop.
func (r *Runtime) startRecorder(ctx context.Context) {
	ch, unsubscribe := r.bus.Subscribe(events.TopicJobs)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if finished, isFinished := ev.(events.JobFinished); isFinished {
					metrics.JobsTotal.WithLabelValues(finished.Class.String()).Inc()
				}
			}
		}
	}()
}

func (r *Runtime) startMetricsServer(ctx context.Context) {
	if r.cfg.Worker.MetricsAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Worker.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "metrics server failed", zap.Error(err))
		}
	}()
	logger.Info(ctx, "metrics endpoint listening", zap.String("address", r.cfg.Worker.MetricsAddress))
}

// Close releases resources for a runtime that never started (single-shot
// mode).
func (r *Runtime) Close() {
	r.publisher.Close()
	r.bus.Close()
}
