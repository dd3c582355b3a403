//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"sync"

	"iris/core/errors"
	"iris/core/jobs"
)

// YOLODetector is the stub build without OpenCV. Detection reports the
// engine as unavailable, which the pipeline classifies as a transient
// failure.
type YOLODetector struct {
	mu         sync.Mutex
	confidence float64
	overlap    float64
}

// NewYOLODetector validates the manifest but loads no network in the stub
// build.
func NewYOLODetector(weightsPath, configPath string, inputSize int, confidence, overlap float64, manifest *Manifest) (*YOLODetector, error) {
	if err := manifest.CheckEngine(EngineVersion); err != nil {
		return nil, err
	}
	return &YOLODetector{confidence: confidence, overlap: overlap}, nil
}

// SetThresholds adjusts the thresholds; the stub only records them.
func (d *YOLODetector) SetThresholds(confidence, overlap float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confidence = confidence
	d.overlap = overlap
}

// Detect reports the engine as unavailable in a stub build.
func (d *YOLODetector) Detect(ctx context.Context, imagePath, annotatedPath string) ([]jobs.Detection, error) {
	_ = imagePath
	_ = annotatedPath
	return nil, errors.Wrap(errors.ErrUnavailable, "gocv build tag is not enabled")
}

// Close is a no-op in a stub build.
func (d *YOLODetector) Close() error { return nil }
