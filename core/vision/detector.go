// Package vision wraps the external detection engine behind a uniform
// adapter: image in, labeled confidence-scored detections out.
package vision

import (
	"context"

	"iris/core/jobs"
)

// EngineVersion is the adapter's contract version, checked against the
// model manifest's engine constraint at load time.
const EngineVersion = "1.0.0"

// Detector runs inference on a staged image file. Implementations apply a
// confidence threshold and suppress overlapping boxes for the same object;
// both knobs are engine configuration, adjustable at runtime.
type Detector interface {
	// Detect runs inference on the image at imagePath, writes the
	// annotated artifact to annotatedPath and returns the surviving
	// detections. Engine unavailability is an error the pipeline treats as
	// transient.
	Detect(ctx context.Context, imagePath, annotatedPath string) ([]jobs.Detection, error)

	// SetThresholds adjusts the confidence and overlap-suppression
	// thresholds for subsequent detections.
	SetThresholds(confidence, overlap float64)
}
