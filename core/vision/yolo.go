//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"iris/core/jobs"
)

// YOLODetector runs a YOLO network through the OpenCV DNN module. The model
// is loaded once and reused for every job; detection itself is
// single-threaded, matching the worker's sequential processing model.
type YOLODetector struct {
	mu         sync.Mutex
	net        gocv.Net
	outputs    []string
	classes    []string
	inputSize  int
	confidence float64
	overlap    float64
}

// NewYOLODetector loads the network weights and checks the model manifest
// against the adapter's engine version. Errors here are configuration
// errors: the process must not start serving with an unusable model.
func NewYOLODetector(weightsPath, configPath string, inputSize int, confidence, overlap float64, manifest *Manifest) (*YOLODetector, error) {
	if err := manifest.CheckEngine(EngineVersion); err != nil {
		return nil, err
	}

	net := gocv.ReadNet(weightsPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %q / %q", weightsPath, configPath)
	}

	return &YOLODetector{
		net:        net,
		outputs:    outputLayerNames(&net),
		classes:    manifest.Classes,
		inputSize:  inputSize,
		confidence: confidence,
		overlap:    overlap,
	}, nil
}

// SetThresholds adjusts the confidence and overlap thresholds for
// subsequent detections.
func (d *YOLODetector) SetThresholds(confidence, overlap float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confidence = confidence
	d.overlap = overlap
}

// Detect runs inference on the image at imagePath, writes the annotated
// artifact to annotatedPath and returns detections above the confidence
// threshold after overlap suppression.
func (d *YOLODetector) Detect(ctx context.Context, imagePath, annotatedPath string) ([]jobs.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode image %q", imagePath)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	probs := d.net.ForwardLayers(d.outputs)
	defer func() {
		for i := range probs {
			probs[i].Close()
		}
	}()

	boxes, scores, classIDs := d.decodeOutputs(probs, img.Cols(), img.Rows())

	// Suppress overlapping boxes for the same object.
	indices := gocv.NMSBoxes(boxes, scores, float32(d.confidence), float32(d.overlap))

	detections := make([]jobs.Detection, 0, len(indices))
	kept := make([]int, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, jobs.Detection{
			Label:      d.className(classIDs[idx]),
			Confidence: float64(scores[idx]),
		})
		kept = append(kept, idx)
	}

	if err := d.writeAnnotated(img, boxes, scores, classIDs, kept, annotatedPath); err != nil {
		return nil, err
	}

	return detections, nil
}

// decodeOutputs walks the raw network outputs. Each row is a candidate:
// center box geometry followed by per-class scores.
func (d *YOLODetector) decodeOutputs(probs []gocv.Mat, imgW, imgH int) ([]image.Rectangle, []float32, []int) {
	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := range probs {
		data, err := probs[i].DataPtrFloat32()
		if err != nil {
			continue
		}
		cols := probs[i].Cols()
		for row := 0; row < probs[i].Rows(); row++ {
			offset := row * cols

			classID, score := 0, float32(0)
			for c := 5; c < cols; c++ {
				if data[offset+c] > score {
					score = data[offset+c]
					classID = c - 5
				}
			}
			if float64(score) < d.confidence {
				continue
			}

			cx := data[offset] * float32(imgW)
			cy := data[offset+1] * float32(imgH)
			w := data[offset+2] * float32(imgW)
			h := data[offset+3] * float32(imgH)

			boxes = append(boxes, image.Rect(
				int(cx-w/2), int(cy-h/2),
				int(cx+w/2), int(cy+h/2),
			))
			scores = append(scores, score)
			classIDs = append(classIDs, classID)
		}
	}

	return boxes, scores, classIDs
}

// writeAnnotated draws the surviving boxes and labels onto a copy of the
// input and writes it to annotatedPath.
func (d *YOLODetector) writeAnnotated(img gocv.Mat, boxes []image.Rectangle, scores []float32, classIDs []int, kept []int, annotatedPath string) error {
	annotated := img.Clone()
	defer annotated.Close()

	green := color.RGBA{G: 255, A: 255}
	for _, idx := range kept {
		gocv.Rectangle(&annotated, boxes[idx], green, 2)
		label := fmt.Sprintf("%s %.2f", d.className(classIDs[idx]), scores[idx])
		origin := image.Pt(boxes[idx].Min.X, boxes[idx].Min.Y-6)
		gocv.PutText(&annotated, label, origin, gocv.FontHersheySimplex, 0.5, green, 1)
	}

	if ok := gocv.IMWrite(annotatedPath, annotated); !ok {
		return fmt.Errorf("failed to write annotated image %q", annotatedPath)
	}
	return nil
}

func (d *YOLODetector) className(id int) string {
	if id >= 0 && id < len(d.classes) {
		return d.classes[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// Close releases the loaded network.
func (d *YOLODetector) Close() error {
	return d.net.Close()
}

func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, idx := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(idx)
		names = append(names, layer.GetName())
		layer.Close()
	}
	return names
}
