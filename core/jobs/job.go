package jobs

import (
	"encoding/json"
	"math"
	"path"
	"strings"
)

// ObjectEvent identifies one object to process: the bucket it was uploaded
// to and its key, already percent-decoded. It is immutable once constructed
// and lives for the duration of a single job attempt.
type ObjectEvent struct {
	Bucket string
	Key    string
}

// Detection is one labeled, confidence-scored recognition result from the
// inference engine. Confidence is in [0,1].
type Detection struct {
	Label      string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// Job result status values on the wire.
const (
	StatusRecognized   = "rec"
	StatusUnrecognized = "unrec"
)

// JobResult is the outcome payload of one successful job. Status is derived
// purely from detection emptiness: "rec" iff Detections is non-empty.
type JobResult struct {
	Key        string      `json:"key"`
	Status     string      `json:"status"`
	Detections []Detection `json:"detections"`
}

// NewJobResult shapes a result from raw detections: confidences are rounded
// to 3 decimals and the status is derived from emptiness. Detections is
// always non-nil so it serializes as an empty array, never null.
func NewJobResult(key string, detections []Detection) JobResult {
	shaped := make([]Detection, 0, len(detections))
	for _, d := range detections {
		shaped = append(shaped, Detection{
			Label:      d.Label,
			Confidence: RoundConfidence(d.Confidence),
		})
	}
	status := StatusUnrecognized
	if len(shaped) > 0 {
		status = StatusRecognized
	}
	return JobResult{Key: key, Status: status, Detections: shaped}
}

// RoundConfidence rounds a confidence value to 3-decimal precision, the
// resolution kept in all serialized forms.
func RoundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}

// Document serializes the stored result document: status and detections
// only. The object key is implicit in the document's own storage key.
func (r JobResult) Document() ([]byte, error) {
	doc := struct {
		Status     string      `json:"status"`
		Detections []Detection `json:"detections"`
	}{Status: r.Status, Detections: r.Detections}
	return json.Marshal(doc)
}

// Payload serializes the broker notification payload: the stored document
// fields plus the processed key.
func (r JobResult) Payload() ([]byte, error) {
	return json.Marshal(r)
}

// DocumentKey derives the result-document key for an input key by replacing
// its extension with ".json".
func DocumentKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + ".json"
}
