package jobs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewJobResult_StatusDerivation(t *testing.T) {
	empty := NewJobResult("cat.jpg", nil)
	if empty.Status != StatusUnrecognized {
		t.Errorf("expected status %q for zero detections, got %q", StatusUnrecognized, empty.Status)
	}
	if empty.Detections == nil {
		t.Error("detections must be non-nil so the document serializes an empty array")
	}

	found := NewJobResult("dog.jpg", []Detection{{Label: "dog", Confidence: 0.91}})
	if found.Status != StatusRecognized {
		t.Errorf("expected status %q for non-empty detections, got %q", StatusRecognized, found.Status)
	}
}

func TestNewJobResult_RoundsConfidences(t *testing.T) {
	r := NewJobResult("a.jpg", []Detection{
		{Label: "cat", Confidence: 0.87654},
		{Label: "dog", Confidence: 0.9},
		{Label: "car", Confidence: 1.0},
	})

	want := []float64{0.877, 0.9, 1.0}
	for i, d := range r.Detections {
		if d.Confidence != want[i] {
			t.Errorf("detection %d: expected confidence %v, got %v", i, want[i], d.Confidence)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("detection %d: confidence %v out of [0,1]", i, d.Confidence)
		}
	}
}

func TestJobResult_Document(t *testing.T) {
	doc, err := NewJobResult("cat.jpg", nil).Document()
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if string(doc) != `{"status":"unrec","detections":[]}` {
		t.Errorf("unexpected document: %s", doc)
	}
}

func TestJobResult_PayloadIncludesKey(t *testing.T) {
	payload, err := NewJobResult("cat.jpg", []Detection{{Label: "cat", Confidence: 0.9}}).Payload()
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["key"] != "cat.jpg" {
		t.Errorf("expected key 'cat.jpg', got %v", decoded["key"])
	}
	if decoded["status"] != StatusRecognized {
		t.Errorf("expected status %q, got %v", StatusRecognized, decoded["status"])
	}
}

func TestDocumentKey(t *testing.T) {
	cases := map[string]string{
		"cat.jpg":          "cat.json",
		"dir/photo.jpeg":   "dir/photo.json",
		"no-extension":     "no-extension.json",
		"archive.tar.gz":   "archive.tar.json",
		"trailing.dot.":    "trailing.dot.json",
		"dir.v2/plain":     "dir.v2/plain.json",
		"a+b.jpg":          "a+b.json",
		"with space.png":   "with space.json",
		"nested/a/b/c.png": "nested/a/b/c.json",
	}
	for in, want := range cases {
		if got := DocumentKey(in); got != want {
			t.Errorf("DocumentKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutcome_AckPolicy(t *testing.T) {
	cause := errors.New("boom")

	if !Success(JobResult{}).Ack() {
		t.Error("success must be acknowledged")
	}
	if !Permanent(cause).Ack() {
		t.Error("permanent failure must be acknowledged so poison messages do not block the queue")
	}
	if Transient(cause).Ack() {
		t.Error("transient failure must be left for redelivery")
	}
}

func TestClass_String(t *testing.T) {
	cases := map[Class]string{
		ClassSuccess:   "success",
		ClassTransient: "transient",
		ClassPermanent: "permanent",
		Class(42):      "unknown",
	}
	for class, want := range cases {
		if got := class.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", class, got, want)
		}
	}
}
