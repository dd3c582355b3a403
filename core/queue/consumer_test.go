package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iris/core/events"
	"iris/core/jobs"
)

// MockQueue is a scripted Queue: it hands out its messages one per receive,
// then cancels the loop context so Run returns.
type MockQueue struct {
	mu       sync.Mutex
	messages []*Message
	deleted  []string
	drained  context.CancelFunc
}

func (m *MockQueue) Receive(ctx context.Context) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		if m.drained != nil {
			m.drained()
		}
		return nil, nil
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

func (m *MockQueue) Delete(ctx context.Context, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, receipt)
	return nil
}

func (m *MockQueue) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// MockProcessor returns a scripted outcome and records every event it saw.
type MockProcessor struct {
	mu      sync.Mutex
	outcome jobs.Outcome
	events  []jobs.ObjectEvent
}

func (m *MockProcessor) Process(ctx context.Context, event jobs.ObjectEvent) jobs.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.outcome
}

func (m *MockProcessor) Events() []jobs.ObjectEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]jobs.ObjectEvent(nil), m.events...)
}

func validBody(key string) []byte {
	return []byte(`{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"` + key + `"}}}]}`)
}

// run drives the consumer over the scripted messages until the queue drains.
func run(t *testing.T, q *MockQueue, p jobs.Processor) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.drained = cancel

	bus := events.New()
	t.Cleanup(bus.Close)

	c := NewConsumer(q, p, bus)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("consumer run: %v", err)
	}
}

func TestConsumer_SuccessAcknowledges(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: validBody("cat.jpg"), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Success(jobs.NewJobResult("cat.jpg", nil))}

	run(t, q, p)

	if got := q.Deleted(); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected receipt r1 acknowledged, got %v", got)
	}
	if events := p.Events(); len(events) != 1 || events[0].Key != "cat.jpg" {
		t.Fatalf("expected one processed event for cat.jpg, got %v", events)
	}
}

func TestConsumer_PermanentFailureAcknowledges(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: validBody("gone.jpg"), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Permanent(errors.New("object not found"))}

	run(t, q, p)

	if got := q.Deleted(); len(got) != 1 {
		t.Fatalf("poison message must be acknowledged so it does not block the queue, got %v", got)
	}
}

func TestConsumer_TransientFailureLeavesMessage(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: validBody("cat.jpg"), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Transient(errors.New("throttled"))}

	run(t, q, p)

	if got := q.Deleted(); len(got) != 0 {
		t.Fatalf("transient failure must not be acknowledged, got %v", got)
	}
}

func TestConsumer_RedeliveredTransientMessageIsRetried(t *testing.T) {
	// The queue redelivers the same body after the visibility timeout; the
	// consumer just processes whatever arrives.
	q := &MockQueue{messages: []*Message{
		{Body: validBody("cat.jpg"), Receipt: "r1"},
		{Body: validBody("cat.jpg"), Receipt: "r2"},
	}}
	p := &MockProcessor{outcome: jobs.Transient(errors.New("throttled"))}

	run(t, q, p)

	if got := p.Events(); len(got) != 2 {
		t.Fatalf("expected both deliveries processed, got %d", len(got))
	}
	if got := q.Deleted(); len(got) != 0 {
		t.Fatalf("neither delivery may be acknowledged, got %v", got)
	}
}

func TestConsumer_DecodeFailureDiscardsWithoutProcessing(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: []byte(`not json`), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Success(jobs.JobResult{})}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.drained = cancel

	bus := events.New()
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe(events.TopicJobs)
	defer unsubscribe()

	c := NewConsumer(q, p, bus)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("consumer run: %v", err)
	}

	if got := p.Events(); len(got) != 0 {
		t.Fatalf("processor must never see an undecodable message, got %v", got)
	}
	if got := q.Deleted(); len(got) != 1 {
		t.Fatalf("undecodable message must be acknowledged and dropped, got %v", got)
	}
	// A discarded message is not a job: no started or finished events.
	if got := len(ch); got != 0 {
		t.Fatalf("expected no lifecycle events for a discarded message, got %d", got)
	}
}

func TestConsumer_DecodedKeyIsUnescaped(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: validBody("a%2Bb.jpg"), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Success(jobs.JobResult{})}

	run(t, q, p)

	events := p.Events()
	if len(events) != 1 {
		t.Fatalf("expected one processed event, got %d", len(events))
	}
	if events[0].Key != "a+b.jpg" {
		t.Fatalf("expected key 'a+b.jpg', got %q", events[0].Key)
	}
}

func TestConsumer_PublishesLifecycleEvents(t *testing.T) {
	q := &MockQueue{messages: []*Message{{Body: validBody("cat.jpg"), Receipt: "r1"}}}
	p := &MockProcessor{outcome: jobs.Success(jobs.NewJobResult("cat.jpg", nil))}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.drained = cancel

	bus := events.New()
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe(events.TopicJobs)
	defer unsubscribe()

	c := NewConsumer(q, p, bus)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("consumer run: %v", err)
	}

	var started, finished bool
	for len(ch) > 0 {
		switch ev := (<-ch).(type) {
		case events.JobStarted:
			started = true
			if ev.Key != "cat.jpg" {
				t.Errorf("unexpected started key: %q", ev.Key)
			}
		case events.JobFinished:
			finished = true
			if ev.Class != jobs.ClassSuccess || !ev.Acked {
				t.Errorf("unexpected finished event: %+v", ev)
			}
		}
	}
	if !started || !finished {
		t.Fatalf("expected started and finished events, got started=%v finished=%v", started, finished)
	}
}
