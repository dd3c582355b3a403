package events

import (
	"context"
	"testing"
	"time"

	"iris/core/jobs"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(TopicJobs)
	defer unsubscribe()

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	b.Publish(ctx, TopicJobs, JobStarted{Bucket: "in", Key: "cat.jpg", At: time.Now()})

	select {
	case v := <-ch:
		started, ok := v.(JobStarted)
		if !ok {
			t.Fatalf("expected JobStarted, got %T", v)
		}
		if started.Key != "cat.jpg" {
			t.Fatalf("unexpected key: %v", started.Key)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_JobFinishedCarriesOutcomeClass(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(TopicJobs)
	defer unsubscribe()

	b.Publish(context.Background(), TopicJobs, JobFinished{
		Key:   "cat.jpg",
		Class: jobs.ClassTransient,
		Acked: false,
	})

	select {
	case v := <-ch:
		finished, ok := v.(JobFinished)
		if !ok {
			t.Fatalf("expected JobFinished, got %T", v)
		}
		if finished.Class != jobs.ClassTransient {
			t.Fatalf("unexpected class: %v", finished.Class)
		}
		if finished.Acked {
			t.Fatal("transient outcome must not be acked")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(TopicJobs)
	unsubscribe()

	// After unsubscribing the channel is closed.
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after unsubscribe")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}
	// Publishing afterwards must not panic.
	b.Publish(context.Background(), TopicJobs, JobStarted{Key: "ignored"})
}

func TestBus_SlowSubscriberNeverBlocksPublisher(t *testing.T) {
	b := New()
	defer b.Close()
	_, unsubscribe := b.Subscribe(TopicJobs)
	defer unsubscribe()

	// Overfill the subscriber buffer without ever receiving; every publish
	// must return immediately.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(context.Background(), TopicJobs, JobStarted{Key: "cat.jpg"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	ch1, _ := b.Subscribe(TopicJobs)
	ch2, _ := b.Subscribe(TopicJobs)
	b.Close()
	// all subscriber channels are closed
	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("expected ch%d closed", i+1)
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout waiting ch%d to close", i+1)
		}
	}

	// Subscribing after close yields an already-closed channel.
	ch3, _ := b.Subscribe(TopicJobs)
	if _, ok := <-ch3; ok {
		t.Fatal("expected closed channel from post-close subscribe")
	}
}
