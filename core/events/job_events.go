package events

import (
	"time"

	"iris/core/jobs"
)

// TopicJobs carries job lifecycle events published by the consumer loop.
const TopicJobs Topic = "jobs"

// JobStarted is published when a received message has been decoded and the
// processor is about to run.
type JobStarted struct {
	Bucket string
	Key    string
	At     time.Time
}

func (JobStarted) EventType() string { return "job.started" }

// JobFinished is published after the processor returned and the acknowledge
// decision was applied.
type JobFinished struct {
	Bucket   string
	Key      string
	Class    jobs.Class
	Acked    bool
	Duration time.Duration
}

func (JobFinished) EventType() string { return "job.finished" }
