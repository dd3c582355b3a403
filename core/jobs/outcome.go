package jobs

import "context"

// Class partitions job outcomes for the consumer's acknowledge policy.
type Class int

const (
	// ClassSuccess: the job completed and its outputs are stored. The
	// message must be acknowledged.
	ClassSuccess Class = iota
	// ClassTransient: an infrastructure hiccup that a later attempt may not
	// hit. The message must be left unacknowledged so the queue redelivers
	// it after the visibility timeout.
	ClassTransient
	// ClassPermanent: the message can never succeed (malformed payload,
	// missing object). It must be acknowledged and dropped so it does not
	// block the queue.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// Outcome is the transient result of one job attempt. It is never persisted;
// it only drives the consumer's acknowledge decision and logging.
type Outcome struct {
	Class  Class
	Result JobResult // valid only when Class == ClassSuccess
	Err    error     // nil only when Class == ClassSuccess
}

// Success wraps a completed job result.
func Success(result JobResult) Outcome {
	return Outcome{Class: ClassSuccess, Result: result}
}

// Transient marks a retryable failure.
func Transient(err error) Outcome {
	return Outcome{Class: ClassTransient, Err: err}
}

// Permanent marks a failure that retrying cannot fix.
func Permanent(err error) Outcome {
	return Outcome{Class: ClassPermanent, Err: err}
}

// Ack reports whether the consumer must acknowledge (delete) the message
// that produced this outcome. Only transient failures are left for
// redelivery.
func (o Outcome) Ack() bool {
	return o.Class != ClassTransient
}

// Processor drives one object event through the full pipeline and
// classifies the attempt.
type Processor interface {
	Process(ctx context.Context, event ObjectEvent) Outcome
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, event ObjectEvent) Outcome

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, event ObjectEvent) Outcome {
	return f(ctx, event)
}
