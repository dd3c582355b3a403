package jobs

import "context"

// Worker is an interface for consuming work from a source of object events.
// Concrete implementations interact with specific delivery technologies
// (a notification queue, a polled bucket) and hand each event to a Processor.
type Worker interface {
	// Run consumes events until the context is cancelled. It processes at
	// most one event at a time; an in-flight job is finished before Run
	// returns. A nil return means a clean, cancellation-driven exit.
	Run(ctx context.Context) error
}
