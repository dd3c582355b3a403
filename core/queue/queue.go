package queue

import "context"

// Message is one received queue delivery: the raw body and the opaque
// receipt token that acknowledges exactly this delivery attempt.
type Message struct {
	Body    []byte
	Receipt string
}

// Queue is the consumer's view of an at-least-once delivery queue with a
// visibility timeout. Receive long-polls for at most one message and
// returns (nil, nil) on an idle poll; Delete acknowledges a delivery by its
// receipt token.
type Queue interface {
	Receive(ctx context.Context) (*Message, error)
	Delete(ctx context.Context, receipt string) error
}
